package main

import (
	"context"
	"flag"

	"github.com/mahaj/duo-relay/pkg/config"
	"github.com/mahaj/duo-relay/pkg/db"
	"github.com/sirupsen/logrus"
)

func main() {
	hosts := flag.String("hosts", "localhost:9042", "comma separated scylla hosts")
	keyspace := flag.String("keyspace", "chat", "keyspace to create")
	flag.Parse()

	log := logrus.New()
	scyllaHosts := config.Split(*hosts)

	if err := db.CreateKeyspace(scyllaHosts, *keyspace); err != nil {
		log.WithError(err).Fatal("Failed to create keyspace")
	}
	session, err := db.NewSession(scyllaHosts, *keyspace)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to ScyllaDB")
	}
	defer session.Close()

	if err := db.NewArchive(session).EnsureSchema(context.Background()); err != nil {
		log.WithError(err).Fatal("Failed to create tables")
	}
	for _, t := range db.Tables {
		log.WithField("table", t.Name).Info("Table ready")
	}
}
