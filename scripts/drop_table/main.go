package main

import (
	"flag"

	"github.com/mahaj/duo-relay/pkg/config"
	"github.com/mahaj/duo-relay/pkg/db"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

func main() {
	hosts := flag.String("hosts", "localhost:9042", "comma separated scylla hosts")
	keyspace := flag.String("keyspace", "chat", "keyspace holding the archive")
	table := flag.String("table", "messages", "table to drop, or \"all\"")
	flag.Parse()

	log := logrus.New()
	names := lo.Map(db.Tables, func(t db.Table, _ int) string { return t.Name })
	if *table != "all" {
		if !lo.Contains(names, *table) {
			log.WithFields(logrus.Fields{"table": *table, "known": names}).Fatal("Unknown table")
		}
		names = []string{*table}
	}

	session, err := db.NewSession(config.Split(*hosts), *keyspace)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to ScyllaDB")
	}
	defer session.Close()

	for _, name := range names {
		log.WithField("table", name).Info("Dropping table")
		if err := session.Query("DROP TABLE IF EXISTS " + name).Exec(); err != nil {
			log.WithError(err).Fatal("Failed to drop table")
		}
	}
	log.Info("Done")
}
