package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mahaj/duo-relay/pkg/config"
	"github.com/mahaj/duo-relay/pkg/db"
	"github.com/mahaj/duo-relay/pkg/journal"
	"github.com/mahaj/duo-relay/pkg/logging"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var cfg config.Archiver
	if err := config.Load(&cfg); err != nil {
		return err
	}
	log, closer, err := logging.New(cfg.Logging())
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Schema creation belongs to a migration tool in production; the archiver
	// bootstraps it so a fresh cluster works out of the box.
	hosts := config.Split(cfg.ScyllaHosts)
	if err := db.CreateKeyspace(hosts, cfg.Keyspace); err != nil {
		return err
	}
	session, err := db.NewSession(hosts, cfg.Keyspace)
	if err != nil {
		return err
	}
	defer session.Close()

	archive := db.NewArchive(session)
	if err := archive.EnsureSchema(ctx); err != nil {
		return err
	}

	reader := journal.NewReader(config.Split(cfg.KafkaBrokers), cfg.KafkaTopic, cfg.GroupID, log)
	defer reader.Close()

	log.WithFields(logrus.Fields{"topic": cfg.KafkaTopic, "group": cfg.GroupID}).Info("Archiver consuming journal")
	err = reader.Consume(ctx, NewConsumer(archive, log).Handle)
	if errors.Is(err, context.Canceled) {
		log.Info("Archiver stopped")
		return nil
	}
	return err
}
