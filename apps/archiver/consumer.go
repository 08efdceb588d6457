package main

import (
	"context"

	"github.com/mahaj/duo-relay/pkg/model"
	"github.com/sirupsen/logrus"
)

// Store persists journal records.
type Store interface {
	Save(ctx context.Context, rec model.Record) error
}

type Consumer struct {
	store Store
	log   logrus.FieldLogger
}

func NewConsumer(store Store, log logrus.FieldLogger) *Consumer {
	return &Consumer{store: store, log: log}
}

// Handle archives one record. It matches journal.Handler.
func (c *Consumer) Handle(ctx context.Context, rec model.Record) error {
	if err := c.store.Save(ctx, rec); err != nil {
		return err
	}
	c.log.WithFields(logrus.Fields{
		"kind":         rec.Kind,
		"message_id":   rec.MessageID,
		"conversation": rec.ConversationID,
	}).Debug("Record archived")
	return nil
}
