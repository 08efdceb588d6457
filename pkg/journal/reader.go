package journal

import (
	"context"
	"time"

	"github.com/mahaj/duo-relay/pkg/model"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Handler processes one record. An error is logged; the record is not
// redelivered.
type Handler func(ctx context.Context, rec model.Record) error

type Reader struct {
	reader *kafka.Reader
	log    logrus.FieldLogger
}

func NewReader(brokers []string, topic, groupID string, log logrus.FieldLogger) *Reader {
	return &Reader{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 10e3, // 10KB
			MaxBytes: 10e6, // 10MB
		}),
		log: log,
	}
}

// Consume feeds records to h until ctx is done.
func (r *Reader) Consume(ctx context.Context, h Handler) error {
	for {
		m, err := r.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.log.WithError(err).Warn("Error reading record, retrying in 1s")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		rec, err := Decode(m.Value)
		if err != nil {
			r.log.WithError(err).WithField("offset", m.Offset).Warn("Skipping malformed record")
			continue
		}
		if err := h(ctx, rec); err != nil {
			r.log.WithError(err).WithFields(logrus.Fields{
				"kind":       rec.Kind,
				"message_id": rec.MessageID,
			}).Error("Failed to handle record")
		}
	}
}

func (r *Reader) Close() error {
	return r.reader.Close()
}
