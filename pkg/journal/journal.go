// Package journal publishes relay records to Kafka and reads them back for
// archiving.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mahaj/duo-relay/pkg/model"
	"github.com/segmentio/kafka-go"
)

var ErrUnknownKind = errors.New("unknown record kind")

type Publisher interface {
	Publish(ctx context.Context, rec model.Record) error
	Close() error
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher keys records by conversation so one conversation stays
// on one partition, in order.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, rec model.Record) error {
	value, err := Encode(rec)
	if err != nil {
		return err
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rec.ConversationID),
		Value: value,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("write record %s: %w", rec.MessageID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Noop drops every record.
type Noop struct{}

func (Noop) Publish(context.Context, model.Record) error { return nil }
func (Noop) Close() error                                { return nil }

func Encode(rec model.Record) ([]byte, error) {
	if rec.Kind != model.RecordMessage && rec.Kind != model.RecordStatus {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, rec.Kind)
	}
	return json.Marshal(rec)
}

func Decode(value []byte) (model.Record, error) {
	var rec model.Record
	if err := json.Unmarshal(value, &rec); err != nil {
		return model.Record{}, fmt.Errorf("decode record: %w", err)
	}
	if rec.Kind != model.RecordMessage && rec.Kind != model.RecordStatus {
		return model.Record{}, fmt.Errorf("%w: %q", ErrUnknownKind, rec.Kind)
	}
	return rec, nil
}
