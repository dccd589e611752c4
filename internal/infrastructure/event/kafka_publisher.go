package event

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/segmentio/kafka-go"
)

// Kafka message header names
const (
	HeaderEventID       = "event_id"
	HeaderEventType     = "event_type"
	HeaderTenantID      = "tenant_id"
	HeaderAggregateType = "aggregate_type"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher relays outbox entries to a Kafka topic.
// Messages are keyed by aggregate ID, so all events of one reference group
// land on one partition in commit order.
type KafkaPublisher struct {
	writer MessageWriter
}

// NewKafkaPublisher creates a publisher backed by a kafka-go Writer
func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	return NewKafkaPublisherWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.WriteTimeout,
		Transport:    &kafka.Transport{ClientID: cfg.ClientID},
		// retries are driven by the outbox processor
		MaxAttempts: 1,
	})
}

// NewKafkaPublisherWithWriter creates a publisher on an existing writer
func NewKafkaPublisherWithWriter(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// Publish writes the entry's payload as one message
func (p *KafkaPublisher) Publish(ctx context.Context, entry *shared.OutboxEntry) error {
	if err := p.writer.WriteMessages(ctx, EntryMessage(entry)); err != nil {
		return fmt.Errorf("kafka write %s: %w", entry.EventType, err)
	}
	return nil
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// EntryMessage maps an outbox entry to a Kafka message
func EntryMessage(entry *shared.OutboxEntry) kafka.Message {
	return kafka.Message{
		Key:   []byte(entry.AggregateID.String()),
		Value: entry.Payload,
		Time:  entry.CreatedAt.UTC().Truncate(time.Millisecond),
		Headers: []kafka.Header{
			{Key: HeaderEventID, Value: []byte(entry.EventID.String())},
			{Key: HeaderEventType, Value: []byte(entry.EventType)},
			{Key: HeaderTenantID, Value: []byte(entry.TenantID.String())},
			{Key: HeaderAggregateType, Value: []byte(entry.AggregateType)},
		},
	}
}

var _ Publisher = (*KafkaPublisher)(nil)
