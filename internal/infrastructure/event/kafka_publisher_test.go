package event

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestKafkaPublisher_Publish(t *testing.T) {
	writer := &recordingWriter{}
	pub := NewKafkaPublisherWithWriter(writer)
	tenantID := uuid.New()
	entry := newEntry(t, tenantID, "INV-1")

	require.NoError(t, pub.Publish(context.Background(), entry))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, entry.AggregateID.String(), string(msg.Key))
	assert.Equal(t, entry.Payload, msg.Value)
	assert.Equal(t, entry.EventType, header(msg, HeaderEventType))
	assert.Equal(t, entry.EventID.String(), header(msg, HeaderEventID))
	assert.Equal(t, tenantID.String(), header(msg, HeaderTenantID))

	require.NoError(t, pub.Close())
	assert.True(t, writer.closed)
}

func TestKafkaPublisher_SameGroupSameKey(t *testing.T) {
	tenantID := uuid.New()
	a := EntryMessage(newEntry(t, tenantID, "INV-1"))
	b := EntryMessage(newEntry(t, tenantID, "INV-1"))
	c := EntryMessage(newEntry(t, tenantID, "INV-2"))

	assert.Equal(t, a.Key, b.Key)
	assert.NotEqual(t, a.Key, c.Key)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	pub := NewKafkaPublisherWithWriter(&recordingWriter{err: errors.New("connection refused")})
	err := pub.Publish(context.Background(), newEntry(t, uuid.New(), "INV-1"))
	assert.ErrorContains(t, err, "connection refused")
}

func TestNewKafkaPublisher(t *testing.T) {
	pub := NewKafkaPublisher(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "ledger.events", ClientID: "test"})
	writer, ok := pub.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "ledger.events", writer.Topic)
	assert.Equal(t, kafka.RequireAll, writer.RequiredAcks)
	require.NoError(t, pub.Close())
}
