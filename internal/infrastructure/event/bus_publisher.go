package event

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"github.com/erp/ledger/internal/domain/shared"
)

// BusPublisher relays outbox entries to an in-process event bus.
// Payloads are decoded with the serializer first; an undecodable payload is a
// permanent failure.
type BusPublisher struct {
	bus        shared.EventPublisher
	serializer *EventSerializer
}

// NewBusPublisher creates a BusPublisher
func NewBusPublisher(bus shared.EventPublisher, serializer *EventSerializer) *BusPublisher {
	return &BusPublisher{bus: bus, serializer: serializer}
}

// Publish decodes the entry and hands the event to the bus
func (p *BusPublisher) Publish(ctx context.Context, entry *shared.OutboxEntry) error {
	event, err := p.serializer.Deserialize(entry.EventType, entry.Payload)
	if err != nil {
		return backoff.Permanent(err)
	}
	return p.bus.Publish(ctx, event)
}

var _ Publisher = (*BusPublisher)(nil)
