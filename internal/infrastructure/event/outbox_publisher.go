package event

import (
	"context"
	"fmt"

	"github.com/erp/ledger/internal/domain/shared"
	"gorm.io/gorm"
)

// OutboxPublisher stores domain events in the outbox table of an open transaction
type OutboxPublisher struct {
	serializer *EventSerializer
	maxRetries int
}

// NewOutboxPublisher creates a new outbox publisher
func NewOutboxPublisher(serializer *EventSerializer) *OutboxPublisher {
	return &OutboxPublisher{
		serializer: serializer,
		maxRetries: shared.DefaultMaxRetries,
	}
}

// WithMaxRetries sets how many failed deliveries an entry gets before it is marked DEAD
func (p *OutboxPublisher) WithMaxRetries(n int) *OutboxPublisher {
	if n > 0 {
		p.maxRetries = n
	}
	return p
}

// PublishWithTx writes one outbox row per event through tx, so the events
// commit or roll back with the ledger rows that raised them.
func (p *OutboxPublisher) PublishWithTx(ctx context.Context, tx *gorm.DB, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	entries := make([]*shared.OutboxEntry, 0, len(events))
	for _, event := range events {
		payload, err := p.serializer.Serialize(event)
		if err != nil {
			return fmt.Errorf("serialize %T: %w", event, err)
		}
		entry := shared.NewOutboxEntry(event.TenantID(), event, payload)
		entry.MaxRetries = p.maxRetries
		entries = append(entries, entry)
	}

	return NewGormOutboxRepository(tx).Save(ctx, entries...)
}
