package event

import (
	"context"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"go.uber.org/zap"
)

// LedgerEventLogger writes relayed ledger events to the log.
// The relay subscribes it to the in-memory bus when no broker is configured.
type LedgerEventLogger struct {
	logger *zap.Logger
}

// NewLedgerEventLogger creates a LedgerEventLogger
func NewLedgerEventLogger(logger *zap.Logger) *LedgerEventLogger {
	return &LedgerEventLogger{logger: logger}
}

// EventTypes returns the ledger event types
func (h *LedgerEventLogger) EventTypes() []string {
	return []string{ledger.EventTypeLedgerPosted, ledger.EventTypeLedgerReversed}
}

// Handle logs one event
func (h *LedgerEventLogger) Handle(_ context.Context, event shared.DomainEvent) error {
	fields := []zap.Field{
		zap.String("event_id", event.EventID().String()),
		zap.String("tenant_id", event.TenantID().String()),
	}
	switch e := event.(type) {
	case *ledger.LedgerPostedEvent:
		h.logger.Info("ledger posted", append(fields,
			zap.String("document_ref", e.DocumentRef),
			zap.String("transaction_type", string(e.TransactionType)),
			zap.Int("entry_count", len(e.Legs)),
			zap.String("debit_total", e.DebitTotal.String()),
			zap.String("credit_total", e.CreditTotal.String()),
		)...)
	case *ledger.LedgerReversedEvent:
		h.logger.Info("ledger reversed", append(fields,
			zap.String("document_ref", e.DocumentRef),
			zap.Int64("entry_count", e.RemovedCount),
		)...)
	default:
		h.logger.Debug("ignoring event", append(fields, zap.String("event_type", event.EventType()))...)
	}
	return nil
}
