package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Outcome labels for ledger operations
const (
	OutcomeSuccess = "success"
)

// LedgerMetrics records posting engine and outbox relay metrics.
// A nil *LedgerMetrics is valid and records nothing.
type LedgerMetrics struct {
	logger *zap.Logger

	postingsTotal   *Counter
	reversalsTotal  *Counter
	unbalancedTotal *Counter
	postingDuration *Histogram
	eventsPublished *Counter
	publishDuration *Histogram
	outboxEntries   *Gauge
}

// LedgerMetricsConfig holds configuration for ledger metrics.
type LedgerMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewLedgerMetrics creates the ledger instruments on the given meter.
func NewLedgerMetrics(cfg LedgerMetricsConfig) (*LedgerMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	lm := &LedgerMetrics{logger: logger}
	var err error

	if lm.postingsTotal, err = NewCounter(cfg.Meter,
		"ledger_postings_total", "Posting attempts by transaction type and outcome", "{postings}"); err != nil {
		return nil, err
	}
	if lm.reversalsTotal, err = NewCounter(cfg.Meter,
		"ledger_reversals_total", "Reversal attempts by outcome", "{reversals}"); err != nil {
		return nil, err
	}
	if lm.unbalancedTotal, err = NewCounter(cfg.Meter,
		"ledger_unbalanced_incidents_total", "Postings rejected because debit and credit did not balance", "{incidents}"); err != nil {
		return nil, err
	}
	if lm.postingDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "ledger_posting_duration_seconds",
		Description: "Duration of posting transactions",
		Unit:        "s",
		Boundaries:  PostingDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if lm.eventsPublished, err = NewCounter(cfg.Meter,
		"ledger_events_published_total", "Outbox entries relayed to the broker by event type and outcome", "{events}"); err != nil {
		return nil, err
	}
	if lm.publishDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "ledger_event_publish_duration_seconds",
		Description: "Duration of relaying one outbox entry",
		Unit:        "s",
		Boundaries:  PublishDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if lm.outboxEntries, err = NewGauge(cfg.Meter,
		"ledger_outbox_entries", "Outbox entries by status", "{entries}"); err != nil {
		return nil, err
	}

	return lm, nil
}

// RecordPosting records one post or repost attempt.
func (lm *LedgerMetrics) RecordPosting(ctx context.Context, transactionType, outcome string, d time.Duration) {
	if lm == nil {
		return
	}
	attrs := []attribute.KeyValue{
		AttrTransactionType.String(transactionType),
		AttrOutcome.String(outcome),
	}
	lm.postingsTotal.Inc(ctx, attrs...)
	lm.postingDuration.RecordDuration(ctx, d, attrs...)
}

// RecordReversal records one reversal attempt.
func (lm *LedgerMetrics) RecordReversal(ctx context.Context, outcome string) {
	if lm == nil {
		return
	}
	lm.reversalsTotal.Inc(ctx, AttrOutcome.String(outcome))
}

// RecordUnbalanced records an unbalanced posting incident.
func (lm *LedgerMetrics) RecordUnbalanced(ctx context.Context, transactionType string) {
	if lm == nil {
		return
	}
	lm.unbalancedTotal.Inc(ctx, AttrTransactionType.String(transactionType))
}

// RecordEventPublished records the relay of one outbox entry.
func (lm *LedgerMetrics) RecordEventPublished(ctx context.Context, eventType, outcome string, d time.Duration) {
	if lm == nil {
		return
	}
	attrs := []attribute.KeyValue{
		AttrEventType.String(eventType),
		AttrOutcome.String(outcome),
	}
	lm.eventsPublished.Inc(ctx, attrs...)
	lm.publishDuration.RecordDuration(ctx, d, attrs...)
}

// RecordOutboxBacklog records the number of outbox entries in a status.
func (lm *LedgerMetrics) RecordOutboxBacklog(ctx context.Context, status string, count int64) {
	if lm == nil {
		return
	}
	lm.outboxEntries.Record(ctx, count, AttrOutboxStatus.String(status))
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewLedgerMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
