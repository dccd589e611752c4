package event

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Publisher delivers one claimed outbox entry. Errors wrapped with
// backoff.Permanent are not retried within the batch.
type Publisher interface {
	Publish(ctx context.Context, entry *shared.OutboxEntry) error
}

// OutboxProcessorConfig holds configuration for the outbox processor
type OutboxProcessorConfig struct {
	BatchSize        int
	PollInterval     time.Duration
	PublishRetries   uint64        // in-batch retries before the entry is marked failed
	PublishBackoff   time.Duration // first retry delay
	PublishMaxDelay  time.Duration // cap on a single retry delay
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// DefaultOutboxProcessorConfig returns default configuration
func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:        100,
		PollInterval:     5 * time.Second,
		PublishRetries:   3,
		PublishBackoff:   200 * time.Millisecond,
		PublishMaxDelay:  5 * time.Second,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// OutboxProcessor relays outbox entries to a Publisher in the background.
// Delivery is at least once: an entry is marked sent only after Publish succeeds.
type OutboxProcessor struct {
	repo      shared.OutboxRepository
	publisher Publisher
	config    OutboxProcessorConfig
	metrics   *telemetry.LedgerMetrics
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOutboxProcessor creates a new outbox processor. metrics may be nil.
func NewOutboxProcessor(
	repo shared.OutboxRepository,
	publisher Publisher,
	config OutboxProcessorConfig,
	metrics *telemetry.LedgerMetrics,
	logger *zap.Logger,
) *OutboxProcessor {
	return &OutboxProcessor{
		repo:      repo,
		publisher: publisher,
		config:    config,
		metrics:   metrics,
		logger:    logger,
	}
}

// Start starts the background processing
func (p *OutboxProcessor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.processLoop(ctx)

	if p.config.CleanupEnabled {
		p.wg.Add(1)
		go p.cleanupLoop(ctx)
	}

	p.logger.Info("outbox processor started",
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
	)
	return nil
}

// Stop gracefully stops the processor
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("outbox processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *OutboxProcessor) processLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch relays one batch of pending and due entries and returns how many were sent.
// ledgerctl uses it for one-shot drains.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) int {
	sent := 0

	pending, err := p.repo.FindPending(ctx, p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to find pending entries", zap.Error(err))
		return sent
	}
	sent += p.processEntries(ctx, pending)

	retryable, err := p.repo.FindRetryable(ctx, time.Now(), p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to find retryable entries", zap.Error(err))
		return sent
	}
	sent += p.processEntries(ctx, retryable)

	p.reportBacklog(ctx)
	return sent
}

func (p *OutboxProcessor) processEntries(ctx context.Context, entries []*shared.OutboxEntry) int {
	if len(entries) == 0 {
		return 0
	}
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}

	claimed, err := p.repo.MarkProcessing(ctx, ids)
	if err != nil {
		p.logger.Error("failed to mark entries as processing", zap.Error(err))
		return 0
	}

	sent := 0
	for _, entry := range claimed {
		if p.processEntry(ctx, entry) {
			sent++
		}
	}
	return sent
}

func (p *OutboxProcessor) processEntry(ctx context.Context, entry *shared.OutboxEntry) bool {
	log := p.logger.With(
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
		zap.String("tenant_id", entry.TenantID.String()),
	)

	start := time.Now()
	err := backoff.Retry(func() error {
		return p.publisher.Publish(ctx, entry)
	}, backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), p.config.PublishRetries), ctx))

	if err != nil {
		p.metrics.RecordEventPublished(ctx, entry.EventType, "error", time.Since(start))
		log.Error("failed to publish event", zap.Error(err))
		entry.MarkFailed(err.Error())
		if entry.IsDead() {
			log.Warn("event moved to dead letter queue",
				zap.String("aggregate_id", entry.AggregateID.String()),
				zap.Int("retry_count", entry.RetryCount),
				zap.String("last_error", entry.LastError),
			)
		}
		if updateErr := p.repo.Update(ctx, entry); updateErr != nil {
			log.Error("failed to update entry", zap.Error(updateErr))
		}
		return false
	}

	p.metrics.RecordEventPublished(ctx, entry.EventType, telemetry.OutcomeSuccess, time.Since(start))
	entry.MarkSent()
	if err := p.repo.Update(ctx, entry); err != nil {
		// delivered; the row stays PROCESSING and is not picked up again
		log.Error("failed to mark entry as sent", zap.Error(err))
		return true
	}
	log.Debug("event relayed")
	return true
}

func (p *OutboxProcessor) newBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.config.PublishBackoff > 0 {
		eb.InitialInterval = p.config.PublishBackoff
	}
	if p.config.PublishMaxDelay > 0 {
		eb.MaxInterval = p.config.PublishMaxDelay
	}
	eb.MaxElapsedTime = 0
	eb.Reset()
	return eb
}

func (p *OutboxProcessor) reportBacklog(ctx context.Context) {
	if p.metrics == nil {
		return
	}
	counts, err := p.repo.CountByStatus(ctx)
	if err != nil {
		p.logger.Warn("failed to count outbox entries", zap.Error(err))
		return
	}
	for _, status := range []shared.OutboxStatus{
		shared.OutboxStatusPending,
		shared.OutboxStatusProcessing,
		shared.OutboxStatusFailed,
		shared.OutboxStatusDead,
	} {
		p.metrics.RecordOutboxBacklog(ctx, string(status), counts[status])
	}
}

func (p *OutboxProcessor) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cleanup(ctx)
		}
	}
}

func (p *OutboxProcessor) cleanup(ctx context.Context) {
	cutoff := time.Now().Add(-p.config.CleanupRetention)
	deleted, err := p.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to cleanup old entries", zap.Error(err))
		return
	}
	if deleted > 0 {
		p.logger.Info("cleaned up old outbox entries",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}
