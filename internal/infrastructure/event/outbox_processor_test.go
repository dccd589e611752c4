package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakePublisher fails the first failures calls, then succeeds
type fakePublisher struct {
	mu        sync.Mutex
	failures  int
	err       error
	calls     int
	published []*shared.OutboxEntry
}

func (p *fakePublisher) Publish(_ context.Context, entry *shared.OutboxEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failures {
		return p.err
	}
	p.published = append(p.published, entry)
	return nil
}

func fastConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:       10,
		PollInterval:    20 * time.Millisecond,
		PublishRetries:  2,
		PublishBackoff:  time.Millisecond,
		PublishMaxDelay: 2 * time.Millisecond,
	}
}

func TestOutboxProcessor_ProcessBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("entries are published and marked sent", func(t *testing.T) {
		repo := NewGormOutboxRepository(newTestDB(t))
		first, second := newEntry(t, uuid.New(), "INV-1"), newEntry(t, uuid.New(), "INV-2")
		require.NoError(t, repo.Save(ctx, first, second))

		pub := &fakePublisher{}
		processor := NewOutboxProcessor(repo, pub, fastConfig(), nil, zap.NewNop())

		assert.Equal(t, 2, processor.ProcessBatch(ctx))
		assert.Len(t, pub.published, 2)

		counts, err := repo.CountByStatus(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 2, counts[shared.OutboxStatusSent])
		assert.Zero(t, processor.ProcessBatch(ctx), "sent entries are not relayed again")
	})

	t.Run("transient failures are retried within the batch", func(t *testing.T) {
		repo := NewGormOutboxRepository(newTestDB(t))
		require.NoError(t, repo.Save(ctx, newEntry(t, uuid.New(), "INV-3")))

		pub := &fakePublisher{failures: 2, err: errors.New("leader not available")}
		processor := NewOutboxProcessor(repo, pub, fastConfig(), nil, zap.NewNop())

		assert.Equal(t, 1, processor.ProcessBatch(ctx))
		assert.Equal(t, 3, pub.calls)
	})

	t.Run("exhausted retries mark the entry failed", func(t *testing.T) {
		repo := NewGormOutboxRepository(newTestDB(t))
		entry := newEntry(t, uuid.New(), "INV-4")
		require.NoError(t, repo.Save(ctx, entry))

		pub := &fakePublisher{failures: 100, err: errors.New("broker down")}
		processor := NewOutboxProcessor(repo, pub, fastConfig(), nil, zap.NewNop())

		assert.Zero(t, processor.ProcessBatch(ctx))
		assert.Equal(t, 3, pub.calls)

		retryable, err := repo.FindRetryable(ctx, time.Now().Add(time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, retryable, 1)
		assert.Equal(t, 1, retryable[0].RetryCount)
		assert.Contains(t, retryable[0].LastError, "broker down")
	})

	t.Run("permanent failures are not retried", func(t *testing.T) {
		repo := NewGormOutboxRepository(newTestDB(t))
		entry := newEntry(t, uuid.New(), "INV-5")
		entry.EventType = "Unregistered"
		require.NoError(t, repo.Save(ctx, entry))

		bus := NewInMemoryEventBus(zap.NewNop())
		processor := NewOutboxProcessor(repo, NewBusPublisher(bus, NewLedgerEventSerializer()), fastConfig(), nil, zap.NewNop())

		assert.Zero(t, processor.ProcessBatch(ctx))
		failed, err := repo.FindRetryable(ctx, time.Now().Add(time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Contains(t, failed[0].LastError, "unknown event type")
	})
}

func TestOutboxProcessor_BusRelay(t *testing.T) {
	ctx := context.Background()
	repo := NewGormOutboxRepository(newTestDB(t))
	tenantID := uuid.New()
	require.NoError(t, repo.Save(ctx, newEntry(t, tenantID, "INV-6")))

	bus := NewInMemoryEventBus(zap.NewNop())
	handler := newTestHandler(ledger.EventTypeLedgerReversed)
	bus.Subscribe(handler)

	processor := NewOutboxProcessor(repo, NewBusPublisher(bus, NewLedgerEventSerializer()), fastConfig(), nil, zap.NewNop())
	require.NoError(t, processor.Start(ctx))

	assert.Eventually(t, func() bool { return len(handler.getHandled()) == 1 }, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, processor.Stop(stopCtx))

	got := handler.getHandled()[0].(*ledger.LedgerReversedEvent)
	assert.Equal(t, "INV-6", got.DocumentRef)
	assert.Equal(t, tenantID, got.TenantID())
}

func TestBusPublisher_PermanentOnDecodeFailure(t *testing.T) {
	pub := NewBusPublisher(NewInMemoryEventBus(zap.NewNop()), NewLedgerEventSerializer())
	err := pub.Publish(context.Background(), &shared.OutboxEntry{EventType: ledger.EventTypeLedgerPosted, Payload: []byte(`{`)})

	var permanent *backoff.PermanentError
	assert.ErrorAs(t, err, &permanent)
}

func TestDefaultOutboxProcessorConfig(t *testing.T) {
	config := DefaultOutboxProcessorConfig()

	assert.Equal(t, 100, config.BatchSize)
	assert.Equal(t, 5*time.Second, config.PollInterval)
	assert.EqualValues(t, 3, config.PublishRetries)
	assert.True(t, config.CleanupEnabled)
	assert.Equal(t, 7*24*time.Hour, config.CleanupRetention)
}
