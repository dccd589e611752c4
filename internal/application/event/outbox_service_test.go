package event

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryOutbox struct {
	entries   map[uuid.UUID]*shared.OutboxEntry
	updateErr error
	updates   int
}

func newMemoryOutbox(entries ...*shared.OutboxEntry) *memoryOutbox {
	m := &memoryOutbox{entries: make(map[uuid.UUID]*shared.OutboxEntry)}
	for _, e := range entries {
		m.entries[e.ID] = e
	}
	return m
}

func (m *memoryOutbox) FindDead(_ context.Context, page, pageSize int) ([]*shared.OutboxEntry, int64, error) {
	var dead []*shared.OutboxEntry
	for _, e := range m.entries {
		if e.IsDead() {
			dead = append(dead, e)
		}
	}
	sort.Slice(dead, func(i, j int) bool { return dead[i].EventType < dead[j].EventType })
	total := int64(len(dead))
	start := (page - 1) * pageSize
	if start >= len(dead) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(dead) {
		end = len(dead)
	}
	return dead[start:end], total, nil
}

func (m *memoryOutbox) FindByID(_ context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	e, ok := m.entries[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return e, nil
}

func (m *memoryOutbox) Update(_ context.Context, entry *shared.OutboxEntry) error {
	m.updates++
	if m.updateErr != nil {
		return m.updateErr
	}
	m.entries[entry.ID] = entry
	return nil
}

func (m *memoryOutbox) CountByStatus(context.Context) (map[shared.OutboxStatus]int64, error) {
	counts := make(map[shared.OutboxStatus]int64)
	for _, e := range m.entries {
		counts[e.Status]++
	}
	return counts, nil
}

func entryWithStatus(eventType string, status shared.OutboxStatus) *shared.OutboxEntry {
	return &shared.OutboxEntry{
		ID:          uuid.New(),
		TenantID:    uuid.New(),
		EventID:     uuid.New(),
		EventType:   eventType,
		AggregateID: uuid.New(),
		Status:      status,
		RetryCount:  5,
		MaxRetries:  5,
		LastError:   "broker down",
	}
}

func TestOutboxService_DeadLetters(t *testing.T) {
	var entries []*shared.OutboxEntry
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		entries = append(entries, entryWithStatus(name, shared.OutboxStatusDead))
	}
	entries = append(entries, entryWithStatus("sent", shared.OutboxStatusSent))
	svc := NewOutboxService(newMemoryOutbox(entries...), zap.NewNop())

	page, err := svc.DeadLetters(context.Background(), 2, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, "c", page.Entries[0].EventType)
	assert.Equal(t, "broker down", page.Entries[0].LastError)

	page, err = svc.DeadLetters(context.Background(), 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, maxPageSize, page.PageSize)
	assert.Len(t, page.Entries, 5)
}

func TestOutboxService_Retry(t *testing.T) {
	dead := entryWithStatus("LedgerPosted", shared.OutboxStatusDead)
	sent := entryWithStatus("LedgerPosted", shared.OutboxStatusSent)
	svc := NewOutboxService(newMemoryOutbox(dead, sent), zap.NewNop())
	ctx := context.Background()

	dto, err := svc.Retry(ctx, dead.ID)
	require.NoError(t, err)
	assert.Equal(t, string(shared.OutboxStatusPending), dto.Status)
	assert.Zero(t, dto.RetryCount)
	assert.Empty(t, dto.LastError)

	_, err = svc.Retry(ctx, sent.ID)
	assert.ErrorIs(t, err, ErrNotDead)

	_, err = svc.Retry(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestOutboxService_RetryAll(t *testing.T) {
	var entries []*shared.OutboxEntry
	for i := 0; i < maxPageSize+7; i++ {
		entries = append(entries, entryWithStatus("LedgerReversed", shared.OutboxStatusDead))
	}
	entries = append(entries, entryWithStatus("LedgerPosted", shared.OutboxStatusFailed))
	repo := newMemoryOutbox(entries...)
	svc := NewOutboxService(repo, zap.NewNop())

	count, err := svc.RetryAll(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, maxPageSize+7, count)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, maxPageSize+7, stats.Pending)
	assert.EqualValues(t, 1, stats.Failed)
	assert.Zero(t, stats.Dead)
	assert.EqualValues(t, maxPageSize+8, stats.Total)
}

func TestOutboxService_RetryAllStopsWhenUpdatesFail(t *testing.T) {
	repo := newMemoryOutbox(
		entryWithStatus("a", shared.OutboxStatusDead),
		entryWithStatus("b", shared.OutboxStatusDead),
	)
	repo.updateErr = errors.New("database is read-only")
	svc := NewOutboxService(repo, zap.NewNop())

	count, err := svc.RetryAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, 2, repo.updates)
}
