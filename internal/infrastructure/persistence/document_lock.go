package persistence

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"
)

// DocumentLocker serializes work on one (tenant, document ref) pair.
// The returned release func must be called after the transaction ends.
type DocumentLocker interface {
	Lock(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, documentRef string) (release func(), err error)
}

// DocumentLockKey derives the 64-bit advisory lock key of a document
func DocumentLockKey(tenantID uuid.UUID, documentRef string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(tenantID.String()))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(documentRef))
	return int64(h.Sum64())
}

// NewDocumentLocker picks the locker for a lock strategy and database dialect
func NewDocumentLocker(strategy, dialect string, timeout time.Duration) (DocumentLocker, error) {
	switch strategy {
	case config.LockStrategyAdvisory:
		if dialect != DriverPostgres {
			return nil, fmt.Errorf("advisory document locks need postgres, got %s", dialect)
		}
		return NewAdvisoryLocker(timeout), nil
	case config.LockStrategyMutex:
		return NewMutexLocker(timeout), nil
	case config.LockStrategyAuto, "":
		if dialect == DriverPostgres {
			return NewAdvisoryLocker(timeout), nil
		}
		return NewMutexLocker(timeout), nil
	default:
		return nil, fmt.Errorf("unknown lock strategy %q", strategy)
	}
}

// AdvisoryLocker takes a transaction-scoped postgres advisory lock.
// Postgres releases it at commit or rollback.
type AdvisoryLocker struct {
	timeout time.Duration
}

// NewAdvisoryLocker creates an AdvisoryLocker. A zero timeout waits indefinitely.
func NewAdvisoryLocker(timeout time.Duration) *AdvisoryLocker {
	return &AdvisoryLocker{timeout: timeout}
}

// Lock blocks until the document lock is granted or lock_timeout expires
func (l *AdvisoryLocker) Lock(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, documentRef string) (func(), error) {
	db := tx.WithContext(ctx)
	if l.timeout > 0 {
		if err := db.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", l.timeout.Milliseconds())).Error; err != nil {
			return nil, err
		}
	}
	if err := db.Exec("SELECT pg_advisory_xact_lock(?)", DocumentLockKey(tenantID, documentRef)).Error; err != nil {
		return nil, err
	}
	return func() {}, nil
}

// MutexLocker is an in-process keyed lock for single-instance deployments and sqlite
type MutexLocker struct {
	timeout time.Duration

	mu    sync.Mutex
	slots map[int64]*lockSlot
}

type lockSlot struct {
	sem  *semaphore.Weighted
	refs int
}

// NewMutexLocker creates a MutexLocker. A zero timeout waits until ctx is done.
func NewMutexLocker(timeout time.Duration) *MutexLocker {
	return &MutexLocker{timeout: timeout, slots: make(map[int64]*lockSlot)}
}

// Lock waits for the document's slot. The tx is not used.
func (l *MutexLocker) Lock(ctx context.Context, _ *gorm.DB, tenantID uuid.UUID, documentRef string) (func(), error) {
	key := DocumentLockKey(tenantID, documentRef)
	slot := l.acquire(key)

	waitCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	if err := slot.sem.Acquire(waitCtx, 1); err != nil {
		l.drop(key)
		return nil, fmt.Errorf("timed out waiting for lock on %s: %w", documentRef, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			slot.sem.Release(1)
			l.drop(key)
		})
	}, nil
}

func (l *MutexLocker) acquire(key int64) *lockSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &lockSlot{sem: semaphore.NewWeighted(1)}
		l.slots[key] = slot
	}
	slot.refs++
	return slot
}

func (l *MutexLocker) drop(key int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[key]
	if !ok {
		return
	}
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
}

// held reports the number of keys with waiters or holders
func (l *MutexLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
