package ledger

import (
	"context"
	"sync"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// TransactionScope provides transactional access to the ledger repositories.
// Everything done through the repositories handed to fn commits or rolls back together.
type TransactionScope interface {
	// Execute runs fn within a database transaction.
	// If fn returns an error the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// EventSaver enqueues domain events in the transactional outbox
type EventSaver interface {
	SaveEvents(ctx context.Context, events ...shared.DomainEvent) error
}

// TransactionalRepositories provides access to the repositories within one transaction.
//
// LockDocument serializes work on one (tenant, document ref) pair. The lock is held
// until the transaction ends and is not reentrant, so callers take it once per Execute.
type TransactionalRepositories interface {
	EntryRepo() ledger.LedgerEntryRepository
	EventSaver() EventSaver
	LockDocument(ctx context.Context, tenantID uuid.UUID, documentRef string) error
}

// NoOpTransactionScope runs fn without a real transaction.
// Document locks are in-process mutexes released when Execute returns.
type NoOpTransactionScope struct {
	entryRepo  ledger.LedgerEntryRepository
	eventSaver EventSaver

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given collaborators.
// eventSaver may be nil, in which case events are dropped.
func NewNoOpTransactionScope(entryRepo ledger.LedgerEntryRepository, eventSaver EventSaver) *NoOpTransactionScope {
	if eventSaver == nil {
		eventSaver = discardEvents{}
	}
	return &NoOpTransactionScope{
		entryRepo:  entryRepo,
		eventSaver: eventSaver,
		locks:      make(map[string]*sync.Mutex),
	}
}

// Execute runs fn and releases any document locks taken inside it.
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	repos := &noOpRepositories{scope: s}
	defer repos.release()
	return fn(repos)
}

func (s *NoOpTransactionScope) lockFor(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	return m
}

type noOpRepositories struct {
	scope *NoOpTransactionScope
	held  []*sync.Mutex
}

func (r *noOpRepositories) EntryRepo() ledger.LedgerEntryRepository {
	return r.scope.entryRepo
}

func (r *noOpRepositories) EventSaver() EventSaver {
	return r.scope.eventSaver
}

func (r *noOpRepositories) LockDocument(_ context.Context, tenantID uuid.UUID, documentRef string) error {
	m := r.scope.lockFor(tenantID.String() + "|" + documentRef)
	m.Lock()
	r.held = append(r.held, m)
	return nil
}

func (r *noOpRepositories) release() {
	for i := len(r.held) - 1; i >= 0; i-- {
		r.held[i].Unlock()
	}
	r.held = nil
}

type discardEvents struct{}

func (discardEvents) SaveEvents(context.Context, ...shared.DomainEvent) error { return nil }

var (
	_ TransactionScope          = (*NoOpTransactionScope)(nil)
	_ TransactionalRepositories = (*noOpRepositories)(nil)
)
