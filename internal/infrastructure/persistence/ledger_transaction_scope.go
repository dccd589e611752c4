package persistence

import (
	"context"

	appledger "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/persistence/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OutboxWriter stores events in the outbox table of an open transaction
type OutboxWriter interface {
	PublishWithTx(ctx context.Context, tx *gorm.DB, events ...shared.DomainEvent) error
}

// GormTransactionScope implements TransactionScope using GORM transactions.
// Ledger rows, outbox rows and the document lock share one transaction.
type GormTransactionScope struct {
	db     *gorm.DB
	locker DocumentLocker
	outbox OutboxWriter
}

// NewGormTransactionScope creates a new GormTransactionScope.
// outbox may be nil, in which case events are not stored.
func NewGormTransactionScope(db *gorm.DB, locker DocumentLocker, outbox OutboxWriter) *GormTransactionScope {
	return &GormTransactionScope{db: db, locker: locker, outbox: outbox}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// Document locks are released after commit or rollback.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appledger.TransactionalRepositories) error) error {
	repos := &gormTransactionalRepositories{scope: s}
	defer repos.release()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos.tx = tx
		return fn(repos)
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	scope    *GormTransactionScope
	tx       *gorm.DB
	tenantID uuid.UUID
	releases []func()
}

// EntryRepo returns the ledger entry repository scoped to the current transaction.
// Once a document is locked, writes are bound to its tenant.
func (r *gormTransactionalRepositories) EntryRepo() ledger.LedgerEntryRepository {
	if r.tenantID != uuid.Nil {
		return NewGormLedgerEntryRepository(tenant.Bind(r.tx, r.tenantID))
	}
	return NewGormLedgerEntryRepository(r.tx)
}

// EventSaver returns an outbox writer bound to the current transaction
func (r *gormTransactionalRepositories) EventSaver() appledger.EventSaver {
	return txEventSaver{repos: r}
}

// LockDocument takes the document lock for the rest of the transaction
func (r *gormTransactionalRepositories) LockDocument(ctx context.Context, tenantID uuid.UUID, documentRef string) error {
	release, err := r.scope.locker.Lock(ctx, r.tx, tenantID, documentRef)
	if err != nil {
		return err
	}
	r.releases = append(r.releases, release)
	r.tenantID = tenantID
	return nil
}

func (r *gormTransactionalRepositories) release() {
	for i := len(r.releases) - 1; i >= 0; i-- {
		r.releases[i]()
	}
	r.releases = nil
}

type txEventSaver struct {
	repos *gormTransactionalRepositories
}

func (s txEventSaver) SaveEvents(ctx context.Context, events ...shared.DomainEvent) error {
	if s.repos.scope.outbox == nil || len(events) == 0 {
		return nil
	}
	tx := s.repos.tx
	if s.repos.tenantID != uuid.Nil {
		tx = tenant.Bind(tx, s.repos.tenantID)
	}
	return s.repos.scope.outbox.PublishWithTx(ctx, tx, events...)
}

// Ensure GormTransactionScope implements TransactionScope
var _ appledger.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ appledger.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
