package ledger

import (
	"sort"
	"time"

	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Actor is the authenticated user performing a ledger operation
type Actor struct {
	ID       uuid.UUID `json:"id"`
	TenantID uuid.UUID `json:"tenant_id"`
	Name     string    `json:"name,omitempty"`
}

// GetTenantID returns the actor's tenant
func (a Actor) GetTenantID() uuid.UUID {
	return a.TenantID
}

// LedgerEntry is one debit or credit leg of a posting.
// Entries are created by BuildEntries only. Corrections delete and repost
// the whole reference group; an entry's role, nature and account never change.
type LedgerEntry struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	DocumentRef       string
	ReferenceNumber   string
	TransactionType   TransactionType
	Role              Role
	AccountID         uuid.UUID
	Nature            Nature
	DocumentCurrency  valueobject.Currency
	DocumentAmount    decimal.Decimal
	ReportingCurrency valueobject.Currency
	EquivalentAmount  decimal.Decimal
	ExchangeRate      decimal.Decimal
	PostingDate       time.Time
	CreatedAt         time.Time
	CreatedBy         uuid.UUID
}

// GetTenantID returns the owning tenant
func (e *LedgerEntry) GetTenantID() uuid.UUID {
	return e.TenantID
}

// IsDebit returns true for debit legs
func (e *LedgerEntry) IsDebit() bool {
	return e.Nature == NatureDebit
}

// SortEntries orders legs by canonical role order
func SortEntries(entries []*LedgerEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Role.order() < entries[j].Role.order()
	})
}
