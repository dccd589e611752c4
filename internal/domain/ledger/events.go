package ledger

import (
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event type names
const (
	EventTypeLedgerPosted   = "LedgerPosted"
	EventTypeLedgerReversed = "LedgerReversed"

	// AggregateTypeReferenceGroup is the aggregate type of ledger events
	AggregateTypeReferenceGroup = "LedgerReferenceGroup"
)

// PostedLeg summarizes one leg in a LedgerPostedEvent
type PostedLeg struct {
	ReferenceNumber  string          `json:"reference_number"`
	Role             Role            `json:"role"`
	Nature           Nature          `json:"nature"`
	AccountID        uuid.UUID       `json:"account_id"`
	DocumentAmount   decimal.Decimal `json:"document_amount"`
	EquivalentAmount decimal.Decimal `json:"equivalent_amount"`
}

// LedgerPostedEvent is raised when a document's legs are committed
type LedgerPostedEvent struct {
	shared.BaseDomainEvent
	DocumentRef       string               `json:"document_ref"`
	TransactionType   TransactionType      `json:"transaction_type"`
	DocumentCurrency  valueobject.Currency `json:"document_currency"`
	ReportingCurrency valueobject.Currency `json:"reporting_currency"`
	ExchangeRate      decimal.Decimal      `json:"exchange_rate"`
	DebitTotal        decimal.Decimal      `json:"debit_total"`
	CreditTotal       decimal.Decimal      `json:"credit_total"`
	Legs              []PostedLeg          `json:"legs"`
	PostedBy          uuid.UUID            `json:"posted_by"`
}

// EventType returns the event type name
func (e *LedgerPostedEvent) EventType() string {
	return EventTypeLedgerPosted
}

// NewLedgerPostedEvent builds the event for a freshly built set of legs
func NewLedgerPostedEvent(entries []*LedgerEntry, actor Actor) *LedgerPostedEvent {
	if len(entries) == 0 {
		return nil
	}
	first := entries[0]
	balance := CheckBalance(entries, decimal.Zero)
	legs := make([]PostedLeg, 0, len(entries))
	for _, e := range entries {
		legs = append(legs, PostedLeg{
			ReferenceNumber:  e.ReferenceNumber,
			Role:             e.Role,
			Nature:           e.Nature,
			AccountID:        e.AccountID,
			DocumentAmount:   e.DocumentAmount,
			EquivalentAmount: e.EquivalentAmount,
		})
	}
	return &LedgerPostedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeLedgerPosted, AggregateTypeReferenceGroup,
			ReferenceGroupID(first.TenantID, first.DocumentRef), first.TenantID),
		DocumentRef:       first.DocumentRef,
		TransactionType:   first.TransactionType,
		DocumentCurrency:  first.DocumentCurrency,
		ReportingCurrency: first.ReportingCurrency,
		ExchangeRate:      first.ExchangeRate,
		DebitTotal:        balance.DebitTotal,
		CreditTotal:       balance.CreditTotal,
		Legs:              legs,
		PostedBy:          actor.ID,
	}
}

// LedgerReversedEvent is raised when a document's legs are removed
type LedgerReversedEvent struct {
	shared.BaseDomainEvent
	DocumentRef  string `json:"document_ref"`
	RemovedCount int64  `json:"removed_count"`
}

// EventType returns the event type name
func (e *LedgerReversedEvent) EventType() string {
	return EventTypeLedgerReversed
}

// NewLedgerReversedEvent creates a LedgerReversedEvent
func NewLedgerReversedEvent(tenantID uuid.UUID, documentRef string, removed int64) *LedgerReversedEvent {
	return &LedgerReversedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeLedgerReversed, AggregateTypeReferenceGroup,
			ReferenceGroupID(tenantID, documentRef), tenantID),
		DocumentRef:  documentRef,
		RemovedCount: removed,
	}
}
