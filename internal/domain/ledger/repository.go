package ledger

import (
	"context"

	"github.com/google/uuid"
)

// LedgerEntryRepository persists ledger legs. Reference-group membership is an
// exact match on the stored document ref, never a prefix search on reference numbers.
type LedgerEntryRepository interface {
	// SaveBatch inserts all legs of one posting. A duplicate reference number
	// fails with ErrAlreadyPosted.
	SaveBatch(ctx context.Context, entries []*LedgerEntry) error

	// ExistsByDocumentRef reports whether the tenant has any legs for documentRef
	ExistsByDocumentRef(ctx context.Context, tenantID uuid.UUID, documentRef string) (bool, error)

	// FindByDocumentRef returns the tenant's legs for documentRef in canonical role order
	FindByDocumentRef(ctx context.Context, tenantID uuid.UUID, documentRef string) ([]*LedgerEntry, error)

	// DeleteByDocumentRef removes the tenant's legs for documentRef and returns the count
	DeleteByDocumentRef(ctx context.Context, tenantID uuid.UUID, documentRef string) (int64, error)

	// ExistsForOtherTenant reports whether legs for documentRef exist under any other tenant
	ExistsForOtherTenant(ctx context.Context, tenantID uuid.UUID, documentRef string) (bool, error)
}

// AccountMappingRepository loads tenant ledger configuration
type AccountMappingRepository interface {
	// FindByTenant returns the tenant's mapping, or shared.ErrNotFound
	FindByTenant(ctx context.Context, tenantID uuid.UUID) (*AccountMapping, error)
}
