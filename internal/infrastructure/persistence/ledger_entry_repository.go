package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/erp/ledger/internal/infrastructure/persistence/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormLedgerEntryRepository implements ledger.LedgerEntryRepository using GORM
type GormLedgerEntryRepository struct {
	db *gorm.DB
}

// NewGormLedgerEntryRepository creates a new GormLedgerEntryRepository
func NewGormLedgerEntryRepository(db *gorm.DB) *GormLedgerEntryRepository {
	return &GormLedgerEntryRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormLedgerEntryRepository) WithTx(tx *gorm.DB) *GormLedgerEntryRepository {
	return &GormLedgerEntryRepository{db: tx}
}

// SaveBatch inserts the legs of one posting in a single statement
func (r *GormLedgerEntryRepository) SaveBatch(ctx context.Context, entries []*ledger.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	rows := make([]*models.LedgerEntryModel, len(entries))
	for i, e := range entries {
		rows[i] = models.LedgerEntryModelFromDomain(e)
	}

	err := tenant.Bind(r.db.WithContext(ctx), entries[0].TenantID).Create(&rows).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ledger.NewAlreadyPostedError(entries[0].DocumentRef)
	}
	return err
}

// ExistsByDocumentRef reports whether the tenant has any legs for documentRef
func (r *GormLedgerEntryRepository) ExistsByDocumentRef(ctx context.Context, tenantID uuid.UUID, documentRef string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntryModel{}).
		Scopes(tenant.Scope(tenantID)).
		Where("document_ref = ?", documentRef).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindByDocumentRef returns the tenant's legs for documentRef in canonical role order
func (r *GormLedgerEntryRepository) FindByDocumentRef(ctx context.Context, tenantID uuid.UUID, documentRef string) ([]*ledger.LedgerEntry, error) {
	var rows []models.LedgerEntryModel
	err := r.db.WithContext(ctx).
		Scopes(tenant.Scope(tenantID)).
		Where("document_ref = ?", documentRef).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	entries := make([]*ledger.LedgerEntry, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
	}
	ledger.SortEntries(entries)
	return entries, nil
}

// DeleteByDocumentRef removes the tenant's legs for documentRef and returns the count
func (r *GormLedgerEntryRepository) DeleteByDocumentRef(ctx context.Context, tenantID uuid.UUID, documentRef string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND document_ref = ?", tenantID, documentRef).
		Delete(&models.LedgerEntryModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete ledger entries of %s: %w", documentRef, result.Error)
	}
	return result.RowsAffected, nil
}

// ExistsForOtherTenant reports whether legs for documentRef exist under any other tenant
func (r *GormLedgerEntryRepository) ExistsForOtherTenant(ctx context.Context, tenantID uuid.UUID, documentRef string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntryModel{}).
		Where("tenant_id <> ? AND document_ref = ?", tenantID, documentRef).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

var _ ledger.LedgerEntryRepository = (*GormLedgerEntryRepository)(nil)
