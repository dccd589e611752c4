package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/erp/ledger/internal/infrastructure/persistence/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormAccountMappingRepository loads tenant ledger configuration:
// the reporting currency from ledger_settings and role accounts from ledger_account_mappings.
type GormAccountMappingRepository struct {
	db *gorm.DB
}

// NewGormAccountMappingRepository creates a new GormAccountMappingRepository
func NewGormAccountMappingRepository(db *gorm.DB) *GormAccountMappingRepository {
	return &GormAccountMappingRepository{db: db}
}

// FindByTenant returns the tenant's mapping, or shared.ErrNotFound when the tenant has no settings
func (r *GormAccountMappingRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID) (*ledger.AccountMapping, error) {
	db := r.db.WithContext(ctx)

	var settings models.LedgerSettingsModel
	err := db.Scopes(tenant.Scope(tenantID)).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: no ledger settings for tenant %s", shared.ErrNotFound, tenantID)
	}
	if err != nil {
		return nil, err
	}

	var rows []models.LedgerAccountMappingModel
	if err := db.Scopes(tenant.Scope(tenantID)).Preload("Account").Find(&rows).Error; err != nil {
		return nil, err
	}

	accounts := make(map[ledger.Role]ledger.Account, len(rows))
	for _, row := range rows {
		role, err := ledger.ParseRole(row.Role)
		if err != nil {
			return nil, fmt.Errorf("%w: tenant %s maps %v", ledger.ErrMissingAccountMapping, tenantID, err)
		}
		if row.Account.ID == uuid.Nil {
			return nil, fmt.Errorf("%w: account %s for role %s does not exist", ledger.ErrMissingAccountMapping, row.AccountID, role)
		}
		if row.Account.TenantID != tenantID {
			return nil, ledger.NewTenantMismatchError("role %s of tenant %s maps to an account of tenant %s", role, tenantID, row.Account.TenantID)
		}
		accounts[role] = row.Account.ToDomain()
	}

	return ledger.NewAccountMapping(tenantID, valueobject.Currency(settings.ReportingCurrency), accounts)
}

// Save replaces the tenant's settings, accounts and role mappings in one transaction.
// Roles absent from mapping are unmapped. Accounts owned by another tenant are
// never rewritten; reusing their ID fails with TENANT_MISMATCH.
func (r *GormAccountMappingRepository) Save(ctx context.Context, mapping *ledger.AccountMapping) error {
	tenantID := mapping.TenantID
	now := time.Now()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owners := tenant.System(tx)
		tx = tenant.Bind(tx, tenantID)

		settings := models.LedgerSettingsModel{
			TenantID:          tenantID,
			ReportingCurrency: mapping.ReportingCurrency.String(),
			UpdatedAt:         now,
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&settings).Error; err != nil {
			return fmt.Errorf("save ledger settings: %w", err)
		}

		roles := mapping.Roles()
		names := make([]string, 0, len(roles))
		for _, role := range roles {
			account, err := mapping.Resolve(role)
			if err != nil {
				return err
			}
			if err := checkAccountOwner(owners, tenantID, account.ID); err != nil {
				return err
			}
			if account.CreatedAt.IsZero() {
				account.CreatedAt = now
			}
			account.UpdatedAt = now

			accountRow := models.LedgerAccountModelFromDomain(account)
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"code", "name", "updated_at"}),
			}).Create(accountRow).Error; err != nil {
				return fmt.Errorf("save ledger account %s: %w", account.Code, err)
			}

			mappingRow := models.LedgerAccountMappingModel{
				TenantID:  tenantID,
				Role:      role.String(),
				AccountID: account.ID,
			}
			if err := tx.Omit("Account").Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "role"}},
				DoUpdates: clause.AssignmentColumns([]string{"account_id"}),
			}).Create(&mappingRow).Error; err != nil {
				return fmt.Errorf("save mapping for role %s: %w", role, err)
			}
			names = append(names, role.String())
		}

		stale := tx.Where("tenant_id = ?", tenantID)
		if len(names) > 0 {
			stale = stale.Where("role NOT IN ?", names)
		}
		if err := stale.Delete(&models.LedgerAccountMappingModel{}).Error; err != nil {
			return fmt.Errorf("remove unmapped roles: %w", err)
		}
		return nil
	})
}

// checkAccountOwner fails when id already belongs to another tenant's account
func checkAccountOwner(db *gorm.DB, tenantID, id uuid.UUID) error {
	var owner models.LedgerAccountModel
	err := db.Select("id", "tenant_id").Where("id = ?", id).Take(&owner).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up ledger account %s: %w", id, err)
	}
	if owner.TenantID != tenantID {
		return ledger.NewTenantMismatchError("account %s belongs to another tenant", id)
	}
	return nil
}

var _ ledger.AccountMappingRepository = (*GormAccountMappingRepository)(nil)
