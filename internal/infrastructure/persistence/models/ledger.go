package models

import (
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerEntryModel is one persisted ledger leg.
// (tenant_id, reference_number) is unique; reference groups are selected by document_ref.
type LedgerEntryModel struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TenantID          uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_ledger_entries_tenant_reference,priority:1;index:idx_ledger_entries_tenant_document,priority:1"`
	DocumentRef       string          `gorm:"type:varchar(94);not null;index:idx_ledger_entries_tenant_document,priority:2"`
	ReferenceNumber   string          `gorm:"type:varchar(100);not null;uniqueIndex:uq_ledger_entries_tenant_reference,priority:2"`
	TransactionType   string          `gorm:"type:varchar(40);not null"`
	Role              string          `gorm:"type:varchar(40);not null"`
	AccountID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	Nature            string          `gorm:"type:varchar(10);not null"`
	DocumentCurrency  string          `gorm:"type:varchar(3);not null"`
	DocumentAmount    decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	ReportingCurrency string          `gorm:"type:varchar(3);not null"`
	EquivalentAmount  decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	ExchangeRate      decimal.Decimal `gorm:"type:decimal(24,10);not null"`
	PostingDate       time.Time       `gorm:"not null"`
	CreatedAt         time.Time       `gorm:"not null"`
	CreatedBy         uuid.UUID       `gorm:"type:uuid;not null"`
}

// TableName returns the table name for GORM
func (LedgerEntryModel) TableName() string {
	return "ledger_entries"
}

// ToDomain converts the model to a domain LedgerEntry
func (m *LedgerEntryModel) ToDomain() *ledger.LedgerEntry {
	return &ledger.LedgerEntry{
		ID:                m.ID,
		TenantID:          m.TenantID,
		DocumentRef:       m.DocumentRef,
		ReferenceNumber:   m.ReferenceNumber,
		TransactionType:   ledger.TransactionType(m.TransactionType),
		Role:              ledger.Role(m.Role),
		AccountID:         m.AccountID,
		Nature:            ledger.Nature(m.Nature),
		DocumentCurrency:  valueobject.Currency(m.DocumentCurrency),
		DocumentAmount:    m.DocumentAmount,
		ReportingCurrency: valueobject.Currency(m.ReportingCurrency),
		EquivalentAmount:  m.EquivalentAmount,
		ExchangeRate:      m.ExchangeRate,
		PostingDate:       m.PostingDate,
		CreatedAt:         m.CreatedAt,
		CreatedBy:         m.CreatedBy,
	}
}

// LedgerEntryModelFromDomain creates a model from a domain LedgerEntry
func LedgerEntryModelFromDomain(e *ledger.LedgerEntry) *LedgerEntryModel {
	return &LedgerEntryModel{
		ID:                e.ID,
		TenantID:          e.TenantID,
		DocumentRef:       e.DocumentRef,
		ReferenceNumber:   e.ReferenceNumber,
		TransactionType:   string(e.TransactionType),
		Role:              string(e.Role),
		AccountID:         e.AccountID,
		Nature:            string(e.Nature),
		DocumentCurrency:  string(e.DocumentCurrency),
		DocumentAmount:    e.DocumentAmount,
		ReportingCurrency: string(e.ReportingCurrency),
		EquivalentAmount:  e.EquivalentAmount,
		ExchangeRate:      e.ExchangeRate,
		PostingDate:       e.PostingDate,
		CreatedAt:         e.CreatedAt,
		CreatedBy:         e.CreatedBy,
	}
}

// LedgerAccountModel is a tenant's chart-of-accounts entry
type LedgerAccountModel struct {
	BaseModel
	TenantID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_ledger_accounts_tenant_code,priority:1"`
	Code     string    `gorm:"type:varchar(32);not null;uniqueIndex:uq_ledger_accounts_tenant_code,priority:2"`
	Name     string    `gorm:"type:varchar(200);not null"`
}

// TableName returns the table name for GORM
func (LedgerAccountModel) TableName() string {
	return "ledger_accounts"
}

// ToDomain converts the model to a domain Account
func (m *LedgerAccountModel) ToDomain() ledger.Account {
	return ledger.Account{
		BaseEntity: m.BaseModel.ToDomain(),
		TenantID:   m.TenantID,
		Code:       m.Code,
		Name:       m.Name,
	}
}

// LedgerAccountModelFromDomain creates a model from a domain Account
func LedgerAccountModelFromDomain(a ledger.Account) *LedgerAccountModel {
	m := &LedgerAccountModel{TenantID: a.TenantID, Code: a.Code, Name: a.Name}
	m.FromDomainBaseEntity(a.BaseEntity)
	return m
}

// LedgerSettingsModel holds per-tenant ledger settings
type LedgerSettingsModel struct {
	TenantID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	ReportingCurrency string    `gorm:"type:varchar(3);not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (LedgerSettingsModel) TableName() string {
	return "ledger_settings"
}

// LedgerAccountMappingModel maps one ledger role of a tenant to an account
type LedgerAccountMappingModel struct {
	TenantID  uuid.UUID          `gorm:"type:uuid;primaryKey"`
	Role      string             `gorm:"type:varchar(40);primaryKey"`
	AccountID uuid.UUID          `gorm:"type:uuid;not null"`
	Account   LedgerAccountModel `gorm:"foreignKey:AccountID"`
}

// TableName returns the table name for GORM
func (LedgerAccountMappingModel) TableName() string {
	return "ledger_account_mappings"
}
