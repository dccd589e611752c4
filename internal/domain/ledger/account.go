package ledger

import (
	"fmt"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// Account is a chart-of-accounts account a ledger leg can be booked to
type Account struct {
	shared.BaseEntity
	TenantID uuid.UUID
	Code     string
	Name     string
}

// GetTenantID returns the owning tenant
func (a Account) GetTenantID() uuid.UUID {
	return a.TenantID
}

// AccountMapping is a tenant's role-to-account configuration together with its
// reporting currency. It is read-only to the posting engine.
type AccountMapping struct {
	TenantID          uuid.UUID
	ReportingCurrency valueobject.Currency
	accounts          map[Role]Account
}

// NewAccountMapping creates a mapping. Roles must be known.
func NewAccountMapping(tenantID uuid.UUID, reporting valueobject.Currency, accounts map[Role]Account) (*AccountMapping, error) {
	if tenantID == uuid.Nil {
		return nil, fmt.Errorf("%w: tenant ID is required for an account mapping", shared.ErrInvalidInput)
	}
	if !reporting.IsValid() {
		return nil, fmt.Errorf("%w: unsupported reporting currency %q", shared.ErrInvalidInput, reporting)
	}
	copied := make(map[Role]Account, len(accounts))
	for role, account := range accounts {
		if !role.IsValid() {
			return nil, detailed(CodeInvalidComponent, "unknown ledger role %q in account mapping", role)
		}
		copied[role] = account
	}
	return &AccountMapping{
		TenantID:          tenantID,
		ReportingCurrency: reporting,
		accounts:          copied,
	}, nil
}

// GetTenantID returns the owning tenant
func (m *AccountMapping) GetTenantID() uuid.UUID {
	return m.TenantID
}

// Resolve returns the account mapped to a role
func (m *AccountMapping) Resolve(role Role) (Account, error) {
	account, ok := m.accounts[role]
	if !ok {
		return Account{}, detailed(CodeMissingAccountMapping, "no account mapped for role %s (tenant %s)", role, m.TenantID)
	}
	return account, nil
}

// Accounts returns every mapped account in canonical role order
func (m *AccountMapping) Accounts() []Account {
	out := make([]Account, 0, len(m.accounts))
	for _, role := range canonicalRoles {
		if account, ok := m.accounts[role]; ok {
			out = append(out, account)
		}
	}
	return out
}

// Roles returns the mapped roles in canonical order
func (m *AccountMapping) Roles() []Role {
	out := make([]Role, 0, len(m.accounts))
	for _, role := range canonicalRoles {
		if _, ok := m.accounts[role]; ok {
			out = append(out, role)
		}
	}
	return out
}
