package ledger

import (
	"testing"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAccountMapping(t *testing.T) {
	tenantID := uuid.New()
	revenue := Account{BaseEntity: shared.NewBaseEntity(), TenantID: tenantID, Code: "4000", Name: "Revenue"}

	tests := []struct {
		name      string
		tenantID  uuid.UUID
		reporting valueobject.Currency
		accounts  map[Role]Account
		wantErr   error
	}{
		{"valid mapping", tenantID, valueobject.USD, map[Role]Account{RoleRevenue: revenue}, nil},
		{"missing tenant", uuid.Nil, valueobject.USD, nil, shared.ErrInvalidInput},
		{"unsupported reporting currency", tenantID, valueobject.Currency("XXX"), nil, shared.ErrInvalidInput},
		{"unknown role", tenantID, valueobject.USD, map[Role]Account{Role("PETTY_CASH"): revenue}, ErrInvalidComponent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapping, err := NewAccountMapping(tt.tenantID, tt.reporting, tt.accounts)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, mapping)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []Role{RoleRevenue}, mapping.Roles())
			got, err := mapping.Resolve(RoleRevenue)
			require.NoError(t, err)
			assert.Equal(t, revenue, got)
			_, err = mapping.Resolve(RoleTax)
			assert.ErrorIs(t, err, ErrMissingAccountMapping)
		})
	}
}
