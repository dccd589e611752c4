package ledger

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssertSingleTenant(t *testing.T) {
	tenantA := uuid.New()
	tenantB := uuid.New()

	t.Run("returns the shared tenant", func(t *testing.T) {
		id, err := AssertSingleTenant(
			&SalesInvoice{DocumentHeader: DocumentHeader{TenantID: tenantA}},
			Actor{ID: uuid.New(), TenantID: tenantA},
			Account{TenantID: tenantA},
		)
		require.NoError(t, err)
		assert.Equal(t, tenantA, id)
	})

	t.Run("fails when operands span tenants", func(t *testing.T) {
		_, err := AssertSingleTenant(
			&SalesInvoice{DocumentHeader: DocumentHeader{TenantID: tenantA}},
			Actor{TenantID: tenantB},
		)
		assert.True(t, errors.Is(err, ErrTenantMismatch))
	})

	t.Run("fails when a tenant is missing", func(t *testing.T) {
		_, err := AssertSingleTenant(Actor{TenantID: tenantA}, Account{})
		assert.True(t, errors.Is(err, ErrTenantMismatch))
	})

	t.Run("fails with no operands", func(t *testing.T) {
		_, err := AssertSingleTenant()
		assert.True(t, errors.Is(err, ErrTenantMismatch))
	})

	t.Run("fails on a nil operand", func(t *testing.T) {
		_, err := AssertSingleTenant(Actor{TenantID: tenantA}, nil)
		assert.True(t, errors.Is(err, ErrTenantMismatch))
	})

	t.Run("fails on a typed nil operand", func(t *testing.T) {
		var inv *SalesInvoice
		_, err := AssertSingleTenant(inv, Actor{TenantID: tenantA})
		assert.True(t, errors.Is(err, ErrTenantMismatch))
	})
}

func TestIsNil(t *testing.T) {
	var inv *SalesInvoice
	var receipt *PaymentReceipt
	assert.True(t, IsNil(nil))
	assert.True(t, IsNil(inv))
	assert.True(t, IsNil(receipt))
	assert.False(t, IsNil(&SalesInvoice{}))
	assert.False(t, IsNil(Actor{}))
}
