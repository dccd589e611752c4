package ledger

import (
	"reflect"

	"github.com/google/uuid"
)

// TenantOwned is anything that belongs to exactly one tenant
type TenantOwned interface {
	GetTenantID() uuid.UUID
}

// AssertSingleTenant returns the tenant shared by every operand.
// It fails with ErrTenantMismatch when there are no operands, when any
// operand has no tenant, or when two operands disagree.
func AssertSingleTenant(operands ...TenantOwned) (uuid.UUID, error) {
	if len(operands) == 0 {
		return uuid.Nil, NewTenantMismatchError("no tenant-scoped operands supplied")
	}

	var tenantID uuid.UUID
	for i, op := range operands {
		if IsNil(op) {
			return uuid.Nil, NewTenantMismatchError("operand %d is nil", i)
		}
		id := op.GetTenantID()
		if id == uuid.Nil {
			return uuid.Nil, NewTenantMismatchError("operand %d (%T) has no tenant", i, op)
		}
		if i == 0 {
			tenantID = id
			continue
		}
		if id != tenantID {
			return uuid.Nil, NewTenantMismatchError("operand %d (%T) belongs to tenant %s, expected %s", i, op, id, tenantID)
		}
	}
	return tenantID, nil
}

// IsNil reports whether v is nil or an interface holding a nil pointer
func IsNil(v TenantOwned) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
