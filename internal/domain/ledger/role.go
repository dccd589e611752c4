package ledger

import "fmt"

// Nature is the side of the ledger a leg is booked on
type Nature string

const (
	NatureDebit  Nature = "DEBIT"
	NatureCredit Nature = "CREDIT"
)

// IsValid checks if the nature is DEBIT or CREDIT
func (n Nature) IsValid() bool {
	return n == NatureDebit || n == NatureCredit
}

// String returns the string representation
func (n Nature) String() string {
	return string(n)
}

// Role is the accounting purpose of a ledger leg. A role fixes the leg's nature
// and the suffix of its reference number; neither is ever derived from an amount's sign.
type Role string

const (
	RoleRevenue              Role = "REVENUE"
	RoleDiscount             Role = "DISCOUNT"
	RoleTax                  Role = "TAX"
	RoleWithholdingTax       Role = "WITHHOLDING_TAX"
	RoleReceivable           Role = "RECEIVABLE"
	RoleCostOfGoods          Role = "COST_OF_GOODS"
	RoleInventoryValue       Role = "INVENTORY_VALUE"
	RoleCash                 Role = "CASH"
	RoleReceivableSettlement Role = "RECEIVABLE_SETTLEMENT"
	RoleLoyaltyLiability     Role = "LOYALTY_LIABILITY"
	RoleInventoryGain        Role = "INVENTORY_GAIN"
	RoleAdjustmentGain       Role = "ADJUSTMENT_GAIN"
)

type roleSpec struct {
	suffix string
	nature Nature
}

var roleSpecs = map[Role]roleSpec{
	RoleRevenue:              {suffix: "REV", nature: NatureCredit},
	RoleDiscount:             {suffix: "DISC", nature: NatureDebit},
	RoleTax:                  {suffix: "TAX", nature: NatureCredit},
	RoleWithholdingTax:       {suffix: "WHT", nature: NatureDebit},
	RoleReceivable:           {suffix: "AR", nature: NatureDebit},
	RoleCostOfGoods:          {suffix: "COGS", nature: NatureDebit},
	RoleInventoryValue:       {suffix: "INV", nature: NatureCredit},
	RoleCash:                 {suffix: "CASH", nature: NatureDebit},
	RoleReceivableSettlement: {suffix: "ARS", nature: NatureCredit},
	RoleLoyaltyLiability:     {suffix: "LOY", nature: NatureDebit},
	RoleInventoryGain:        {suffix: "INVG", nature: NatureDebit},
	RoleAdjustmentGain:       {suffix: "ADJG", nature: NatureCredit},
}

// canonicalRoles is the order legs are built and reported in
var canonicalRoles = []Role{
	RoleRevenue,
	RoleDiscount,
	RoleTax,
	RoleWithholdingTax,
	RoleReceivable,
	RoleCostOfGoods,
	RoleInventoryValue,
	RoleCash,
	RoleReceivableSettlement,
	RoleLoyaltyLiability,
	RoleInventoryGain,
	RoleAdjustmentGain,
}

var rolesBySuffix = func() map[string]Role {
	m := make(map[string]Role, len(roleSpecs))
	for role, spec := range roleSpecs {
		m[spec.suffix] = role
	}
	return m
}()

// AllRoles returns every role in canonical order
func AllRoles() []Role {
	roles := make([]Role, len(canonicalRoles))
	copy(roles, canonicalRoles)
	return roles
}

// ParseRole validates a role name
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return "", fmt.Errorf("unknown ledger role: %q", s)
	}
	return r, nil
}

// RoleFromSuffix returns the role for a reference-number suffix such as "AR"
func RoleFromSuffix(suffix string) (Role, bool) {
	r, ok := rolesBySuffix[suffix]
	return r, ok
}

// IsValid checks if the role is one of the known roles
func (r Role) IsValid() bool {
	_, ok := roleSpecs[r]
	return ok
}

// String returns the string representation
func (r Role) String() string {
	return string(r)
}

// Suffix returns the reference-number suffix of the role
func (r Role) Suffix() string {
	return roleSpecs[r].suffix
}

// Nature returns the fixed debit/credit nature of the role
func (r Role) Nature() Nature {
	return roleSpecs[r].nature
}

func (r Role) order() int {
	for i, role := range canonicalRoles {
		if role == r {
			return i
		}
	}
	return len(canonicalRoles)
}
