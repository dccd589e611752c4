package ledger

// TransactionType tags the business event a posting records
type TransactionType string

const (
	TransactionTypeInvoicePosting      TransactionType = "INVOICE_POSTING"
	TransactionTypeInvoicePayment      TransactionType = "INVOICE_PAYMENT"
	TransactionTypeInventoryAdjustment TransactionType = "INVENTORY_ADJUSTMENT"
	TransactionTypeLoyaltyRedemption   TransactionType = "LOYALTY_REDEMPTION"
)

var allowedRoles = map[TransactionType][]Role{
	TransactionTypeInvoicePosting: {
		RoleRevenue, RoleDiscount, RoleTax, RoleWithholdingTax,
		RoleReceivable, RoleCostOfGoods, RoleInventoryValue,
	},
	TransactionTypeInvoicePayment: {
		RoleCash, RoleWithholdingTax, RoleReceivableSettlement,
	},
	TransactionTypeInventoryAdjustment: {
		RoleCostOfGoods, RoleInventoryValue, RoleInventoryGain, RoleAdjustmentGain,
	},
	TransactionTypeLoyaltyRedemption: {
		RoleLoyaltyLiability, RoleReceivableSettlement,
	},
}

// IsValid checks if the transaction type is known
func (t TransactionType) IsValid() bool {
	_, ok := allowedRoles[t]
	return ok
}

// String returns the string representation
func (t TransactionType) String() string {
	return string(t)
}

// AllowedRoles returns the roles a posting of this type may contain
func (t TransactionType) AllowedRoles() []Role {
	roles := allowedRoles[t]
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}

// Allows reports whether a posting of this type may contain the role
func (t TransactionType) Allows(role Role) bool {
	for _, r := range allowedRoles[t] {
		if r == role {
			return true
		}
	}
	return false
}
