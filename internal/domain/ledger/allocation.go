package ledger

import (
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/shopspring/decimal"
)

// Component is one monetary leg to be posted, in document currency
type Component struct {
	Role   Role            `json:"role"`
	Amount decimal.Decimal `json:"amount"`
}

// Allocate splits a document into its non-zero components in canonical role order.
// Every amount is read from the document's own field for that role; no component
// is derived from another. Negative amounts are rejected.
func Allocate(doc SourceDocument) ([]Component, error) {
	if doc == nil {
		return nil, detailed(CodeInvalidDocument, "document is required")
	}
	if err := doc.Header().Validate(); err != nil {
		return nil, err
	}
	txType := doc.TransactionType()
	if !txType.IsValid() {
		return nil, detailed(CodeInvalidDocument, "unknown transaction type %q", txType)
	}

	var result *multierror.Error
	components := make([]Component, 0, len(canonicalRoles))
	for role, amount := range doc.ComponentAmounts() {
		if amount.IsZero() {
			continue
		}
		components = append(components, Component{Role: role, Amount: amount})
	}
	sortComponents(components)

	for _, c := range components {
		if err := validateComponent(txType, c); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return components, nil
}

// ValidateComponents checks caller-supplied components against a transaction type.
// All problems are reported together. Zero amounts are allowed and skipped at posting.
func ValidateComponents(txType TransactionType, components []Component) error {
	var result *multierror.Error
	if !txType.IsValid() {
		result = multierror.Append(result, detailed(CodeInvalidDocument, "unknown transaction type %q", txType))
	}

	seen := make(map[Role]bool, len(components))
	for _, c := range components {
		if seen[c.Role] {
			result = multierror.Append(result, detailed(CodeInvalidComponent, "duplicate component for role %s", c.Role))
			continue
		}
		seen[c.Role] = true
		if err := validateComponent(txType, c); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func validateComponent(txType TransactionType, c Component) error {
	switch {
	case !c.Role.IsValid():
		return detailed(CodeInvalidComponent, "unknown ledger role %q", c.Role)
	case c.Amount.IsNegative():
		return detailed(CodeInvalidComponent, "component %s has negative amount %s", c.Role, c.Amount)
	case exceedsScale(c.Amount, MaxAmountScale):
		return detailed(CodeInvalidComponent, "component %s amount %s has more than %d decimal places", c.Role, c.Amount, MaxAmountScale)
	case txType.IsValid() && !txType.Allows(c.Role):
		return detailed(CodeInvalidComponent, "role %s is not allowed for %s", c.Role, txType)
	}
	return nil
}

func sortComponents(components []Component) {
	sort.SliceStable(components, func(i, j int) bool {
		return components[i].Role.order() < components[j].Role.order()
	})
}
