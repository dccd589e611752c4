package ledger

import (
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// DefaultBalanceToleranceUnits is the default tolerance in reporting-currency minor units
const DefaultBalanceToleranceUnits = 1

// BalanceResult is the outcome of summing a reference group's legs
type BalanceResult struct {
	Balanced    bool            `json:"balanced"`
	DebitTotal  decimal.Decimal `json:"debit_total"`
	CreditTotal decimal.Decimal `json:"credit_total"`
	// Difference is DebitTotal - CreditTotal
	Difference decimal.Decimal `json:"difference"`
	EntryCount int             `json:"entry_count"`
	Tolerance  decimal.Decimal `json:"tolerance"`
}

// Tolerance returns units minor units of the currency (0.01 for units=1 in USD)
func Tolerance(currency valueobject.Currency, units int) decimal.Decimal {
	if units < 0 {
		units = 0
	}
	return currency.SmallestUnit().Mul(decimal.NewFromInt(int64(units)))
}

// CheckBalance sums equivalent amounts per nature. The rows are balanced when
// |debit - credit| <= tolerance. It has no side effects.
func CheckBalance(entries []*LedgerEntry, tolerance decimal.Decimal) BalanceResult {
	debit := decimal.Zero
	credit := decimal.Zero
	for _, e := range entries {
		if e.IsDebit() {
			debit = debit.Add(e.EquivalentAmount)
		} else {
			credit = credit.Add(e.EquivalentAmount)
		}
	}
	diff := debit.Sub(credit)
	return BalanceResult{
		Balanced:    diff.Abs().LessThanOrEqual(tolerance),
		DebitTotal:  debit,
		CreditTotal: credit,
		Difference:  diff,
		EntryCount:  len(entries),
		Tolerance:   tolerance,
	}
}
