package ledger

import (
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// Largest scales the ledger stores without rounding
const (
	MaxExchangeRateScale = 10
	MaxAmountScale       = 4
)

// exceedsScale reports whether d has significant digits beyond places decimals
func exceedsScale(d decimal.Decimal, places int32) bool {
	return !d.Equal(d.Truncate(places))
}

// ToReportingCurrency converts a document-currency amount with the given rate.
// The product is rounded half-up once, to the reporting currency's minor units.
func ToReportingCurrency(amount, rate decimal.Decimal, reporting valueobject.Currency) (decimal.Decimal, error) {
	if !rate.IsPositive() {
		return decimal.Zero, detailed(CodeInvalidExchangeRate, "exchange rate must be greater than zero, got %s", rate)
	}
	if exceedsScale(rate, MaxExchangeRateScale) {
		return decimal.Zero, detailed(CodeInvalidExchangeRate, "exchange rate %s has more than %d decimal places", rate, MaxExchangeRateScale)
	}
	return reporting.RoundHalfUp(amount.Mul(rate)), nil
}

// Converter converts document amounts into a fixed reporting currency at a fixed rate
type Converter struct {
	reporting valueobject.Currency
	rate      decimal.Decimal
}

// NewConverter creates a converter, rejecting non-positive rates and rates wider than MaxExchangeRateScale
func NewConverter(rate decimal.Decimal, reporting valueobject.Currency) (Converter, error) {
	if !rate.IsPositive() {
		return Converter{}, detailed(CodeInvalidExchangeRate, "exchange rate must be greater than zero, got %s", rate)
	}
	if exceedsScale(rate, MaxExchangeRateScale) {
		return Converter{}, detailed(CodeInvalidExchangeRate, "exchange rate %s has more than %d decimal places", rate, MaxExchangeRateScale)
	}
	if !reporting.IsValid() {
		return Converter{}, detailed(CodeInvalidDocument, "unsupported reporting currency %q", reporting)
	}
	return Converter{reporting: reporting, rate: rate}, nil
}

// Rate returns the exchange rate
func (c Converter) Rate() decimal.Decimal {
	return c.rate
}

// ReportingCurrency returns the target currency
func (c Converter) ReportingCurrency() valueobject.Currency {
	return c.reporting
}

// Convert returns the reporting-currency equivalent of a document amount
func (c Converter) Convert(amount decimal.Decimal) decimal.Decimal {
	return c.reporting.RoundHalfUp(amount.Mul(c.rate))
}
