package valueobject

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency represents a currency code (ISO 4217)
type Currency string

const (
	CNY Currency = "CNY" // Chinese Yuan (default)
	USD Currency = "USD" // US Dollar
	EUR Currency = "EUR" // Euro
	GBP Currency = "GBP" // British Pound
	JPY Currency = "JPY" // Japanese Yen
	HKD Currency = "HKD" // Hong Kong Dollar
	IDR Currency = "IDR" // Indonesian Rupiah
	SGD Currency = "SGD" // Singapore Dollar
	MYR Currency = "MYR" // Malaysian Ringgit
	THB Currency = "THB" // Thai Baht
	PHP Currency = "PHP" // Philippine Peso
	VND Currency = "VND" // Vietnamese Dong
	KRW Currency = "KRW" // South Korean Won
	KWD Currency = "KWD" // Kuwaiti Dinar
	BHD Currency = "BHD" // Bahraini Dinar
)

// DefaultCurrency is the default currency for the system
const DefaultCurrency = CNY

// minorUnits holds the ISO 4217 exponent of each supported currency.
var minorUnits = map[Currency]int32{
	CNY: 2,
	USD: 2,
	EUR: 2,
	GBP: 2,
	JPY: 0,
	HKD: 2,
	IDR: 2,
	SGD: 2,
	MYR: 2,
	THB: 2,
	PHP: 2,
	VND: 0,
	KRW: 0,
	KWD: 3,
	BHD: 3,
}

// ParseCurrency normalizes and validates a currency code
func ParseCurrency(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if !c.IsValid() {
		return "", fmt.Errorf("unsupported currency: %q", code)
	}
	return c, nil
}

// IsValid returns true if the currency is supported
func (c Currency) IsValid() bool {
	_, ok := minorUnits[c]
	return ok
}

// String returns the currency code
func (c Currency) String() string {
	return string(c)
}

// MinorUnits returns the number of decimal places of the currency's minor unit.
// Unknown currencies fall back to 2.
func (c Currency) MinorUnits() int32 {
	if units, ok := minorUnits[c]; ok {
		return units
	}
	return 2
}

// SmallestUnit returns the value of one minor unit (0.01 for USD, 1 for JPY)
func (c Currency) SmallestUnit() decimal.Decimal {
	return decimal.New(1, -c.MinorUnits())
}

// RoundHalfUp rounds an amount to the currency's minor-unit precision, half away from zero
func (c Currency) RoundHalfUp(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(c.MinorUnits())
}
