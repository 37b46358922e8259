// Package money holds currency-aware rounding helpers.
package money

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Scale returns the number of decimal places used by the given ISO 4217
// currency code (2 for EUR, 0 for JPY, ...). Unknown or empty codes fall
// back to 2.
func Scale(code string) int32 {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 2
	}
	scale, _ := currency.Cash.Rounding(unit)
	return int32(scale)
}

// Round rounds an amount half-up to the currency's scale.
func Round(amount decimal.Decimal, code string) decimal.Decimal {
	return amount.Round(Scale(code))
}
