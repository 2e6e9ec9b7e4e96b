package models

import "github.com/shopspring/decimal"

// AmountScale is the number of decimal places every amount column keeps.
const AmountScale = 2

// FitsAmountScale reports whether d survives storage in a decimal(12,2)
// column without rounding. Trailing zeros are fine: 150.500 fits.
func FitsAmountScale(d decimal.Decimal) bool {
	return d.Equal(d.Round(AmountScale))
}
