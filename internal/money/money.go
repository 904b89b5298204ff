// Package money provides the currency rounding boundary. Per-line arithmetic
// stays in float64; amounts that leave the engine (sale totals, refund totals,
// expected cash) pass through Round2 exactly once.
package money

import "github.com/shopspring/decimal"

// Round2 rounds half away from zero to 2 decimal places.
func Round2(v float64) float64 {
	r, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return r
}

// Equal compares two amounts at 2-decimal precision.
func Equal(a, b float64) bool {
	return decimal.NewFromFloat(a).Round(2).Equal(decimal.NewFromFloat(b).Round(2))
}
