package models

import (
	"math"

	"github.com/shopspring/decimal"
)

// Round2 rounds to two decimals, half away from zero.
// Non-finite input rounds to 0.
func Round2(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	return decimal.NewFromFloat(value).Round(2).InexactFloat64()
}

// MulRound2 multiplies in decimal arithmetic and rounds once
func MulRound2(a, b float64) float64 {
	if !isFinite(a) || !isFinite(b) {
		return 0
	}
	return decimal.NewFromFloat(a).Mul(decimal.NewFromFloat(b)).Round(2).InexactFloat64()
}

// SumMoney adds amounts in decimal arithmetic and rounds the result
func SumMoney(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		if !isFinite(v) {
			continue
		}
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.Round(2).InexactFloat64()
}

// SubMoney returns a-b rounded to two decimals
func SubMoney(a, b float64) float64 {
	return SumMoney(a, -b)
}

// MoneyEqual compares two amounts within half a cent
func MoneyEqual(a, b float64) bool {
	return math.Abs(a-b) < 0.005
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
