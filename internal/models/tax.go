package models

import (
	"sort"

	"github.com/shopspring/decimal"
)

// InvoiceTotals is the result of the pure tax computation over a set of lines
type InvoiceTotals struct {
	Lines        []InvoiceLine       `json:"lines"`
	TaxBreakdown []TaxBreakdownEntry `json:"tax_breakdown"`
	Subtotal     float64             `json:"subtotal"`
	TaxTotal     float64             `json:"tax_total"`
	Total        float64             `json:"total"`
}

// CalculateLine derives subtotal, tax and total for a single line:
// subtotal = round2(q*p), tax = round2(subtotal*t), total = round2(subtotal+tax)
func CalculateLine(description string, quantity, unitPrice float64, rate TaxRate) InvoiceLine {
	subtotal := MulRound2(quantity, unitPrice)
	taxAmount := MulRound2(subtotal, float64(rate))
	return InvoiceLine{
		Description: description,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		TaxRate:     rate,
		Subtotal:    subtotal,
		TaxAmount:   taxAmount,
		Total:       SumMoney(subtotal, taxAmount),
	}
}

// Recalculate returns a copy of the line with derived fields recomputed
func (l InvoiceLine) Recalculate() InvoiceLine {
	return CalculateLine(l.Description, l.Quantity, l.UnitPrice, l.TaxRate)
}

// Negate returns the credit-note counterpart of the line
func (l InvoiceLine) Negate() InvoiceLine {
	return CalculateLine(l.Description, l.Quantity, -l.UnitPrice, l.TaxRate)
}

// CalculateTaxBreakdown groups lines by tax rate, highest rate first.
// Each entry sums the already rounded line amounts, so the breakdown tax
// always equals the sum of line taxes.
func CalculateTaxBreakdown(lines []InvoiceLine) []TaxBreakdownEntry {
	type bucket struct {
		base decimal.Decimal
		tax  decimal.Decimal
	}
	buckets := make(map[TaxRate]*bucket)
	for _, line := range lines {
		b, ok := buckets[line.TaxRate]
		if !ok {
			b = &bucket{base: decimal.Zero, tax: decimal.Zero}
			buckets[line.TaxRate] = b
		}
		b.base = b.base.Add(decimal.NewFromFloat(line.Subtotal))
		b.tax = b.tax.Add(decimal.NewFromFloat(line.TaxAmount))
	}

	breakdown := make([]TaxBreakdownEntry, 0, len(buckets))
	for rate, b := range buckets {
		breakdown = append(breakdown, TaxBreakdownEntry{
			Rate:        rate,
			TaxableBase: b.base.Round(2).InexactFloat64(),
			TaxAmount:   b.tax.Round(2).InexactFloat64(),
		})
	}
	sort.Slice(breakdown, func(i, j int) bool {
		return breakdown[i].Rate > breakdown[j].Rate
	})
	return breakdown
}

// CalculateTotals recomputes every line and aggregates subtotal, breakdown and total.
// It is a pure function of the lines, so stored invoices can be re-verified at any time.
func CalculateTotals(lines []InvoiceLine) InvoiceTotals {
	computed := make([]InvoiceLine, len(lines))
	subtotals := make([]float64, len(lines))
	for i, line := range lines {
		computed[i] = line.Recalculate()
		subtotals[i] = computed[i].Subtotal
	}

	breakdown := CalculateTaxBreakdown(computed)
	taxes := make([]float64, len(breakdown))
	for i, entry := range breakdown {
		taxes[i] = entry.TaxAmount
	}

	subtotal := SumMoney(subtotals...)
	taxTotal := SumMoney(taxes...)
	return InvoiceTotals{
		Lines:        computed,
		TaxBreakdown: breakdown,
		Subtotal:     subtotal,
		TaxTotal:     taxTotal,
		Total:        SumMoney(subtotal, taxTotal),
	}
}

// BreakdownEqual compares two breakdowns entry by entry
func BreakdownEqual(a, b []TaxBreakdownEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Rate != b[i].Rate ||
			!MoneyEqual(a[i].TaxableBase, b[i].TaxableBase) ||
			!MoneyEqual(a[i].TaxAmount, b[i].TaxAmount) {
			return false
		}
	}
	return true
}
