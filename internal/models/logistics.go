package models

import (
	"math"
	"strings"
	"time"
)

// DistanceRange prices orders whose distance falls in [MinKm, MaxKm)
type DistanceRange struct {
	ID    string  `json:"id" mapstructure:"id"`
	Name  string  `json:"name" mapstructure:"name"`
	MinKm float64 `json:"min_km" mapstructure:"min_km"`
	MaxKm float64 `json:"max_km" mapstructure:"max_km"` // 0 means unbounded
	Price float64 `json:"price" mapstructure:"price"`
}

// Contains reports whether a distance belongs to the range
func (r DistanceRange) Contains(km float64) bool {
	if km < r.MinKm {
		return false
	}
	return r.MaxKm <= 0 || km < r.MaxKm
}

// DefaultDistanceRanges returns the standard per-order logistics tariff
func DefaultDistanceRanges() []DistanceRange {
	return []DistanceRange{
		{ID: "range_0_4", Name: "0-4 km", MinKm: 0, MaxKm: 4, Price: 2.50},
		{ID: "range_4_5", Name: "4-5 km", MinKm: 4, MaxKm: 5, Price: 3.00},
		{ID: "range_5_6", Name: "5-6 km", MinKm: 5, MaxKm: 6, Price: 3.50},
		{ID: "range_6_7", Name: "6-7 km", MinKm: 6, MaxKm: 7, Price: 4.00},
		{ID: "range_gt_7", Name: ">7 km", MinKm: 7, MaxKm: 0, Price: 4.50},
	}
}

var rangeLabels = map[string]string{
	"0-4":    "0-4 km",
	"4-5":    "4-5 km",
	"5-6":    "5-6 km",
	"6-7":    "6-7 km",
	">7":     ">7 km",
	"masde7": ">7 km",
	"gt7":    ">7 km",
}

// NormalizeRangeLabel maps the spellings of a distance range onto the standard
// tariff labels. Unknown ranges fold into OtherRangeLabel.
func NormalizeRangeLabel(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.TrimSuffix(key, "km")
	key = strings.NewReplacer(" ", "", "_", "", "á", "a").Replace(key)
	if label, ok := rangeLabels[key]; ok {
		return label
	}
	return OtherRangeLabel
}

// BillingRates are the per-franchise tariffs fed to the logistics calculator
type BillingRates struct {
	HourlyRate     float64         `json:"hourly_rate" mapstructure:"hourly_rate"`
	KmRate         float64         `json:"km_rate" mapstructure:"km_rate"`
	IRPFRate       float64         `json:"irpf_rate" mapstructure:"irpf_rate"`
	ServiceFee     float64         `json:"service_fee" mapstructure:"service_fee"`
	TaxRate        TaxRate         `json:"tax_rate" mapstructure:"tax_rate"`
	DistanceRanges []DistanceRange `json:"distance_ranges,omitempty" mapstructure:"distance_ranges"`
}

// RateProfile is the optional rate override stored on a franchise profile
type RateProfile struct {
	HourlyRate *float64 `json:"hourly_rate,omitempty"`
	KmRate     *float64 `json:"km_rate,omitempty"`
	IRPFRate   *float64 `json:"irpf_rate,omitempty"`
	ServiceFee *float64 `json:"service_fee,omitempty"`
}

// Apply overlays the profile values on top of base rates
func (p *RateProfile) Apply(base BillingRates) BillingRates {
	if p == nil {
		return base
	}
	if p.HourlyRate != nil {
		base.HourlyRate = *p.HourlyRate
	}
	if p.KmRate != nil {
		base.KmRate = *p.KmRate
	}
	if p.IRPFRate != nil {
		base.IRPFRate = *p.IRPFRate
	}
	if p.ServiceFee != nil {
		base.ServiceFee = *p.ServiceFee
	}
	return base
}

// ShiftFact is one rider shift worked during the billing period.
// DurationHours overrides End-Start when set.
type ShiftFact struct {
	RiderID       string     `json:"rider_id,omitempty"`
	Start         *time.Time `json:"start,omitempty"`
	End           *time.Time `json:"end,omitempty"`
	DurationHours *float64   `json:"duration_hours,omitempty"`
	DistanceKm    float64    `json:"distance_km"`
	Orders        int        `json:"orders"`
}

// Duration returns the worked hours and whether they are usable.
// Missing, NaN, infinite or negative durations are not usable.
func (s ShiftFact) Duration() (float64, bool) {
	var hours float64
	switch {
	case s.DurationHours != nil:
		hours = *s.DurationHours
	case s.Start != nil && s.End != nil:
		hours = s.End.Sub(*s.Start).Hours()
	default:
		return 0, false
	}
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours < 0 {
		return 0, false
	}
	return hours, true
}

// OrderFact is one delivered order used for distance-range pricing
type OrderFact struct {
	DistanceKm      float64 `json:"distance_km"`
	DurationMinutes float64 `json:"duration_minutes,omitempty"`
}

// PeriodFacts are the raw operational facts of one billing period
type PeriodFacts struct {
	FranchiseID  string       `json:"franchise_id" validate:"required"`
	CustomerID   string       `json:"customer_id"`
	CustomerType CustomerType `json:"customer_type"`
	Period       string       `json:"period"`
	Shifts       []ShiftFact  `json:"shifts"`
	Orders       []OrderFact  `json:"orders,omitempty"`
}

// BillingResult is the output of the logistics calculator
type BillingResult struct {
	FranchiseID   string        `json:"franchise_id"`
	Period        string        `json:"period"`
	Lines         []InvoiceLine `json:"lines"`
	TotalHours    float64       `json:"total_hours"`
	TotalKm       float64       `json:"total_km"`
	TotalOrders   int           `json:"total_orders"`
	SkippedShifts int           `json:"skipped_shifts"`
	Totals        InvoiceTotals `json:"totals"`
	IRPFRate      float64       `json:"irpf_rate"`
	IRPFRetention float64       `json:"irpf_retention"`
	NetPayable    float64       `json:"net_payable"`
}
