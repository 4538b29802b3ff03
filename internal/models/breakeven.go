package models

// BreakEvenStatus is the profitability verdict shown on dashboards
type BreakEvenStatus string

const (
	BreakEvenProfitable BreakEvenStatus = "RENTABLE"
	BreakEvenDeficit    BreakEvenStatus = "DÉFICIT"
)

// PeriodAggregate is the monthly financial and operational summary of a franchise
type PeriodAggregate struct {
	FranchiseID string  `json:"franchise_id,omitempty"`
	Period      string  `json:"period,omitempty"`
	Revenue     float64 `json:"revenue"`
	Expenses    float64 `json:"expenses"`
	Hours       float64 `json:"hours"`
	Orders      float64 `json:"orders"`
}

// BreakEvenResult holds the productivity thresholds derived from a PeriodAggregate
type BreakEvenResult struct {
	FranchiseID           string          `json:"franchise_id,omitempty"`
	Period                string          `json:"period,omitempty"`
	AvgTicket             float64         `json:"avg_ticket"`
	BreakEvenOrders       float64         `json:"break_even_orders"`
	BreakEvenProductivity float64         `json:"break_even_productivity"`
	ActualProductivity    float64         `json:"actual_productivity"`
	MarginOfSafety        float64         `json:"margin_of_safety"`
	Status                BreakEvenStatus `json:"status"`
}

// FranchiseMetrics stores operational totals of a franchise for one month
type FranchiseMetrics struct {
	FranchiseID string  `json:"franchise_id"`
	Period      string  `json:"period"`
	Hours       float64 `json:"hours"`
	Orders      float64 `json:"orders"`
}

// MetricsID returns the document ID for a franchise month
func MetricsID(franchiseID, period string) string {
	return franchiseID + "_" + period
}
