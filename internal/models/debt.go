package models

import "time"

// AgingBucket classifies an unpaid invoice by days overdue
type AgingBucket string

const (
	AgingCurrent AgingBucket = "current"
	Aging1To30   AgingBucket = "1-30"
	Aging31To60  AgingBucket = "31-60"
	AgingOver60  AgingBucket = "60+"
)

// AgingBuckets lists the buckets in display order
var AgingBuckets = []AgingBucket{AgingCurrent, Aging1To30, Aging31To60, AgingOver60}

// BucketForDays maps days overdue onto an aging bucket
func BucketForDays(days int) AgingBucket {
	switch {
	case days <= 0:
		return AgingCurrent
	case days <= 30:
		return Aging1To30
	case days <= 60:
		return Aging31To60
	default:
		return AgingOver60
	}
}

// DaysOverdue returns whole days elapsed since due, never negative
func DaysOverdue(due, now time.Time) int {
	if !now.After(due) {
		return 0
	}
	return int(now.Sub(due) / (24 * time.Hour))
}

// AgingTotals sums outstanding amounts per bucket
type AgingTotals struct {
	Current    float64 `json:"current"`
	Days1To30  float64 `json:"days_1_30"`
	Days31To60 float64 `json:"days_31_60"`
	Over60     float64 `json:"days_60_plus"`
}

// Add accumulates an amount into the bucket
func (a *AgingTotals) Add(bucket AgingBucket, amount float64) {
	switch bucket {
	case AgingCurrent:
		a.Current = SumMoney(a.Current, amount)
	case Aging1To30:
		a.Days1To30 = SumMoney(a.Days1To30, amount)
	case Aging31To60:
		a.Days31To60 = SumMoney(a.Days31To60, amount)
	case AgingOver60:
		a.Over60 = SumMoney(a.Over60, amount)
	}
}

// OutstandingInvoice is one unpaid invoice line in the debt dashboard
type OutstandingInvoice struct {
	InvoiceID       string        `json:"invoice_id"`
	FullNumber      string        `json:"full_number"`
	Total           float64       `json:"total"`
	TotalPaid       float64       `json:"total_paid"`
	RemainingAmount float64       `json:"remaining_amount"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	IssueDate       *time.Time    `json:"issue_date,omitempty"`
	DueDate         time.Time     `json:"due_date"`
	DaysOverdue     int           `json:"days_overdue"`
	Bucket          AgingBucket   `json:"bucket"`
}

// CustomerDebt aggregates the outstanding invoices of one customer
type CustomerDebt struct {
	FranchiseID      string               `json:"franchise_id"`
	CustomerID       string               `json:"customer_id"`
	CustomerName     string               `json:"customer_name"`
	CustomerTaxID    string               `json:"customer_tax_id"`
	TotalOutstanding float64              `json:"total_outstanding"`
	TotalOverdue     float64              `json:"total_overdue"`
	InvoiceCount     int                  `json:"invoice_count"`
	OldestDueDate    *time.Time           `json:"oldest_due_date,omitempty"`
	Aging            AgingTotals          `json:"aging"`
	Invoices         []OutstandingInvoice `json:"invoices"`
}

// DebtDashboard is the accounts receivable aging report
type DebtDashboard struct {
	FranchiseID      string         `json:"franchise_id,omitempty"`
	GeneratedAt      time.Time      `json:"generated_at"`
	TotalOutstanding float64        `json:"total_outstanding"`
	TotalOverdue     float64        `json:"total_overdue"`
	TotalCurrent     float64        `json:"total_current"`
	InvoiceCount     int            `json:"invoice_count"`
	CustomerCount    int            `json:"customer_count"`
	Aging            AgingTotals    `json:"aging"`
	Customers        []CustomerDebt `json:"customers"`
}
