package models

import "time"

// CustomerStats summarises the billing history of one customer
type CustomerStats struct {
	FranchiseID     string     `json:"franchise_id"`
	CustomerID      string     `json:"customer_id"`
	TotalInvoiced   float64    `json:"total_invoiced"`
	TotalPaid       float64    `json:"total_paid"`
	TotalPending    float64    `json:"total_pending"`
	InvoiceCount    int        `json:"invoice_count"`
	LastInvoiceDate *time.Time `json:"last_invoice_date,omitempty"`
}

// OtherRangeLabel collects orders billed under a range that is not part of the standard tariff
const OtherRangeLabel = "Otros"

// InvoicedIncome is the income billed by a franchise in one month
type InvoicedIncome struct {
	FranchiseID  string             `json:"franchise_id"`
	Period       string             `json:"period"`
	Subtotal     float64            `json:"subtotal"`
	Total        float64            `json:"total"`
	InvoiceCount int                `json:"invoice_count"`
	OrdersDetail map[string]float64 `json:"orders_detail"`
}
