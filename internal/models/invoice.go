package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultPaymentTermDays is the due date offset used when none is configured
const DefaultPaymentTermDays = 30

// InvoiceLine is one billable line. Subtotal, TaxAmount and Total are derived.
type InvoiceLine struct {
	Description string  `json:"description" validate:"required,max=500"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	TaxRate     TaxRate `json:"tax_rate"`
	Subtotal    float64 `json:"subtotal"`
	TaxAmount   float64 `json:"tax_amount"`
	Total       float64 `json:"total"`
}

// TaxBreakdownEntry aggregates every line sharing the same tax rate
type TaxBreakdownEntry struct {
	Rate        TaxRate `json:"rate"`
	TaxableBase float64 `json:"taxable_base"`
	TaxAmount   float64 `json:"tax_amount"`
}

// Invoice is a franchise invoice, either a draft, an issued invoice or a credit note
type Invoice struct {
	ID           string        `json:"id"`
	FranchiseID  string        `json:"franchise_id"`
	CustomerID   string        `json:"customer_id"`
	CustomerType CustomerType  `json:"customer_type"`
	Type         InvoiceType   `json:"type"`
	Status       InvoiceStatus `json:"status"`

	PaymentStatus PaymentStatus `json:"payment_status"`

	Series     string `json:"series"`
	Number     int    `json:"number"`
	FullNumber string `json:"full_number"`

	Customer CustomerSnapshot `json:"customer"`
	Issuer   *IssuerSnapshot  `json:"issuer,omitempty"`

	Lines        []InvoiceLine       `json:"lines"`
	TaxBreakdown []TaxBreakdownEntry `json:"tax_breakdown"`
	Subtotal     float64             `json:"subtotal"`
	TaxTotal     float64             `json:"tax_total"`
	Total        float64             `json:"total"`

	TotalPaid       float64 `json:"total_paid"`
	RemainingAmount float64 `json:"remaining_amount"`

	PaymentTermDays int        `json:"payment_term_days"`
	IssueDate       *time.Time `json:"issue_date,omitempty"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	IssuedAt        *time.Time `json:"issued_at,omitempty"`
	IssuedBy        string     `json:"issued_by,omitempty"`

	OriginalInvoiceID    string     `json:"original_invoice_id,omitempty"`
	RectificationReason  string     `json:"rectification_reason,omitempty"`
	RectifyingInvoiceIDs []string   `json:"rectifying_invoice_ids,omitempty"`
	RectifiedAt          *time.Time `json:"rectified_at,omitempty"`

	PaymentReceiptIDs []string `json:"payment_receipt_ids,omitempty"`

	Notes     string    `json:"notes,omitempty"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDraftInvoice creates a draft with generated ID and computed totals
func NewDraftInvoice(franchiseID string, customer CustomerSnapshot, lines []InvoiceLine, now time.Time) *Invoice {
	inv := &Invoice{
		ID:              uuid.New().String(),
		FranchiseID:     franchiseID,
		CustomerID:      customer.ID,
		CustomerType:    customer.Type,
		Type:            InvoiceTypeStandard,
		Status:          InvoiceStatusDraft,
		PaymentStatus:   PaymentStatusPending,
		Customer:        customer,
		PaymentTermDays: DefaultPaymentTermDays,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	inv.SetLines(lines)
	return inv
}

// SetLines replaces the lines and recomputes every derived amount
func (i *Invoice) SetLines(lines []InvoiceLine) {
	totals := CalculateTotals(lines)
	i.Lines = totals.Lines
	i.TaxBreakdown = totals.TaxBreakdown
	i.Subtotal = totals.Subtotal
	i.TaxTotal = totals.TaxTotal
	i.Total = totals.Total
	i.RecalculatePaymentStatus()
}

// RecalculatePaymentStatus derives remaining amount and payment status from TotalPaid
func (i *Invoice) RecalculatePaymentStatus() {
	i.TotalPaid = Round2(i.TotalPaid)
	remaining := SubMoney(i.Total, i.TotalPaid)
	if remaining < 0 {
		remaining = 0
	}
	i.RemainingAmount = remaining

	switch {
	case i.TotalPaid <= 0:
		i.PaymentStatus = PaymentStatusPending
	case i.TotalPaid < i.Total:
		i.PaymentStatus = PaymentStatusPartial
	default:
		i.PaymentStatus = PaymentStatusPaid
	}
}

// IsDraft reports whether the invoice is still editable
func (i *Invoice) IsDraft() bool {
	return i.Status == InvoiceStatusDraft
}

// IsRectified reports whether a credit note already exists for this invoice
func (i *Invoice) IsRectified() bool {
	return i.Status == InvoiceStatusRectified || len(i.RectifyingInvoiceIDs) > 0
}

// AcceptsPayments reports whether payments may be recorded against the invoice
func (i *Invoice) AcceptsPayments() bool {
	return i.Status == InvoiceStatusIssued || i.Status == InvoiceStatusRectified
}

// Period returns the YYYY-MM month the invoice belongs to for tax purposes
func (i *Invoice) Period() string {
	if i.IssueDate != nil {
		return PeriodOf(*i.IssueDate)
	}
	return PeriodOf(i.CreatedAt)
}

// Validate checks structural invariants of a stored invoice
func (i *Invoice) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("invoice ID is required")
	}
	if i.FranchiseID == "" {
		return fmt.Errorf("franchise ID is required")
	}
	if !i.Status.IsValid() {
		return fmt.Errorf("invalid invoice status: %s", i.Status)
	}
	if i.Status == InvoiceStatusDraft && (i.Number != 0 || i.FullNumber != "") {
		return fmt.Errorf("draft invoices cannot carry a number")
	}
	if i.Status != InvoiceStatusDraft && i.FullNumber == "" {
		return fmt.Errorf("issued invoices must carry a full number")
	}
	for n, line := range i.Lines {
		if !line.TaxRate.IsValid() {
			return fmt.Errorf("line %d has a tax rate outside the allowed set: %v", n+1, float64(line.TaxRate))
		}
	}
	for _, entry := range i.TaxBreakdown {
		if !entry.Rate.IsValid() {
			return fmt.Errorf("tax breakdown has a rate outside the allowed set: %v", float64(entry.Rate))
		}
	}
	return nil
}

// FormatFullNumber builds the printed invoice number, e.g. 2026/0007
func FormatFullNumber(series string, number int) string {
	return fmt.Sprintf("%s/%04d", series, number)
}

// StandardSeries is the numbering series for ordinary invoices issued at t
func StandardSeries(t time.Time) string {
	return fmt.Sprintf("%d", t.Year())
}

// RectificativeSeries is the numbering series for credit notes issued at t
func RectificativeSeries(t time.Time) string {
	return fmt.Sprintf("R-%d", t.Year())
}

// DraftGuardSeries names the counter that serializes draft creation for one
// customer and month. Its value is the number of drafts created so far.
func DraftGuardSeries(customerID, period string) string {
	return "DRAFTS-" + keySafe.Replace(customerID) + "-" + period
}

var keySafe = strings.NewReplacer("/", "_", "\\", "_", "..", "_")

// PeriodOf returns the YYYY-MM period of t
func PeriodOf(t time.Time) string {
	return t.Format("2006-01")
}

// ParsePeriod parses a YYYY-MM period and returns its first instant and the next month's
func ParsePeriod(period string) (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01", period)
	if err != nil {
		return time.Time{}, time.Time{}, NewValidationError("ParsePeriod", "period",
			fmt.Sprintf("Periodo inválido '%s', formato esperado AAAA-MM", period))
	}
	return start, start.AddDate(0, 1, 0), nil
}

// InvoiceCounter is the per franchise and series numbering document
type InvoiceCounter struct {
	FranchiseID string    `json:"franchise_id"`
	Series      string    `json:"series"`
	LastNumber  int       `json:"last_number"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CounterID returns the document ID of the counter for a franchise and series
func CounterID(franchiseID, series string) string {
	return franchiseID + "_" + series
}
