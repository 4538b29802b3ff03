package models

import (
	"time"

	"github.com/google/uuid"
)

// TaxVaultEntry accumulates the IVA collected and paid by a franchise in one month
type TaxVaultEntry struct {
	ID               string     `json:"id"`
	FranchiseID      string     `json:"franchise_id"`
	Period           string     `json:"period"`
	IVARepercutido   float64    `json:"iva_repercutido"`
	IVASoportado     float64    `json:"iva_soportado"`
	TotalIncome      float64    `json:"total_income"`
	TotalExpenses    float64    `json:"total_expenses"`
	TotalTax         float64    `json:"total_tax"`
	InvoiceIDs       []string   `json:"invoice_ids,omitempty"`
	ExpenseRecordIDs []string   `json:"expense_record_ids,omitempty"`
	IsLocked         bool       `json:"is_locked"`
	LockedAt         *time.Time `json:"locked_at,omitempty"`
	LockedBy         string     `json:"locked_by,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`

	UnlockRequests []MonthUnlockRequest `json:"unlock_requests,omitempty"`
}

// Unlock request states
const (
	UnlockRequestPending = "PENDING"
)

// MonthUnlockRequest asks an administrator to reopen a closed month
type MonthUnlockRequest struct {
	RequestedBy string    `json:"requested_by"`
	Reason      string    `json:"reason"`
	Status      string    `json:"status"`
	RequestedAt time.Time `json:"requested_at"`
}

// PendingUnlockRequest returns the open unlock request, if any
func (e *TaxVaultEntry) PendingUnlockRequest() *MonthUnlockRequest {
	for i := range e.UnlockRequests {
		if e.UnlockRequests[i].Status == UnlockRequestPending {
			return &e.UnlockRequests[i]
		}
	}
	return nil
}

// TaxVaultID returns the document ID of a franchise month
func TaxVaultID(franchiseID, period string) string {
	return franchiseID + "_" + period
}

// NewTaxVaultEntry creates an empty, unlocked entry
func NewTaxVaultEntry(franchiseID, period string, now time.Time) *TaxVaultEntry {
	return &TaxVaultEntry{
		ID:          TaxVaultID(franchiseID, period),
		FranchiseID: franchiseID,
		Period:      period,
		UpdatedAt:   now,
	}
}

// HasInvoice reports whether the invoice was already accounted for
func (e *TaxVaultEntry) HasInvoice(invoiceID string) bool {
	for _, id := range e.InvoiceIDs {
		if id == invoiceID {
			return true
		}
	}
	return false
}

// HasExpense reports whether the expense was already accounted for
func (e *TaxVaultEntry) HasExpense(expenseID string) bool {
	for _, id := range e.ExpenseRecordIDs {
		if id == expenseID {
			return true
		}
	}
	return false
}

// ExpenseRecord is a supplier expense with its deductible IVA
type ExpenseRecord struct {
	ID          string    `json:"id"`
	FranchiseID string    `json:"franchise_id"`
	Period      string    `json:"period"`
	Concept     string    `json:"concept"`
	Supplier    string    `json:"supplier,omitempty"`
	Amount      float64   `json:"amount"`
	TaxRate     TaxRate   `json:"tax_rate"`
	IVA         float64   `json:"iva"`
	Date        time.Time `json:"date"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by,omitempty"`
}

// NewExpenseRecord creates an expense whose IVA is derived from amount and rate
func NewExpenseRecord(franchiseID, concept string, amount float64, rate TaxRate, date, now time.Time) *ExpenseRecord {
	return &ExpenseRecord{
		ID:          uuid.New().String(),
		FranchiseID: franchiseID,
		Period:      PeriodOf(date),
		Concept:     concept,
		Amount:      Round2(amount),
		TaxRate:     rate,
		IVA:         MulRound2(amount, float64(rate)),
		Date:        date,
		CreatedAt:   now,
	}
}

// MonthlyCloseSummary totals the month being closed
type MonthlyCloseSummary struct {
	TotalInvoices int     `json:"total_invoices"`
	TotalIncome   float64 `json:"total_income"`
	TotalExpenses float64 `json:"total_expenses"`
	TotalTax      float64 `json:"total_tax"`
}

// MonthlyCloseResult is returned after locking a month
type MonthlyCloseResult struct {
	Success  bool                `json:"success"`
	Period   string              `json:"period"`
	Entry    *TaxVaultEntry      `json:"tax_vault_entry"`
	Summary  MonthlyCloseSummary `json:"summary"`
	ClosedAt time.Time           `json:"closed_at"`
}
