package services

import (
	"context"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
	"github.com/juan49ers-spec/Repaart-sub012/internal/repositories"
)

// RepositoryProvider is the part of the repository manager the services use.
// Reads go straight to the store, multi-document writes go through WithTransaction.
type RepositoryProvider interface {
	repositories.TransactionalRepositories
	WithTransaction(ctx context.Context, fn repositories.TxFunc) error
}

// InvoiceEngine drives the invoice lifecycle DRAFT -> ISSUED -> RECTIFIED
type InvoiceEngine interface {
	// Lifecycle operations
	CreateDraft(ctx context.Context, req *CreateDraftRequest) (*models.Invoice, error)
	UpdateDraft(ctx context.Context, id string, req *UpdateDraftRequest) (*models.Invoice, error)
	IssueInvoice(ctx context.Context, id, issuedBy string) (*models.Invoice, error)
	RectifyInvoice(ctx context.Context, id, reason, actor string) (*RectifyResult, error)

	// Queries
	GetInvoice(ctx context.Context, id string) (*models.Invoice, error)
	ListInvoices(ctx context.Context, filters *repositories.InvoiceFilter) ([]*models.Invoice, error)
	VerifyTotals(ctx context.Context, id string) (*TotalsVerification, error)
	GetCustomerStats(ctx context.Context, franchiseID, customerID string) (*models.CustomerStats, error)
	GetInvoicedIncomeForMonth(ctx context.Context, franchiseID, period string) (*models.InvoicedIncome, error)
	ExportInvoice(ctx context.Context, id string, format ExportFormat) (*InvoiceFile, error)
}

// LogisticsBilling turns operational facts into billable invoice lines
type LogisticsBilling interface {
	CalculateBilling(ctx context.Context, facts *models.PeriodFacts, rates *models.BillingRates) (*models.BillingResult, error)
	RatesForFranchise(ctx context.Context, franchiseID string) (*models.BillingRates, error)
	BuildDraftRequest(result *models.BillingResult, facts *models.PeriodFacts) *CreateDraftRequest
}

// AccountsReceivable records payments and reports outstanding debt
type AccountsReceivable interface {
	AddPayment(ctx context.Context, req *AddPaymentRequest) (*PaymentResult, error)
	ListPayments(ctx context.Context, invoiceID string) ([]*models.PaymentReceipt, error)
	GetPaymentReceipt(ctx context.Context, id string) (*models.PaymentReceipt, error)
	GenerateDebtDashboard(ctx context.Context, franchiseID string) (*models.DebtDashboard, error)
	GetCustomerDebt(ctx context.Context, franchiseID, customerID string) (*models.CustomerDebt, error)
}

// BreakEvenAnalyzer computes productivity thresholds
type BreakEvenAnalyzer interface {
	ComputeBreakEven(aggregate models.PeriodAggregate) models.BreakEvenResult
	AnalyzePeriod(ctx context.Context, franchiseID, period string) (*models.BreakEvenResult, error)
	RecordMetrics(ctx context.Context, metrics *models.FranchiseMetrics) error
}

// TaxVault accumulates monthly IVA and closes months
type TaxVault interface {
	OnInvoiceIssued(ctx context.Context, invoice *models.Invoice) error
	RecordExpense(ctx context.Context, req *RecordExpenseRequest) (*models.ExpenseRecord, error)
	ExecuteMonthlyClose(ctx context.Context, franchiseID, period, actor string) (*models.MonthlyCloseResult, error)
	GetTaxVaultEntry(ctx context.Context, franchiseID, period string) (*models.TaxVaultEntry, error)
	RecalculateMonth(ctx context.Context, franchiseID, period string) (*models.TaxVaultEntry, error)
	RequestMonthUnlock(ctx context.Context, req *MonthUnlockRequest) (*models.TaxVaultEntry, error)
}

// PaymentCollector charges cards through the payment gateway
type PaymentCollector interface {
	CollectCardPayment(ctx context.Context, req *CollectCardPaymentRequest) (*PaymentResult, error)
}

// Request and response types for service operations

// LineItemRequest is one line of a draft request
type LineItemRequest struct {
	Description string  `json:"description" validate:"required,max=500"`
	Quantity    float64 `json:"quantity" validate:"gt=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
	TaxRate     float64 `json:"tax_rate"`
}

// CreateDraftRequest creates a draft invoice
type CreateDraftRequest struct {
	FranchiseID     string                   `json:"franchise_id" validate:"required"`
	CustomerID      string                   `json:"customer_id" validate:"required"`
	CustomerType    models.CustomerType      `json:"customer_type" validate:"required,oneof=FRANCHISE RESTAURANT"`
	Items           []LineItemRequest        `json:"items" validate:"required,min=1,dive"`
	Customer        *models.CustomerSnapshot `json:"customer,omitempty"`
	PaymentTermDays *int                     `json:"payment_term_days,omitempty" validate:"omitempty,gte=0,lte=365"`
	Notes           string                   `json:"notes,omitempty" validate:"max=2000"`
	CreatedBy       string                   `json:"created_by,omitempty"`
}

// UpdateDraftRequest replaces the editable parts of a draft. Nil fields are kept.
type UpdateDraftRequest struct {
	Items           []LineItemRequest        `json:"items,omitempty" validate:"omitempty,min=1,dive"`
	Customer        *models.CustomerSnapshot `json:"customer,omitempty"`
	PaymentTermDays *int                     `json:"payment_term_days,omitempty" validate:"omitempty,gte=0,lte=365"`
	Notes           *string                  `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// RectifyResult holds the credit note and the rectified original
type RectifyResult struct {
	Original      *models.Invoice `json:"original"`
	Rectification *models.Invoice `json:"rectification"`
}

// TotalsVerification compares stored totals with a fresh computation
type TotalsVerification struct {
	InvoiceID string               `json:"invoice_id"`
	Valid     bool                 `json:"valid"`
	Stored    models.InvoiceTotals `json:"stored"`
	Computed  models.InvoiceTotals `json:"computed"`
}

// AddPaymentRequest records a payment against an invoice
type AddPaymentRequest struct {
	InvoiceID   string               `json:"invoice_id" validate:"required"`
	Amount      float64              `json:"amount"`
	Method      models.PaymentMethod `json:"method" validate:"required"`
	PaymentDate *time.Time           `json:"payment_date,omitempty"`
	Reference   string               `json:"reference,omitempty" validate:"max=200"`
	Notes       string               `json:"notes,omitempty" validate:"max=2000"`
	CreatedBy   string               `json:"created_by,omitempty"`
}

// PaymentResult is returned after a payment is recorded
type PaymentResult struct {
	Receipt         *models.PaymentReceipt `json:"receipt"`
	Invoice         *models.Invoice        `json:"invoice"`
	TotalPaid       float64                `json:"total_paid"`
	RemainingAmount float64                `json:"remaining_amount"`
	PaymentStatus   models.PaymentStatus   `json:"payment_status"`
}

// RecordExpenseRequest records a supplier expense for the tax vault
type RecordExpenseRequest struct {
	FranchiseID string     `json:"franchise_id" validate:"required"`
	Concept     string     `json:"concept" validate:"required,max=500"`
	Supplier    string     `json:"supplier,omitempty" validate:"max=200"`
	Amount      float64    `json:"amount" validate:"gt=0"`
	TaxRate     float64    `json:"tax_rate"`
	Date        *time.Time `json:"date,omitempty"`
	CreatedBy   string     `json:"created_by,omitempty"`
}

// MonthUnlockRequest asks to reopen a closed month
type MonthUnlockRequest struct {
	FranchiseID string `json:"franchise_id" validate:"required"`
	Period      string `json:"period" validate:"required"`
	Reason      string `json:"reason" validate:"required,max=1000"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// CollectCardPaymentRequest charges the outstanding amount of an invoice
type CollectCardPaymentRequest struct {
	InvoiceID       string  `json:"invoice_id" validate:"required"`
	Amount          float64 `json:"amount,omitempty" validate:"gte=0"` // 0 charges the whole remaining amount
	Token           string  `json:"token,omitempty"`
	PaymentMethodID string  `json:"payment_method_id,omitempty"`
	PayerEmail      string  `json:"payer_email,omitempty" validate:"omitempty,email"`
	Installments    int     `json:"installments,omitempty" validate:"gte=0"`
	CreatedBy       string  `json:"created_by,omitempty"`
}

// newValidator creates a validator that reports JSON field names
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}
