package repositories

import (
	"context"
	"time"

	"github.com/juan49ers-spec/Repaart-sub012/internal/adapters/storage"
	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
)

// Collection names used by the billing core
const (
	CollectionInvoices         = "invoices"
	CollectionInvoiceCounters  = "invoice_counters"
	CollectionPaymentReceipts  = "payment_receipts"
	CollectionTaxVault         = "tax_vault"
	CollectionFinancialRecords = "financial_records"
	CollectionFranchises       = "franchises"
	CollectionRestaurants      = "restaurants"
	CollectionFranchiseMetrics = "franchise_metrics"
)

// InvoiceFilter narrows invoice listings. Zero values are ignored.
type InvoiceFilter struct {
	FranchiseID   string               `json:"franchise_id,omitempty" form:"franchise_id"`
	CustomerID    string               `json:"customer_id,omitempty" form:"customer_id"`
	Status        models.InvoiceStatus `json:"status,omitempty" form:"status"`
	Type          models.InvoiceType   `json:"type,omitempty" form:"type"`
	PaymentStatus models.PaymentStatus `json:"payment_status,omitempty" form:"payment_status"`
	Period        string               `json:"period,omitempty" form:"period"`
	CreatedAfter  *time.Time           `json:"created_after,omitempty"`
	Limit         int                  `json:"limit,omitempty" form:"limit"`
	Offset        int                  `json:"offset,omitempty" form:"offset"`
}

// InvoiceRepository stores invoices and credit notes
type InvoiceRepository interface {
	// GetByID retrieves an invoice by its ID
	GetByID(ctx context.Context, id string) (*models.Invoice, error)

	// Save creates or replaces an invoice
	Save(ctx context.Context, invoice *models.Invoice) error

	// List retrieves invoices matching the filter, newest first
	List(ctx context.Context, filter *InvoiceFilter) ([]*models.Invoice, error)

	// WithTx returns a view of the repository bound to a transaction
	WithTx(tx storage.Tx) InvoiceRepository
}

// CounterRepository numbers invoices per franchise and series
type CounterRepository interface {
	// Get returns the counter, or a zero counter when none exists yet
	Get(ctx context.Context, franchiseID, series string) (*models.InvoiceCounter, error)

	// Next reserves the next number of the series. It must run inside a
	// transaction for the reservation to be exclusive.
	Next(ctx context.Context, franchiseID, series string, now time.Time) (int, error)

	// WithTx returns a view of the repository bound to a transaction
	WithTx(tx storage.Tx) CounterRepository
}

// PaymentRepository stores payment receipts
type PaymentRepository interface {
	// GetByID retrieves a receipt by its ID
	GetByID(ctx context.Context, id string) (*models.PaymentReceipt, error)

	// Save creates or replaces a receipt
	Save(ctx context.Context, receipt *models.PaymentReceipt) error

	// ListByInvoice retrieves the receipts of an invoice ordered by payment date
	ListByInvoice(ctx context.Context, invoiceID string) ([]*models.PaymentReceipt, error)

	// WithTx returns a view of the repository bound to a transaction
	WithTx(tx storage.Tx) PaymentRepository
}

// TaxVaultRepository stores the monthly IVA accumulators
type TaxVaultRepository interface {
	// Get retrieves the entry of a franchise month
	Get(ctx context.Context, franchiseID, period string) (*models.TaxVaultEntry, error)

	// Save creates or replaces an entry
	Save(ctx context.Context, entry *models.TaxVaultEntry) error

	// WithTx returns a view of the repository bound to a transaction
	WithTx(tx storage.Tx) TaxVaultRepository
}

// ExpenseRepository stores supplier expenses
type ExpenseRepository interface {
	// GetByID retrieves an expense by its ID
	GetByID(ctx context.Context, id string) (*models.ExpenseRecord, error)

	// Save creates or replaces an expense
	Save(ctx context.Context, expense *models.ExpenseRecord) error

	// ListByPeriod retrieves the expenses of a franchise month ordered by date
	ListByPeriod(ctx context.Context, franchiseID, period string) ([]*models.ExpenseRecord, error)

	// WithTx returns a view of the repository bound to a transaction
	WithTx(tx storage.Tx) ExpenseRepository
}

// ProfileRepository stores franchise and restaurant profiles
type ProfileRepository interface {
	// GetFranchise retrieves a franchise profile
	GetFranchise(ctx context.Context, id string) (*models.FranchiseProfile, error)

	// GetCustomer retrieves the profile of a customer from the collection of its type
	GetCustomer(ctx context.Context, customerType models.CustomerType, id string) (*models.FranchiseProfile, error)

	// Save stores a profile in the collection of its type
	Save(ctx context.Context, customerType models.CustomerType, profile *models.FranchiseProfile) error

	// WithTx returns a view of the repository bound to a transaction
	WithTx(tx storage.Tx) ProfileRepository
}

// MetricsRepository stores operational totals per franchise month
type MetricsRepository interface {
	// Get retrieves the metrics of a franchise month
	Get(ctx context.Context, franchiseID, period string) (*models.FranchiseMetrics, error)

	// Save creates or replaces the metrics of a franchise month
	Save(ctx context.Context, metrics *models.FranchiseMetrics) error

	// WithTx returns a view of the repository bound to a transaction
	WithTx(tx storage.Tx) MetricsRepository
}

// HealthStatus represents the health status of the store
type HealthStatus struct {
	Healthy      bool              `json:"healthy"`
	Backend      string            `json:"backend"`
	Message      string            `json:"message,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
	CheckedAt    time.Time         `json:"checked_at"`
	ResponseTime time.Duration     `json:"response_time"`
}
