package repositories

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/juan49ers-spec/Repaart-sub012/internal/adapters/storage"
)

// TransactionalRepositories provides access to all repositories, either
// directly on the store or bound to one transaction
type TransactionalRepositories interface {
	// Invoices returns the invoice repository
	Invoices() InvoiceRepository

	// Counters returns the invoice counter repository
	Counters() CounterRepository

	// Payments returns the payment receipt repository
	Payments() PaymentRepository

	// TaxVault returns the tax vault repository
	TaxVault() TaxVaultRepository

	// Expenses returns the expense repository
	Expenses() ExpenseRepository

	// Profiles returns the franchise and restaurant profile repository
	Profiles() ProfileRepository

	// Metrics returns the franchise metrics repository
	Metrics() MetricsRepository
}

// TxFunc is the body of a repository transaction. It may run more than once.
type TxFunc func(ctx context.Context, repos TransactionalRepositories) error

// repositorySet is a TransactionalRepositories bound to one reader/writer
type repositorySet struct {
	invoices InvoiceRepository
	counters CounterRepository
	payments PaymentRepository
	taxVault TaxVaultRepository
	expenses ExpenseRepository
	profiles ProfileRepository
	metrics  MetricsRepository
}

func newRepositorySet(rw storage.Tx) *repositorySet {
	return &repositorySet{
		invoices: NewInvoiceRepository(rw),
		counters: NewCounterRepository(rw),
		payments: NewPaymentRepository(rw),
		taxVault: NewTaxVaultRepository(rw),
		expenses: NewExpenseRepository(rw),
		profiles: NewProfileRepository(rw),
		metrics:  NewMetricsRepository(rw),
	}
}

func (s *repositorySet) Invoices() InvoiceRepository  { return s.invoices }
func (s *repositorySet) Counters() CounterRepository  { return s.counters }
func (s *repositorySet) Payments() PaymentRepository  { return s.payments }
func (s *repositorySet) TaxVault() TaxVaultRepository { return s.taxVault }
func (s *repositorySet) Expenses() ExpenseRepository  { return s.expenses }
func (s *repositorySet) Profiles() ProfileRepository  { return s.profiles }
func (s *repositorySet) Metrics() MetricsRepository   { return s.metrics }

// RepositoryManager provides access to all repositories and transaction management
type RepositoryManager struct {
	*repositorySet
	store   storage.DocumentStore
	backend string
	retry   *storage.RetryConfig
	logger  *logrus.Logger
}

// NewRepositoryManager creates a manager over an open store
func NewRepositoryManager(store storage.DocumentStore, backend string, retry *storage.RetryConfig, logger *logrus.Logger) *RepositoryManager {
	if retry == nil {
		retry = storage.DefaultRetryConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &RepositoryManager{
		repositorySet: newRepositorySet(store),
		store:         store,
		backend:       backend,
		retry:         retry,
		logger:        logger,
	}
}

// Store returns the underlying document store
func (m *RepositoryManager) Store() storage.DocumentStore {
	return m.store
}

// Backend returns the name of the configured backend
func (m *RepositoryManager) Backend() string {
	return m.backend
}

// WithTransaction runs fn atomically. Optimistic conflicts re-run fn against
// fresh data with exponential backoff; once the attempts are exhausted the
// conflict is returned. Errors returned by fn end the loop unchanged.
func (m *RepositoryManager) WithTransaction(ctx context.Context, fn TxFunc) error {
	attempt := 0
	err := storage.WithRetry(ctx, m.retry, func(ctx context.Context) error {
		attempt++
		err := m.store.RunTransaction(ctx, func(ctx context.Context, tx storage.Tx) error {
			return fn(ctx, newRepositorySet(tx))
		})
		if err != nil && storage.IsRetryable(err) {
			m.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"error":   err.Error(),
			}).Warn("Transaction conflict, retrying")
		}
		return err
	})
	if err != nil && storage.IsConflict(err) {
		m.logger.WithField("attempts", attempt).Error("Transaction retries exhausted")
		return TransactionError("commit", err)
	}
	return err
}

// Health checks that the store answers a read
func (m *RepositoryManager) Health(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{
		Backend: m.backend,
		Details: map[string]string{},
	}

	_, err := m.store.Get(ctx, "_health", "ping")
	status.CheckedAt = time.Now()
	status.ResponseTime = time.Since(start)
	status.Details["response_time"] = status.ResponseTime.String()

	if err != nil && !storage.IsNotFound(err) {
		status.Message = err.Error()
		return status
	}

	status.Healthy = true
	status.Message = "store is healthy"
	return status
}

// Close closes the underlying store
func (m *RepositoryManager) Close() error {
	return m.store.Close()
}
