package repositories

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/juan49ers-spec/Repaart-sub012/internal/adapters/storage"
	"github.com/juan49ers-spec/Repaart-sub012/internal/database"
	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func fastRetry(attempts int) *storage.RetryConfig {
	return &storage.RetryConfig{
		MaxAttempts:   attempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
		JitterEnabled: true,
	}
}

func newTestManager(t *testing.T) (*RepositoryManager, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	manager := NewRepositoryManager(store, database.BackendMemory, fastRetry(50), testLogger())
	t.Cleanup(func() { manager.Close() })
	return manager, store
}

func draftInvoice(franchiseID, customerID string, createdAt time.Time) *models.Invoice {
	customer := models.CustomerSnapshot{ID: customerID, Type: models.CustomerTypeRestaurant, Name: "Bar " + customerID}
	lines := []models.InvoiceLine{models.CalculateLine("Servicio", 1, 100, models.TaxRateGeneral)}
	return models.NewDraftInvoice(franchiseID, customer, lines, createdAt)
}

func TestInvoiceRepository_SaveAndGet(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	inv := draftInvoice("f1", "c1", time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	if err := manager.Invoices().Save(ctx, inv); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := manager.Invoices().GetByID(ctx, inv.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if got.Total != 121 || got.Status != models.InvoiceStatusDraft {
		t.Errorf("unexpected invoice: total=%v status=%s", got.Total, got.Status)
	}
	if got.Customer.Name != "Bar c1" {
		t.Errorf("Customer.Name = %q, want %q", got.Customer.Name, "Bar c1")
	}

	_, err = manager.Invoices().GetByID(ctx, "missing")
	if !IsNotFound(err) {
		t.Errorf("GetByID(missing) error = %v, want not found", err)
	}

	_, err = manager.Invoices().GetByID(ctx, "")
	if !IsValidation(err) {
		t.Errorf("GetByID(\"\") error = %v, want validation", err)
	}
}

func TestInvoiceRepository_SaveRejectsInvalid(t *testing.T) {
	manager, _ := newTestManager(t)

	inv := draftInvoice("f1", "c1", time.Now())
	inv.Number = 3 // drafts carry no number

	err := manager.Invoices().Save(context.Background(), inv)
	if !IsValidation(err) {
		t.Errorf("Save() error = %v, want validation", err)
	}
}

func TestInvoiceRepository_List(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	march := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	april := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	invoices := []*models.Invoice{
		draftInvoice("f1", "c1", march.Add(1*time.Hour)),
		draftInvoice("f1", "c2", march.Add(2*time.Hour)),
		draftInvoice("f1", "c1", april.Add(1*time.Hour)),
		draftInvoice("f2", "c1", march.Add(3*time.Hour)),
	}
	issuedAt := march.Add(4 * time.Hour)
	invoices[1].Status = models.InvoiceStatusIssued
	invoices[1].Series = "2026"
	invoices[1].Number = 1
	invoices[1].FullNumber = "2026/0001"
	invoices[1].IssueDate = &issuedAt

	for _, inv := range invoices {
		if err := manager.Invoices().Save(ctx, inv); err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
	}

	tests := []struct {
		name    string
		filter  *InvoiceFilter
		wantIDs []string
	}{
		{"nil filter returns all newest first", nil, []string{invoices[2].ID, invoices[3].ID, invoices[1].ID, invoices[0].ID}},
		{"by franchise", &InvoiceFilter{FranchiseID: "f1"}, []string{invoices[2].ID, invoices[1].ID, invoices[0].ID}},
		{"by customer", &InvoiceFilter{FranchiseID: "f1", CustomerID: "c1"}, []string{invoices[2].ID, invoices[0].ID}},
		{"by status", &InvoiceFilter{Status: models.InvoiceStatusIssued}, []string{invoices[1].ID}},
		{"by period", &InvoiceFilter{FranchiseID: "f1", Period: "2026-03"}, []string{invoices[1].ID, invoices[0].ID}},
		{"limit", &InvoiceFilter{FranchiseID: "f1", Limit: 1}, []string{invoices[2].ID}},
		{"offset", &InvoiceFilter{FranchiseID: "f1", Offset: 2}, []string{invoices[0].ID}},
		{"offset past end", &InvoiceFilter{FranchiseID: "f1", Offset: 5}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := manager.Invoices().List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() failed: %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("List() returned %d invoices, want %d", len(got), len(tt.wantIDs))
			}
			for i, inv := range got {
				if inv.ID != tt.wantIDs[i] {
					t.Errorf("List()[%d] = %s, want %s", i, inv.ID, tt.wantIDs[i])
				}
			}
		})
	}
}

func TestCounterRepository_NextIsConsecutiveUnderConcurrency(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	const workers = 8
	numbers := make(chan int, workers)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var number int
			err := manager.WithTransaction(ctx, func(ctx context.Context, repos TransactionalRepositories) error {
				n, err := repos.Counters().Next(ctx, "f1", "2026", time.Now())
				number = n
				return err
			})
			if err != nil {
				t.Errorf("WithTransaction() failed: %v", err)
				return
			}
			numbers <- number
		}()
	}
	wg.Wait()
	close(numbers)

	seen := make(map[int]bool)
	for n := range numbers {
		if seen[n] {
			t.Errorf("number %d handed out twice", n)
		}
		seen[n] = true
	}
	for n := 1; n <= workers; n++ {
		if !seen[n] {
			t.Errorf("number %d was never handed out", n)
		}
	}

	counter, err := manager.Counters().Get(ctx, "f1", "2026")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if counter.LastNumber != workers {
		t.Errorf("LastNumber = %d, want %d", counter.LastNumber, workers)
	}
}

func TestCounterRepository_GetMissingReturnsZero(t *testing.T) {
	manager, _ := newTestManager(t)

	counter, err := manager.Counters().Get(context.Background(), "f9", "R-2026")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if counter.LastNumber != 0 || counter.Series != "R-2026" {
		t.Errorf("unexpected counter: %+v", counter)
	}
}

func TestRepositoryManager_WithTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("body error rolls back and passes through", func(t *testing.T) {
		manager, store := newTestManager(t)
		bodyErr := errors.New("rejected")

		err := manager.WithTransaction(ctx, func(ctx context.Context, repos TransactionalRepositories) error {
			if err := repos.Invoices().Save(ctx, draftInvoice("f1", "c1", time.Now())); err != nil {
				return err
			}
			return bodyErr
		})
		if !errors.Is(err, bodyErr) {
			t.Errorf("WithTransaction() error = %v, want %v", err, bodyErr)
		}
		if n := store.Count(CollectionInvoices); n != 0 {
			t.Errorf("Count() = %d, want 0 after rollback", n)
		}
	})

	t.Run("conflicts are retried", func(t *testing.T) {
		manager, store := newTestManager(t)
		store.FailNextCommits(2, storage.ErrConflict)

		calls := 0
		err := manager.WithTransaction(ctx, func(ctx context.Context, repos TransactionalRepositories) error {
			calls++
			_, err := repos.Counters().Next(ctx, "f1", "2026", time.Now())
			return err
		})
		if err != nil {
			t.Fatalf("WithTransaction() failed: %v", err)
		}
		if calls != 3 {
			t.Errorf("body ran %d times, want 3", calls)
		}
	})

	t.Run("exhausted retries surface a concurrency error", func(t *testing.T) {
		store := storage.NewMemoryStore()
		manager := NewRepositoryManager(store, database.BackendMemory, fastRetry(2), testLogger())
		store.FailNextCommits(5, storage.ErrConflict)

		err := manager.WithTransaction(ctx, func(ctx context.Context, repos TransactionalRepositories) error {
			_, err := repos.Counters().Next(ctx, "f1", "2026", time.Now())
			return err
		})
		if !IsConcurrency(err) {
			t.Errorf("WithTransaction() error = %v, want concurrency conflict", err)
		}
		if !IsTransaction(err) {
			t.Errorf("WithTransaction() error = %v, want transaction error", err)
		}
	})
}

func TestPaymentRepository_ListByInvoice(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	inv := draftInvoice("f1", "c1", time.Now())
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, day := range []int{3, 1, 2} {
		receipt := models.NewPaymentReceipt(inv, float64(10*(i+1)), models.PaymentMethodTransfer, base.AddDate(0, 0, day), base)
		if err := manager.Payments().Save(ctx, receipt); err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
	}
	other := models.NewPaymentReceipt(draftInvoice("f1", "c2", time.Now()), 5, models.PaymentMethodCash, base, base)
	if err := manager.Payments().Save(ctx, other); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	receipts, err := manager.Payments().ListByInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("ListByInvoice() failed: %v", err)
	}
	if len(receipts) != 3 {
		t.Fatalf("ListByInvoice() returned %d receipts, want 3", len(receipts))
	}
	wantAmounts := []float64{20, 30, 10}
	for i, r := range receipts {
		if r.Amount != wantAmounts[i] {
			t.Errorf("receipt %d amount = %v, want %v", i, r.Amount, wantAmounts[i])
		}
	}
}

func TestTaxVaultAndExpenseRepositories(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)

	entry := models.NewTaxVaultEntry("f1", "2026-02", now)
	entry.IVARepercutido = 52.5
	if err := manager.TaxVault().Save(ctx, entry); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	got, err := manager.TaxVault().Get(ctx, "f1", "2026-02")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.IVARepercutido != 52.5 || got.ID != "f1_2026-02" {
		t.Errorf("unexpected entry: %+v", got)
	}
	if _, err := manager.TaxVault().Get(ctx, "f1", "2026-03"); !IsNotFound(err) {
		t.Errorf("Get(other month) error = %v, want not found", err)
	}

	for i := 0; i < 3; i++ {
		date := now.AddDate(0, 0, -i)
		expense := models.NewExpenseRecord("f1", fmt.Sprintf("gasto %d", i), 100, models.TaxRateGeneral, date, now)
		if err := manager.Expenses().Save(ctx, expense); err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
	}
	march := models.NewExpenseRecord("f1", "otro mes", 50, models.TaxRateReduced, now.AddDate(0, 1, 0), now)
	if err := manager.Expenses().Save(ctx, march); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	expenses, err := manager.Expenses().ListByPeriod(ctx, "f1", "2026-02")
	if err != nil {
		t.Fatalf("ListByPeriod() failed: %v", err)
	}
	if len(expenses) != 3 {
		t.Fatalf("ListByPeriod() returned %d expenses, want 3", len(expenses))
	}
	if expenses[0].Concept != "gasto 2" {
		t.Errorf("first expense = %q, want the oldest", expenses[0].Concept)
	}
	if expenses[0].IVA != 21 {
		t.Errorf("IVA = %v, want 21", expenses[0].IVA)
	}
}

func TestProfileRepository(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	franchise := &models.FranchiseProfile{ID: "f1", Name: "Repaart Madrid", FiscalName: "Repaart Madrid SL", TaxID: "B12345678", Phone: "600000000"}
	restaurant := &models.FranchiseProfile{ID: "r1", Name: "Pizzería Sol"}

	if err := manager.Profiles().Save(ctx, models.CustomerTypeFranchise, franchise); err != nil {
		t.Fatalf("Save(franchise) failed: %v", err)
	}
	if err := manager.Profiles().Save(ctx, models.CustomerTypeRestaurant, restaurant); err != nil {
		t.Fatalf("Save(restaurant) failed: %v", err)
	}

	got, err := manager.Profiles().GetFranchise(ctx, "f1")
	if err != nil {
		t.Fatalf("GetFranchise() failed: %v", err)
	}
	if got.IssuerSnapshot().MissingField() != "" {
		t.Errorf("issuer snapshot should be complete: %+v", got.IssuerSnapshot())
	}

	if _, err := manager.Profiles().GetCustomer(ctx, models.CustomerTypeRestaurant, "r1"); err != nil {
		t.Errorf("GetCustomer(restaurant) failed: %v", err)
	}
	if _, err := manager.Profiles().GetCustomer(ctx, models.CustomerTypeFranchise, "r1"); !IsNotFound(err) {
		t.Errorf("GetCustomer(wrong collection) error = %v, want not found", err)
	}
	if _, err := manager.Profiles().GetCustomer(ctx, "SUPPLIER", "r1"); !IsValidation(err) {
		t.Errorf("GetCustomer(unknown type) error = %v, want validation", err)
	}
}

func TestMetricsRepository(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	metrics := &models.FranchiseMetrics{FranchiseID: "f1", Period: "2026-01", Hours: 120, Orders: 480}
	if err := manager.Metrics().Save(ctx, metrics); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	got, err := manager.Metrics().Get(ctx, "f1", "2026-01")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Orders != 480 {
		t.Errorf("Orders = %v, want 480", got.Orders)
	}
}

func TestWrapStorageError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      error
		retryable bool
	}{
		{"not found", storage.NewStorageError("Get", "invoices/x", storage.ErrDocumentNotFound, false), ErrNotFound, false},
		{"conflict", storage.NewConflictError("Commit", "invoices/x"), ErrConcurrency, true},
		{"timeout", storage.NewStorageError("Get", "invoices/x", storage.ErrTimeout, true), ErrTimeout, true},
		{"unavailable", storage.NewStorageError("Get", "invoices/x", storage.ErrStorageUnavailable, true), ErrConnection, true},
		{"invalid data", storage.NewStorageError("Set", "invoices/x", storage.ErrInvalidData, false), ErrValidation, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wrapStorageError("get", "invoice", "x", tt.err)
			if !errors.Is(err, tt.kind) {
				t.Errorf("wrapStorageError() = %v, want kind %v", err, tt.kind)
			}
			if storage.IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", storage.IsRetryable(err), tt.retryable)
			}
		})
	}

	t.Run("non storage errors pass through", func(t *testing.T) {
		original := models.NewValidationError("AddPayment", "amount", "Importe inválido")
		if got := wrapStorageError("save", "invoice", "x", original); got != error(original) {
			t.Errorf("wrapStorageError() = %v, want the original error", got)
		}
	})
}

func TestRepositoryFactory_OpenStore(t *testing.T) {
	factory := NewRepositoryFactory(fastRetry(3), testLogger())
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		config := database.DefaultConfig()
		config.Backend = database.BackendMemory
		manager, err := factory.CreateRepositoryManager(ctx, config)
		if err != nil {
			t.Fatalf("CreateRepositoryManager() failed: %v", err)
		}
		defer manager.Close()

		if manager.Backend() != database.BackendMemory {
			t.Errorf("Backend() = %s, want memory", manager.Backend())
		}
		if status := manager.Health(ctx); !status.Healthy {
			t.Errorf("Health() = %+v, want healthy", status)
		}
	})

	t.Run("local", func(t *testing.T) {
		config := database.DefaultConfig()
		config.Backend = database.BackendLocal
		config.LocalPath = t.TempDir()
		store, err := factory.OpenStore(ctx, config)
		if err != nil {
			t.Fatalf("OpenStore() failed: %v", err)
		}
		defer store.Close()

		if err := store.Set(ctx, CollectionFranchises, "f1", map[string]string{"id": "f1"}); err != nil {
			t.Errorf("Set() failed: %v", err)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		config := database.DefaultConfig()
		config.Database.Path = filepath.Join(t.TempDir(), "repaart.db")
		config.Migration.Path = filepath.Join("..", "..", "migrations", "sqlite")
		config.Migration.BackupBeforeMigration = false

		manager, err := factory.CreateRepositoryManager(ctx, config)
		if err != nil {
			t.Fatalf("CreateRepositoryManager() failed: %v", err)
		}
		defer manager.Close()

		inv := draftInvoice("f1", "c1", time.Now().UTC())
		if err := manager.Invoices().Save(ctx, inv); err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
		list, err := manager.Invoices().List(ctx, &InvoiceFilter{FranchiseID: "f1", Status: models.InvoiceStatusDraft})
		if err != nil {
			t.Fatalf("List() failed: %v", err)
		}
		if len(list) != 1 {
			t.Errorf("List() returned %d invoices, want 1", len(list))
		}
	})

	t.Run("invalid configuration", func(t *testing.T) {
		config := database.DefaultConfig()
		config.Backend = "cassandra"
		if _, err := factory.OpenStore(ctx, config); err == nil {
			t.Error("OpenStore() should reject an unknown backend")
		}
	})
}
