package repositories

import (
	"context"
	"sort"

	"github.com/juan49ers-spec/Repaart-sub012/internal/adapters/storage"
	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
)

// taxVaultRepository implements TaxVaultRepository on the document store
type taxVaultRepository struct {
	docs documentRepository[models.TaxVaultEntry]
}

// NewTaxVaultRepository creates a tax vault repository over rw
func NewTaxVaultRepository(rw storage.Tx) TaxVaultRepository {
	return &taxVaultRepository{docs: newDocumentRepository[models.TaxVaultEntry](rw, CollectionTaxVault, "tax vault entry")}
}

func (r *taxVaultRepository) WithTx(tx storage.Tx) TaxVaultRepository {
	return &taxVaultRepository{docs: r.docs.withTx(tx)}
}

func (r *taxVaultRepository) Get(ctx context.Context, franchiseID, period string) (*models.TaxVaultEntry, error) {
	return r.docs.get(ctx, models.TaxVaultID(franchiseID, period))
}

func (r *taxVaultRepository) Save(ctx context.Context, entry *models.TaxVaultEntry) error {
	entry.ID = models.TaxVaultID(entry.FranchiseID, entry.Period)
	return r.docs.set(ctx, entry.ID, entry)
}

// expenseRepository implements ExpenseRepository on the document store
type expenseRepository struct {
	docs documentRepository[models.ExpenseRecord]
}

// NewExpenseRepository creates an expense repository over rw
func NewExpenseRepository(rw storage.Tx) ExpenseRepository {
	return &expenseRepository{docs: newDocumentRepository[models.ExpenseRecord](rw, CollectionFinancialRecords, "expense")}
}

func (r *expenseRepository) WithTx(tx storage.Tx) ExpenseRepository {
	return &expenseRepository{docs: r.docs.withTx(tx)}
}

func (r *expenseRepository) GetByID(ctx context.Context, id string) (*models.ExpenseRecord, error) {
	return r.docs.get(ctx, id)
}

func (r *expenseRepository) Save(ctx context.Context, expense *models.ExpenseRecord) error {
	return r.docs.set(ctx, expense.ID, expense)
}

func (r *expenseRepository) ListByPeriod(ctx context.Context, franchiseID, period string) ([]*models.ExpenseRecord, error) {
	expenses, err := r.docs.query(ctx,
		storage.Where("franchise_id", franchiseID),
		storage.Where("period", period),
	)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(expenses, func(i, j int) bool {
		return expenses[i].Date.Before(expenses[j].Date)
	})
	return expenses, nil
}
