package repositories

import (
	"context"
	"time"

	"github.com/juan49ers-spec/Repaart-sub012/internal/adapters/storage"
	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
)

// counterRepository implements CounterRepository on the document store
type counterRepository struct {
	docs documentRepository[models.InvoiceCounter]
}

// NewCounterRepository creates a counter repository over rw
func NewCounterRepository(rw storage.Tx) CounterRepository {
	return &counterRepository{docs: newDocumentRepository[models.InvoiceCounter](rw, CollectionInvoiceCounters, "invoice counter")}
}

func (r *counterRepository) WithTx(tx storage.Tx) CounterRepository {
	return &counterRepository{docs: r.docs.withTx(tx)}
}

func (r *counterRepository) Get(ctx context.Context, franchiseID, series string) (*models.InvoiceCounter, error) {
	counter, err := r.docs.get(ctx, models.CounterID(franchiseID, series))
	if IsNotFound(err) {
		return &models.InvoiceCounter{FranchiseID: franchiseID, Series: series}, nil
	}
	return counter, err
}

// Next reads the counter and writes it back incremented. Inside a transaction
// the read is version-checked, so two issuers never get the same number.
func (r *counterRepository) Next(ctx context.Context, franchiseID, series string, now time.Time) (int, error) {
	counter, err := r.Get(ctx, franchiseID, series)
	if err != nil {
		return 0, err
	}

	next := &models.InvoiceCounter{
		FranchiseID: franchiseID,
		Series:      series,
		LastNumber:  counter.LastNumber + 1,
		UpdatedAt:   now,
	}
	if err := r.docs.set(ctx, models.CounterID(franchiseID, series), next, storage.Merge()); err != nil {
		return 0, err
	}
	return next.LastNumber, nil
}
