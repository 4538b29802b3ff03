package repositories

import (
	"context"
	"sort"

	"github.com/juan49ers-spec/Repaart-sub012/internal/adapters/storage"
	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
)

// invoiceRepository implements InvoiceRepository on the document store
type invoiceRepository struct {
	docs documentRepository[models.Invoice]
}

// NewInvoiceRepository creates an invoice repository over rw
func NewInvoiceRepository(rw storage.Tx) InvoiceRepository {
	return &invoiceRepository{docs: newDocumentRepository[models.Invoice](rw, CollectionInvoices, "invoice")}
}

func (r *invoiceRepository) WithTx(tx storage.Tx) InvoiceRepository {
	return &invoiceRepository{docs: r.docs.withTx(tx)}
}

func (r *invoiceRepository) GetByID(ctx context.Context, id string) (*models.Invoice, error) {
	return r.docs.get(ctx, id)
}

func (r *invoiceRepository) Save(ctx context.Context, invoice *models.Invoice) error {
	if err := invoice.Validate(); err != nil {
		return ValidationError("invoice", invoice.ID, err)
	}
	return r.docs.set(ctx, invoice.ID, invoice)
}

func (r *invoiceRepository) List(ctx context.Context, filter *InvoiceFilter) ([]*models.Invoice, error) {
	if filter == nil {
		filter = &InvoiceFilter{}
	}

	invoices, err := r.docs.query(ctx, invoiceStoreFilters(filter)...)
	if err != nil {
		return nil, err
	}

	result := invoices[:0]
	for _, inv := range invoices {
		if filter.Period != "" && inv.Period() != filter.Period {
			continue
		}
		if filter.CreatedAfter != nil && inv.CreatedAt.Before(*filter.CreatedAfter) {
			continue
		}
		result = append(result, inv)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	return paginate(result, filter.Offset, filter.Limit), nil
}

// invoiceStoreFilters converts the equality part of a filter into store filters
func invoiceStoreFilters(filter *InvoiceFilter) []storage.Filter {
	var filters []storage.Filter
	if filter.FranchiseID != "" {
		filters = append(filters, storage.Where("franchise_id", filter.FranchiseID))
	}
	if filter.CustomerID != "" {
		filters = append(filters, storage.Where("customer_id", filter.CustomerID))
	}
	if filter.Status != "" {
		filters = append(filters, storage.Where("status", string(filter.Status)))
	}
	if filter.Type != "" {
		filters = append(filters, storage.Where("type", string(filter.Type)))
	}
	if filter.PaymentStatus != "" {
		filters = append(filters, storage.Where("payment_status", string(filter.PaymentStatus)))
	}
	return filters
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
