package repositories

import (
	"context"
	"sort"

	"github.com/juan49ers-spec/Repaart-sub012/internal/adapters/storage"
	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
)

// paymentRepository implements PaymentRepository on the document store
type paymentRepository struct {
	docs documentRepository[models.PaymentReceipt]
}

// NewPaymentRepository creates a payment receipt repository over rw
func NewPaymentRepository(rw storage.Tx) PaymentRepository {
	return &paymentRepository{docs: newDocumentRepository[models.PaymentReceipt](rw, CollectionPaymentReceipts, "payment receipt")}
}

func (r *paymentRepository) WithTx(tx storage.Tx) PaymentRepository {
	return &paymentRepository{docs: r.docs.withTx(tx)}
}

func (r *paymentRepository) GetByID(ctx context.Context, id string) (*models.PaymentReceipt, error) {
	return r.docs.get(ctx, id)
}

func (r *paymentRepository) Save(ctx context.Context, receipt *models.PaymentReceipt) error {
	if receipt.InvoiceID == "" {
		return ValidationError("payment receipt", receipt.ID, ErrInvalidID)
	}
	return r.docs.set(ctx, receipt.ID, receipt)
}

func (r *paymentRepository) ListByInvoice(ctx context.Context, invoiceID string) ([]*models.PaymentReceipt, error) {
	receipts, err := r.docs.query(ctx, storage.Where("invoice_id", invoiceID))
	if err != nil {
		return nil, err
	}

	sort.SliceStable(receipts, func(i, j int) bool {
		if !receipts[i].PaymentDate.Equal(receipts[j].PaymentDate) {
			return receipts[i].PaymentDate.Before(receipts[j].PaymentDate)
		}
		return receipts[i].CreatedAt.Before(receipts[j].CreatedAt)
	})
	return receipts, nil
}
