package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
	"github.com/juan49ers-spec/Repaart-sub012/internal/repositories"
)

// accountsReceivableService implements the AccountsReceivable interface
type accountsReceivableService struct {
	repos     RepositoryProvider
	clock     Clock
	validator *validator.Validate
	logger    *logrus.Logger
}

// NewAccountsReceivableService creates a new accounts receivable service
func NewAccountsReceivableService(repos RepositoryProvider, clock Clock, logger *logrus.Logger) AccountsReceivable {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &accountsReceivableService{
		repos:     repos,
		clock:     clock,
		validator: newValidator(),
		logger:    logger,
	}
}

// AddPayment records a payment receipt and updates the invoice balance in one transaction
func (s *accountsReceivableService) AddPayment(ctx context.Context, req *AddPaymentRequest) (*PaymentResult, error) {
	const op = "AddPayment"
	if req == nil {
		return nil, models.NewValidationError(op, "", "La solicitud de pago no puede estar vacía")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(op, err)
	}

	amount := models.Round2(req.Amount)
	if !isFinite(req.Amount) || amount <= 0 {
		return nil, models.NewValidationError(op, "amount", "El importe del pago debe ser mayor que 0")
	}
	if !req.Method.IsValid() {
		return nil, models.NewValidationError(op, "method",
			fmt.Sprintf("Método de pago no válido: %s", req.Method))
	}

	now := s.clock.Now()
	paymentDate := now
	if req.PaymentDate != nil {
		paymentDate = req.PaymentDate.UTC()
	}

	var result *PaymentResult
	err := s.repos.WithTransaction(ctx, func(ctx context.Context, repos repositories.TransactionalRepositories) error {
		invoice, err := repos.Invoices().GetByID(ctx, req.InvoiceID)
		if err != nil {
			return notFoundOr(op, "Factura", req.InvoiceID, err)
		}
		if invoice.IsDraft() {
			return models.NewInvalidStateError(op, "", "No se pueden registrar pagos sobre una factura en borrador")
		}
		if !invoice.AcceptsPayments() {
			return models.NewInvalidStateError(op, "",
				fmt.Sprintf("La factura no admite pagos (estado actual: %s)", invoice.Status))
		}
		if models.SubMoney(amount, invoice.RemainingAmount) > 0 {
			return models.NewValidationErrorWithCode(op, models.CodePaymentExceedsTotal, "amount",
				fmt.Sprintf("El pago de %.2f € supera el importe pendiente de %.2f €", amount, invoice.RemainingAmount))
		}

		receipt := models.NewPaymentReceipt(invoice, amount, req.Method, paymentDate, now)
		receipt.Reference = strings.TrimSpace(req.Reference)
		receipt.Notes = strings.TrimSpace(req.Notes)
		receipt.CreatedBy = req.CreatedBy
		if err := repos.Payments().Save(ctx, receipt); err != nil {
			return err
		}

		invoice.TotalPaid = models.SumMoney(invoice.TotalPaid, amount)
		invoice.RecalculatePaymentStatus()
		invoice.PaymentReceiptIDs = append(invoice.PaymentReceiptIDs, receipt.ID)
		invoice.UpdatedAt = now
		if err := repos.Invoices().Save(ctx, invoice); err != nil {
			return err
		}

		result = &PaymentResult{
			Receipt:         receipt,
			Invoice:         invoice,
			TotalPaid:       invoice.TotalPaid,
			RemainingAmount: invoice.RemainingAmount,
			PaymentStatus:   invoice.PaymentStatus,
		}
		return nil
	})
	if err != nil {
		return nil, domainError(op, err)
	}

	s.logger.WithFields(logrus.Fields{
		"invoice_id":     req.InvoiceID,
		"receipt_id":     result.Receipt.ID,
		"amount":         amount,
		"payment_status": result.PaymentStatus,
	}).Info("Payment recorded")

	return result, nil
}

// ListPayments lists the receipts of an invoice in payment order
func (s *accountsReceivableService) ListPayments(ctx context.Context, invoiceID string) ([]*models.PaymentReceipt, error) {
	const op = "ListPayments"
	if invoiceID == "" {
		return nil, models.NewValidationError(op, "invoice_id", "El identificador de la factura es obligatorio")
	}
	receipts, err := s.repos.Payments().ListByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, domainError(op, err)
	}
	return receipts, nil
}

// GetPaymentReceipt retrieves a receipt by ID
func (s *accountsReceivableService) GetPaymentReceipt(ctx context.Context, id string) (*models.PaymentReceipt, error) {
	const op = "GetPaymentReceipt"
	if id == "" {
		return nil, models.NewValidationError(op, "id", "El identificador del recibo es obligatorio")
	}
	receipt, err := s.repos.Payments().GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(op, "Recibo", id, err)
	}
	return receipt, nil
}

// GenerateDebtDashboard builds the aging report of every issued invoice with
// an outstanding balance. An empty franchiseID covers all franchises.
func (s *accountsReceivableService) GenerateDebtDashboard(ctx context.Context, franchiseID string) (*models.DebtDashboard, error) {
	const op = "GenerateDebtDashboard"
	invoices, err := s.outstandingInvoices(ctx, franchiseID, "")
	if err != nil {
		return nil, domainError(op, err)
	}
	return BuildDebtDashboard(franchiseID, invoices, s.clock.Now()), nil
}

// GetCustomerDebt returns the outstanding debt of one customer
func (s *accountsReceivableService) GetCustomerDebt(ctx context.Context, franchiseID, customerID string) (*models.CustomerDebt, error) {
	const op = "GetCustomerDebt"
	if franchiseID == "" {
		return nil, models.NewValidationError(op, "franchise_id", "El identificador de la franquicia es obligatorio")
	}
	if customerID == "" {
		return nil, models.NewValidationError(op, "customer_id", "El identificador del cliente es obligatorio")
	}

	invoices, err := s.outstandingInvoices(ctx, franchiseID, customerID)
	if err != nil {
		return nil, domainError(op, err)
	}

	dashboard := BuildDebtDashboard(franchiseID, invoices, s.clock.Now())
	if len(dashboard.Customers) == 0 {
		return &models.CustomerDebt{
			FranchiseID: franchiseID,
			CustomerID:  customerID,
			Invoices:    []models.OutstandingInvoice{},
		}, nil
	}
	return &dashboard.Customers[0], nil
}

func (s *accountsReceivableService) outstandingInvoices(ctx context.Context, franchiseID, customerID string) ([]*models.Invoice, error) {
	return s.repos.Invoices().List(ctx, &repositories.InvoiceFilter{
		FranchiseID: franchiseID,
		CustomerID:  customerID,
		Status:      models.InvoiceStatusIssued,
		Type:        models.InvoiceTypeStandard,
	})
}

// BuildDebtDashboard aggregates invoices into the aging report as of now.
// Only ISSUED standard invoices with a remaining balance are counted. The
// output order is deterministic: customers by name then ID, invoices by due
// date then number.
func BuildDebtDashboard(franchiseID string, invoices []*models.Invoice, now time.Time) *models.DebtDashboard {
	dashboard := &models.DebtDashboard{
		FranchiseID: franchiseID,
		GeneratedAt: now,
		Customers:   []models.CustomerDebt{},
	}

	byCustomer := make(map[string]*models.CustomerDebt)
	for _, inv := range invoices {
		if inv.Status != models.InvoiceStatusIssued || inv.Type != models.InvoiceTypeStandard {
			continue
		}
		if inv.RemainingAmount <= 0 {
			continue
		}

		due := dueDateOf(inv)
		days := models.DaysOverdue(due, now)
		bucket := models.BucketForDays(days)

		key := inv.FranchiseID + "/" + inv.CustomerID
		debt, ok := byCustomer[key]
		if !ok {
			debt = &models.CustomerDebt{
				FranchiseID:   inv.FranchiseID,
				CustomerID:    inv.CustomerID,
				CustomerName:  inv.Customer.Name,
				CustomerTaxID: inv.Customer.TaxID,
			}
			byCustomer[key] = debt
		}

		debt.Invoices = append(debt.Invoices, models.OutstandingInvoice{
			InvoiceID:       inv.ID,
			FullNumber:      inv.FullNumber,
			Total:           inv.Total,
			TotalPaid:       inv.TotalPaid,
			RemainingAmount: inv.RemainingAmount,
			PaymentStatus:   inv.PaymentStatus,
			IssueDate:       inv.IssueDate,
			DueDate:         due,
			DaysOverdue:     days,
			Bucket:          bucket,
		})
		debt.InvoiceCount++
		debt.TotalOutstanding = models.SumMoney(debt.TotalOutstanding, inv.RemainingAmount)
		if days > 0 {
			debt.TotalOverdue = models.SumMoney(debt.TotalOverdue, inv.RemainingAmount)
		}
		debt.Aging.Add(bucket, inv.RemainingAmount)
		if debt.OldestDueDate == nil || due.Before(*debt.OldestDueDate) {
			oldest := due
			debt.OldestDueDate = &oldest
		}

		dashboard.InvoiceCount++
		dashboard.TotalOutstanding = models.SumMoney(dashboard.TotalOutstanding, inv.RemainingAmount)
		if days > 0 {
			dashboard.TotalOverdue = models.SumMoney(dashboard.TotalOverdue, inv.RemainingAmount)
		}
		dashboard.Aging.Add(bucket, inv.RemainingAmount)
	}

	for _, debt := range byCustomer {
		sort.SliceStable(debt.Invoices, func(i, j int) bool {
			a, b := debt.Invoices[i], debt.Invoices[j]
			if !a.DueDate.Equal(b.DueDate) {
				return a.DueDate.Before(b.DueDate)
			}
			return a.FullNumber < b.FullNumber
		})
		dashboard.Customers = append(dashboard.Customers, *debt)
	}
	sort.SliceStable(dashboard.Customers, func(i, j int) bool {
		a, b := dashboard.Customers[i], dashboard.Customers[j]
		if a.CustomerName != b.CustomerName {
			return a.CustomerName < b.CustomerName
		}
		if a.CustomerID != b.CustomerID {
			return a.CustomerID < b.CustomerID
		}
		return a.FranchiseID < b.FranchiseID
	})

	dashboard.CustomerCount = len(dashboard.Customers)
	dashboard.TotalCurrent = dashboard.Aging.Current
	return dashboard
}

// dueDateOf returns the due date, falling back to issue date plus term for legacy documents
func dueDateOf(inv *models.Invoice) time.Time {
	if inv.DueDate != nil {
		return *inv.DueDate
	}
	base := inv.CreatedAt
	if inv.IssueDate != nil {
		base = *inv.IssueDate
	}
	return base.AddDate(0, 0, inv.PaymentTermDays)
}
