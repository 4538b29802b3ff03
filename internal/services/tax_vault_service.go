package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
	"github.com/juan49ers-spec/Repaart-sub012/internal/repositories"
)

// taxVaultService implements the TaxVault interface
type taxVaultService struct {
	repos     RepositoryProvider
	clock     Clock
	validator *validator.Validate
	logger    *logrus.Logger
}

// NewTaxVaultService creates a new tax vault service
func NewTaxVaultService(repos RepositoryProvider, clock Clock, logger *logrus.Logger) TaxVault {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &taxVaultService{
		repos:     repos,
		clock:     clock,
		validator: newValidator(),
		logger:    logger,
	}
}

// OnInvoiceIssued adds the IVA of an issued invoice or credit note to its month.
// Booking the same invoice twice is a no-op.
func (s *taxVaultService) OnInvoiceIssued(ctx context.Context, invoice *models.Invoice) error {
	const op = "OnInvoiceIssued"
	if invoice == nil || invoice.ID == "" {
		return models.NewValidationError(op, "invoice", "La factura es obligatoria")
	}
	if invoice.IsDraft() {
		return models.NewInvalidStateError(op, "", "Un borrador no se contabiliza en la bóveda fiscal")
	}

	period := invoice.Period()
	err := s.repos.WithTransaction(ctx, func(ctx context.Context, repos repositories.TransactionalRepositories) error {
		entry, err := s.loadEntry(ctx, repos, invoice.FranchiseID, period)
		if err != nil {
			return err
		}
		if entry.IsLocked {
			return lockedError(op, period)
		}
		if entry.HasInvoice(invoice.ID) {
			return nil
		}

		entry.IVARepercutido = models.SumMoney(entry.IVARepercutido, invoice.TaxTotal)
		entry.TotalIncome = models.SumMoney(entry.TotalIncome, invoice.Subtotal)
		entry.TotalTax = models.SubMoney(entry.IVARepercutido, entry.IVASoportado)
		entry.InvoiceIDs = append(entry.InvoiceIDs, invoice.ID)
		entry.UpdatedAt = s.clock.Now()
		return repos.TaxVault().Save(ctx, entry)
	})
	if err != nil {
		return domainError(op, err)
	}

	s.logger.WithFields(logrus.Fields{
		"invoice_id":   invoice.ID,
		"franchise_id": invoice.FranchiseID,
		"period":       period,
		"tax_total":    invoice.TaxTotal,
	}).Debug("Invoice booked into tax vault")
	return nil
}

// RecordExpense stores a supplier expense and adds its IVA to the month
func (s *taxVaultService) RecordExpense(ctx context.Context, req *RecordExpenseRequest) (*models.ExpenseRecord, error) {
	const op = "RecordExpense"
	if req == nil {
		return nil, models.NewValidationError(op, "", "La solicitud de gasto no puede estar vacía")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(op, err)
	}
	if !isFinite(req.Amount) {
		return nil, models.NewValidationError(op, "amount", "El importe del gasto no es un número válido")
	}
	rate, err := models.ParseTaxRate(req.TaxRate)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	date := now
	if req.Date != nil {
		date = req.Date.UTC()
	}

	expense := models.NewExpenseRecord(req.FranchiseID, strings.TrimSpace(req.Concept), req.Amount, rate, date, now)
	expense.Supplier = strings.TrimSpace(req.Supplier)
	expense.CreatedBy = req.CreatedBy

	err = s.repos.WithTransaction(ctx, func(ctx context.Context, repos repositories.TransactionalRepositories) error {
		entry, err := s.loadEntry(ctx, repos, expense.FranchiseID, expense.Period)
		if err != nil {
			return err
		}
		if entry.IsLocked {
			return lockedError(op, expense.Period)
		}

		if err := repos.Expenses().Save(ctx, expense); err != nil {
			return err
		}

		entry.IVASoportado = models.SumMoney(entry.IVASoportado, expense.IVA)
		entry.TotalExpenses = models.SumMoney(entry.TotalExpenses, expense.Amount)
		entry.TotalTax = models.SubMoney(entry.IVARepercutido, entry.IVASoportado)
		entry.ExpenseRecordIDs = append(entry.ExpenseRecordIDs, expense.ID)
		entry.UpdatedAt = now
		return repos.TaxVault().Save(ctx, entry)
	})
	if err != nil {
		return nil, domainError(op, err)
	}
	return expense, nil
}

// ExecuteMonthlyClose recomputes the month from its invoices and expenses and
// locks it. A closed month accepts no further bookings.
func (s *taxVaultService) ExecuteMonthlyClose(ctx context.Context, franchiseID, period, actor string) (*models.MonthlyCloseResult, error) {
	const op = "ExecuteMonthlyClose"
	if strings.TrimSpace(franchiseID) == "" {
		return nil, models.NewValidationError(op, "franchise_id", "El identificador de la franquicia es obligatorio")
	}
	if _, _, err := models.ParsePeriod(period); err != nil {
		return nil, err
	}

	var result *models.MonthlyCloseResult
	err := s.repos.WithTransaction(ctx, func(ctx context.Context, repos repositories.TransactionalRepositories) error {
		entry, err := s.loadEntry(ctx, repos, franchiseID, period)
		if err != nil {
			return err
		}
		if entry.IsLocked {
			return models.NewInvalidStateError(op, models.CodeMonthAlreadyClosed,
				fmt.Sprintf("El mes %s ya está cerrado", period))
		}

		invoices, err := repos.Invoices().List(ctx, &repositories.InvoiceFilter{
			FranchiseID: franchiseID,
			Period:      period,
		})
		if err != nil {
			return err
		}
		expenses, err := repos.Expenses().ListByPeriod(ctx, franchiseID, period)
		if err != nil {
			return err
		}

		summary := recomputeEntry(entry, invoices, expenses)

		now := s.clock.Now()
		entry.IsLocked = true
		entry.LockedAt = &now
		entry.LockedBy = actor
		entry.UpdatedAt = now
		if err := repos.TaxVault().Save(ctx, entry); err != nil {
			return err
		}

		result = &models.MonthlyCloseResult{
			Success:  true,
			Period:   period,
			Entry:    entry,
			Summary:  summary,
			ClosedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, domainError(op, err)
	}

	s.logger.WithFields(logrus.Fields{
		"franchise_id": franchiseID,
		"period":       period,
		"total_tax":    result.Summary.TotalTax,
		"invoices":     result.Summary.TotalInvoices,
	}).Info("Month closed")

	return result, nil
}

// GetTaxVaultEntry returns the entry of a month, or an empty unlocked entry if nothing was booked yet
func (s *taxVaultService) GetTaxVaultEntry(ctx context.Context, franchiseID, period string) (*models.TaxVaultEntry, error) {
	const op = "GetTaxVaultEntry"
	if strings.TrimSpace(franchiseID) == "" {
		return nil, models.NewValidationError(op, "franchise_id", "El identificador de la franquicia es obligatorio")
	}
	if _, _, err := models.ParsePeriod(period); err != nil {
		return nil, err
	}

	entry, err := s.loadEntry(ctx, s.repos, franchiseID, period)
	if err != nil {
		return nil, domainError(op, err)
	}
	return entry, nil
}

// RecalculateMonth rebuilds an open month from its stored invoices and expenses,
// repairing totals that drifted from the incremental bookings.
func (s *taxVaultService) RecalculateMonth(ctx context.Context, franchiseID, period string) (*models.TaxVaultEntry, error) {
	const op = "RecalculateMonth"
	if strings.TrimSpace(franchiseID) == "" {
		return nil, models.NewValidationError(op, "franchise_id", "El identificador de la franquicia es obligatorio")
	}
	if _, _, err := models.ParsePeriod(period); err != nil {
		return nil, err
	}

	var (
		entry   *models.TaxVaultEntry
		summary models.MonthlyCloseSummary
	)
	err := s.repos.WithTransaction(ctx, func(ctx context.Context, repos repositories.TransactionalRepositories) error {
		var err error
		entry, err = s.loadEntry(ctx, repos, franchiseID, period)
		if err != nil {
			return err
		}
		if entry.IsLocked {
			return lockedError(op, period)
		}

		invoices, err := repos.Invoices().List(ctx, &repositories.InvoiceFilter{
			FranchiseID: franchiseID,
			Period:      period,
		})
		if err != nil {
			return err
		}
		expenses, err := repos.Expenses().ListByPeriod(ctx, franchiseID, period)
		if err != nil {
			return err
		}

		summary = recomputeEntry(entry, invoices, expenses)
		entry.UpdatedAt = s.clock.Now()
		return repos.TaxVault().Save(ctx, entry)
	})
	if err != nil {
		return nil, domainError(op, err)
	}

	s.logger.WithFields(logrus.Fields{
		"franchise_id": franchiseID,
		"period":       period,
		"total_tax":    summary.TotalTax,
		"invoices":     summary.TotalInvoices,
	}).Info("Month recalculated")
	return entry, nil
}

// RequestMonthUnlock records a request to reopen a closed month. Reopening
// itself is an administrative action outside this service. Requests on an
// open month are a no-op.
func (s *taxVaultService) RequestMonthUnlock(ctx context.Context, req *MonthUnlockRequest) (*models.TaxVaultEntry, error) {
	const op = "RequestMonthUnlock"
	if req == nil {
		return nil, models.NewValidationError(op, "", "La solicitud de reapertura no puede estar vacía")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(op, err)
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, models.NewValidationError(op, "reason", "El motivo de la reapertura es obligatorio")
	}
	if _, _, err := models.ParsePeriod(req.Period); err != nil {
		return nil, err
	}

	var (
		entry    *models.TaxVaultEntry
		recorded bool
	)
	err := s.repos.WithTransaction(ctx, func(ctx context.Context, repos repositories.TransactionalRepositories) error {
		var err error
		entry, err = repos.TaxVault().Get(ctx, req.FranchiseID, req.Period)
		if err != nil {
			if repositories.IsNotFound(err) {
				return models.NewNotFoundError(op, "Bóveda fiscal", models.TaxVaultID(req.FranchiseID, req.Period))
			}
			return err
		}
		if !entry.IsLocked || entry.PendingUnlockRequest() != nil {
			return nil
		}

		now := s.clock.Now()
		entry.UnlockRequests = append(entry.UnlockRequests, models.MonthUnlockRequest{
			RequestedBy: req.RequestedBy,
			Reason:      strings.TrimSpace(req.Reason),
			Status:      models.UnlockRequestPending,
			RequestedAt: now,
		})
		entry.UpdatedAt = now
		recorded = true
		return repos.TaxVault().Save(ctx, entry)
	})
	if err != nil {
		return nil, domainError(op, err)
	}

	if recorded {
		s.logger.WithFields(logrus.Fields{
			"franchise_id": req.FranchiseID,
			"period":       req.Period,
			"requested_by": req.RequestedBy,
			"reason":       req.Reason,
		}).Warn("Month unlock requested")
	}
	return entry, nil
}

// loadEntry reads the entry of a month, creating an empty one in memory when missing
func (s *taxVaultService) loadEntry(ctx context.Context, repos repositories.TransactionalRepositories, franchiseID, period string) (*models.TaxVaultEntry, error) {
	entry, err := repos.TaxVault().Get(ctx, franchiseID, period)
	if err == nil {
		return entry, nil
	}
	if repositories.IsNotFound(err) {
		return models.NewTaxVaultEntry(franchiseID, period, s.clock.Now()), nil
	}
	return nil, err
}

// recomputeEntry rebuilds the totals of entry from scratch. Drafts are ignored,
// credit notes subtract through their negative amounts.
func recomputeEntry(entry *models.TaxVaultEntry, invoices []*models.Invoice, expenses []*models.ExpenseRecord) models.MonthlyCloseSummary {
	var (
		income, repercutido   []float64
		expenseAmounts, taxes []float64
		invoiceIDs            []string
		expenseIDs            []string
	)
	for _, inv := range invoices {
		if inv.IsDraft() {
			continue
		}
		income = append(income, inv.Subtotal)
		repercutido = append(repercutido, inv.TaxTotal)
		invoiceIDs = append(invoiceIDs, inv.ID)
	}
	for _, exp := range expenses {
		expenseAmounts = append(expenseAmounts, exp.Amount)
		taxes = append(taxes, exp.IVA)
		expenseIDs = append(expenseIDs, exp.ID)
	}

	entry.TotalIncome = models.SumMoney(income...)
	entry.IVARepercutido = models.SumMoney(repercutido...)
	entry.TotalExpenses = models.SumMoney(expenseAmounts...)
	entry.IVASoportado = models.SumMoney(taxes...)
	entry.TotalTax = models.SubMoney(entry.IVARepercutido, entry.IVASoportado)
	entry.InvoiceIDs = invoiceIDs
	entry.ExpenseRecordIDs = expenseIDs

	return models.MonthlyCloseSummary{
		TotalInvoices: len(invoiceIDs),
		TotalIncome:   entry.TotalIncome,
		TotalExpenses: entry.TotalExpenses,
		TotalTax:      entry.TotalTax,
	}
}

func lockedError(op, period string) error {
	return models.NewInvalidStateError(op, models.CodeTaxVaultLocked,
		fmt.Sprintf("La bóveda fiscal del mes %s está cerrada", period))
}
