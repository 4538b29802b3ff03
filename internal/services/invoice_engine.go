package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
	"github.com/juan49ers-spec/Repaart-sub012/internal/repositories"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// InvoiceEngineConfig tunes the invoice engine
type InvoiceEngineConfig struct {
	// PaymentTermDays is the due date offset applied when a draft does not carry one
	PaymentTermDays int

	// DuplicateCheck rejects a second STANDARD invoice for the same customer in one month
	DuplicateCheck bool
}

// DefaultInvoiceEngineConfig returns the production defaults
func DefaultInvoiceEngineConfig() InvoiceEngineConfig {
	return InvoiceEngineConfig{
		PaymentTermDays: models.DefaultPaymentTermDays,
		DuplicateCheck:  true,
	}
}

// invoiceEngine implements the InvoiceEngine interface
type invoiceEngine struct {
	repos     RepositoryProvider
	taxVault  TaxVault
	clock     Clock
	config    InvoiceEngineConfig
	validator *validator.Validate
	logger    *logrus.Logger
}

// NewInvoiceEngine creates a new invoice engine. taxVault may be nil, in which
// case issued invoices are not booked into the monthly vault.
func NewInvoiceEngine(repos RepositoryProvider, taxVault TaxVault, clock Clock, config InvoiceEngineConfig, logger *logrus.Logger) InvoiceEngine {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	if config.PaymentTermDays < 0 {
		config.PaymentTermDays = models.DefaultPaymentTermDays
	}
	return &invoiceEngine{
		repos:     repos,
		taxVault:  taxVault,
		clock:     clock,
		config:    config,
		validator: newValidator(),
		logger:    logger,
	}
}

// CreateDraft validates the request, snapshots the customer and stores a new draft
func (e *invoiceEngine) CreateDraft(ctx context.Context, req *CreateDraftRequest) (*models.Invoice, error) {
	const op = "CreateDraft"
	if req == nil {
		return nil, models.NewValidationError(op, "", "La solicitud de factura no puede estar vacía")
	}
	if err := e.validator.Struct(req); err != nil {
		return nil, validationError(op, err)
	}

	lines, err := buildLines(op, req.Items)
	if err != nil {
		return nil, err
	}

	customer, err := e.resolveCustomer(ctx, op, req.CustomerID, req.CustomerType, req.Customer)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	invoice := models.NewDraftInvoice(req.FranchiseID, customer, lines, now)
	invoice.PaymentTermDays = e.config.PaymentTermDays
	if req.PaymentTermDays != nil {
		invoice.PaymentTermDays = *req.PaymentTermDays
	}
	invoice.Notes = strings.TrimSpace(req.Notes)
	invoice.CreatedBy = req.CreatedBy

	err = e.repos.WithTransaction(ctx, func(ctx context.Context, repos repositories.TransactionalRepositories) error {
		if e.config.DuplicateCheck {
			if err := e.checkDuplicate(ctx, repos, op, req.FranchiseID, req.CustomerID, now); err != nil {
				return err
			}
		}
		return repos.Invoices().Save(ctx, invoice)
	})
	if err != nil {
		return nil, domainError(op, err)
	}

	e.logger.WithFields(logrus.Fields{
		"invoice_id":   invoice.ID,
		"franchise_id": invoice.FranchiseID,
		"customer_id":  invoice.CustomerID,
		"total":        invoice.Total,
	}).Info("Draft invoice created")

	return invoice, nil
}

// UpdateDraft replaces lines, customer, term or notes of a draft
func (e *invoiceEngine) UpdateDraft(ctx context.Context, id string, req *UpdateDraftRequest) (*models.Invoice, error) {
	const op = "UpdateDraft"
	if id == "" {
		return nil, models.NewValidationError(op, "id", "El identificador de la factura es obligatorio")
	}
	if req == nil {
		return nil, models.NewValidationError(op, "", "La solicitud de actualización no puede estar vacía")
	}
	if err := e.validator.Struct(req); err != nil {
		return nil, validationError(op, err)
	}

	var lines []models.InvoiceLine
	if req.Items != nil {
		var err error
		if lines, err = buildLines(op, req.Items); err != nil {
			return nil, err
		}
	}

	var updated *models.Invoice
	err := e.repos.WithTransaction(ctx, func(ctx context.Context, repos repositories.TransactionalRepositories) error {
		invoice, err := repos.Invoices().GetByID(ctx, id)
		if err != nil {
			return notFoundOr(op, "Factura", id, err)
		}
		if !invoice.IsDraft() {
			return models.NewInvalidStateError(op, "",
				fmt.Sprintf("Solo se pueden modificar facturas en borrador (estado actual: %s)", invoice.Status))
		}

		if req.Customer != nil {
			snapshot := *req.Customer
			snapshot.ID = invoice.CustomerID
			snapshot.Type = invoice.CustomerType
			invoice.Customer = snapshot.WithDefaults()
		}
		if lines != nil {
			invoice.SetLines(lines)
		}
		if req.PaymentTermDays != nil {
			invoice.PaymentTermDays = *req.PaymentTermDays
		}
		if req.Notes != nil {
			invoice.Notes = strings.TrimSpace(*req.Notes)
		}
		invoice.UpdatedAt = e.clock.Now()

		if err := repos.Invoices().Save(ctx, invoice); err != nil {
			return err
		}
		updated = invoice
		return nil
	})
	if err != nil {
		return nil, domainError(op, err)
	}
	return updated, nil
}

// IssueInvoice assigns the next number of the yearly series, stamps the issuer
// snapshot and moves the draft to ISSUED in one transaction
func (e *invoiceEngine) IssueInvoice(ctx context.Context, id, issuedBy string) (*models.Invoice, error) {
	const op = "IssueInvoice"
	if id == "" {
		return nil, models.NewValidationError(op, "id", "El identificador de la factura es obligatorio")
	}

	var issued *models.Invoice
	err := e.repos.WithTransaction(ctx, func(ctx context.Context, repos repositories.TransactionalRepositories) error {
		invoice, err := repos.Invoices().GetByID(ctx, id)
		if err != nil {
			return notFoundOr(op, "Factura", id, err)
		}
		if !invoice.Status.CanTransitionTo(models.InvoiceStatusIssued) {
			return models.NewInvalidStateError(op, "",
				fmt.Sprintf("Solo se pueden emitir facturas en borrador (estado actual: %s)", invoice.Status))
		}

		issuer, err := e.issuerFor(ctx, repos, op, invoice.FranchiseID)
		if err != nil {
			return err
		}

		now := e.clock.Now()
		series := models.StandardSeries(now)
		number, err := repos.Counters().Next(ctx, invoice.FranchiseID, series, now)
		if err != nil {
			return err
		}

		dueDate := now.AddDate(0, 0, invoice.PaymentTermDays)
		invoice.Status = models.InvoiceStatusIssued
		invoice.Series = series
		invoice.Number = number
		invoice.FullNumber = models.FormatFullNumber(series, number)
		invoice.Issuer = &issuer
		invoice.IssueDate = &now
		invoice.DueDate = &dueDate
		invoice.IssuedAt = &now
		invoice.IssuedBy = issuedBy
		invoice.UpdatedAt = now
		invoice.RecalculatePaymentStatus()

		if err := repos.Invoices().Save(ctx, invoice); err != nil {
			return err
		}
		issued = invoice
		return nil
	})
	if err != nil {
		return nil, domainError(op, err)
	}

	e.logger.WithFields(logrus.Fields{
		"invoice_id":  issued.ID,
		"full_number": issued.FullNumber,
		"total":       issued.Total,
	}).Info("Invoice issued")

	e.bookIntoVault(ctx, issued)
	return issued, nil
}

// RectifyInvoice creates a credit note negating every line of an issued invoice
// and marks the original RECTIFIED, both in one transaction
func (e *invoiceEngine) RectifyInvoice(ctx context.Context, id, reason, actor string) (*RectifyResult, error) {
	const op = "RectifyInvoice"
	if id == "" {
		return nil, models.NewValidationError(op, "id", "El identificador de la factura es obligatorio")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, models.NewValidationError(op, "reason", "El motivo de la rectificación es obligatorio")
	}

	var result *RectifyResult
	err := e.repos.WithTransaction(ctx, func(ctx context.Context, repos repositories.TransactionalRepositories) error {
		original, err := repos.Invoices().GetByID(ctx, id)
		if err != nil {
			return notFoundOr(op, "Factura", id, err)
		}
		if original.IsRectified() {
			return models.NewInvalidStateError(op, models.CodeInvoiceAlreadyRectified,
				fmt.Sprintf("La factura %s ya ha sido rectificada", original.FullNumber))
		}
		if !original.Status.CanTransitionTo(models.InvoiceStatusRectified) {
			return models.NewInvalidStateError(op, "",
				fmt.Sprintf("Solo se pueden rectificar facturas emitidas (estado actual: %s)", original.Status))
		}
		if original.Type == models.InvoiceTypeRectificative {
			return models.NewInvalidStateError(op, "", "Una factura rectificativa no puede rectificarse")
		}

		now := e.clock.Now()
		series := models.RectificativeSeries(now)
		number, err := repos.Counters().Next(ctx, original.FranchiseID, series, now)
		if err != nil {
			return err
		}

		credit := newCreditNote(original, reason, actor, now)
		credit.Series = series
		credit.Number = number
		credit.FullNumber = models.FormatFullNumber(series, number)
		if err := repos.Invoices().Save(ctx, credit); err != nil {
			return err
		}

		original.Status = models.InvoiceStatusRectified
		original.RectifyingInvoiceIDs = append(original.RectifyingInvoiceIDs, credit.ID)
		original.RectifiedAt = &now
		original.UpdatedAt = now
		if err := repos.Invoices().Save(ctx, original); err != nil {
			return err
		}

		result = &RectifyResult{Original: original, Rectification: credit}
		return nil
	})
	if err != nil {
		return nil, domainError(op, err)
	}

	e.logger.WithFields(logrus.Fields{
		"invoice_id":     result.Original.ID,
		"credit_note_id": result.Rectification.ID,
		"full_number":    result.Rectification.FullNumber,
	}).Info("Invoice rectified")

	e.bookIntoVault(ctx, result.Rectification)
	return result, nil
}

// GetInvoice retrieves an invoice by ID
func (e *invoiceEngine) GetInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	const op = "GetInvoice"
	if id == "" {
		return nil, models.NewValidationError(op, "id", "El identificador de la factura es obligatorio")
	}
	invoice, err := e.repos.Invoices().GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(op, "Factura", id, err)
	}
	return invoice, nil
}

// ListInvoices lists invoices matching the filters, newest first
func (e *invoiceEngine) ListInvoices(ctx context.Context, filters *repositories.InvoiceFilter) ([]*models.Invoice, error) {
	const op = "ListInvoices"
	filter := repositories.InvoiceFilter{}
	if filters != nil {
		filter = *filters
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Period != "" {
		if _, _, err := models.ParsePeriod(filter.Period); err != nil {
			return nil, err
		}
	}

	invoices, err := e.repos.Invoices().List(ctx, &filter)
	if err != nil {
		return nil, domainError(op, err)
	}
	return invoices, nil
}

// VerifyTotals recomputes the totals of a stored invoice from its lines
func (e *invoiceEngine) VerifyTotals(ctx context.Context, id string) (*TotalsVerification, error) {
	invoice, err := e.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	return VerifyInvoiceTotals(invoice), nil
}

// GetCustomerStats summarises what a customer was billed and paid. Totals cover
// live STANDARD invoices only: a rectified invoice and its credit note cancel out.
func (e *invoiceEngine) GetCustomerStats(ctx context.Context, franchiseID, customerID string) (*models.CustomerStats, error) {
	const op = "GetCustomerStats"
	if strings.TrimSpace(franchiseID) == "" {
		return nil, models.NewValidationError(op, "franchise_id", "El identificador de la franquicia es obligatorio")
	}
	if strings.TrimSpace(customerID) == "" {
		return nil, models.NewValidationError(op, "customer_id", "El identificador del cliente es obligatorio")
	}

	invoices, err := e.repos.Invoices().List(ctx, &repositories.InvoiceFilter{
		FranchiseID: franchiseID,
		CustomerID:  customerID,
	})
	if err != nil {
		return nil, domainError(op, err)
	}

	stats := &models.CustomerStats{FranchiseID: franchiseID, CustomerID: customerID}
	var invoiced, paid []float64
	for _, inv := range invoices {
		if inv.IsDraft() {
			continue
		}
		stats.InvoiceCount++
		if inv.IssueDate != nil && (stats.LastInvoiceDate == nil || inv.IssueDate.After(*stats.LastInvoiceDate)) {
			last := *inv.IssueDate
			stats.LastInvoiceDate = &last
		}
		if inv.Status != models.InvoiceStatusIssued || inv.Type != models.InvoiceTypeStandard {
			continue
		}
		invoiced = append(invoiced, inv.Total)
		paid = append(paid, inv.TotalPaid)
	}
	stats.TotalInvoiced = models.SumMoney(invoiced...)
	stats.TotalPaid = models.SumMoney(paid...)
	stats.TotalPending = models.SubMoney(stats.TotalInvoiced, stats.TotalPaid)
	return stats, nil
}

// GetInvoicedIncomeForMonth totals the invoices of a month and counts the orders
// billed per distance range. Credit notes net out against the invoices they rectify.
func (e *invoiceEngine) GetInvoicedIncomeForMonth(ctx context.Context, franchiseID, period string) (*models.InvoicedIncome, error) {
	const op = "GetInvoicedIncomeForMonth"
	if strings.TrimSpace(franchiseID) == "" {
		return nil, models.NewValidationError(op, "franchise_id", "El identificador de la franquicia es obligatorio")
	}
	if _, _, err := models.ParsePeriod(period); err != nil {
		return nil, err
	}

	invoices, err := e.repos.Invoices().List(ctx, &repositories.InvoiceFilter{
		FranchiseID: franchiseID,
		Period:      period,
	})
	if err != nil {
		return nil, domainError(op, err)
	}
	return SummarizeInvoicedIncome(franchiseID, period, invoices), nil
}

// SummarizeInvoicedIncome aggregates the non-draft invoices of a month
func SummarizeInvoicedIncome(franchiseID, period string, invoices []*models.Invoice) *models.InvoicedIncome {
	income := &models.InvoicedIncome{
		FranchiseID:  franchiseID,
		Period:       period,
		OrdersDetail: map[string]float64{},
	}
	for _, r := range models.DefaultDistanceRanges() {
		income.OrdersDetail[r.Name] = 0
	}

	var subtotals, totals []float64
	for _, inv := range invoices {
		if inv.IsDraft() {
			continue
		}
		income.InvoiceCount++
		subtotals = append(subtotals, inv.Subtotal)
		totals = append(totals, inv.Total)

		for _, line := range inv.Lines {
			name, ok := rangeName(line.Description)
			if !ok {
				continue
			}
			orders := line.Quantity
			if line.Subtotal < 0 {
				orders = -orders
			}
			label := models.NormalizeRangeLabel(name)
			income.OrdersDetail[label] += orders
		}
	}
	income.Subtotal = models.SumMoney(subtotals...)
	income.Total = models.SumMoney(totals...)
	return income
}

// rangeName extracts the range name from a per-range logistics line
func rangeName(description string) (string, bool) {
	prefix := strings.TrimSuffix(lineRangeFmt, "%s")
	if !strings.HasPrefix(description, prefix) {
		return "", false
	}
	return strings.TrimPrefix(description, prefix), true
}

// ExportInvoice renders a stored invoice as a downloadable file
func (e *invoiceEngine) ExportInvoice(ctx context.Context, id string, format ExportFormat) (*InvoiceFile, error) {
	const op = "ExportInvoice"
	if _, err := ParseExportFormat(string(format)); err != nil {
		return nil, err
	}
	if format == "" {
		format = ExportJSON
	}

	invoice, err := e.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}

	file, err := RenderInvoice(invoice, format, e.clock.Now())
	if err != nil {
		return nil, models.NewPersistenceError(op, err)
	}

	e.logger.WithFields(logrus.Fields{
		"invoice_id": invoice.ID,
		"format":     format,
		"bytes":      len(file.Data),
	}).Debug("Invoice exported")
	return file, nil
}

// VerifyInvoiceTotals compares the stored amounts of an invoice with a fresh computation
func VerifyInvoiceTotals(invoice *models.Invoice) *TotalsVerification {
	computed := models.CalculateTotals(invoice.Lines)
	stored := models.InvoiceTotals{
		Lines:        invoice.Lines,
		TaxBreakdown: invoice.TaxBreakdown,
		Subtotal:     invoice.Subtotal,
		TaxTotal:     invoice.TaxTotal,
		Total:        invoice.Total,
	}

	valid := models.MoneyEqual(stored.Subtotal, computed.Subtotal) &&
		models.MoneyEqual(stored.TaxTotal, computed.TaxTotal) &&
		models.MoneyEqual(stored.Total, computed.Total) &&
		models.BreakdownEqual(stored.TaxBreakdown, computed.TaxBreakdown)
	for i := 0; valid && i < len(stored.Lines); i++ {
		valid = models.MoneyEqual(stored.Lines[i].Total, computed.Lines[i].Total)
	}

	return &TotalsVerification{
		InvoiceID: invoice.ID,
		Valid:     valid,
		Stored:    stored,
		Computed:  computed,
	}
}

// resolveCustomer returns the snapshot to embed in a new draft. An explicit
// snapshot wins over the stored profile.
func (e *invoiceEngine) resolveCustomer(ctx context.Context, op, customerID string, customerType models.CustomerType, explicit *models.CustomerSnapshot) (models.CustomerSnapshot, error) {
	if explicit != nil {
		snapshot := *explicit
		snapshot.ID = customerID
		snapshot.Type = customerType
		return snapshot.WithDefaults(), nil
	}

	profile, err := e.repos.Profiles().GetCustomer(ctx, customerType, customerID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return models.CustomerSnapshot{}, models.NewValidationError(op, "customer_id",
				fmt.Sprintf("Cliente no encontrado: %s", customerID))
		}
		return models.CustomerSnapshot{}, domainError(op, err)
	}
	return profile.CustomerSnapshot(customerType), nil
}

// checkDuplicate rejects a second live STANDARD invoice for the same customer
// in the month of now. Both drafts of a concurrent pair bump the same guard
// counter, so one of them conflicts and re-runs the check after the other commits.
func (e *invoiceEngine) checkDuplicate(ctx context.Context, repos repositories.TransactionalRepositories, op, franchiseID, customerID string, now time.Time) error {
	period := models.PeriodOf(now)
	if _, err := repos.Counters().Next(ctx, franchiseID, models.DraftGuardSeries(customerID, period), now); err != nil {
		return err
	}

	existing, err := repos.Invoices().List(ctx, &repositories.InvoiceFilter{
		FranchiseID: franchiseID,
		CustomerID:  customerID,
		Type:        models.InvoiceTypeStandard,
	})
	if err != nil {
		return err
	}

	for _, invoice := range existing {
		if invoice.Status != models.InvoiceStatusDraft && invoice.Status != models.InvoiceStatusIssued {
			continue
		}
		if models.PeriodOf(invoice.CreatedAt) != period {
			continue
		}
		label := invoice.FullNumber
		if label == "" {
			label = "borrador " + invoice.ID
		}
		return models.NewValidationErrorWithCode(op, models.CodeDuplicateInvoice, "customer_id",
			fmt.Sprintf("Ya existe una factura para este cliente en el periodo %s (%s)", period, label))
	}
	return nil
}

// issuerFor loads the franchise profile and checks it can appear on an invoice
func (e *invoiceEngine) issuerFor(ctx context.Context, repos repositories.TransactionalRepositories, op, franchiseID string) (models.IssuerSnapshot, error) {
	profile, err := repos.Profiles().GetFranchise(ctx, franchiseID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return models.IssuerSnapshot{}, models.NewValidationErrorWithCode(op, models.CodeCompanyDataMissing, "franchise_id",
				"Faltan los datos fiscales de la franquicia emisora")
		}
		return models.IssuerSnapshot{}, err
	}

	issuer := profile.IssuerSnapshot()
	if field := issuer.MissingField(); field != "" {
		return models.IssuerSnapshot{}, models.NewValidationErrorWithCode(op, models.CodeCompanyDataMissing, field,
			fmt.Sprintf("Faltan datos fiscales de la franquicia emisora: %s", field))
	}
	return issuer, nil
}

// bookIntoVault notifies the tax vault after commit. A failure is logged and
// does not undo the issue.
func (e *invoiceEngine) bookIntoVault(ctx context.Context, invoice *models.Invoice) {
	if e.taxVault == nil {
		return
	}
	if err := e.taxVault.OnInvoiceIssued(ctx, invoice); err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"invoice_id": invoice.ID,
			"period":     invoice.Period(),
			"code":       models.ErrorCode(err),
		}).Error("Failed to book invoice into tax vault")
	}
}

// newCreditNote builds the RECTIFICATIVE counterpart of original without a number
func newCreditNote(original *models.Invoice, reason, actor string, now time.Time) *models.Invoice {
	negated := make([]models.InvoiceLine, len(original.Lines))
	for i, line := range original.Lines {
		negated[i] = line.Negate()
	}

	credit := &models.Invoice{
		ID:                  uuid.New().String(),
		FranchiseID:         original.FranchiseID,
		CustomerID:          original.CustomerID,
		CustomerType:        original.CustomerType,
		Type:                models.InvoiceTypeRectificative,
		Status:              models.InvoiceStatusIssued,
		Customer:            original.Customer,
		IssueDate:           &now,
		DueDate:             &now,
		IssuedAt:            &now,
		IssuedBy:            actor,
		OriginalInvoiceID:   original.ID,
		RectificationReason: reason,
		Notes:               fmt.Sprintf("Rectificación de la factura %s", original.FullNumber),
		CreatedBy:           actor,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if original.Issuer != nil {
		issuer := *original.Issuer
		credit.Issuer = &issuer
	}
	credit.SetLines(negated)
	return credit
}

// buildLines validates the amounts of each item and computes its line
func buildLines(op string, items []LineItemRequest) ([]models.InvoiceLine, error) {
	lines := make([]models.InvoiceLine, 0, len(items))
	for i, item := range items {
		field := fmt.Sprintf("items[%d]", i)
		if !isFinite(item.Quantity) || !isFinite(item.UnitPrice) {
			return nil, models.NewValidationError(op, field,
				fmt.Sprintf("La línea %d contiene importes no numéricos", i+1))
		}
		if item.Quantity <= 0 {
			return nil, models.NewValidationError(op, field+".quantity",
				fmt.Sprintf("La cantidad de la línea %d debe ser mayor que 0", i+1))
		}
		if item.UnitPrice < 0 {
			return nil, models.NewValidationError(op, field+".unit_price",
				fmt.Sprintf("El precio unitario de la línea %d no puede ser negativo", i+1))
		}
		rate, err := models.ParseTaxRate(item.TaxRate)
		if err != nil {
			return nil, models.NewValidationError(op, field+".tax_rate",
				fmt.Sprintf("Línea %d: %s", i+1, models.UserMessage(err)))
		}
		lines = append(lines, models.CalculateLine(strings.TrimSpace(item.Description), item.Quantity, item.UnitPrice, rate))
	}
	return lines, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
