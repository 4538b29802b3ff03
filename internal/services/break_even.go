package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
	"github.com/juan49ers-spec/Repaart-sub012/internal/repositories"
)

// breakEvenService implements the BreakEvenAnalyzer interface
type breakEvenService struct {
	repos  RepositoryProvider
	logger *logrus.Logger
}

// NewBreakEvenService creates a new break-even analyzer
func NewBreakEvenService(repos RepositoryProvider, logger *logrus.Logger) BreakEvenAnalyzer {
	if logger == nil {
		logger = logrus.New()
	}
	return &breakEvenService{repos: repos, logger: logger}
}

// ComputeBreakEven derives the productivity thresholds of an aggregate
func (s *breakEvenService) ComputeBreakEven(aggregate models.PeriodAggregate) models.BreakEvenResult {
	return ComputeBreakEven(aggregate)
}

// AnalyzePeriod builds the aggregate of a franchise month from its invoices,
// expenses and stored metrics, then computes the break-even
func (s *breakEvenService) AnalyzePeriod(ctx context.Context, franchiseID, period string) (*models.BreakEvenResult, error) {
	const op = "AnalyzePeriod"
	if franchiseID == "" {
		return nil, models.NewValidationError(op, "franchise_id", "El identificador de la franquicia es obligatorio")
	}
	if _, _, err := models.ParsePeriod(period); err != nil {
		return nil, err
	}

	invoices, err := s.repos.Invoices().List(ctx, &repositories.InvoiceFilter{
		FranchiseID: franchiseID,
		Period:      period,
	})
	if err != nil {
		return nil, domainError(op, err)
	}
	expenses, err := s.repos.Expenses().ListByPeriod(ctx, franchiseID, period)
	if err != nil {
		return nil, domainError(op, err)
	}

	aggregate := models.PeriodAggregate{FranchiseID: franchiseID, Period: period}

	revenue := make([]float64, 0, len(invoices))
	for _, inv := range invoices {
		// credit notes carry negative subtotals and cancel their rectified original
		if inv.IsDraft() {
			continue
		}
		revenue = append(revenue, inv.Subtotal)
	}
	aggregate.Revenue = models.SumMoney(revenue...)

	amounts := make([]float64, 0, len(expenses))
	for _, exp := range expenses {
		amounts = append(amounts, exp.Amount)
	}
	aggregate.Expenses = models.SumMoney(amounts...)

	metrics, err := s.repos.Metrics().Get(ctx, franchiseID, period)
	switch {
	case err == nil:
		aggregate.Hours = metrics.Hours
		aggregate.Orders = metrics.Orders
	case !repositories.IsNotFound(err):
		return nil, domainError(op, err)
	}

	result := ComputeBreakEven(aggregate)

	s.logger.WithFields(logrus.Fields{
		"franchise_id": franchiseID,
		"period":       period,
		"status":       result.Status,
		"margin":       result.MarginOfSafety,
	}).Debug("Break-even analyzed")

	return &result, nil
}

// RecordMetrics stores the operational hours and orders of a franchise month
func (s *breakEvenService) RecordMetrics(ctx context.Context, metrics *models.FranchiseMetrics) error {
	const op = "RecordMetrics"
	if metrics == nil {
		return models.NewValidationError(op, "", "Las métricas son obligatorias")
	}
	if metrics.FranchiseID == "" {
		return models.NewValidationError(op, "franchise_id", "El identificador de la franquicia es obligatorio")
	}
	if _, _, err := models.ParsePeriod(metrics.Period); err != nil {
		return err
	}
	if !isFinite(metrics.Hours) || metrics.Hours < 0 {
		return models.NewValidationError(op, "hours", "Las horas deben ser un número no negativo")
	}
	if !isFinite(metrics.Orders) || metrics.Orders < 0 {
		return models.NewValidationError(op, "orders", "Los pedidos deben ser un número no negativo")
	}

	if err := s.repos.Metrics().Save(ctx, metrics); err != nil {
		return domainError(op, err)
	}
	return nil
}

// ComputeBreakEven is a pure function of the aggregate. Non-finite or negative
// inputs count as 0 and every division is guarded, so the result is always finite.
func ComputeBreakEven(aggregate models.PeriodAggregate) models.BreakEvenResult {
	revenue := nonNegative(aggregate.Revenue)
	expenses := nonNegative(aggregate.Expenses)
	hours := nonNegative(aggregate.Hours)
	orders := nonNegative(aggregate.Orders)

	avgTicket := safeDiv(revenue, orders)
	breakEvenOrders := safeDiv(expenses, avgTicket)
	// the verdict and the margin use the published two-decimal figures, so a
	// reported margin of 0 is always RENTABLE
	breakEvenProductivity := models.Round2(safeDiv(breakEvenOrders, hours))
	actualProductivity := models.Round2(safeDiv(orders, hours))
	margin := models.SubMoney(actualProductivity, breakEvenProductivity)

	status := models.BreakEvenProfitable
	if actualProductivity < breakEvenProductivity {
		status = models.BreakEvenDeficit
	}

	return models.BreakEvenResult{
		FranchiseID:           aggregate.FranchiseID,
		Period:                aggregate.Period,
		AvgTicket:             models.Round2(avgTicket),
		BreakEvenOrders:       models.Round2(breakEvenOrders),
		BreakEvenProductivity: breakEvenProductivity,
		ActualProductivity:    actualProductivity,
		MarginOfSafety:        margin,
		Status:                status,
	}
}

func nonNegative(v float64) float64 {
	if !isFinite(v) || v < 0 {
		return 0
	}
	return v
}

func safeDiv(a, b float64) float64 {
	if b <= 0 {
		return 0
	}
	q := a / b
	if !isFinite(q) {
		return 0
	}
	return q
}
