package services

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
	"github.com/juan49ers-spec/Repaart-sub012/internal/repositories"
)

// Line descriptions of logistics invoices
const (
	lineHours      = "Horas de servicio"
	lineKilometers = "Kilómetros recorridos"
	lineRangeFmt   = "Servicio de logística - Rango %s"
	lineServiceFee = "Cuota de servicio"
)

// logisticsBillingService implements the LogisticsBilling interface
type logisticsBillingService struct {
	repos          RepositoryProvider
	defaultRates   models.BillingRates
	franchiseRates map[string]models.BillingRates
	validator      *validator.Validate
	logger         *logrus.Logger
}

// NewLogisticsBillingService creates a new logistics billing service.
// franchiseRates replaces defaultRates for the franchises it lists.
func NewLogisticsBillingService(repos RepositoryProvider, defaultRates models.BillingRates, franchiseRates map[string]models.BillingRates, logger *logrus.Logger) LogisticsBilling {
	if logger == nil {
		logger = logrus.New()
	}
	if franchiseRates == nil {
		franchiseRates = map[string]models.BillingRates{}
	}
	return &logisticsBillingService{
		repos:          repos,
		defaultRates:   defaultRates,
		franchiseRates: franchiseRates,
		validator:      newValidator(),
		logger:         logger,
	}
}

// CalculateBilling prices the shifts and orders of a period
func (s *logisticsBillingService) CalculateBilling(ctx context.Context, facts *models.PeriodFacts, rates *models.BillingRates) (*models.BillingResult, error) {
	const op = "CalculateBilling"
	if facts == nil {
		return nil, models.NewValidationError(op, "facts", "Los datos operativos son obligatorios")
	}
	if rates == nil {
		return nil, models.NewValidationError(op, "rates", "Las tarifas son obligatorias")
	}
	if err := s.validator.Struct(facts); err != nil {
		return nil, validationError(op, err)
	}
	if facts.Period != "" {
		if _, _, err := models.ParsePeriod(facts.Period); err != nil {
			return nil, err
		}
	}
	if err := validateRates(op, rates); err != nil {
		return nil, err
	}

	result := CalculateLogisticsBilling(facts, rates)
	if len(result.Lines) == 0 {
		return nil, models.NewValidationErrorWithCode(op, models.CodeInsufficientLogistics, "shifts",
			"No hay datos logísticos suficientes para facturar el periodo")
	}

	s.logger.WithFields(logrus.Fields{
		"franchise_id":   facts.FranchiseID,
		"period":         facts.Period,
		"lines":          len(result.Lines),
		"skipped_shifts": result.SkippedShifts,
		"total":          result.Totals.Total,
	}).Debug("Logistics billing calculated")

	return result, nil
}

// RatesForFranchise resolves the tariffs of a franchise: configured rates,
// overlaid with the overrides stored on its profile
func (s *logisticsBillingService) RatesForFranchise(ctx context.Context, franchiseID string) (*models.BillingRates, error) {
	const op = "RatesForFranchise"
	if franchiseID == "" {
		return nil, models.NewValidationError(op, "franchise_id", "El identificador de la franquicia es obligatorio")
	}

	rates := s.defaultRates
	if configured, ok := s.franchiseRates[franchiseID]; ok {
		rates = configured
	}
	rates.DistanceRanges = append([]models.DistanceRange(nil), rates.DistanceRanges...)

	profile, err := s.repos.Profiles().GetFranchise(ctx, franchiseID)
	switch {
	case err == nil:
		rates = profile.Rates.Apply(rates)
	case repositories.IsNotFound(err):
		// no profile, configured rates apply
	default:
		return nil, domainError(op, err)
	}

	if err := validateRates(op, &rates); err != nil {
		return nil, err
	}
	return &rates, nil
}

// BuildDraftRequest turns a billing result into a draft request for the invoice engine
func (s *logisticsBillingService) BuildDraftRequest(result *models.BillingResult, facts *models.PeriodFacts) *CreateDraftRequest {
	req := &CreateDraftRequest{
		FranchiseID: result.FranchiseID,
		Items:       make([]LineItemRequest, 0, len(result.Lines)),
	}
	if facts != nil {
		req.CustomerID = facts.CustomerID
		req.CustomerType = facts.CustomerType
	}
	if req.CustomerType == "" {
		req.CustomerType = models.CustomerTypeFranchise
	}
	if result.Period != "" {
		req.Notes = fmt.Sprintf("Facturación logística del periodo %s", result.Period)
	}
	for _, line := range result.Lines {
		req.Items = append(req.Items, LineItemRequest{
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			TaxRate:     float64(line.TaxRate),
		})
	}
	return req
}

// CalculateLogisticsBilling is the pure pricing step of CalculateBilling.
// Rates must already be validated.
func CalculateLogisticsBilling(facts *models.PeriodFacts, rates *models.BillingRates) *models.BillingResult {
	result := &models.BillingResult{
		FranchiseID: facts.FranchiseID,
		Period:      facts.Period,
		IRPFRate:    rates.IRPFRate,
	}

	var hours, km float64
	for _, shift := range facts.Shifts {
		duration, ok := shift.Duration()
		if !ok {
			result.SkippedShifts++
			continue
		}
		hours += duration
		if isFinite(shift.DistanceKm) && shift.DistanceKm > 0 {
			km += shift.DistanceKm
		}
		if shift.Orders > 0 {
			result.TotalOrders += shift.Orders
		}
	}
	result.TotalHours = models.Round2(hours)
	result.TotalKm = models.Round2(km)

	var lines []models.InvoiceLine
	if result.TotalHours > 0 && rates.HourlyRate > 0 {
		lines = append(lines, models.CalculateLine(lineHours, result.TotalHours, rates.HourlyRate, rates.TaxRate))
	}
	if result.TotalKm > 0 && rates.KmRate > 0 {
		lines = append(lines, models.CalculateLine(lineKilometers, result.TotalKm, rates.KmRate, rates.TaxRate))
	}
	lines = append(lines, rangeLines(facts.Orders, rates)...)

	if len(lines) > 0 && rates.ServiceFee > 0 {
		lines = append(lines, models.CalculateLine(lineServiceFee, 1, rates.ServiceFee, rates.TaxRate))
	}

	result.Totals = models.CalculateTotals(lines)
	result.Lines = result.Totals.Lines
	result.IRPFRetention = models.MulRound2(result.Totals.Subtotal, rates.IRPFRate)
	result.NetPayable = models.SubMoney(result.Totals.Total, result.IRPFRetention)
	return result
}

// rangeLines counts orders per distance range and prices each non-empty range
func rangeLines(orders []models.OrderFact, rates *models.BillingRates) []models.InvoiceLine {
	if len(orders) == 0 {
		return nil
	}
	ranges := rates.DistanceRanges
	if len(ranges) == 0 {
		ranges = models.DefaultDistanceRanges()
	}

	counts := make([]int, len(ranges))
	for _, order := range orders {
		if !isFinite(order.DistanceKm) || order.DistanceKm < 0 {
			continue
		}
		for i, r := range ranges {
			if r.Contains(order.DistanceKm) {
				counts[i]++
				break
			}
		}
	}

	var lines []models.InvoiceLine
	for i, r := range ranges {
		if counts[i] == 0 || r.Price <= 0 {
			continue
		}
		lines = append(lines, models.CalculateLine(fmt.Sprintf(lineRangeFmt, r.Name), float64(counts[i]), r.Price, rates.TaxRate))
	}
	return lines
}

func validateRates(op string, rates *models.BillingRates) error {
	amounts := []struct {
		field string
		value float64
	}{
		{"hourly_rate", rates.HourlyRate},
		{"km_rate", rates.KmRate},
		{"service_fee", rates.ServiceFee},
		{"irpf_rate", rates.IRPFRate},
	}
	for _, a := range amounts {
		if !isFinite(a.value) || a.value < 0 {
			return models.NewValidationError(op, a.field,
				fmt.Sprintf("La tarifa %s debe ser un número no negativo", a.field))
		}
	}
	if rates.IRPFRate > 1 {
		return models.NewValidationError(op, "irpf_rate", "El porcentaje de IRPF debe estar entre 0 y 1")
	}
	if _, err := models.ParseTaxRate(float64(rates.TaxRate)); err != nil {
		return err
	}
	for i, r := range rates.DistanceRanges {
		if !isFinite(r.Price) || r.Price < 0 || !isFinite(r.MinKm) || r.MinKm < 0 || !isFinite(r.MaxKm) {
			return models.NewValidationError(op, fmt.Sprintf("distance_ranges[%d]", i),
				fmt.Sprintf("El rango de distancia %s no es válido", r.Name))
		}
	}
	return nil
}
