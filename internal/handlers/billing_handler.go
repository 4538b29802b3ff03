package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
	"github.com/juan49ers-spec/Repaart-sub012/internal/services"
	"github.com/juan49ers-spec/Repaart-sub012/pkg/lambda"
)

// BillingHandler handles logistics billing, break-even and debt reporting requests
type BillingHandler struct {
	logistics  services.LogisticsBilling
	breakEven  services.BreakEvenAnalyzer
	receivable services.AccountsReceivable
	engine     services.InvoiceEngine
}

// NewBillingHandler creates a new billing handler
func NewBillingHandler(logistics services.LogisticsBilling, breakEven services.BreakEvenAnalyzer,
	receivable services.AccountsReceivable, engine services.InvoiceEngine) *BillingHandler {
	return &BillingHandler{
		logistics:  logistics,
		breakEven:  breakEven,
		receivable: receivable,
		engine:     engine,
	}
}

// CalculateBillingRequest holds the facts of a period. Without rates the
// franchise tariff applies; with create_draft the result is stored as a draft.
type CalculateBillingRequest struct {
	Facts       models.PeriodFacts   `json:"facts"`
	Rates       *models.BillingRates `json:"rates,omitempty"`
	CreateDraft bool                 `json:"create_draft,omitempty"`
	CreatedBy   string               `json:"created_by,omitempty"`
}

// CalculateBillingResponse holds the calculation and the draft created from it
type CalculateBillingResponse struct {
	Result *models.BillingResult `json:"result"`
	Draft  *models.Invoice       `json:"draft,omitempty"`
}

func (h *BillingHandler) calculate(ctx context.Context, req *CalculateBillingRequest) (*CalculateBillingResponse, error) {
	rates := req.Rates
	if rates == nil {
		resolved, err := h.logistics.RatesForFranchise(ctx, req.Facts.FranchiseID)
		if err != nil {
			return nil, err
		}
		rates = resolved
	}

	result, err := h.logistics.CalculateBilling(ctx, &req.Facts, rates)
	if err != nil {
		return nil, err
	}
	response := &CalculateBillingResponse{Result: result}
	if !req.CreateDraft {
		return response, nil
	}

	draftReq := h.logistics.BuildDraftRequest(result, &req.Facts)
	draftReq.CreatedBy = req.CreatedBy
	draft, err := h.engine.CreateDraft(ctx, draftReq)
	if err != nil {
		return nil, err
	}
	response.Draft = draft
	return response, nil
}

// @Summary Calculate logistics billing
// @Description Turn the shifts and orders of a period into invoice lines, optionally storing them as a draft
// @Tags billing
// @Accept json
// @Produce json
// @Param request body CalculateBillingRequest true "Period facts"
// @Success 200 {object} CalculateBillingResponse
// @Success 201 {object} CalculateBillingResponse
// @Failure 400 {object} ErrorResponse
// @Router /billing/calculate [post]
func (h *BillingHandler) CalculateBilling(c *gin.Context) {
	var req CalculateBillingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	req.CreatedBy = actor(c, req.CreatedBy)

	response, err := h.calculate(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "Failed to calculate billing", err)
		return
	}

	status := http.StatusOK
	if response.Draft != nil {
		status = http.StatusCreated
	}
	c.JSON(status, response)
}

// @Summary Compute break-even from figures
// @Description Compute the break-even thresholds of a period aggregate sent by the client
// @Tags billing
// @Accept json
// @Produce json
// @Param aggregate body models.PeriodAggregate true "Period aggregate"
// @Success 200 {object} models.BreakEvenResult
// @Failure 400 {object} ErrorResponse
// @Router /billing/break-even [post]
func (h *BillingHandler) ComputeBreakEven(c *gin.Context) {
	var aggregate models.PeriodAggregate
	if err := c.ShouldBindJSON(&aggregate); err != nil {
		respondBadRequest(c, err)
		return
	}

	c.JSON(http.StatusOK, h.breakEven.ComputeBreakEven(aggregate))
}

// @Summary Analyze break-even of a franchise month
// @Description Compute break-even from the stored invoices, expenses and metrics of a month
// @Tags billing
// @Produce json
// @Param franchise_id path string true "Franchise ID"
// @Param period path string true "Month (YYYY-MM)"
// @Success 200 {object} models.BreakEvenResult
// @Failure 400 {object} ErrorResponse
// @Router /billing/break-even/{franchise_id}/{period} [get]
func (h *BillingHandler) AnalyzePeriod(c *gin.Context) {
	result, err := h.breakEven.AnalyzePeriod(c.Request.Context(), c.Param("franchise_id"), c.Param("period"))
	if err != nil {
		respondError(c, "Failed to analyze period", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// @Summary Record franchise metrics
// @Description Store the worked hours and delivered orders of a franchise month
// @Tags billing
// @Accept json
// @Produce json
// @Param metrics body models.FranchiseMetrics true "Monthly metrics"
// @Success 200 {object} models.FranchiseMetrics
// @Failure 400 {object} ErrorResponse
// @Router /billing/metrics [put]
func (h *BillingHandler) RecordMetrics(c *gin.Context) {
	var metrics models.FranchiseMetrics
	if err := c.ShouldBindJSON(&metrics); err != nil {
		respondBadRequest(c, err)
		return
	}

	if err := h.breakEven.RecordMetrics(c.Request.Context(), &metrics); err != nil {
		respondError(c, "Failed to record metrics", err)
		return
	}

	c.JSON(http.StatusOK, metrics)
}

// @Summary Debt dashboard
// @Description Outstanding debt of a franchise grouped by customer and aging bucket
// @Tags billing
// @Produce json
// @Param franchise_id path string true "Franchise ID"
// @Success 200 {object} models.DebtDashboard
// @Failure 400 {object} ErrorResponse
// @Router /billing/debt/{franchise_id} [get]
func (h *BillingHandler) DebtDashboard(c *gin.Context) {
	dashboard, err := h.receivable.GenerateDebtDashboard(c.Request.Context(), c.Param("franchise_id"))
	if err != nil {
		respondError(c, "Failed to generate debt dashboard", err)
		return
	}

	c.JSON(http.StatusOK, dashboard)
}

// @Summary Customer debt
// @Description Outstanding invoices of one customer of a franchise
// @Tags billing
// @Produce json
// @Param franchise_id path string true "Franchise ID"
// @Param customer_id path string true "Customer ID"
// @Success 200 {object} models.CustomerDebt
// @Failure 400 {object} ErrorResponse
// @Router /billing/debt/{franchise_id}/customers/{customer_id} [get]
func (h *BillingHandler) CustomerDebt(c *gin.Context) {
	debt, err := h.receivable.GetCustomerDebt(c.Request.Context(), c.Param("franchise_id"), c.Param("customer_id"))
	if err != nil {
		respondError(c, "Failed to get customer debt", err)
		return
	}

	c.JSON(http.StatusOK, debt)
}

// @Summary Customer statistics
// @Description Invoiced, paid and pending amounts of one customer of a franchise
// @Tags billing
// @Produce json
// @Param franchise_id path string true "Franchise ID"
// @Param customer_id path string true "Customer ID"
// @Success 200 {object} models.CustomerStats
// @Failure 400 {object} ErrorResponse
// @Router /billing/customers/{franchise_id}/{customer_id}/stats [get]
func (h *BillingHandler) CustomerStats(c *gin.Context) {
	stats, err := h.engine.GetCustomerStats(c.Request.Context(), c.Param("franchise_id"), c.Param("customer_id"))
	if err != nil {
		respondError(c, "Failed to get customer stats", err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// @Summary Invoiced income of a month
// @Description Subtotal, total and orders per distance range billed by a franchise in a month
// @Tags billing
// @Produce json
// @Param franchise_id path string true "Franchise ID"
// @Param period path string true "Month (YYYY-MM)"
// @Success 200 {object} models.InvoicedIncome
// @Failure 400 {object} ErrorResponse
// @Router /billing/income/{franchise_id}/{period} [get]
func (h *BillingHandler) InvoicedIncome(c *gin.Context) {
	income, err := h.engine.GetInvoicedIncomeForMonth(c.Request.Context(), c.Param("franchise_id"), c.Param("period"))
	if err != nil {
		respondError(c, "Failed to get invoiced income", err)
		return
	}

	c.JSON(http.StatusOK, income)
}

// Lambda handler methods

func (h *BillingHandler) HandleCalculate(ctx context.Context, req *lambda.Request) (*lambda.Response, error) {
	var body CalculateBillingRequest
	if err := decodeBody(req, &body); err != nil {
		return lambdaBadRequest(err)
	}
	body.CreatedBy = lambdaActor(req, body.CreatedBy)

	response, err := h.calculate(ctx, &body)
	if err != nil {
		return lambdaError("Failed to calculate billing", err)
	}
	if response.Draft != nil {
		return lambda.JSON(http.StatusCreated, response)
	}
	return lambda.JSON(http.StatusOK, response)
}

func (h *BillingHandler) HandleComputeBreakEven(ctx context.Context, req *lambda.Request) (*lambda.Response, error) {
	var aggregate models.PeriodAggregate
	if err := decodeBody(req, &aggregate); err != nil {
		return lambdaBadRequest(err)
	}
	return lambda.JSON(http.StatusOK, h.breakEven.ComputeBreakEven(aggregate))
}

func (h *BillingHandler) HandleAnalyzePeriod(ctx context.Context, req *lambda.Request) (*lambda.Response, error) {
	result, err := h.breakEven.AnalyzePeriod(ctx, req.Param("franchise_id"), req.Param("period"))
	if err != nil {
		return lambdaError("Failed to analyze period", err)
	}
	return lambda.JSON(http.StatusOK, result)
}

func (h *BillingHandler) HandleRecordMetrics(ctx context.Context, req *lambda.Request) (*lambda.Response, error) {
	var metrics models.FranchiseMetrics
	if err := decodeBody(req, &metrics); err != nil {
		return lambdaBadRequest(err)
	}
	if err := h.breakEven.RecordMetrics(ctx, &metrics); err != nil {
		return lambdaError("Failed to record metrics", err)
	}
	return lambda.JSON(http.StatusOK, metrics)
}

func (h *BillingHandler) HandleDebtDashboard(ctx context.Context, req *lambda.Request) (*lambda.Response, error) {
	dashboard, err := h.receivable.GenerateDebtDashboard(ctx, req.Param("franchise_id"))
	if err != nil {
		return lambdaError("Failed to generate debt dashboard", err)
	}
	return lambda.JSON(http.StatusOK, dashboard)
}

func (h *BillingHandler) HandleCustomerDebt(ctx context.Context, req *lambda.Request) (*lambda.Response, error) {
	debt, err := h.receivable.GetCustomerDebt(ctx, req.Param("franchise_id"), req.Param("customer_id"))
	if err != nil {
		return lambdaError("Failed to get customer debt", err)
	}
	return lambda.JSON(http.StatusOK, debt)
}

func (h *BillingHandler) HandleCustomerStats(ctx context.Context, req *lambda.Request) (*lambda.Response, error) {
	stats, err := h.engine.GetCustomerStats(ctx, req.Param("franchise_id"), req.Param("customer_id"))
	if err != nil {
		return lambdaError("Failed to get customer stats", err)
	}
	return lambda.JSON(http.StatusOK, stats)
}

func (h *BillingHandler) HandleInvoicedIncome(ctx context.Context, req *lambda.Request) (*lambda.Response, error) {
	income, err := h.engine.GetInvoicedIncomeForMonth(ctx, req.Param("franchise_id"), req.Param("period"))
	if err != nil {
		return lambdaError("Failed to get invoiced income", err)
	}
	return lambda.JSON(http.StatusOK, income)
}
