package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/juan49ers-spec/Repaart-sub012/internal/services"
	"github.com/juan49ers-spec/Repaart-sub012/pkg/lambda"
)

// TaxVaultHandler handles monthly IVA requests
type TaxVaultHandler struct {
	vault services.TaxVault
}

// NewTaxVaultHandler creates a new tax vault handler
func NewTaxVaultHandler(vault services.TaxVault) *TaxVaultHandler {
	return &TaxVaultHandler{vault: vault}
}

// MonthlyCloseRequest carries the actor closing a month when no token identifies one
type MonthlyCloseRequest struct {
	ClosedBy string `json:"closed_by,omitempty"`
}

// @Summary Record an expense
// @Description Record a supplier expense and add its IVA to the month
// @Tags tax-vault
// @Accept json
// @Produce json
// @Param expense body services.RecordExpenseRequest true "Expense data"
// @Success 201 {object} models.ExpenseRecord
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /tax-vault/expenses [post]
func (h *TaxVaultHandler) RecordExpense(c *gin.Context) {
	var req services.RecordExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	req.CreatedBy = actor(c, req.CreatedBy)

	expense, err := h.vault.RecordExpense(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "Failed to record expense", err)
		return
	}

	c.JSON(http.StatusCreated, expense)
}

// @Summary Get a tax vault entry
// @Description Get the IVA accumulated by a franchise in a month
// @Tags tax-vault
// @Produce json
// @Param franchise_id path string true "Franchise ID"
// @Param period path string true "Month (YYYY-MM)"
// @Success 200 {object} models.TaxVaultEntry
// @Failure 400 {object} ErrorResponse
// @Router /tax-vault/{franchise_id}/{period} [get]
func (h *TaxVaultHandler) GetEntry(c *gin.Context) {
	entry, err := h.vault.GetTaxVaultEntry(c.Request.Context(), c.Param("franchise_id"), c.Param("period"))
	if err != nil {
		respondError(c, "Failed to get tax vault entry", err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

// @Summary Close a month
// @Description Recompute the IVA of a month from its invoices and expenses and lock it
// @Tags tax-vault
// @Accept json
// @Produce json
// @Param franchise_id path string true "Franchise ID"
// @Param period path string true "Month (YYYY-MM)"
// @Param request body MonthlyCloseRequest false "Closing actor"
// @Success 200 {object} models.MonthlyCloseResult
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /tax-vault/{franchise_id}/{period}/close [post]
func (h *TaxVaultHandler) CloseMonth(c *gin.Context) {
	var req MonthlyCloseRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, err)
			return
		}
	}

	result, err := h.vault.ExecuteMonthlyClose(c.Request.Context(), c.Param("franchise_id"), c.Param("period"), actor(c, req.ClosedBy))
	if err != nil {
		respondError(c, "Failed to close month", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// @Summary Recalculate a month
// @Description Rebuild the IVA of an open month from its stored invoices and expenses
// @Tags tax-vault
// @Produce json
// @Param franchise_id path string true "Franchise ID"
// @Param period path string true "Month (YYYY-MM)"
// @Success 200 {object} models.TaxVaultEntry
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /tax-vault/{franchise_id}/{period}/recalculate [post]
func (h *TaxVaultHandler) RecalculateMonth(c *gin.Context) {
	entry, err := h.vault.RecalculateMonth(c.Request.Context(), c.Param("franchise_id"), c.Param("period"))
	if err != nil {
		respondError(c, "Failed to recalculate month", err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

// UnlockRequest carries the reason for reopening a closed month
type UnlockRequest struct {
	Reason      string `json:"reason"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// @Summary Request a month unlock
// @Description Record a pending request to reopen a closed month
// @Tags tax-vault
// @Accept json
// @Produce json
// @Param franchise_id path string true "Franchise ID"
// @Param period path string true "Month (YYYY-MM)"
// @Param request body UnlockRequest true "Reason"
// @Success 202 {object} models.TaxVaultEntry
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /tax-vault/{franchise_id}/{period}/unlock-request [post]
func (h *TaxVaultHandler) RequestUnlock(c *gin.Context) {
	var req UnlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	entry, err := h.vault.RequestMonthUnlock(c.Request.Context(), &services.MonthUnlockRequest{
		FranchiseID: c.Param("franchise_id"),
		Period:      c.Param("period"),
		Reason:      req.Reason,
		RequestedBy: actor(c, req.RequestedBy),
	})
	if err != nil {
		respondError(c, "Failed to request month unlock", err)
		return
	}

	c.JSON(http.StatusAccepted, entry)
}

// Lambda handler methods

func (h *TaxVaultHandler) HandleRecordExpense(ctx context.Context, req *lambda.Request) (*lambda.Response, error) {
	var body services.RecordExpenseRequest
	if err := decodeBody(req, &body); err != nil {
		return lambdaBadRequest(err)
	}
	body.CreatedBy = lambdaActor(req, body.CreatedBy)

	expense, err := h.vault.RecordExpense(ctx, &body)
	if err != nil {
		return lambdaError("Failed to record expense", err)
	}
	return lambda.JSON(http.StatusCreated, expense)
}

func (h *TaxVaultHandler) HandleGetEntry(ctx context.Context, req *lambda.Request) (*lambda.Response, error) {
	entry, err := h.vault.GetTaxVaultEntry(ctx, req.Param("franchise_id"), req.Param("period"))
	if err != nil {
		return lambdaError("Failed to get tax vault entry", err)
	}
	return lambda.JSON(http.StatusOK, entry)
}

func (h *TaxVaultHandler) HandleCloseMonth(ctx context.Context, req *lambda.Request) (*lambda.Response, error) {
	var body MonthlyCloseRequest
	if err := decodeOptionalBody(req, &body); err != nil {
		return lambdaBadRequest(err)
	}

	result, err := h.vault.ExecuteMonthlyClose(ctx, req.Param("franchise_id"), req.Param("period"), lambdaActor(req, body.ClosedBy))
	if err != nil {
		return lambdaError("Failed to close month", err)
	}
	return lambda.JSON(http.StatusOK, result)
}

func (h *TaxVaultHandler) HandleRecalculate(ctx context.Context, req *lambda.Request) (*lambda.Response, error) {
	entry, err := h.vault.RecalculateMonth(ctx, req.Param("franchise_id"), req.Param("period"))
	if err != nil {
		return lambdaError("Failed to recalculate month", err)
	}
	return lambda.JSON(http.StatusOK, entry)
}

func (h *TaxVaultHandler) HandleRequestUnlock(ctx context.Context, req *lambda.Request) (*lambda.Response, error) {
	var body UnlockRequest
	if err := decodeBody(req, &body); err != nil {
		return lambdaBadRequest(err)
	}

	entry, err := h.vault.RequestMonthUnlock(ctx, &services.MonthUnlockRequest{
		FranchiseID: req.Param("franchise_id"),
		Period:      req.Param("period"),
		Reason:      body.Reason,
		RequestedBy: lambdaActor(req, body.RequestedBy),
	})
	if err != nil {
		return lambdaError("Failed to request month unlock", err)
	}
	return lambda.JSON(http.StatusAccepted, entry)
}
