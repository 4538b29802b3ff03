package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
	"github.com/juan49ers-spec/Repaart-sub012/internal/repositories"
	"github.com/juan49ers-spec/Repaart-sub012/internal/services"
	"github.com/juan49ers-spec/Repaart-sub012/pkg/lambda"
)

// InvoiceHandler handles invoice lifecycle HTTP requests
type InvoiceHandler struct {
	engine services.InvoiceEngine
}

// NewInvoiceHandler creates a new invoice handler
func NewInvoiceHandler(engine services.InvoiceEngine) *InvoiceHandler {
	return &InvoiceHandler{engine: engine}
}

// IssueInvoiceRequest carries the actor issuing an invoice when no token identifies one
type IssueInvoiceRequest struct {
	IssuedBy string `json:"issued_by,omitempty"`
}

// RectifyInvoiceRequest carries the reason of a rectification
type RectifyInvoiceRequest struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor,omitempty"`
}

// listResponse wraps a page of invoices
func listResponse(invoices []*models.Invoice, filter *repositories.InvoiceFilter) models.APIResponse {
	if invoices == nil {
		invoices = []*models.Invoice{}
	}
	return models.APIResponse{
		Success: true,
		Data:    invoices,
		Pagination: &models.PaginationResult{
			Total:   len(invoices),
			Limit:   filter.Limit,
			HasNext: filter.Limit > 0 && len(invoices) == filter.Limit,
		},
		Timestamp: time.Now().UTC(),
	}
}

// @Summary Create a draft invoice
// @Description Create a DRAFT invoice with its lines; totals are computed server side
// @Tags invoices
// @Accept json
// @Produce json
// @Param invoice body services.CreateDraftRequest true "Draft data"
// @Success 201 {object} models.Invoice
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /invoices [post]
func (h *InvoiceHandler) CreateDraft(c *gin.Context) {
	var req services.CreateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	req.CreatedBy = actor(c, req.CreatedBy)

	invoice, err := h.engine.CreateDraft(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "Failed to create draft", err)
		return
	}

	c.JSON(http.StatusCreated, invoice)
}

// @Summary Update a draft invoice
// @Description Replace the lines, customer, payment term or notes of a DRAFT invoice
// @Tags invoices
// @Accept json
// @Produce json
// @Param id path string true "Invoice ID"
// @Param invoice body services.UpdateDraftRequest true "Draft changes"
// @Success 200 {object} models.Invoice
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /invoices/{id} [put]
func (h *InvoiceHandler) UpdateDraft(c *gin.Context) {
	var req services.UpdateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	invoice, err := h.engine.UpdateDraft(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, "Failed to update draft", err)
		return
	}

	c.JSON(http.StatusOK, invoice)
}

// @Summary Get an invoice
// @Description Get an invoice or credit note by ID
// @Tags invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} models.Invoice
// @Failure 404 {object} ErrorResponse
// @Router /invoices/{id} [get]
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	invoice, err := h.engine.GetInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to get invoice", err)
		return
	}

	c.JSON(http.StatusOK, invoice)
}

// @Summary List invoices
// @Description List invoices, newest first, with optional filters
// @Tags invoices
// @Produce json
// @Param franchise_id query string false "Filter by franchise"
// @Param customer_id query string false "Filter by customer"
// @Param status query string false "Filter by status" Enums(DRAFT, ISSUED, RECTIFIED)
// @Param type query string false "Filter by type" Enums(STANDARD, RECTIFICATIVE)
// @Param payment_status query string false "Filter by payment status" Enums(PENDING, PARTIAL, PAID)
// @Param period query string false "Filter by issue month (YYYY-MM)"
// @Param created_after query string false "Filter by creation date (RFC3339 format)"
// @Param limit query int false "Limit number of results" default(100)
// @Param offset query int false "Offset for pagination" default(0)
// @Success 200 {object} models.APIResponse
// @Failure 400 {object} ErrorResponse
// @Router /invoices [get]
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	filter, err := parseInvoiceFilter(c.Query)
	if err != nil {
		respondBadRequest(c, err)
		return
	}

	invoices, err := h.engine.ListInvoices(c.Request.Context(), filter)
	if err != nil {
		respondError(c, "Failed to list invoices", err)
		return
	}

	c.JSON(http.StatusOK, listResponse(invoices, filter))
}

// @Summary Issue an invoice
// @Description Number, snapshot and freeze a DRAFT invoice
// @Tags invoices
// @Accept json
// @Produce json
// @Param id path string true "Invoice ID"
// @Param request body IssueInvoiceRequest false "Issuer"
// @Success 200 {object} models.Invoice
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /invoices/{id}/issue [post]
func (h *InvoiceHandler) IssueInvoice(c *gin.Context) {
	var req IssueInvoiceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, err)
			return
		}
	}

	invoice, err := h.engine.IssueInvoice(c.Request.Context(), c.Param("id"), actor(c, req.IssuedBy))
	if err != nil {
		respondError(c, "Failed to issue invoice", err)
		return
	}

	c.JSON(http.StatusOK, invoice)
}

// @Summary Rectify an invoice
// @Description Create the credit note of an ISSUED invoice and mark the original RECTIFIED
// @Tags invoices
// @Accept json
// @Produce json
// @Param id path string true "Invoice ID"
// @Param request body RectifyInvoiceRequest true "Rectification reason"
// @Success 201 {object} services.RectifyResult
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /invoices/{id}/rectify [post]
func (h *InvoiceHandler) RectifyInvoice(c *gin.Context) {
	var req RectifyInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	result, err := h.engine.RectifyInvoice(c.Request.Context(), c.Param("id"), req.Reason, actor(c, req.Actor))
	if err != nil {
		respondError(c, "Failed to rectify invoice", err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// @Summary Verify invoice totals
// @Description Recompute the totals of an invoice from its lines and compare them with the stored ones
// @Tags invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} services.TotalsVerification
// @Failure 404 {object} ErrorResponse
// @Router /invoices/{id}/verify [get]
func (h *InvoiceHandler) VerifyTotals(c *gin.Context) {
	verification, err := h.engine.VerifyTotals(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to verify totals", err)
		return
	}

	c.JSON(http.StatusOK, verification)
}

// @Summary Export an invoice
// @Description Download an invoice as CSV, JSON, XML or XLSX
// @Tags invoices
// @Produce text/csv,application/json,application/xml,application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path string true "Invoice ID"
// @Param format query string false "csv, json, xml or xlsx (default json)"
// @Success 200 {file} file
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /invoices/{id}/export [get]
func (h *InvoiceHandler) ExportInvoice(c *gin.Context) {
	format, err := services.ParseExportFormat(c.Query("format"))
	if err != nil {
		respondError(c, "Failed to export invoice", err)
		return
	}

	file, err := h.engine.ExportInvoice(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		respondError(c, "Failed to export invoice", err)
		return
	}

	c.Header("Content-Disposition", attachment(file.FileName))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// Lambda handler methods

func (h *InvoiceHandler) HandleCreate(ctx context.Context, req *lambda.Request) (*lambda.Response, error) {
	var body services.CreateDraftRequest
	if err := decodeBody(req, &body); err != nil {
		return lambdaBadRequest(err)
	}
	body.CreatedBy = lambdaActor(req, body.CreatedBy)

	invoice, err := h.engine.CreateDraft(ctx, &body)
	if err != nil {
		return lambdaError("Failed to create draft", err)
	}
	return lambda.JSON(http.StatusCreated, invoice)
}

func (h *InvoiceHandler) HandleUpdate(ctx context.Context, req *lambda.Request) (*lambda.Response, error) {
	var body services.UpdateDraftRequest
	if err := decodeBody(req, &body); err != nil {
		return lambdaBadRequest(err)
	}

	invoice, err := h.engine.UpdateDraft(ctx, req.Param("id"), &body)
	if err != nil {
		return lambdaError("Failed to update draft", err)
	}
	return lambda.JSON(http.StatusOK, invoice)
}

func (h *InvoiceHandler) HandleGet(ctx context.Context, req *lambda.Request) (*lambda.Response, error) {
	invoice, err := h.engine.GetInvoice(ctx, req.Param("id"))
	if err != nil {
		return lambdaError("Failed to get invoice", err)
	}
	return lambda.JSON(http.StatusOK, invoice)
}

func (h *InvoiceHandler) HandleList(ctx context.Context, req *lambda.Request) (*lambda.Response, error) {
	filter, err := parseInvoiceFilter(req.Query)
	if err != nil {
		return lambdaBadRequest(err)
	}

	invoices, err := h.engine.ListInvoices(ctx, filter)
	if err != nil {
		return lambdaError("Failed to list invoices", err)
	}
	return lambda.JSON(http.StatusOK, listResponse(invoices, filter))
}

func (h *InvoiceHandler) HandleIssue(ctx context.Context, req *lambda.Request) (*lambda.Response, error) {
	var body IssueInvoiceRequest
	if err := decodeOptionalBody(req, &body); err != nil {
		return lambdaBadRequest(err)
	}

	invoice, err := h.engine.IssueInvoice(ctx, req.Param("id"), lambdaActor(req, body.IssuedBy))
	if err != nil {
		return lambdaError("Failed to issue invoice", err)
	}
	return lambda.JSON(http.StatusOK, invoice)
}

func (h *InvoiceHandler) HandleRectify(ctx context.Context, req *lambda.Request) (*lambda.Response, error) {
	var body RectifyInvoiceRequest
	if err := decodeBody(req, &body); err != nil {
		return lambdaBadRequest(err)
	}

	result, err := h.engine.RectifyInvoice(ctx, req.Param("id"), body.Reason, lambdaActor(req, body.Actor))
	if err != nil {
		return lambdaError("Failed to rectify invoice", err)
	}
	return lambda.JSON(http.StatusCreated, result)
}

func (h *InvoiceHandler) HandleVerify(ctx context.Context, req *lambda.Request) (*lambda.Response, error) {
	verification, err := h.engine.VerifyTotals(ctx, req.Param("id"))
	if err != nil {
		return lambdaError("Failed to verify totals", err)
	}
	return lambda.JSON(http.StatusOK, verification)
}

func (h *InvoiceHandler) HandleExport(ctx context.Context, req *lambda.Request) (*lambda.Response, error) {
	format, err := services.ParseExportFormat(req.Query("format"))
	if err != nil {
		return lambdaError("Failed to export invoice", err)
	}

	file, err := h.engine.ExportInvoice(ctx, req.Param("id"), format)
	if err != nil {
		return lambdaError("Failed to export invoice", err)
	}
	return &lambda.Response{
		StatusCode: http.StatusOK,
		Headers: map[string]string{
			"Content-Type":        file.ContentType,
			"Content-Disposition": attachment(file.FileName),
		},
		Body: file.Data,
	}, nil
}

func attachment(fileName string) string {
	return fmt.Sprintf("attachment; filename=%q", fileName)
}
