package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
	"github.com/juan49ers-spec/Repaart-sub012/internal/services"
	"github.com/juan49ers-spec/Repaart-sub012/pkg/lambda"
)

// PaymentHandler handles payment HTTP requests
type PaymentHandler struct {
	receivable services.AccountsReceivable
	collector  services.PaymentCollector
}

// NewPaymentHandler creates a new payment handler. collector may be nil when
// no card gateway is configured.
func NewPaymentHandler(receivable services.AccountsReceivable, collector services.PaymentCollector) *PaymentHandler {
	return &PaymentHandler{receivable: receivable, collector: collector}
}

func (h *PaymentHandler) cardCollector() (services.PaymentCollector, error) {
	if h.collector == nil {
		return nil, &models.BillingError{
			Op:      "CollectCardPayment",
			Kind:    errServiceUnavailable,
			Code:    models.CodePaymentGateway,
			Message: "El cobro con tarjeta no está disponible",
			Err:     fmt.Errorf("payment gateway: %w", errServiceUnavailable),
		}
	}
	return h.collector, nil
}

// @Summary Record a payment
// @Description Record a manual payment against an issued invoice
// @Tags payments
// @Accept json
// @Produce json
// @Param id path string true "Invoice ID"
// @Param payment body services.AddPaymentRequest true "Payment data"
// @Success 201 {object} services.PaymentResult
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /invoices/{id}/payments [post]
func (h *PaymentHandler) AddPayment(c *gin.Context) {
	var req services.AddPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	req.InvoiceID = c.Param("id")
	req.CreatedBy = actor(c, req.CreatedBy)

	result, err := h.receivable.AddPayment(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "Failed to record payment", err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// @Summary List payments of an invoice
// @Description List the payment receipts of an invoice ordered by payment date
// @Tags payments
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {array} models.PaymentReceipt
// @Failure 404 {object} ErrorResponse
// @Router /invoices/{id}/payments [get]
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	receipts, err := h.receivable.ListPayments(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to list payments", err)
		return
	}
	if receipts == nil {
		receipts = []*models.PaymentReceipt{}
	}

	c.JSON(http.StatusOK, receipts)
}

// @Summary Get a payment receipt
// @Tags payments
// @Produce json
// @Param id path string true "Receipt ID"
// @Success 200 {object} models.PaymentReceipt
// @Failure 404 {object} ErrorResponse
// @Router /payments/{id} [get]
func (h *PaymentHandler) GetPaymentReceipt(c *gin.Context) {
	receipt, err := h.receivable.GetPaymentReceipt(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to get payment receipt", err)
		return
	}

	c.JSON(http.StatusOK, receipt)
}

// @Summary Collect a card payment
// @Description Charge the outstanding amount of an invoice through the card gateway
// @Tags payments
// @Accept json
// @Produce json
// @Param id path string true "Invoice ID"
// @Param payment body services.CollectCardPaymentRequest true "Card data"
// @Success 201 {object} services.PaymentResult
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /invoices/{id}/card-payments [post]
func (h *PaymentHandler) CollectCardPayment(c *gin.Context) {
	collector, err := h.cardCollector()
	if err != nil {
		respondError(c, "Card payments unavailable", err)
		return
	}

	var req services.CollectCardPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	req.InvoiceID = c.Param("id")
	req.CreatedBy = actor(c, req.CreatedBy)

	result, err := collector.CollectCardPayment(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "Failed to collect card payment", err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// Lambda handler methods

func (h *PaymentHandler) HandleAdd(ctx context.Context, req *lambda.Request) (*lambda.Response, error) {
	var body services.AddPaymentRequest
	if err := decodeBody(req, &body); err != nil {
		return lambdaBadRequest(err)
	}
	body.InvoiceID = req.Param("id")
	body.CreatedBy = lambdaActor(req, body.CreatedBy)

	result, err := h.receivable.AddPayment(ctx, &body)
	if err != nil {
		return lambdaError("Failed to record payment", err)
	}
	return lambda.JSON(http.StatusCreated, result)
}

func (h *PaymentHandler) HandleList(ctx context.Context, req *lambda.Request) (*lambda.Response, error) {
	receipts, err := h.receivable.ListPayments(ctx, req.Param("id"))
	if err != nil {
		return lambdaError("Failed to list payments", err)
	}
	if receipts == nil {
		receipts = []*models.PaymentReceipt{}
	}
	return lambda.JSON(http.StatusOK, receipts)
}

func (h *PaymentHandler) HandleGet(ctx context.Context, req *lambda.Request) (*lambda.Response, error) {
	receipt, err := h.receivable.GetPaymentReceipt(ctx, req.Param("id"))
	if err != nil {
		return lambdaError("Failed to get payment receipt", err)
	}
	return lambda.JSON(http.StatusOK, receipt)
}

func (h *PaymentHandler) HandleCollectCard(ctx context.Context, req *lambda.Request) (*lambda.Response, error) {
	collector, err := h.cardCollector()
	if err != nil {
		return lambdaError("Card payments unavailable", err)
	}

	var body services.CollectCardPaymentRequest
	if err := decodeBody(req, &body); err != nil {
		return lambdaBadRequest(err)
	}
	body.InvoiceID = req.Param("id")
	body.CreatedBy = lambdaActor(req, body.CreatedBy)

	result, err := collector.CollectCardPayment(ctx, &body)
	if err != nil {
		return lambdaError("Failed to collect card payment", err)
	}
	return lambda.JSON(http.StatusCreated, result)
}
