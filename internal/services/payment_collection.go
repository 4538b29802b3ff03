package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
)

// providerApproved is the gateway status of a successful charge
const providerApproved = "approved"

// cardChargePayload is the payment request sent to the gateway
type cardChargePayload struct {
	TransactionAmount float64      `json:"transaction_amount"`
	Token             string       `json:"token,omitempty"`
	Description       string       `json:"description"`
	Installments      int          `json:"installments"`
	PaymentMethodID   string       `json:"payment_method_id,omitempty"`
	ExternalReference string       `json:"external_reference"`
	Payer             *chargePayer `json:"payer,omitempty"`
}

type chargePayer struct {
	Email string `json:"email"`
}

// paymentCollectionService implements the PaymentCollector interface
type paymentCollectionService struct {
	repos      RepositoryProvider
	receivable AccountsReceivable
	gateway    PaymentGateway
	validator  *validator.Validate
	logger     *logrus.Logger
}

// NewPaymentCollectionService creates a new card payment collector
func NewPaymentCollectionService(repos RepositoryProvider, receivable AccountsReceivable, gateway PaymentGateway, logger *logrus.Logger) PaymentCollector {
	if logger == nil {
		logger = logrus.New()
	}
	return &paymentCollectionService{
		repos:      repos,
		receivable: receivable,
		gateway:    gateway,
		validator:  newValidator(),
		logger:     logger,
	}
}

// CollectCardPayment charges an invoice through the gateway and records the
// approved charge as a CARD payment
func (s *paymentCollectionService) CollectCardPayment(ctx context.Context, req *CollectCardPaymentRequest) (*PaymentResult, error) {
	const op = "CollectCardPayment"
	if req == nil {
		return nil, models.NewValidationError(op, "", "La solicitud de cobro no puede estar vacía")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(op, err)
	}
	if !isFinite(req.Amount) {
		return nil, models.NewValidationError(op, "amount", "El importe del cobro no es un número válido")
	}

	invoice, err := s.repos.Invoices().GetByID(ctx, req.InvoiceID)
	if err != nil {
		return nil, notFoundOr(op, "Factura", req.InvoiceID, err)
	}
	if !invoice.AcceptsPayments() {
		return nil, models.NewInvalidStateError(op, "",
			fmt.Sprintf("La factura no admite pagos (estado actual: %s)", invoice.Status))
	}

	amount := models.Round2(req.Amount)
	if amount == 0 {
		amount = invoice.RemainingAmount
	}
	if amount <= 0 {
		return nil, models.NewValidationError(op, "amount", "La factura no tiene importe pendiente de cobro")
	}
	if models.SubMoney(amount, invoice.RemainingAmount) > 0 {
		return nil, models.NewValidationErrorWithCode(op, models.CodePaymentExceedsTotal, "amount",
			fmt.Sprintf("El cobro de %.2f € supera el importe pendiente de %.2f €", amount, invoice.RemainingAmount))
	}

	installments := req.Installments
	if installments <= 0 {
		installments = 1
	}
	charge := cardChargePayload{
		TransactionAmount: amount,
		Token:             req.Token,
		Description:       fmt.Sprintf("Factura %s", invoice.FullNumber),
		Installments:      installments,
		PaymentMethodID:   req.PaymentMethodID,
		ExternalReference: invoice.ID,
	}
	if req.PayerEmail != "" {
		charge.Payer = &chargePayer{Email: req.PayerEmail}
	}
	payload, err := json.Marshal(charge)
	if err != nil {
		return nil, fmt.Errorf("failed to encode card charge: %w", err)
	}

	providerID, status, _, err := s.gateway.CreatePayment(ctx, payload)
	if err != nil {
		s.logger.WithError(err).WithField("invoice_id", invoice.ID).Error("Payment gateway call failed")
		return nil, &models.BillingError{
			Op:      op,
			Kind:    models.ErrPersistence,
			Code:    models.CodePaymentGateway,
			Message: "No se pudo contactar con la pasarela de pago",
			Err:     err,
		}
	}
	if status != providerApproved {
		s.logger.WithFields(logrus.Fields{
			"invoice_id":  invoice.ID,
			"provider_id": providerID,
			"status":      status,
		}).Warn("Card payment rejected")
		return nil, models.NewValidationErrorWithCode(op, models.CodePaymentRejected, "token",
			fmt.Sprintf("El pago con tarjeta fue rechazado (estado: %s)", status))
	}

	return s.receivable.AddPayment(ctx, &AddPaymentRequest{
		InvoiceID: invoice.ID,
		Amount:    amount,
		Method:    models.PaymentMethodCard,
		Reference: providerID,
		Notes:     "Cobro con tarjeta",
		CreatedBy: req.CreatedBy,
	})
}
