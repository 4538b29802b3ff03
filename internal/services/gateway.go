package services

import (
	"context"
	"encoding/json"
)

// PaymentGateway abstracts the external card payment provider.
// The raw provider response is kept for traceability.
type PaymentGateway interface {
	CreatePayment(ctx context.Context, requestPayload json.RawMessage) (providerPaymentID string, providerStatus string, providerResponse json.RawMessage, err error)
}
