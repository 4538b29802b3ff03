package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/sirupsen/logrus"
)

var (
	// ErrMissingAccessToken is returned when no MercadoPago token is configured outside mock mode
	ErrMissingAccessToken = errors.New("missing MercadoPago access token")

	// ErrGatewayNotConfigured is returned by a zero gateway
	ErrGatewayNotConfigured = errors.New("mercado pago gateway not configured")
)

// MercadoPagoGateway charges cards through the MercadoPago payments API
type MercadoPagoGateway struct {
	client   payment.Client
	mockMode bool
	logger   *logrus.Logger
}

// NewMercadoPagoGateway creates a gateway. With mock set, or with the mock
// environment switch on, charges are approved locally without calling the API.
func NewMercadoPagoGateway(accessToken string, mock bool, logger *logrus.Logger) (*MercadoPagoGateway, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if mock || MockEnabledFromEnv() {
		logger.Info("Payment gateway running in mock mode")
		return &MercadoPagoGateway{mockMode: true, logger: logger}, nil
	}
	if accessToken == "" {
		return nil, ErrMissingAccessToken
	}

	cfg, err := config.New(accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create MercadoPago config: %w", err)
	}
	logger.Info("MercadoPago client initialized")
	return &MercadoPagoGateway{client: payment.NewClient(cfg), logger: logger}, nil
}

// CreatePayment sends the payment request and returns the provider id, status and raw response
func (g *MercadoPagoGateway) CreatePayment(ctx context.Context, requestPayload json.RawMessage) (string, string, json.RawMessage, error) {
	if g != nil && g.mockMode {
		return g.mockPayment(requestPayload)
	}
	if g == nil || g.client == nil {
		return "", "", nil, ErrGatewayNotConfigured
	}

	var req payment.Request
	if err := json.Unmarshal(requestPayload, &req); err != nil {
		return "", "", nil, fmt.Errorf("invalid payment request: %w", err)
	}

	resp, err := g.client.Create(ctx, req)
	if err != nil {
		g.logger.WithError(err).Error("MercadoPago payment creation failed")
		return "", "", nil, err
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to encode provider response: %w", err)
	}

	g.logger.WithFields(logrus.Fields{
		"provider_payment_id": resp.ID,
		"provider_status":     resp.Status,
	}).Info("MercadoPago payment created")

	return fmt.Sprintf("%d", resp.ID), resp.Status, raw, nil
}

// mockPayment echoes the request back as an approved payment
func (g *MercadoPagoGateway) mockPayment(requestPayload json.RawMessage) (string, string, json.RawMessage, error) {
	resp := map[string]any{}
	if len(requestPayload) > 0 && json.Valid(requestPayload) {
		if err := json.Unmarshal(requestPayload, &resp); err != nil {
			resp = map[string]any{"request_payload_raw": string(requestPayload)}
		}
	}

	now := time.Now().UTC()
	id := strconv.FormatInt(now.UnixNano(), 10)
	resp["id"] = id
	resp["status"] = "approved"
	resp["status_detail"] = "accredited"
	if _, ok := resp["date_created"]; !ok {
		resp["date_created"] = now.Format(time.RFC3339Nano)
	}
	if _, ok := resp["date_approved"]; !ok {
		resp["date_approved"] = now.Format(time.RFC3339Nano)
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return "", "", nil, err
	}
	g.logger.WithField("provider_payment_id", id).Debug("Mock payment approved")
	return id, "approved", raw, nil
}

// MockEnabledFromEnv reports whether PAYMENT_GATEWAY_MOCK or MERCADOPAGO_MOCK switch mock mode on
func MockEnabledFromEnv() bool {
	for _, key := range []string{"PAYMENT_GATEWAY_MOCK", "MERCADOPAGO_MOCK"} {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
		case "1", "true", "yes", "on", "mock":
			return true
		}
	}
	return false
}
