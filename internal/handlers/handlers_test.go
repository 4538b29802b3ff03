package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/juan49ers-spec/Repaart-sub012/internal/adapters/payments"
	"github.com/juan49ers-spec/Repaart-sub012/internal/adapters/storage"
	"github.com/juan49ers-spec/Repaart-sub012/internal/database"
	"github.com/juan49ers-spec/Repaart-sub012/internal/middleware"
	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
	"github.com/juan49ers-spec/Repaart-sub012/internal/repositories"
	"github.com/juan49ers-spec/Repaart-sub012/internal/services"
	"github.com/juan49ers-spec/Repaart-sub012/pkg/lambda"
)

const testFranchiseID = "franchise-madrid"

var testNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router    *gin.Engine
	repos     *repositories.RepositoryManager
	container *services.ServiceContainer
	tokens    *middleware.TokenValidator
}

func newTestServer(t *testing.T, withGateway bool) *testServer {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	repos := repositories.NewRepositoryManager(storage.NewMemoryStore(), database.BackendMemory, &storage.RetryConfig{
		MaxAttempts:   20,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
	}, logger)
	t.Cleanup(func() { repos.Close() })

	config := services.DefaultServiceConfig()
	config.Clock = services.NewFixedClock(testNow)
	config.Logger = logger
	config.DefaultRates = models.BillingRates{
		HourlyRate: 12,
		KmRate:     0.30,
		IRPFRate:   0.15,
		TaxRate:    models.TaxRateGeneral,
	}
	if withGateway {
		gateway, err := payments.NewMercadoPagoGateway("", true, logger)
		if err != nil {
			t.Fatalf("failed to create mock gateway: %v", err)
		}
		config.Gateway = gateway
	}

	container, err := services.NewServiceContainer(repos, config)
	if err != nil {
		t.Fatalf("failed to create services: %v", err)
	}

	profile := &models.FranchiseProfile{
		ID:         testFranchiseID,
		Name:       "Repaart Madrid",
		FiscalName: "Repaart Madrid Logística SL",
		TaxID:      "B87654321",
		Phone:      "+34 600 123 456",
		Address:    models.Address{Street: "Calle Mayor 1", City: "Madrid", PostalCode: "28013"},
	}
	if err := repos.Profiles().Save(context.Background(), models.CustomerTypeFranchise, profile); err != nil {
		t.Fatalf("failed to save issuer: %v", err)
	}

	tokens := middleware.NewTokenValidator("test-secret", "")
	router := gin.New()
	SetupMiddleware(router, &MiddlewareConfig{Logger: logger})
	SetupRoutes(router, &RouterConfig{
		Services:  container,
		Health:    repos,
		Tokens:    tokens,
		Version:   "test",
		StartedAt: testNow,
	})

	return &testServer{router: router, repos: repos, container: container, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func draftBody(customerID string) map[string]interface{} {
	return map[string]interface{}{
		"franchise_id":  testFranchiseID,
		"customer_id":   customerID,
		"customer_type": "RESTAURANT",
		"customer": map[string]interface{}{
			"name":   "Restaurante " + customerID,
			"tax_id": "B12345678",
		},
		"items": []map[string]interface{}{
			{"description": "Reparto", "quantity": 100, "unit_price": 2.5, "tax_rate": 0.21},
		},
	}
}

// issue creates and issues an invoice worth 302.50 for the customer
func (s *testServer) issue(t *testing.T, customerID string) *models.Invoice {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/api/v1/invoices", draftBody(customerID), "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create draft: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var draft models.Invoice
	decode(t, rec, &draft)

	rec = s.do(t, http.MethodPost, "/api/v1/invoices/"+draft.ID+"/issue", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("issue: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var issued models.Invoice
	decode(t, rec, &issued)
	return &issued
}

func TestInvoiceHandler_Lifecycle(t *testing.T) {
	srv := newTestServer(t, false)
	token, err := srv.tokens.GenerateToken(middleware.Claims{UserID: "u1", Email: "admin@repaart.es"}, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	rec := srv.do(t, http.MethodPost, "/api/v1/invoices", draftBody("rest-1"), token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var draft models.Invoice
	decode(t, rec, &draft)

	if draft.Status != models.InvoiceStatusDraft {
		t.Errorf("expected DRAFT, got %s", draft.Status)
	}
	if draft.Subtotal != 250.00 || draft.TaxTotal != 52.50 || draft.Total != 302.50 {
		t.Errorf("unexpected totals: %.2f / %.2f / %.2f", draft.Subtotal, draft.TaxTotal, draft.Total)
	}
	if draft.CreatedBy != "admin@repaart.es" {
		t.Errorf("expected token actor as creator, got %q", draft.CreatedBy)
	}

	rec = srv.do(t, http.MethodPost, "/api/v1/invoices/"+draft.ID+"/issue", nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("issue: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var issued models.Invoice
	decode(t, rec, &issued)
	if issued.Status != models.InvoiceStatusIssued || issued.FullNumber == "" {
		t.Errorf("expected numbered ISSUED invoice, got %s %q", issued.Status, issued.FullNumber)
	}
	if issued.IssuedBy != "admin@repaart.es" {
		t.Errorf("expected token actor as issuer, got %q", issued.IssuedBy)
	}

	rec = srv.do(t, http.MethodPut, "/api/v1/invoices/"+draft.ID, map[string]interface{}{"notes": "late change"}, token)
	if rec.Code != http.StatusConflict {
		t.Errorf("updating an issued invoice: expected 409, got %d", rec.Code)
	}
	var errResp ErrorResponse
	decode(t, rec, &errResp)
	if errResp.Code != models.CodeInvalidState {
		t.Errorf("expected %s, got %s", models.CodeInvalidState, errResp.Code)
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/invoices/"+draft.ID+"/verify", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d", rec.Code)
	}
	var verification services.TotalsVerification
	decode(t, rec, &verification)
	if !verification.Valid {
		t.Error("stored totals should verify")
	}

	rec = srv.do(t, http.MethodPost, "/api/v1/invoices/"+draft.ID+"/rectify", map[string]string{"reason": ""}, token)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("rectify without reason: expected 400, got %d", rec.Code)
	}

	rec = srv.do(t, http.MethodPost, "/api/v1/invoices/"+draft.ID+"/rectify", map[string]string{"reason": "Precio erróneo"}, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("rectify: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var rectified services.RectifyResult
	decode(t, rec, &rectified)
	if rectified.Original.Status != models.InvoiceStatusRectified {
		t.Errorf("expected original RECTIFIED, got %s", rectified.Original.Status)
	}
	if rectified.Rectification.Total != -302.50 {
		t.Errorf("expected credit note of -302.50, got %.2f", rectified.Rectification.Total)
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/invoices?franchise_id="+testFranchiseID+"&limit=1", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	var list struct {
		Success    bool                    `json:"success"`
		Data       []models.Invoice        `json:"data"`
		Pagination models.PaginationResult `json:"pagination"`
	}
	decode(t, rec, &list)
	if !list.Success || len(list.Data) != 1 || !list.Pagination.HasNext {
		t.Errorf("expected one invoice and a next page, got %d (has_next %v)", len(list.Data), list.Pagination.HasNext)
	}
}

func TestInvoiceHandler_Errors(t *testing.T) {
	srv := newTestServer(t, false)

	emptyItems := draftBody("rest-1")
	emptyItems["items"] = []interface{}{}
	noFranchise := draftBody("rest-1")
	noFranchise["franchise_id"] = ""

	tests := []struct {
		name       string
		method     string
		path       string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{"unknown invoice", http.MethodGet, "/api/v1/invoices/missing", nil, http.StatusNotFound, models.CodeNotFound},
		{"empty items", http.MethodPost, "/api/v1/invoices", emptyItems, http.StatusBadRequest, models.CodeValidation},
		{"missing franchise", http.MethodPost, "/api/v1/invoices", noFranchise, http.StatusBadRequest, models.CodeValidation},
		{"malformed body", http.MethodPost, "/api/v1/invoices", "not an object", http.StatusBadRequest, models.CodeValidation},
		{"issue unknown", http.MethodPost, "/api/v1/invoices/missing/issue", nil, http.StatusNotFound, models.CodeNotFound},
		{"bad limit", http.MethodGet, "/api/v1/invoices?limit=abc", nil, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, tt.method, tt.path, tt.body, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantCode == "" {
				return
			}
			var resp ErrorResponse
			decode(t, rec, &resp)
			if resp.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, resp.Code)
			}
		})
	}
}

func TestPaymentHandler(t *testing.T) {
	srv := newTestServer(t, false)
	invoice := srv.issue(t, "rest-1")
	paymentsPath := "/api/v1/invoices/" + invoice.ID + "/payments"

	rec := srv.do(t, http.MethodPost, paymentsPath, map[string]interface{}{"amount": -100, "method": "TRANSFER"}, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative amount: expected 400, got %d", rec.Code)
	}

	rec = srv.do(t, http.MethodPost, paymentsPath, map[string]interface{}{"amount": 500, "method": "TRANSFER"}, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("excess amount: expected 400, got %d", rec.Code)
	}

	rec = srv.do(t, http.MethodPost, paymentsPath, map[string]interface{}{"amount": 100, "method": "TRANSFER"}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var result services.PaymentResult
	decode(t, rec, &result)
	if result.PaymentStatus != models.PaymentStatusPartial || result.RemainingAmount != 202.50 {
		t.Errorf("expected PARTIAL with 202.50 left, got %s with %.2f", result.PaymentStatus, result.RemainingAmount)
	}

	rec = srv.do(t, http.MethodGet, paymentsPath, nil, "")
	var receipts []models.PaymentReceipt
	decode(t, rec, &receipts)
	if len(receipts) != 1 {
		t.Fatalf("expected 1 receipt, got %d", len(receipts))
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/payments/"+receipts[0].ID, nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("get receipt: expected 200, got %d", rec.Code)
	}

	rec = srv.do(t, http.MethodPost, "/api/v1/invoices/"+invoice.ID+"/card-payments", map[string]interface{}{"token": "tok"}, "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("card payment without gateway: expected 503, got %d", rec.Code)
	}
}

func TestPaymentHandler_CardPayment(t *testing.T) {
	srv := newTestServer(t, true)
	invoice := srv.issue(t, "rest-1")

	rec := srv.do(t, http.MethodPost, "/api/v1/invoices/"+invoice.ID+"/card-payments",
		map[string]interface{}{"token": "card-token", "payment_method_id": "visa"}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var result services.PaymentResult
	decode(t, rec, &result)
	if result.PaymentStatus != models.PaymentStatusPaid || result.RemainingAmount != 0 {
		t.Errorf("expected PAID, got %s with %.2f left", result.PaymentStatus, result.RemainingAmount)
	}
}

func TestBillingHandler(t *testing.T) {
	srv := newTestServer(t, false)
	srv.issue(t, "rest-1")
	srv.issue(t, "rest-2")

	rec := srv.do(t, http.MethodGet, "/api/v1/billing/debt/"+testFranchiseID, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var dashboard models.DebtDashboard
	decode(t, rec, &dashboard)
	if len(dashboard.Customers) != 2 {
		t.Errorf("expected 2 debtors, got %d", len(dashboard.Customers))
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/billing/debt/"+testFranchiseID+"/customers/rest-1", nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("customer debt: expected 200, got %d", rec.Code)
	}

	restaurant := &models.FranchiseProfile{
		ID:         "rest-3",
		FiscalName: "Casa Pepe SL",
		TaxID:      "B11223344",
		Address:    models.Address{Street: "Calle Luna 4", City: "Madrid", PostalCode: "28004"},
	}
	if err := srv.repos.Profiles().Save(context.Background(), models.CustomerTypeRestaurant, restaurant); err != nil {
		t.Fatalf("failed to save restaurant: %v", err)
	}

	hours := 8.0
	calc := CalculateBillingRequest{
		Facts: models.PeriodFacts{
			FranchiseID:  testFranchiseID,
			CustomerID:   "rest-3",
			CustomerType: models.CustomerTypeRestaurant,
			Period:       "2026-03",
			Shifts:       []models.ShiftFact{{RiderID: "r1", DurationHours: &hours, DistanceKm: 40, Orders: 12}},
		},
	}
	rec = srv.do(t, http.MethodPost, "/api/v1/billing/calculate", calc, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("calculate: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var calculated CalculateBillingResponse
	decode(t, rec, &calculated)
	if calculated.Result == nil || calculated.Result.TotalHours != 8 || calculated.Draft != nil {
		t.Errorf("unexpected calculation: %+v", calculated)
	}

	calc.CreateDraft = true
	rec = srv.do(t, http.MethodPost, "/api/v1/billing/calculate", calc, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("calculate with draft: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &calculated)
	if calculated.Draft == nil || calculated.Draft.Status != models.InvoiceStatusDraft {
		t.Error("expected a stored draft")
	}

	calc.Facts.Shifts = nil
	calc.CreateDraft = false
	rec = srv.do(t, http.MethodPost, "/api/v1/billing/calculate", calc, "")
	var errResp ErrorResponse
	decode(t, rec, &errResp)
	if rec.Code != http.StatusBadRequest || errResp.Code != models.CodeInsufficientLogistics {
		t.Errorf("no facts: expected 400 %s, got %d %s", models.CodeInsufficientLogistics, rec.Code, errResp.Code)
	}

	rec = srv.do(t, http.MethodPost, "/api/v1/billing/break-even", models.PeriodAggregate{}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("break-even: expected 200, got %d", rec.Code)
	}
	var breakEven models.BreakEvenResult
	decode(t, rec, &breakEven)
	if breakEven.AvgTicket != 0 || breakEven.BreakEvenOrders != 0 {
		t.Errorf("all-zero aggregate should give zero thresholds, got %+v", breakEven)
	}

	rec = srv.do(t, http.MethodPut, "/api/v1/billing/metrics",
		models.FranchiseMetrics{FranchiseID: testFranchiseID, Period: "2026-03", Hours: 100, Orders: 250}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/billing/break-even/"+testFranchiseID+"/2026-03", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &breakEven)
	if breakEven.ActualProductivity != 2.5 {
		t.Errorf("expected productivity 2.5, got %v", breakEven.ActualProductivity)
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/billing/break-even/"+testFranchiseID+"/marzo", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad period: expected 400, got %d", rec.Code)
	}
}

func TestTaxVaultHandler(t *testing.T) {
	srv := newTestServer(t, false)
	srv.issue(t, "rest-1")
	entryPath := "/api/v1/tax-vault/" + testFranchiseID + "/2026-03"

	expense := map[string]interface{}{
		"franchise_id": testFranchiseID,
		"concept":      "Combustible",
		"amount":       100,
		"tax_rate":     0.21,
		"date":         testNow.Format(time.RFC3339),
	}
	rec := srv.do(t, http.MethodPost, "/api/v1/tax-vault/expenses", expense, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expense: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = srv.do(t, http.MethodGet, entryPath, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("entry: expected 200, got %d", rec.Code)
	}
	var entry models.TaxVaultEntry
	decode(t, rec, &entry)
	if entry.IVARepercutido != 52.50 || entry.IVASoportado != 21.00 {
		t.Errorf("unexpected IVA: repercutido %.2f soportado %.2f", entry.IVARepercutido, entry.IVASoportado)
	}

	rec = srv.do(t, http.MethodPost, entryPath+"/close", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("close: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = srv.do(t, http.MethodPost, entryPath+"/close", nil, "")
	var errResp ErrorResponse
	decode(t, rec, &errResp)
	if rec.Code != http.StatusConflict || errResp.Code != models.CodeMonthAlreadyClosed {
		t.Errorf("second close: expected 409 %s, got %d %s", models.CodeMonthAlreadyClosed, rec.Code, errResp.Code)
	}

	rec = srv.do(t, http.MethodPost, "/api/v1/tax-vault/expenses", expense, "")
	if rec.Code != http.StatusConflict {
		t.Errorf("expense in closed month: expected 409, got %d", rec.Code)
	}
}

func TestTaxVaultHandler_RecalculateAndUnlock(t *testing.T) {
	srv := newTestServer(t, false)
	srv.issue(t, "rest-1")
	entryPath := "/api/v1/tax-vault/" + testFranchiseID + "/2026-03"

	rec := srv.do(t, http.MethodPost, entryPath+"/recalculate", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("recalculate: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var entry models.TaxVaultEntry
	decode(t, rec, &entry)
	if entry.IVARepercutido != 52.50 || entry.IsLocked {
		t.Errorf("unexpected entry: %+v", entry)
	}

	rec = srv.do(t, http.MethodPost, entryPath+"/unlock-request", map[string]string{}, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unlock without reason: expected 400, got %d", rec.Code)
	}

	if rec = srv.do(t, http.MethodPost, entryPath+"/close", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("close: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = srv.do(t, http.MethodPost, entryPath+"/recalculate", nil, "")
	var errResp ErrorResponse
	decode(t, rec, &errResp)
	if rec.Code != http.StatusConflict || errResp.Code != models.CodeTaxVaultLocked {
		t.Errorf("recalculate closed month: expected 409 %s, got %d %s", models.CodeTaxVaultLocked, rec.Code, errResp.Code)
	}

	rec = srv.do(t, http.MethodPost, entryPath+"/unlock-request",
		map[string]string{"reason": "Factura olvidada", "requested_by": "gestor"}, "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("unlock: expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &entry)
	if pending := entry.PendingUnlockRequest(); pending == nil || pending.RequestedBy != "gestor" || !entry.IsLocked {
		t.Errorf("unexpected entry after unlock request: %+v", entry)
	}

	rec = srv.do(t, http.MethodPost, "/api/v1/tax-vault/"+testFranchiseID+"/2025-01/unlock-request",
		map[string]string{"reason": "x"}, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unlock of unknown month: expected 404, got %d", rec.Code)
	}
}

func TestInvoiceHandler_Export(t *testing.T) {
	srv := newTestServer(t, false)
	inv := srv.issue(t, "rest-1")
	exportPath := "/api/v1/invoices/" + inv.ID + "/export"

	tests := []struct {
		format      string
		contentType string
		fileName    string
	}{
		{"csv", "text/csv; charset=utf-8", "2026_0001.csv"},
		{"", "application/json", "2026_0001.json"},
		{"xml", "application/xml", "2026_0001.xml"},
		{"xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "2026_0001.xlsx"},
	}
	for _, tt := range tests {
		t.Run("format "+tt.format, func(t *testing.T) {
			path := exportPath
			if tt.format != "" {
				path += "?format=" + tt.format
			}
			rec := srv.do(t, http.MethodGet, path, nil, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			if got := rec.Header().Get("Content-Type"); got != tt.contentType {
				t.Errorf("expected content type %q, got %q", tt.contentType, got)
			}
			if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="`+tt.fileName+`"` {
				t.Errorf("unexpected content disposition %q", got)
			}
			if rec.Body.Len() == 0 {
				t.Error("empty export")
			}
		})
	}

	if rec := srv.do(t, http.MethodGet, exportPath+"?format=pdf", nil, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("unsupported format: expected 400, got %d", rec.Code)
	}
	if rec := srv.do(t, http.MethodGet, "/api/v1/invoices/missing/export?format=csv", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown invoice: expected 404, got %d", rec.Code)
	}
}

func TestBillingHandler_StatsAndIncome(t *testing.T) {
	srv := newTestServer(t, false)
	srv.issue(t, "rest-1")
	srv.issue(t, "rest-2")

	rec := srv.do(t, http.MethodGet, "/api/v1/billing/customers/"+testFranchiseID+"/rest-1/stats", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var stats models.CustomerStats
	decode(t, rec, &stats)
	if stats.InvoiceCount != 1 || stats.TotalInvoiced != 302.50 || stats.TotalPending != 302.50 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/billing/income/"+testFranchiseID+"/2026-03", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("income: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var income models.InvoicedIncome
	decode(t, rec, &income)
	if income.InvoiceCount != 2 || income.Subtotal != 500 || income.Total != 605 {
		t.Errorf("unexpected income: %+v", income)
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/billing/income/"+testFranchiseID+"/marzo", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad period: expected 400, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, false)

	rec := srv.do(t, http.MethodGet, "/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var health models.HealthCheck
	decode(t, rec, &health)
	if health.Status != "healthy" || health.Backend != database.BackendMemory {
		t.Errorf("unexpected health: %+v", health)
	}
	if health.Services["card_payments"] != "disabled" {
		t.Errorf("expected card payments disabled, got %q", health.Services["card_payments"])
	}
}

func TestLambdaRoutes(t *testing.T) {
	srv := newTestServer(t, false)
	router := lambda.NewRouter("/api/v1")
	RegisterLambdaRoutes(router, srv.container)
	ctx := context.Background()

	body, _ := json.Marshal(draftBody("rest-9"))
	resp, err := router.Dispatch(ctx, &lambda.Request{
		Method: http.MethodPost,
		Path:   "/api/v1/invoices",
		Body:   body,
		Actor:  "lambda@repaart.es",
	})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, resp.Body)
	}
	var draft models.Invoice
	if err := json.Unmarshal(resp.Body, &draft); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if draft.CreatedBy != "lambda@repaart.es" {
		t.Errorf("expected request actor, got %q", draft.CreatedBy)
	}

	resp, _ = router.Dispatch(ctx, &lambda.Request{Method: http.MethodPost, Path: "/api/v1/invoices/" + draft.ID + "/issue"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("issue: expected 200, got %d: %s", resp.StatusCode, resp.Body)
	}

	resp, _ = router.Dispatch(ctx, &lambda.Request{Method: http.MethodGet, Path: "/api/v1/invoices/missing"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown invoice: expected 404, got %d", resp.StatusCode)
	}

	resp, _ = router.Dispatch(ctx, &lambda.Request{Method: http.MethodPost, Path: "/api/v1/invoices"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty body: expected 400, got %d", resp.StatusCode)
	}

	resp, _ = router.Dispatch(ctx, &lambda.Request{
		Method:      http.MethodGet,
		Path:        "/api/v1/invoices",
		QueryParams: map[string]string{"franchise_id": testFranchiseID},
	})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("list: expected 200, got %d", resp.StatusCode)
	}

	resp, _ = router.Dispatch(ctx, &lambda.Request{
		Method:      http.MethodGet,
		Path:        "/api/v1/invoices/" + draft.ID + "/export",
		QueryParams: map[string]string{"format": "xml"},
	})
	if resp.StatusCode != http.StatusOK || resp.Headers["Content-Type"] != "application/xml" {
		t.Errorf("export: expected 200 xml, got %d %v", resp.StatusCode, resp.Headers)
	}

	resp, _ = router.Dispatch(ctx, &lambda.Request{
		Method: http.MethodPost,
		Path:   "/api/v1/tax-vault/" + testFranchiseID + "/2026-03/recalculate",
	})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("recalculate: expected 200, got %d: %s", resp.StatusCode, resp.Body)
	}

	resp, _ = router.Dispatch(ctx, &lambda.Request{
		Method: http.MethodGet,
		Path:   "/api/v1/billing/income/" + testFranchiseID + "/2026-03",
	})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("income: expected 200, got %d: %s", resp.StatusCode, resp.Body)
	}
}
