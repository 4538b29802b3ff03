package services

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
	"github.com/juan49ers-spec/Repaart-sub012/internal/repositories"
)

func TestInvoiceEngine_CreateDraft(t *testing.T) {
	env := newTestEnv(t, nil)

	inv, err := env.engine.CreateDraft(context.Background(), draftRequest("rest-1",
		LineItemRequest{Description: "Pedidos entregados", Quantity: 100, UnitPrice: 2.50, TaxRate: 0.21}))
	if err != nil {
		t.Fatalf("CreateDraft failed: %v", err)
	}

	if inv.Subtotal != 250.00 {
		t.Errorf("expected subtotal 250.00, got %v", inv.Subtotal)
	}
	if inv.TaxTotal != 52.50 {
		t.Errorf("expected tax 52.50, got %v", inv.TaxTotal)
	}
	if inv.Total != 302.50 {
		t.Errorf("expected total 302.50, got %v", inv.Total)
	}
	if inv.RemainingAmount != 302.50 {
		t.Errorf("expected remaining 302.50, got %v", inv.RemainingAmount)
	}
	if inv.Status != models.InvoiceStatusDraft {
		t.Errorf("expected DRAFT, got %s", inv.Status)
	}
	if inv.PaymentStatus != models.PaymentStatusPending {
		t.Errorf("expected PENDING, got %s", inv.PaymentStatus)
	}
	if inv.Number != 0 || inv.FullNumber != "" {
		t.Errorf("drafts carry no number, got %d %q", inv.Number, inv.FullNumber)
	}
	if inv.PaymentTermDays != models.DefaultPaymentTermDays {
		t.Errorf("expected default term, got %d", inv.PaymentTermDays)
	}
	if inv.DueDate != nil || inv.IssueDate != nil {
		t.Error("drafts carry no issue or due date")
	}
	if len(inv.TaxBreakdown) != 1 || inv.TaxBreakdown[0].TaxAmount != 52.50 {
		t.Errorf("unexpected breakdown: %+v", inv.TaxBreakdown)
	}

	stored, err := env.engine.GetInvoice(context.Background(), inv.ID)
	if err != nil {
		t.Fatalf("GetInvoice failed: %v", err)
	}
	if stored.Total != inv.Total || stored.Customer.Name != "Restaurante rest-1" {
		t.Errorf("stored invoice differs: %+v", stored)
	}
}

func TestInvoiceEngine_CreateDraftValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	valid := LineItemRequest{Description: "Servicio", Quantity: 1, UnitPrice: 10, TaxRate: 0.21}

	tests := []struct {
		name string
		req  *CreateDraftRequest
	}{
		{"nil request", nil},
		{"empty franchise and items", &CreateDraftRequest{
			CustomerID: "rest-1", CustomerType: models.CustomerTypeRestaurant, Items: []LineItemRequest{},
		}},
		{"empty customer", func() *CreateDraftRequest {
			r := draftRequest("", valid)
			return r
		}()},
		{"unknown customer type", func() *CreateDraftRequest {
			r := draftRequest("rest-1", valid)
			r.CustomerType = "SUPPLIER"
			return r
		}()},
		{"no items", draftRequest("rest-1")},
		{"empty description", draftRequest("rest-1", LineItemRequest{Quantity: 1, UnitPrice: 10, TaxRate: 0.21})},
		{"zero quantity", draftRequest("rest-1", LineItemRequest{Description: "x", Quantity: 0, UnitPrice: 10, TaxRate: 0.21})},
		{"negative price", draftRequest("rest-1", LineItemRequest{Description: "x", Quantity: 1, UnitPrice: -5, TaxRate: 0.21})},
		{"NaN quantity", draftRequest("rest-1", LineItemRequest{Description: "x", Quantity: math.NaN(), UnitPrice: 10, TaxRate: 0.21})},
		{"infinite price", draftRequest("rest-1", LineItemRequest{Description: "x", Quantity: 1, UnitPrice: math.Inf(1), TaxRate: 0.21})},
		{"tax rate outside the brackets", draftRequest("rest-1", LineItemRequest{Description: "x", Quantity: 1, UnitPrice: 10, TaxRate: 0.15})},
		{"negative term", func() *CreateDraftRequest {
			r := draftRequest("rest-1", valid)
			days := -1
			r.PaymentTermDays = &days
			return r
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.CreateDraft(context.Background(), tt.req)
			if !models.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	if n := env.store.Count(repositories.CollectionInvoices); n != 0 {
		t.Errorf("rejected drafts must not be stored, found %d", n)
	}
}

func TestInvoiceEngine_CreateDraftCustomerSnapshot(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	restaurant := &models.FranchiseProfile{
		ID:         "rest-42",
		Name:       "La Tasca",
		FiscalName: "La Tasca de Lavapiés SL",
		TaxID:      "B11111111",
		Address:    models.Address{City: "Madrid"},
	}
	if err := env.repos.Profiles().Save(ctx, models.CustomerTypeRestaurant, restaurant); err != nil {
		t.Fatalf("failed to save restaurant: %v", err)
	}

	t.Run("loaded from profile", func(t *testing.T) {
		req := draftRequest("rest-42", LineItemRequest{Description: "x", Quantity: 1, UnitPrice: 10, TaxRate: 0.21})
		req.Customer = nil

		inv, err := env.engine.CreateDraft(ctx, req)
		if err != nil {
			t.Fatalf("CreateDraft failed: %v", err)
		}
		if inv.Customer.Name != "La Tasca de Lavapiés SL" {
			t.Errorf("expected fiscal name, got %q", inv.Customer.Name)
		}
		if inv.Customer.Address.Country != "ES" {
			t.Errorf("expected default country ES, got %q", inv.Customer.Address.Country)
		}

		// later profile edits never reach the stored snapshot
		restaurant.FiscalName = "Otro Nombre SL"
		if err := env.repos.Profiles().Save(ctx, models.CustomerTypeRestaurant, restaurant); err != nil {
			t.Fatalf("failed to update restaurant: %v", err)
		}
		stored, _ := env.engine.GetInvoice(ctx, inv.ID)
		if stored.Customer.Name != "La Tasca de Lavapiés SL" {
			t.Errorf("snapshot changed to %q", stored.Customer.Name)
		}
	})

	t.Run("missing profile", func(t *testing.T) {
		req := draftRequest("rest-missing", LineItemRequest{Description: "x", Quantity: 1, UnitPrice: 10, TaxRate: 0.21})
		req.Customer = nil

		_, err := env.engine.CreateDraft(ctx, req)
		if !models.IsValidation(err) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if !strings.Contains(models.UserMessage(err), "Cliente no encontrado") {
			t.Errorf("unexpected message: %s", models.UserMessage(err))
		}
	})

	t.Run("explicit snapshot defaults", func(t *testing.T) {
		req := draftRequest("rest-77", LineItemRequest{Description: "x", Quantity: 1, UnitPrice: 10, TaxRate: 0.21})
		req.Customer = &models.CustomerSnapshot{}

		inv, err := env.engine.CreateDraft(ctx, req)
		if err != nil {
			t.Fatalf("CreateDraft failed: %v", err)
		}
		if inv.Customer.Name != "Sin nombre" || inv.Customer.TaxID != "N/A" || inv.Customer.Address.Country != "ES" {
			t.Errorf("unexpected defaults: %+v", inv.Customer)
		}
		if inv.Customer.ID != "rest-77" || inv.Customer.Type != models.CustomerTypeRestaurant {
			t.Errorf("snapshot identity not taken from request: %+v", inv.Customer)
		}
	})
}

func TestInvoiceEngine_DuplicateGuard(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.createDraft(t, "rest-1", 100)

	_, err := env.engine.CreateDraft(ctx, draftRequest("rest-1",
		LineItemRequest{Description: "x", Quantity: 1, UnitPrice: 50, TaxRate: 0.21}))
	if code := models.ErrorCode(err); code != models.CodeDuplicateInvoice {
		t.Fatalf("expected %s, got %v", models.CodeDuplicateInvoice, err)
	}

	// another customer in the same month is fine
	env.createDraft(t, "rest-2", 100)

	// the same customer next month is fine
	env.clock.Set(testNow.AddDate(0, 1, 0))
	env.createDraft(t, "rest-1", 100)

	// with the guard off duplicates are allowed
	engine := NewInvoiceEngine(env.repos, nil, env.clock, InvoiceEngineConfig{PaymentTermDays: 30}, testLogger())
	if _, err := engine.CreateDraft(ctx, draftRequest("rest-1",
		LineItemRequest{Description: "x", Quantity: 1, UnitPrice: 50, TaxRate: 0.21})); err != nil {
		t.Errorf("expected duplicate to be accepted, got %v", err)
	}
}

func TestInvoiceEngine_ConcurrentDuplicateDrafts(t *testing.T) {
	env := newProductionRetryEnv(t)
	ctx := context.Background()

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.engine.CreateDraft(ctx, draftRequest("rest-1",
				LineItemRequest{Description: "Servicio de reparto", Quantity: 1, UnitPrice: 100, TaxRate: 0.21}))
		}(i)
	}
	wg.Wait()

	created := 0
	for i, err := range errs {
		switch {
		case err == nil:
			created++
		case models.ErrorCode(err) != models.CodeDuplicateInvoice:
			t.Errorf("draft %d: expected %s, got %v", i, models.CodeDuplicateInvoice, err)
		}
	}
	if created != 1 {
		t.Errorf("expected exactly one draft, got %d", created)
	}

	drafts, err := env.engine.ListInvoices(ctx, &repositories.InvoiceFilter{FranchiseID: testFranchiseID, CustomerID: "rest-1"})
	if err != nil {
		t.Fatalf("ListInvoices failed: %v", err)
	}
	if len(drafts) != 1 {
		t.Errorf("expected one stored draft, got %d", len(drafts))
	}
}

func TestInvoiceEngine_StoredRateOutsideBrackets(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	draft := env.createDraft(t, "rest-1", 100)

	// rewrite the stored line as an external writer would
	snap, err := env.store.Get(ctx, repositories.CollectionInvoices, draft.ID)
	if err != nil {
		t.Fatalf("failed to read stored draft: %v", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(snap.Data, &doc); err != nil {
		t.Fatalf("failed to decode stored draft: %v", err)
	}
	doc["lines"].([]interface{})[0].(map[string]interface{})["tax_rate"] = 0.15
	if err := env.store.Set(ctx, repositories.CollectionInvoices, draft.ID, doc); err != nil {
		t.Fatalf("failed to rewrite stored draft: %v", err)
	}

	if _, err := env.engine.GetInvoice(ctx, draft.ID); !models.IsValidation(err) {
		t.Errorf("expected validation error reading the invoice, got %v", err)
	}
	if _, err := env.engine.IssueInvoice(ctx, draft.ID, "admin"); err == nil {
		t.Fatal("an invoice with an unknown rate must not be issued")
	}
	if counter, _ := env.repos.Counters().Get(ctx, testFranchiseID, "2026"); counter.LastNumber != 0 {
		t.Errorf("rejected issue must not consume a number, got %d", counter.LastNumber)
	}
}

func TestInvoiceEngine_UpdateDraft(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	draft := env.createDraft(t, "rest-1", 100)

	notes := "  Pedido extra  "
	days := 15
	updated, err := env.engine.UpdateDraft(ctx, draft.ID, &UpdateDraftRequest{
		Items: []LineItemRequest{
			{Description: "Horas", Quantity: 10, UnitPrice: 12, TaxRate: 0.21},
			{Description: "Material", Quantity: 2, UnitPrice: 5, TaxRate: 0.10},
		},
		PaymentTermDays: &days,
		Notes:           &notes,
	})
	if err != nil {
		t.Fatalf("UpdateDraft failed: %v", err)
	}
	if updated.Subtotal != 130 || updated.TaxTotal != 26.20 || updated.Total != 156.20 {
		t.Errorf("unexpected totals: %v %v %v", updated.Subtotal, updated.TaxTotal, updated.Total)
	}
	if updated.Notes != "Pedido extra" || updated.PaymentTermDays != 15 {
		t.Errorf("unexpected fields: %q %d", updated.Notes, updated.PaymentTermDays)
	}
	if len(updated.TaxBreakdown) != 2 {
		t.Errorf("expected 2 breakdown entries, got %d", len(updated.TaxBreakdown))
	}

	if _, err := env.engine.IssueInvoice(ctx, draft.ID, "admin"); err != nil {
		t.Fatalf("IssueInvoice failed: %v", err)
	}
	_, err = env.engine.UpdateDraft(ctx, draft.ID, &UpdateDraftRequest{Notes: &notes})
	if !models.IsInvalidState(err) {
		t.Errorf("expected invalid state after issue, got %v", err)
	}

	_, err = env.engine.UpdateDraft(ctx, "missing", &UpdateDraftRequest{Notes: &notes})
	if !models.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestInvoiceEngine_IssueInvoice(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	first := env.issued(t, "rest-1", 100)
	if first.Status != models.InvoiceStatusIssued {
		t.Errorf("expected ISSUED, got %s", first.Status)
	}
	if first.Series != "2026" || first.Number != 1 || first.FullNumber != "2026/0001" {
		t.Errorf("unexpected numbering: %s %d %s", first.Series, first.Number, first.FullNumber)
	}
	if first.IssueDate == nil || !first.IssueDate.Equal(testNow) {
		t.Errorf("expected issue date %v, got %v", testNow, first.IssueDate)
	}
	if first.DueDate == nil || !first.DueDate.Equal(testNow.AddDate(0, 0, 30)) {
		t.Errorf("expected due date 30 days later, got %v", first.DueDate)
	}
	if first.IssuedBy != "admin@repaart.es" || first.IssuedAt == nil {
		t.Errorf("issuer stamp missing: %q %v", first.IssuedBy, first.IssuedAt)
	}
	if first.Issuer == nil || first.Issuer.TaxID != "B87654321" || first.Issuer.Address.Country != "España" {
		t.Errorf("unexpected issuer snapshot: %+v", first.Issuer)
	}

	second := env.issued(t, "rest-2", 100)
	if second.FullNumber != "2026/0002" {
		t.Errorf("expected 2026/0002, got %s", second.FullNumber)
	}

	_, err := env.engine.IssueInvoice(ctx, first.ID, "admin")
	if !models.IsInvalidState(err) {
		t.Errorf("issuing twice should be an invalid state, got %v", err)
	}

	_, err = env.engine.IssueInvoice(ctx, "missing", "admin")
	if !models.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestInvoiceEngine_IssueRequiresCompanyData(t *testing.T) {
	tests := []struct {
		name      string
		profile   *models.FranchiseProfile
		wantField string
	}{
		{"no profile", nil, "franchise_id"},
		{"placeholder tax id", &models.FranchiseProfile{ID: "fr-x", FiscalName: "Repaart Norte SL", TaxID: "B00000000", Phone: "600000000"}, "tax_id"},
		{"pending fiscal name", &models.FranchiseProfile{ID: "fr-x", FiscalName: "PENDIENTE", TaxID: "B22222222", Phone: "600000000"}, "fiscal_name"},
		{"fiscal name awaiting configuration", &models.FranchiseProfile{ID: "fr-x", FiscalName: "PENDIENTE DE CONFIGURAR", TaxID: "B22222222", Phone: "600000000"}, "fiscal_name"},
		{"missing phone", &models.FranchiseProfile{ID: "fr-x", FiscalName: "Repaart Norte SL", TaxID: "B22222222"}, "phone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			ctx := context.Background()
			if tt.profile != nil {
				if err := env.repos.Profiles().Save(ctx, models.CustomerTypeFranchise, tt.profile); err != nil {
					t.Fatalf("failed to save profile: %v", err)
				}
			}

			req := draftRequest("rest-1", LineItemRequest{Description: "x", Quantity: 1, UnitPrice: 10, TaxRate: 0.21})
			req.FranchiseID = "fr-x"
			draft, err := env.engine.CreateDraft(ctx, req)
			if err != nil {
				t.Fatalf("CreateDraft failed: %v", err)
			}

			_, err = env.engine.IssueInvoice(ctx, draft.ID, "admin")
			if code := models.ErrorCode(err); code != models.CodeCompanyDataMissing {
				t.Fatalf("expected %s, got %v", models.CodeCompanyDataMissing, err)
			}
			var billingErr *models.BillingError
			if !errors.As(err, &billingErr) || billingErr.Field != tt.wantField {
				t.Errorf("expected field %s, got %+v", tt.wantField, billingErr)
			}

			stored, _ := env.engine.GetInvoice(ctx, draft.ID)
			if !stored.IsDraft() || stored.Number != 0 {
				t.Error("failed issue must leave the draft untouched")
			}
			if counter, _ := env.repos.Counters().Get(ctx, "fr-x", "2026"); counter.LastNumber != 0 {
				t.Errorf("failed issue must not consume a number, got %d", counter.LastNumber)
			}
		})
	}
}

func TestInvoiceEngine_ConcurrentIssueNumbering(t *testing.T) {
	env := newProductionRetryEnv(t)
	ctx := context.Background()

	const n = 10
	drafts := make([]*models.Invoice, n)
	for i := range drafts {
		drafts[i] = env.createDraft(t, "rest-"+string(rune('a'+i)), float64(10*(i+1)))
	}

	numbers := make([]int, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i, draft := range drafts {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			inv, err := env.engine.IssueInvoice(ctx, id, "admin")
			errs[i] = err
			if err == nil {
				numbers[i] = inv.Number
			}
		}(i, draft.ID)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("issue %d failed: %v", i, err)
		}
	}
	sort.Ints(numbers)
	for i, number := range numbers {
		if number != i+1 {
			t.Fatalf("expected consecutive numbers 1..%d, got %v", n, numbers)
		}
	}

	counter, err := env.repos.Counters().Get(ctx, testFranchiseID, "2026")
	if err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	if counter.LastNumber != n {
		t.Errorf("expected counter at %d, got %d", n, counter.LastNumber)
	}
}

func TestInvoiceEngine_RectifyInvoice(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	original := env.issued(t, "rest-1", 500)

	env.clock.Advance(48 * time.Hour)
	result, err := env.engine.RectifyInvoice(ctx, original.ID, "Importe facturado por error", "admin")
	if err != nil {
		t.Fatalf("RectifyInvoice failed: %v", err)
	}

	credit := result.Rectification
	if credit.Type != models.InvoiceTypeRectificative || credit.Status != models.InvoiceStatusIssued {
		t.Errorf("unexpected credit note type/status: %s %s", credit.Type, credit.Status)
	}
	if credit.FullNumber != "R-2026/0001" {
		t.Errorf("expected R-2026/0001, got %s", credit.FullNumber)
	}
	if credit.Subtotal != -500 || credit.TaxTotal != -105 || credit.Total != -605 {
		t.Errorf("credit note should negate totals, got %v %v %v", credit.Subtotal, credit.TaxTotal, credit.Total)
	}
	if credit.Lines[0].Quantity != 1 || credit.Lines[0].UnitPrice != -500 {
		t.Errorf("expected quantity kept and price negated, got %+v", credit.Lines[0])
	}
	if credit.RemainingAmount != 0 || credit.PaymentStatus != models.PaymentStatusPending {
		t.Errorf("credit notes carry no receivable, got %v %s", credit.RemainingAmount, credit.PaymentStatus)
	}
	if credit.OriginalInvoiceID != original.ID || credit.RectificationReason != "Importe facturado por error" {
		t.Errorf("credit note not linked: %+v", credit)
	}
	if credit.Customer != original.Customer {
		t.Error("credit note must keep the customer snapshot")
	}

	rectified := result.Original
	if rectified.Status != models.InvoiceStatusRectified {
		t.Errorf("expected RECTIFIED, got %s", rectified.Status)
	}
	if len(rectified.RectifyingInvoiceIDs) != 1 || rectified.RectifyingInvoiceIDs[0] != credit.ID {
		t.Errorf("unexpected rectifying ids: %v", rectified.RectifyingInvoiceIDs)
	}
	if rectified.RectifiedAt == nil {
		t.Error("rectified at not stamped")
	}

	_, err = env.engine.RectifyInvoice(ctx, original.ID, "otra vez", "admin")
	if code := models.ErrorCode(err); code != models.CodeInvoiceAlreadyRectified {
		t.Errorf("expected %s, got %v", models.CodeInvoiceAlreadyRectified, err)
	}

	_, err = env.engine.RectifyInvoice(ctx, credit.ID, "nota de nota", "admin")
	if !models.IsInvalidState(err) {
		t.Errorf("credit notes cannot be rectified, got %v", err)
	}

	draft := env.createDraft(t, "rest-2", 100)
	_, err = env.engine.RectifyInvoice(ctx, draft.ID, "motivo", "admin")
	if !models.IsInvalidState(err) {
		t.Errorf("drafts cannot be rectified, got %v", err)
	}

	_, err = env.engine.RectifyInvoice(ctx, draft.ID, "   ", "admin")
	if !models.IsValidation(err) {
		t.Errorf("reason is required, got %v", err)
	}
}

func TestInvoiceEngine_IssueAndRectifyBookTaxVault(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	original := env.issued(t, "rest-1", 500)
	entry, err := env.vault.GetTaxVaultEntry(ctx, testFranchiseID, "2026-03")
	if err != nil {
		t.Fatalf("GetTaxVaultEntry failed: %v", err)
	}
	if entry.IVARepercutido != 105 || entry.TotalIncome != 500 || !entry.HasInvoice(original.ID) {
		t.Errorf("issued invoice not booked: %+v", entry)
	}

	if _, err := env.engine.RectifyInvoice(ctx, original.ID, "error", "admin"); err != nil {
		t.Fatalf("RectifyInvoice failed: %v", err)
	}
	entry, _ = env.vault.GetTaxVaultEntry(ctx, testFranchiseID, "2026-03")
	if entry.IVARepercutido != 0 || entry.TotalIncome != 0 || len(entry.InvoiceIDs) != 2 {
		t.Errorf("credit note should cancel the IVA: %+v", entry)
	}
}

func TestInvoiceEngine_VerifyTotalsRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	inv, err := env.engine.CreateDraft(ctx, draftRequest("rest-1",
		LineItemRequest{Description: "Horas", Quantity: 7.5, UnitPrice: 12.33, TaxRate: 0.21},
		LineItemRequest{Description: "Kilómetros", Quantity: 35, UnitPrice: 0.30, TaxRate: 0.21},
		LineItemRequest{Description: "Comida", Quantity: 3, UnitPrice: 9.99, TaxRate: 0.10},
		LineItemRequest{Description: "Pan", Quantity: 12, UnitPrice: 0.85, TaxRate: 0.04},
		LineItemRequest{Description: "Formación", Quantity: 1, UnitPrice: 150, TaxRate: 0},
	))
	if err != nil {
		t.Fatalf("CreateDraft failed: %v", err)
	}

	verification, err := env.engine.VerifyTotals(ctx, inv.ID)
	if err != nil {
		t.Fatalf("VerifyTotals failed: %v", err)
	}
	if !verification.Valid {
		t.Errorf("stored totals should verify: %+v", verification)
	}

	// breakdown survives a JSON round trip with exact rates
	raw, err := json.Marshal(inv)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded models.Invoice
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	recomputed := models.CalculateTaxBreakdown(decoded.Lines)
	if !models.BreakdownEqual(recomputed, inv.TaxBreakdown) {
		t.Errorf("breakdown changed after round trip: %+v vs %+v", recomputed, inv.TaxBreakdown)
	}
	for i, entry := range decoded.TaxBreakdown {
		if entry.Rate != inv.TaxBreakdown[i].Rate {
			t.Errorf("rate %v decoded as %v", inv.TaxBreakdown[i].Rate, entry.Rate)
		}
	}

	var lineTax []float64
	for _, line := range decoded.Lines {
		lineTax = append(lineTax, line.TaxAmount)
	}
	if !models.MoneyEqual(models.SumMoney(lineTax...), decoded.TaxTotal) {
		t.Errorf("breakdown tax %v differs from line tax sum %v", decoded.TaxTotal, models.SumMoney(lineTax...))
	}

	tampered := decoded
	tampered.Subtotal += 1
	if VerifyInvoiceTotals(&tampered).Valid {
		t.Error("tampered totals should not verify")
	}
}

func TestInvoiceEngine_ListInvoices(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.issued(t, "rest-1", 100)
	env.createDraft(t, "rest-2", 100)
	env.clock.Advance(time.Minute)
	env.createDraft(t, "rest-3", 100)

	tests := []struct {
		name   string
		filter *repositories.InvoiceFilter
		want   int
	}{
		{"nil filter", nil, 3},
		{"drafts", &repositories.InvoiceFilter{Status: models.InvoiceStatusDraft}, 2},
		{"issued", &repositories.InvoiceFilter{FranchiseID: testFranchiseID, Status: models.InvoiceStatusIssued}, 1},
		{"customer", &repositories.InvoiceFilter{CustomerID: "rest-3"}, 1},
		{"limit", &repositories.InvoiceFilter{Limit: 2}, 2},
		{"period", &repositories.InvoiceFilter{Period: "2026-03"}, 3},
		{"other period", &repositories.InvoiceFilter{Period: "2026-04"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invoices, err := env.engine.ListInvoices(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListInvoices failed: %v", err)
			}
			if len(invoices) != tt.want {
				t.Errorf("expected %d invoices, got %d", tt.want, len(invoices))
			}
		})
	}

	invoices, _ := env.engine.ListInvoices(ctx, nil)
	if invoices[0].CustomerID != "rest-3" {
		t.Errorf("expected newest first, got %s", invoices[0].CustomerID)
	}

	if _, err := env.engine.ListInvoices(ctx, &repositories.InvoiceFilter{Period: "marzo"}); !models.IsValidation(err) {
		t.Errorf("expected validation error for bad period, got %v", err)
	}
}

func TestInvoiceEngine_GetCustomerStats(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	march := env.issued(t, "rest-1", 100)
	env.issued(t, "rest-2", 900)

	april := time.Date(2026, 4, 6, 9, 0, 0, 0, time.UTC)
	env.clock.Set(april)
	second := env.issued(t, "rest-1", 200)
	if _, err := env.receivable.AddPayment(ctx, &AddPaymentRequest{
		InvoiceID: second.ID, Amount: 100, Method: models.PaymentMethodTransfer,
	}); err != nil {
		t.Fatalf("AddPayment failed: %v", err)
	}
	if _, err := env.engine.RectifyInvoice(ctx, march.ID, "Servicio duplicado", "admin"); err != nil {
		t.Fatalf("RectifyInvoice failed: %v", err)
	}
	env.clock.Set(time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC))
	env.createDraft(t, "rest-1", 50)

	stats, err := env.engine.GetCustomerStats(ctx, testFranchiseID, "rest-1")
	if err != nil {
		t.Fatalf("GetCustomerStats failed: %v", err)
	}

	// the rectified invoice and its credit note cancel out, the draft is ignored
	if stats.TotalInvoiced != 242 || stats.TotalPaid != 100 || stats.TotalPending != 142 {
		t.Errorf("unexpected totals: %+v", stats)
	}
	if stats.InvoiceCount != 3 {
		t.Errorf("expected 2 invoices and 1 credit note, got %d", stats.InvoiceCount)
	}
	if stats.LastInvoiceDate == nil || !stats.LastInvoiceDate.Equal(april) {
		t.Errorf("expected last invoice date %v, got %v", april, stats.LastInvoiceDate)
	}

	empty, err := env.engine.GetCustomerStats(ctx, testFranchiseID, "rest-unknown")
	if err != nil {
		t.Fatalf("GetCustomerStats failed: %v", err)
	}
	if empty.InvoiceCount != 0 || empty.TotalInvoiced != 0 || empty.LastInvoiceDate != nil {
		t.Errorf("expected empty stats, got %+v", empty)
	}

	if _, err := env.engine.GetCustomerStats(ctx, testFranchiseID, " "); !models.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := env.engine.GetCustomerStats(ctx, "", "rest-1"); !models.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestInvoiceEngine_GetInvoicedIncomeForMonth(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	rangeItem := func(name string, orders, price float64) LineItemRequest {
		return LineItemRequest{
			Description: "Servicio de logística - Rango " + name,
			Quantity:    orders,
			UnitPrice:   price,
			TaxRate:     0.21,
		}
	}
	issue := func(customerID string, items ...LineItemRequest) *models.Invoice {
		t.Helper()
		draft, err := env.engine.CreateDraft(ctx, draftRequest(customerID, items...))
		if err != nil {
			t.Fatalf("CreateDraft failed: %v", err)
		}
		inv, err := env.engine.IssueInvoice(ctx, draft.ID, "admin")
		if err != nil {
			t.Fatalf("IssueInvoice failed: %v", err)
		}
		return inv
	}

	issue("rest-1",
		rangeItem("0-4 km", 10, 2.5),
		rangeItem("Más de 7 km", 2, 4.5),
		LineItemRequest{Description: "Horas de servicio", Quantity: 3, UnitPrice: 12, TaxRate: 0.21},
	)
	rectified := issue("rest-2", rangeItem("4-5 km", 4, 3), rangeItem("9-12 km", 1, 6))
	if _, err := env.engine.RectifyInvoice(ctx, rectified.ID, "Pedidos anulados", "admin"); err != nil {
		t.Fatalf("RectifyInvoice failed: %v", err)
	}
	issue("rest-3", rangeItem("5-6", 3, 3.5))
	env.createDraft(t, "rest-4", 1000)

	income, err := env.engine.GetInvoicedIncomeForMonth(ctx, testFranchiseID, "2026-03")
	if err != nil {
		t.Fatalf("GetInvoicedIncomeForMonth failed: %v", err)
	}

	// 25 + 9 + 36 for rest-1 and 10.50 for rest-3; rest-2 nets to zero
	if income.Subtotal != 80.50 || income.Total != 97.41 {
		t.Errorf("unexpected amounts: subtotal %v total %v", income.Subtotal, income.Total)
	}
	if income.InvoiceCount != 4 {
		t.Errorf("expected 3 invoices and 1 credit note, got %d", income.InvoiceCount)
	}

	want := map[string]float64{
		"0-4 km":               10,
		"4-5 km":               0,
		"5-6 km":               3,
		"6-7 km":               0,
		">7 km":                2,
		models.OtherRangeLabel: 0,
	}
	if len(income.OrdersDetail) != len(want) {
		t.Errorf("unexpected ranges: %v", income.OrdersDetail)
	}
	for label, orders := range want {
		if income.OrdersDetail[label] != orders {
			t.Errorf("range %q: expected %v orders, got %v", label, orders, income.OrdersDetail[label])
		}
	}

	if _, err := env.engine.GetInvoicedIncomeForMonth(ctx, testFranchiseID, "marzo"); !models.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestInvoiceEngine_ExportInvoice(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	inv := env.issued(t, "rest-1", 100)

	file, err := env.engine.ExportInvoice(ctx, inv.ID, ExportCSV)
	if err != nil {
		t.Fatalf("ExportInvoice failed: %v", err)
	}
	if file.FileName != "2026_0001.csv" || file.ContentType != "text/csv; charset=utf-8" {
		t.Errorf("unexpected file: %s %s", file.FileName, file.ContentType)
	}
	if !strings.Contains(string(file.Data), "Repaart Madrid Logística SL") {
		t.Error("export should carry the issuer snapshot")
	}

	file, err = env.engine.ExportInvoice(ctx, inv.ID, "")
	if err != nil {
		t.Fatalf("ExportInvoice failed: %v", err)
	}
	if file.ContentType != "application/json" {
		t.Errorf("expected JSON by default, got %s", file.ContentType)
	}

	if _, err := env.engine.ExportInvoice(ctx, inv.ID, "pdf"); !models.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := env.engine.ExportInvoice(ctx, "missing", ExportXML); !models.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}
