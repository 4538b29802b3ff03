package lambda

import (
	"context"
	"testing"

	"github.com/juan49ers-spec/Repaart-sub012/internal/adapters/storage"
	"github.com/juan49ers-spec/Repaart-sub012/internal/config"
	"github.com/juan49ers-spec/Repaart-sub012/internal/database"
	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
)

func memoryConfig() *config.Config {
	store := database.DefaultConfig()
	store.Backend = database.BackendMemory
	rates := models.BillingRates{TaxRate: models.TaxRateGeneral, DistanceRanges: models.DefaultDistanceRanges()}
	return &config.Config{
		Environment: "test",
		Port:        "8080",
		Store:       store,
		Retry:       storage.DefaultRetryConfig(),
		Billing:     config.BillingConfig{PaymentTermDays: 30, DuplicateCheck: true, DefaultRates: rates},
		Rates:       &config.BillingRatesConfig{Default: rates},
		Log:         config.LogConfig{Level: "error"},
	}
}

func TestConnectionManager(t *testing.T) {
	cm := &ConnectionManager{}
	if cm.IsHealthy() {
		t.Error("uninitialized manager should not be healthy")
	}

	if err := cm.Initialize(context.Background(), memoryConfig()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	first, err := cm.GetContainer(context.Background())
	if err != nil {
		t.Fatalf("GetContainer failed: %v", err)
	}
	second, err := cm.GetContainer(context.Background())
	if err != nil {
		t.Fatalf("GetContainer failed: %v", err)
	}
	if first != second {
		t.Error("warm invocations should reuse the container")
	}
	if !cm.IsHealthy() {
		t.Error("recently used manager should be healthy")
	}

	if err := cm.Cleanup(); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if cm.IsHealthy() {
		t.Error("manager should not be healthy after cleanup")
	}
}

func TestConnectionManager_InitError(t *testing.T) {
	cfg := memoryConfig()
	cfg.Store.Backend = "mongodb"

	cm := &ConnectionManager{}
	if err := cm.Initialize(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unsupported backend")
	}
	if _, err := cm.GetContainer(context.Background()); err == nil {
		t.Error("GetContainer should report the initialization error")
	}
}
