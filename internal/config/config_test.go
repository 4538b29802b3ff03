package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juan49ers-spec/Repaart-sub012/internal/database"
	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
)

var configEnvVars = []string{
	"PORT", "ENVIRONMENT", "STORE_BACKEND", "DB_PATH", "DATABASE_URL", "DB_MIGRATIONS_PATH",
	"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "LOCAL_STORE_PATH", "FIRESTORE_PROJECT_ID",
	"DYNAMODB_TABLE", "DYNAMODB_ENDPOINT", "AWS_REGION", "RETRY_MAX_ATTEMPTS", "RETRY_INITIAL_DELAY",
	"PAYMENT_TERM_DAYS", "DUPLICATE_CHECK", "DEFAULT_HOURLY_RATE", "DEFAULT_KM_RATE",
	"DEFAULT_IRPF_RATE", "DEFAULT_SERVICE_FEE", "DEFAULT_TAX_RATE", "BILLING_RATES_FILE",
	"JWT_SECRET", "JWT_REQUIRED", "RATE_LIMIT_ENABLED", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"CORS_ALLOWED_ORIGINS", "MP_ACCESS_TOKEN", "PAYMENT_GATEWAY_MOCK", "LOG_LEVEL", "LOG_FORMAT",
	"APP_VERSION", "DB_AUTO_MIGRATE", "DB_BACKUP_ENABLED", "DB_QUERY_TIMEOUT", "DB_QUERY_LOGGING",
	"RETRY_MAX_DELAY", "RETRY_BACKOFF_FACTOR", "RETRY_JITTER",
}

// clearConfigEnv blanks every variable Load reads; viper treats empty values as unset
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnvVars {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearConfigEnv(t)

	config, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if config.Port != "8080" || config.Environment != "development" || config.IsProduction() {
		t.Errorf("Unexpected server settings: port=%s env=%s", config.Port, config.Environment)
	}
	if config.Store.Backend != database.BackendSQLite || config.Store.Database.Path != "data/repaart.db" {
		t.Errorf("Unexpected store settings: %+v", config.Store)
	}
	if config.Retry.MaxAttempts != 5 || !config.Retry.JitterEnabled {
		t.Errorf("Unexpected retry settings: %+v", config.Retry)
	}
	if config.Billing.PaymentTermDays != 30 || !config.Billing.DuplicateCheck {
		t.Errorf("Unexpected billing settings: %+v", config.Billing)
	}

	rates := config.Billing.DefaultRates
	if rates.IRPFRate != 0.15 || rates.TaxRate != models.TaxRateGeneral || len(rates.DistanceRanges) != 5 {
		t.Errorf("Unexpected default rates: %+v", rates)
	}
	if len(config.Rates.Franchises) != 0 || config.Rates.Default.IRPFRate != 0.15 {
		t.Errorf("Expected no franchise rates, got %+v", config.Rates)
	}

	if !config.RateLimit.Enabled || config.RateLimit.RequestsPerSecond != 20 || config.RateLimit.Burst != 40 {
		t.Errorf("Unexpected rate limit: %+v", config.RateLimit)
	}
	if len(config.CORS.AllowedOrigins) != 2 {
		t.Errorf("Expected 2 default origins, got %v", config.CORS.AllowedOrigins)
	}
	if config.Log.Level != "info" || config.Log.Format != "json" {
		t.Errorf("Unexpected log settings: %+v", config.Log)
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("STORE_BACKEND", "postgresql")
	t.Setenv("DATABASE_URL", "postgres://repaart@localhost/billing")
	t.Setenv("RETRY_INITIAL_DELAY", "250ms")
	t.Setenv("PAYMENT_TERM_DAYS", "15")
	t.Setenv("DUPLICATE_CHECK", "false")
	t.Setenv("DEFAULT_HOURLY_RATE", "12.5")
	t.Setenv("DEFAULT_TAX_RATE", "0.10")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.repaart.es, ,https://admin.repaart.es")
	t.Setenv("PAYMENT_GATEWAY_MOCK", "true")

	config, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if config.Port != "9090" || !config.IsProduction() {
		t.Errorf("Unexpected server settings: port=%s env=%s", config.Port, config.Environment)
	}
	if !config.Store.IsPostgreSQL() || config.Store.GetDSN() != "postgres://repaart@localhost/billing" {
		t.Errorf("Unexpected store: %+v", config.Store)
	}
	if config.Store.Pool.MaxOpenConns != 25 {
		t.Errorf("Expected a postgres pool of 25, got %d", config.Store.Pool.MaxOpenConns)
	}
	if config.Retry.InitialDelay != 250*time.Millisecond {
		t.Errorf("Expected 250ms initial delay, got %v", config.Retry.InitialDelay)
	}
	if config.Billing.PaymentTermDays != 15 || config.Billing.DuplicateCheck {
		t.Errorf("Unexpected billing settings: %+v", config.Billing)
	}
	if config.Billing.DefaultRates.HourlyRate != 12.5 || config.Billing.DefaultRates.TaxRate != models.TaxRateReduced {
		t.Errorf("Unexpected default rates: %+v", config.Billing.DefaultRates)
	}
	if len(config.CORS.AllowedOrigins) != 2 || config.CORS.AllowedOrigins[1] != "https://admin.repaart.es" {
		t.Errorf("Unexpected origins: %v", config.CORS.AllowedOrigins)
	}
	if !config.MercadoPago.Mock {
		t.Error("Expected mock payment gateway")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"payment term too long", map[string]string{"PAYMENT_TERM_DAYS": "400"}},
		{"unknown tax rate", map[string]string{"DEFAULT_TAX_RATE": "0.16"}},
		{"negative hourly rate", map[string]string{"DEFAULT_HOURLY_RATE": "-1"}},
		{"unknown backend", map[string]string{"STORE_BACKEND": "mongo"}},
		{"postgres without DSN", map[string]string{"STORE_BACKEND": "postgres"}},
		{"required JWT without secret", map[string]string{"JWT_REQUIRED": "true"}},
		{"zero rate limit", map[string]string{"RATE_LIMIT_RPS": "0"}},
		{"missing rates file", map[string]string{"BILLING_RATES_FILE": "/nonexistent/rates.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			for key, value := range tt.env {
				t.Setenv(key, value)
			}
			if _, err := Load(); err == nil {
				t.Error("Expected Load to fail")
			}
		})
	}
}

func writeRatesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "billing_rates.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write rates file: %v", err)
	}
	return path
}

func TestLoadBillingRates(t *testing.T) {
	defaults := models.BillingRates{
		HourlyRate:     12,
		KmRate:         0.30,
		IRPFRate:       0.15,
		TaxRate:        models.TaxRateGeneral,
		DistanceRanges: models.DefaultDistanceRanges(),
	}

	t.Run("no file", func(t *testing.T) {
		rates, err := LoadBillingRates("", defaults)
		if err != nil {
			t.Fatalf("LoadBillingRates failed: %v", err)
		}
		if len(rates.Franchises) != 0 || rates.Default.HourlyRate != 12 {
			t.Errorf("Unexpected rates: %+v", rates)
		}
	})

	t.Run("entries overlay the defaults", func(t *testing.T) {
		path := writeRatesFile(t, `
franchises:
  - franchise_id: Franchise-Madrid
    hourly_rate: 14.5
    service_fee: 25
  - franchise_id: franchise-sur
    km_rate: 0
    irpf_rate: 0
    tax_rate: 0.10
    distance_ranges:
      - id: flat
        name: Tarifa plana
        min_km: 0
        max_km: 0
        price: 3
`)
		rates, err := LoadBillingRates(path, defaults)
		if err != nil {
			t.Fatalf("LoadBillingRates failed: %v", err)
		}

		madrid, ok := rates.Franchises["Franchise-Madrid"]
		if !ok {
			t.Fatalf("Franchise ids must keep their case, got %v", rates.Franchises)
		}
		if madrid.HourlyRate != 14.5 || madrid.ServiceFee != 25 || madrid.KmRate != 0.30 || madrid.IRPFRate != 0.15 {
			t.Errorf("Unexpected Madrid rates: %+v", madrid)
		}
		if madrid.TaxRate != models.TaxRateGeneral || len(madrid.DistanceRanges) != 5 {
			t.Errorf("Madrid should keep the default tax rate and ranges: %+v", madrid)
		}

		sur := rates.Franchises["franchise-sur"]
		if sur.HourlyRate != 12 || sur.KmRate != 0 || sur.IRPFRate != 0 || sur.TaxRate != models.TaxRateReduced {
			t.Errorf("Unexpected Sur rates: %+v", sur)
		}
		if len(sur.DistanceRanges) != 1 || sur.DistanceRanges[0].Price != 3 || sur.DistanceRanges[0].Name != "Tarifa plana" {
			t.Errorf("Unexpected Sur ranges: %+v", sur.DistanceRanges)
		}
	})

	invalid := []struct {
		name    string
		content string
	}{
		{"missing franchise id", "franchises:\n  - hourly_rate: 10\n"},
		{"duplicate franchise", "franchises:\n  - franchise_id: a\n  - franchise_id: a\n"},
		{"IRPF above one", "franchises:\n  - franchise_id: a\n    irpf_rate: 15\n"},
		{"unknown IVA", "franchises:\n  - franchise_id: a\n    tax_rate: 0.16\n"},
		{"negative range price", "franchises:\n  - franchise_id: a\n    distance_ranges:\n      - name: x\n        price: -1\n"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadBillingRates(writeRatesFile(t, tt.content), defaults); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func TestAdaptConfigForServerless(t *testing.T) {
	newConfig := func(backend string) *Config {
		store := database.DefaultConfig()
		store.Backend = backend
		return &Config{Store: store, RateLimit: RateLimitConfig{Enabled: true, RequestsPerSecond: 1, Burst: 1}}
	}
	lambda := &ServerlessConfig{IsLambda: true, FunctionName: "billing", Region: "eu-south-2"}

	t.Run("server mode is untouched", func(t *testing.T) {
		config := AdaptConfigForServerless(newConfig(database.BackendSQLite), &ServerlessConfig{})
		if config.Store.Backend != database.BackendSQLite || !config.RateLimit.Enabled {
			t.Errorf("Unexpected adaptation: %+v", config.Store)
		}
	})

	t.Run("default sqlite becomes dynamodb", func(t *testing.T) {
		t.Setenv("STORE_BACKEND", "")
		config := AdaptConfigForServerless(newConfig(database.BackendSQLite), lambda)
		if config.Store.Backend != database.BackendDynamoDB || config.Store.DynamoDB.Region != "eu-south-2" {
			t.Errorf("Expected DynamoDB in eu-south-2, got %+v", config.Store)
		}
		if config.RateLimit.Enabled {
			t.Error("Rate limiting is left to API Gateway")
		}
	})

	t.Run("explicit sqlite moves to EFS", func(t *testing.T) {
		t.Setenv("STORE_BACKEND", "sqlite")
		t.Setenv("EFS_DB_PATH", "")
		config := AdaptConfigForServerless(newConfig(database.BackendSQLite), lambda)
		if config.Store.Backend != database.BackendSQLite || config.Store.Database.Path != "/mnt/efs/repaart.db" {
			t.Errorf("Expected EFS sqlite, got %+v", config.Store)
		}
	})

	t.Run("local store moves to tmp", func(t *testing.T) {
		config := AdaptConfigForServerless(newConfig(database.BackendLocal), lambda)
		if config.Store.LocalPath != "/tmp/repaart-documents" {
			t.Errorf("Unexpected local path: %s", config.Store.LocalPath)
		}
	})
}
