package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/juan49ers-spec/Repaart-sub012/internal/adapters/storage"
	"github.com/juan49ers-spec/Repaart-sub012/internal/database"
	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
)

// DefaultRetryAttempts bounds the attempts of a conflicting transaction
const DefaultRetryAttempts = 5

// DefaultRetryConfig is the retry policy applied when no RETRY_* variable is set
func DefaultRetryConfig() *storage.RetryConfig {
	retry := storage.DefaultRetryConfig()
	retry.MaxAttempts = DefaultRetryAttempts
	return retry
}

// Config holds all configuration for the application
type Config struct {
	Environment string
	Port        string
	Version     string
	Store       *database.Config
	Retry       *storage.RetryConfig
	Billing     BillingConfig
	Rates       *BillingRatesConfig
	JWT         JWTConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	MercadoPago MercadoPagoConfig
	Log         LogConfig
}

// BillingConfig holds invoice engine and default tariff settings
type BillingConfig struct {
	PaymentTermDays int
	DuplicateCheck  bool
	DefaultRates    models.BillingRates
	RatesFile       string
}

// JWTConfig holds JWT configuration. Tokens are only read to identify the actor.
type JWTConfig struct {
	Secret   string
	Required bool
}

// RateLimitConfig holds the per-client request limiter settings
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
}

// CORSConfig holds the allowed browser origins
type CORSConfig struct {
	AllowedOrigins []string
}

// MercadoPagoConfig holds the card payment gateway settings
type MercadoPagoConfig struct {
	AccessToken string
	Mock        bool
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	config := &Config{
		Environment: v.GetString("ENVIRONMENT"),
		Port:        v.GetString("PORT"),
		Version:     v.GetString("APP_VERSION"),
		Store:       loadStoreConfig(v),
		Retry: &storage.RetryConfig{
			MaxAttempts:   v.GetInt("RETRY_MAX_ATTEMPTS"),
			InitialDelay:  v.GetDuration("RETRY_INITIAL_DELAY"),
			MaxDelay:      v.GetDuration("RETRY_MAX_DELAY"),
			BackoffFactor: v.GetFloat64("RETRY_BACKOFF_FACTOR"),
			JitterEnabled: v.GetBool("RETRY_JITTER"),
		},
		Billing: BillingConfig{
			PaymentTermDays: v.GetInt("PAYMENT_TERM_DAYS"),
			DuplicateCheck:  v.GetBool("DUPLICATE_CHECK"),
			DefaultRates: models.BillingRates{
				HourlyRate:     v.GetFloat64("DEFAULT_HOURLY_RATE"),
				KmRate:         v.GetFloat64("DEFAULT_KM_RATE"),
				IRPFRate:       v.GetFloat64("DEFAULT_IRPF_RATE"),
				ServiceFee:     v.GetFloat64("DEFAULT_SERVICE_FEE"),
				TaxRate:        models.TaxRate(v.GetFloat64("DEFAULT_TAX_RATE")),
				DistanceRanges: models.DefaultDistanceRanges(),
			},
			RatesFile: v.GetString("BILLING_RATES_FILE"),
		},
		JWT: JWTConfig{
			Secret:   v.GetString("JWT_SECRET"),
			Required: v.GetBool("JWT_REQUIRED"),
		},
		RateLimit: RateLimitConfig{
			Enabled:           v.GetBool("RATE_LIMIT_ENABLED"),
			RequestsPerSecond: v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:             v.GetInt("RATE_LIMIT_BURST"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		MercadoPago: MercadoPagoConfig{
			AccessToken: v.GetString("MP_ACCESS_TOKEN"),
			Mock:        v.GetBool("PAYMENT_GATEWAY_MOCK"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}

	rates, err := LoadBillingRates(config.Billing.RatesFile, config.Billing.DefaultRates)
	if err != nil {
		return nil, err
	}
	config.Rates = rates

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("APP_VERSION", "1.0.0")

	store := database.DefaultConfig()
	v.SetDefault("STORE_BACKEND", store.Backend)
	v.SetDefault("DB_PATH", store.Database.Path)
	v.SetDefault("DB_MIGRATIONS_PATH", store.Migration.Path)
	v.SetDefault("DB_AUTO_MIGRATE", store.Migration.Enabled)
	v.SetDefault("DB_BACKUP_ENABLED", store.Migration.BackupBeforeMigration)
	v.SetDefault("DB_MAX_OPEN_CONNS", store.Pool.MaxOpenConns)
	v.SetDefault("DB_MAX_IDLE_CONNS", store.Pool.MaxIdleConns)
	v.SetDefault("DB_QUERY_TIMEOUT", store.Query.Timeout)
	v.SetDefault("DB_QUERY_LOGGING", store.Query.EnableQueryLogging)
	v.SetDefault("LOCAL_STORE_PATH", store.LocalPath)
	v.SetDefault("DYNAMODB_TABLE", store.DynamoDB.Table)
	v.SetDefault("AWS_REGION", store.DynamoDB.Region)

	retry := DefaultRetryConfig()
	v.SetDefault("RETRY_MAX_ATTEMPTS", retry.MaxAttempts)
	v.SetDefault("RETRY_INITIAL_DELAY", retry.InitialDelay)
	v.SetDefault("RETRY_MAX_DELAY", retry.MaxDelay)
	v.SetDefault("RETRY_BACKOFF_FACTOR", retry.BackoffFactor)
	v.SetDefault("RETRY_JITTER", true)

	v.SetDefault("PAYMENT_TERM_DAYS", models.DefaultPaymentTermDays)
	v.SetDefault("DUPLICATE_CHECK", true)
	v.SetDefault("DEFAULT_IRPF_RATE", 0.15)
	v.SetDefault("DEFAULT_TAX_RATE", float64(models.TaxRateGeneral))

	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// Validate checks values that would otherwise fail late at request time
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("invalid store configuration: %w", err)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1")
	}
	if c.Billing.PaymentTermDays < 0 || c.Billing.PaymentTermDays > 365 {
		return fmt.Errorf("payment term days must be between 0 and 365, got %d", c.Billing.PaymentTermDays)
	}
	if err := ValidateRates(c.Billing.DefaultRates); err != nil {
		return fmt.Errorf("invalid default rates: %w", err)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst < 1) {
		return fmt.Errorf("rate limit requires a positive rate and burst")
	}
	if c.JWT.Required && c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required when tokens are required")
	}
	return nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// GetEnv gets an environment variable with a fallback value
func GetEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
