package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/viper"

	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
)

// BillingRatesConfig holds the default tariff and the per-franchise tariffs
type BillingRatesConfig struct {
	Default    models.BillingRates
	Franchises map[string]models.BillingRates
}

// franchiseRatesEntry is one entry of the rates file. Franchise ids are kept
// in a list because viper lower-cases map keys.
type franchiseRatesEntry struct {
	FranchiseID    string                 `mapstructure:"franchise_id"`
	HourlyRate     *float64               `mapstructure:"hourly_rate"`
	KmRate         *float64               `mapstructure:"km_rate"`
	IRPFRate       *float64               `mapstructure:"irpf_rate"`
	ServiceFee     *float64               `mapstructure:"service_fee"`
	TaxRate        *float64               `mapstructure:"tax_rate"`
	DistanceRanges []models.DistanceRange `mapstructure:"distance_ranges"`
}

// apply overlays the entry on top of the default tariff
func (e franchiseRatesEntry) apply(defaults models.BillingRates) models.BillingRates {
	profile := &models.RateProfile{
		HourlyRate: e.HourlyRate,
		KmRate:     e.KmRate,
		IRPFRate:   e.IRPFRate,
		ServiceFee: e.ServiceFee,
	}
	rates := profile.Apply(defaults)
	if e.TaxRate != nil {
		rates.TaxRate = models.TaxRate(*e.TaxRate)
	}
	if len(e.DistanceRanges) > 0 {
		rates.DistanceRanges = e.DistanceRanges
	}
	return rates
}

// LoadBillingRates reads the optional rates file (YAML, JSON or TOML):
//
//	franchises:
//	  - franchise_id: franchise-madrid
//	    hourly_rate: 12.5
//	    km_rate: 0.30
//	    irpf_rate: 0.15
//	    service_fee: 10
//	    tax_rate: 0.21
//
// Fields left out of an entry keep the default tariff.
func LoadBillingRates(path string, defaults models.BillingRates) (*BillingRatesConfig, error) {
	rates := &BillingRatesConfig{
		Default:    defaults,
		Franchises: map[string]models.BillingRates{},
	}
	if strings.TrimSpace(path) == "" {
		return rates, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read billing rates file %s: %w", path, err)
	}

	var entries []franchiseRatesEntry
	if err := v.UnmarshalKey("franchises", &entries); err != nil {
		return nil, fmt.Errorf("failed to parse billing rates file %s: %w", path, err)
	}

	for i, entry := range entries {
		id := strings.TrimSpace(entry.FranchiseID)
		if id == "" {
			return nil, fmt.Errorf("billing rates entry %d has no franchise_id", i)
		}
		if _, dup := rates.Franchises[id]; dup {
			return nil, fmt.Errorf("duplicate billing rates for franchise %s", id)
		}

		franchiseRates := entry.apply(defaults)
		if err := ValidateRates(franchiseRates); err != nil {
			return nil, fmt.Errorf("invalid billing rates for franchise %s: %w", id, err)
		}
		rates.Franchises[id] = franchiseRates
	}

	return rates, nil
}

// ValidateRates checks that a tariff can be fed to the logistics calculator
func ValidateRates(rates models.BillingRates) error {
	amounts := map[string]float64{
		"hourly_rate": rates.HourlyRate,
		"km_rate":     rates.KmRate,
		"service_fee": rates.ServiceFee,
	}
	for name, value := range amounts {
		if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
			return fmt.Errorf("%s must be a non-negative number, got %v", name, value)
		}
	}
	if math.IsNaN(rates.IRPFRate) || rates.IRPFRate < 0 || rates.IRPFRate > 1 {
		return fmt.Errorf("irpf_rate must be between 0 and 1, got %v", rates.IRPFRate)
	}
	if _, err := models.ParseTaxRate(float64(rates.TaxRate)); err != nil {
		return fmt.Errorf("tax_rate %v is not an allowed IVA rate", float64(rates.TaxRate))
	}
	for _, r := range rates.DistanceRanges {
		if r.Price < 0 || r.MinKm < 0 {
			return fmt.Errorf("distance range %s has a negative bound or price", r.Name)
		}
	}
	return nil
}
