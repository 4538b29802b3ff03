package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/juan49ers-spec/Repaart-sub012/internal/logger"
	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
)

func newSeedCmd(a *app) *cobra.Command {
	var (
		customerType string
		file         string
		profile      models.FranchiseProfile
		hourlyRate   float64
		kmRate       float64
		irpfRate     float64
		serviceFee   float64
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Store franchise or restaurant profiles",
		Long: `Store the fiscal profile of a franchise (invoice issuer) or a restaurant (customer).

A single profile is described with flags; --file loads a JSON array of profiles
that all share --type. Rate flags set per-franchise tariff overrides.`,
		Example: `  # Register a franchise as issuer
  billingctl seed --id franchise-madrid --fiscal-name "Repaart Madrid SL" --tax-id B87654321 --phone "+34 600 123 456"

  # Register restaurants from a file
  billingctl seed --type RESTAURANT --file restaurants.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.WithComponent("seed")

			kind := models.CustomerType(strings.ToUpper(customerType))
			if !kind.IsValid() {
				return fmt.Errorf("invalid profile type %q, use FRANCHISE or RESTAURANT", customerType)
			}

			var profiles []*models.FranchiseProfile
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("failed to read profiles file: %w", err)
				}
				if err := json.Unmarshal(data, &profiles); err != nil {
					return fmt.Errorf("failed to parse profiles file: %w", err)
				}
			} else {
				if profile.ID == "" {
					return fmt.Errorf("--id or --file is required")
				}
				rates := &models.RateProfile{}
				overridden := false
				for name, target := range map[string]**float64{
					"hourly-rate": &rates.HourlyRate,
					"km-rate":     &rates.KmRate,
					"irpf-rate":   &rates.IRPFRate,
					"service-fee": &rates.ServiceFee,
				} {
					if !cmd.Flags().Changed(name) {
						continue
					}
					value, _ := cmd.Flags().GetFloat64(name)
					*target = &value
					overridden = true
				}
				if overridden {
					profile.Rates = rates
				}
				profiles = append(profiles, &profile)
			}

			ctx, cancel := a.context(cmd)
			defer cancel()

			for _, p := range profiles {
				if err := a.container.Repositories.Profiles().Save(ctx, kind, p); err != nil {
					return fmt.Errorf("failed to save profile %s: %w", p.ID, err)
				}
				log.Info().
					Str("id", p.ID).
					Str("type", string(kind)).
					Msg("Profile stored")
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"type":   kind,
				"stored": len(profiles),
			})
		},
	}

	cmd.Flags().StringVar(&customerType, "type", string(models.CustomerTypeFranchise), "Profile type (FRANCHISE, RESTAURANT)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with an array of profiles")
	cmd.Flags().StringVar(&profile.ID, "id", "", "Profile ID")
	cmd.Flags().StringVar(&profile.Name, "name", "", "Commercial name")
	cmd.Flags().StringVar(&profile.FiscalName, "fiscal-name", "", "Fiscal name")
	cmd.Flags().StringVar(&profile.TaxID, "tax-id", "", "Tax ID (NIF/CIF)")
	cmd.Flags().StringVar(&profile.Email, "email", "", "Contact email")
	cmd.Flags().StringVar(&profile.Phone, "phone", "", "Contact phone")
	cmd.Flags().StringVar(&profile.Address.Street, "street", "", "Street address")
	cmd.Flags().StringVar(&profile.Address.City, "city", "", "City")
	cmd.Flags().StringVar(&profile.Address.PostalCode, "postal-code", "", "Postal code")
	cmd.Flags().StringVar(&profile.Address.Province, "province", "", "Province")
	cmd.Flags().Float64Var(&hourlyRate, "hourly-rate", 0, "Hourly rate override")
	cmd.Flags().Float64Var(&kmRate, "km-rate", 0, "Per-km rate override")
	cmd.Flags().Float64Var(&irpfRate, "irpf-rate", 0, "IRPF withholding override (0-1)")
	cmd.Flags().Float64Var(&serviceFee, "service-fee", 0, "Monthly service fee override")

	return cmd
}
