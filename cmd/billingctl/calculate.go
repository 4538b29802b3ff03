package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/juan49ers-spec/Repaart-sub012/internal/logger"
	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
)

func newCalculateCmd(a *app) *cobra.Command {
	var (
		factsFile   string
		createDraft bool
		createdBy   string
	)

	cmd := &cobra.Command{
		Use:   "calculate",
		Short: "Compute the logistics billing of a period",
		Long: `Compute invoice lines from the shifts and orders of a period using the
tariff of the franchise. With --draft the result is stored as a draft invoice.`,
		Example: `  billingctl calculate --facts march.json
  billingctl calculate --facts march.json --draft --created-by admin@repaart.es`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.WithComponent("calculate")

			data, err := os.ReadFile(factsFile)
			if err != nil {
				return fmt.Errorf("failed to read facts file: %w", err)
			}
			var facts models.PeriodFacts
			if err := json.Unmarshal(data, &facts); err != nil {
				return fmt.Errorf("failed to parse facts file: %w", err)
			}

			ctx, cancel := a.context(cmd)
			defer cancel()

			svc := a.container.Services
			rates, err := svc.Logistics.RatesForFranchise(ctx, facts.FranchiseID)
			if err != nil {
				return err
			}
			result, err := svc.Logistics.CalculateBilling(ctx, &facts, rates)
			if err != nil {
				return err
			}

			log.Info().
				Str("franchise_id", facts.FranchiseID).
				Str("period", facts.Period).
				Int("lines", len(result.Lines)).
				Int("skipped_shifts", result.SkippedShifts).
				Float64("total", result.Totals.Total).
				Msg("Billing calculated")

			output := map[string]interface{}{"result": result}
			if createDraft {
				req := svc.Logistics.BuildDraftRequest(result, &facts)
				req.CreatedBy = createdBy
				draft, err := svc.Invoices.CreateDraft(ctx, req)
				if err != nil {
					return err
				}
				log.Info().Str("invoice_id", draft.ID).Msg("Draft stored")
				output["draft"] = draft
			}
			return printJSON(cmd.OutOrStdout(), output)
		},
	}

	cmd.Flags().StringVar(&factsFile, "facts", "", "JSON file with the period facts")
	cmd.Flags().BoolVar(&createDraft, "draft", false, "Store the result as a draft invoice")
	cmd.Flags().StringVar(&createdBy, "created-by", "billingctl", "Actor recorded on the draft")
	_ = cmd.MarkFlagRequired("facts")

	return cmd
}
