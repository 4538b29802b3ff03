package main

import (
	"github.com/spf13/cobra"

	"github.com/juan49ers-spec/Repaart-sub012/internal/logger"
)

func newCloseCmd(a *app) *cobra.Command {
	var closedBy string

	cmd := &cobra.Command{
		Use:   "close <franchise-id> <period>",
		Short: "Close the IVA month of a franchise",
		Long: `Recompute the output and input IVA of a franchise month (YYYY-MM) from its
issued invoices and recorded expenses, then lock the month. A closed month
rejects further expenses and cannot be closed again.`,
		Example: `  billingctl close franchise-madrid 2026-03 --by admin@repaart.es`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			franchiseID, period := args[0], args[1]
			log := logger.WithFranchise("close", franchiseID)

			ctx, cancel := a.context(cmd)
			defer cancel()

			result, err := a.container.Services.TaxVault.ExecuteMonthlyClose(ctx, franchiseID, period, closedBy)
			if err != nil {
				return err
			}
			log.Info().
				Str("period", result.Period).
				Time("closed_at", result.ClosedAt).
				Msg("Month closed")
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&closedBy, "by", "billingctl", "Actor recorded as closing the month")

	return cmd
}

func newRecalculateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "recalculate <franchise-id> <period>",
		Short: "Rebuild the IVA totals of an open month",
		Long: `Recompute the tax vault entry of a franchise month (YYYY-MM) from the stored
invoices and expenses without locking it. Closed months are rejected.`,
		Example: `  billingctl recalculate franchise-madrid 2026-03`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			franchiseID, period := args[0], args[1]
			log := logger.WithFranchise("recalculate", franchiseID)

			ctx, cancel := a.context(cmd)
			defer cancel()

			entry, err := a.container.Services.TaxVault.RecalculateMonth(ctx, franchiseID, period)
			if err != nil {
				return err
			}
			log.Info().
				Str("period", entry.Period).
				Float64("total_tax", entry.TotalTax).
				Int("invoices", len(entry.InvoiceIDs)).
				Msg("Month recalculated")
			return printJSON(cmd.OutOrStdout(), entry)
		},
	}
}
