package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/juan49ers-spec/Repaart-sub012/internal/logger"
	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
)

func newBreakEvenCmd(a *app) *cobra.Command {
	var (
		hours  float64
		orders float64
	)

	cmd := &cobra.Command{
		Use:   "breakeven <franchise-id> <period>",
		Short: "Analyze the break-even of a franchise month",
		Long: `Compute break-even thresholds from the invoices, expenses and operational
metrics stored for a franchise month (YYYY-MM). --hours and --orders record
the metrics of the month before analyzing it.`,
		Example: `  billingctl breakeven franchise-madrid 2026-03
  billingctl breakeven franchise-madrid 2026-03 --hours 640 --orders 1800`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			franchiseID, period := args[0], args[1]
			log := logger.WithFranchise("breakeven", franchiseID)

			ctx, cancel := a.context(cmd)
			defer cancel()

			analyzer := a.container.Services.BreakEven
			if cmd.Flags().Changed("hours") || cmd.Flags().Changed("orders") {
				metrics := &models.FranchiseMetrics{
					FranchiseID: franchiseID,
					Period:      period,
					Hours:       hours,
					Orders:      orders,
				}
				if err := analyzer.RecordMetrics(ctx, metrics); err != nil {
					return err
				}
				log.Info().
					Float64("hours", hours).
					Float64("orders", orders).
					Msg("Metrics recorded")
			}

			result, err := analyzer.AnalyzePeriod(ctx, franchiseID, period)
			if err != nil {
				return err
			}
			log.Info().
				Str("period", period).
				Str("status", string(result.Status)).
				Msg("Break-even analyzed")
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().Float64Var(&hours, "hours", 0, "Worked hours of the month")
	cmd.Flags().Float64Var(&orders, "orders", 0, "Delivered orders of the month")

	return cmd
}

func newDashboardCmd(a *app) *cobra.Command {
	var customerID string

	cmd := &cobra.Command{
		Use:   "dashboard <franchise-id>",
		Short: "Show the outstanding debt of a franchise",
		Long: `Group the unpaid issued invoices of a franchise by customer and aging
bucket. --customer narrows the output to one customer.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			franchiseID := args[0]
			log := logger.WithFranchise("dashboard", franchiseID)

			ctx, cancel := a.context(cmd)
			defer cancel()

			receivable := a.container.Services.Receivable
			if customerID != "" {
				debt, err := receivable.GetCustomerDebt(ctx, franchiseID, customerID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), debt)
			}

			dashboard, err := receivable.GenerateDebtDashboard(ctx, franchiseID)
			if err != nil {
				return fmt.Errorf("failed to generate debt dashboard: %w", err)
			}
			log.Info().
				Int("customers", dashboard.CustomerCount).
				Float64("outstanding", dashboard.TotalOutstanding).
				Float64("overdue", dashboard.TotalOverdue).
				Msg("Debt dashboard generated")
			return printJSON(cmd.OutOrStdout(), dashboard)
		},
	}

	cmd.Flags().StringVar(&customerID, "customer", "", "Only show the debt of this customer")

	return cmd
}
