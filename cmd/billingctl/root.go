package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/juan49ers-spec/Repaart-sub012/internal/config"
	"github.com/juan49ers-spec/Repaart-sub012/internal/logger"
	"github.com/juan49ers-spec/Repaart-sub012/pkg/server"
)

var version = "1.0.0"

// app carries the container shared by the subcommands of one invocation
type app struct {
	container *server.Container
	timeout   time.Duration
}

func newRootCmd() *cobra.Command {
	a := &app{}

	var (
		logLevel  string
		logFormat string
		verbose   bool
	)

	rootCmd := &cobra.Command{
		Use:   "billingctl",
		Short: "Operate the Repaart billing store from the command line",
		Long: `billingctl runs billing operations directly against the configured store.

It reads the same environment as the API server (STORE_BACKEND, DB_PATH,
DYNAMODB_TABLE, BILLING_RATES_FILE...), so it can seed profiles, compute
logistics billing, inspect debt and break-even, and close tax months.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logConfig := logger.DefaultConfig()
			logConfig.Level = logLevel
			logConfig.Format = logFormat
			if verbose {
				logConfig.Level = "debug"
			}
			if err := logger.Setup(logConfig); err != nil {
				return fmt.Errorf("invalid log configuration: %w", err)
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if err := config.EnsureStoreDirectories(cfg.Store); err != nil {
				return err
			}
			// service logs stay quiet so stdout carries only command output
			cfg.Log.Level = "error"
			if verbose {
				cfg.Log.Level = "debug"
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
			defer cancel()
			container, err := server.NewContainer(ctx, cfg)
			if err != nil {
				return err
			}
			container.Logger.SetOutput(cmd.ErrOrStderr())
			a.container = container

			log := logger.WithComponent("billingctl")
			log.Debug().
				Str("command", cmd.Name()).
				Str("backend", container.Repositories.Backend()).
				Msg("Store opened")
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.container == nil {
				return nil
			}
			return a.container.Close()
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format (console, json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "Enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&a.timeout, "timeout", 30*time.Second, "Timeout of each store operation")

	rootCmd.AddCommand(
		newSeedCmd(a),
		newCalculateCmd(a),
		newBreakEvenCmd(a),
		newDashboardCmd(a),
		newCloseCmd(a),
		newRecalculateCmd(a),
	)
	return rootCmd
}

func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), a.timeout)
}

func printJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
