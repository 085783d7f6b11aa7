// Package cmd wires the collector's CLI surface with Cobra.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/focusops/focus-collector/internal/app"
	"github.com/focusops/focus-collector/internal/config"
	"github.com/focusops/focus-collector/internal/logging"
)

var cfgFile string

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It is a variable so tests can swap in a
// mock factory.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command. Services are built in
// PersistentPreRunE and torn down in PersistentPostRun so every subcommand
// gets the same lifecycle.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "focus-collector",
		Short: "One-shot collection runs for focus queries.",
		Long: `focus-collector executes collection runs for configured focus queries:
it fetches each query's sources, deduplicates the harvested content, asks an
LLM for a relevance summary, and streams run progress over Server-Sent Events.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}

			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*app.App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional; environment variables use the FOCUS_ prefix)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCollectCmd())

	return cmd
}

// resolveApp pulls the injected App out of the command context.
func resolveApp(cmd *cobra.Command) (*app.App, error) {
	appInstance, ok := cmd.Context().Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() error {
	return newRootCmd().Execute()
}
