package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"ArticleHarvester/internal/app"
	"ArticleHarvester/internal/config"
	"ArticleHarvester/internal/logging"
	"ArticleHarvester/internal/usecase"
)

const configPathEnv = "HARVESTER_CONFIG"

// buildApp is swapped in tests.
var buildApp = func(ctx context.Context, cfg config.Config, logger *slog.Logger) (application, error) {
	return app.New(ctx, cfg, logger)
}

type application interface {
	Run(ctx context.Context) error
	RunOnce(ctx context.Context, source string) (usecase.Report, error)
	Sources() []string
	Close()
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:           "articleharvester",
		Short:         "Periodically harvests articles from configured sources",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if err := config.LoadEnvFiles(); err != nil {
				return err
			}
			if cfgFile != "" {
				return os.Setenv(configPathEnv, cfgFile)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScheduler(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to the YAML config (overrides "+configPathEnv+")")

	cmd.AddCommand(newRunCmd(), newOnceCmd(), newSourcesCmd())
	return cmd
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every source on its schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScheduler(cmd.Context())
		},
	}
}

func newOnceCmd() *cobra.Command {
	var site string

	cmd := &cobra.Command{
		Use:   "once",
		Short: "Harvest a single source immediately and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a application, logger *slog.Logger) error {
				report, err := a.RunOnce(cmd.Context(), site)
				if err != nil {
					return err
				}
				logger.Info("harvest finished",
					"source", report.Source,
					"fetched", report.Fetched,
					"new", report.Deduplicated,
					"persisted", report.Persisted,
					"took", report.Duration)
				if report.SinkErrors != nil {
					return fmt.Errorf("persist: %w", report.SinkErrors)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&site, "site", "", "name of the configured site to harvest")
	_ = cmd.MarkFlagRequired("site")
	return cmd
}

func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List configured sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a application, _ *slog.Logger) error {
				for _, name := range a.Sources() {
					if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func runScheduler(ctx context.Context) error {
	return withApp(ctx, func(a application, _ *slog.Logger) error {
		if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("application stopped: %w", err)
		}
		return nil
	})
}

func withApp(ctx context.Context, fn func(application, *slog.Logger) error) error {
	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init application: %w", err)
	}
	defer a.Close()

	return fn(a, logger)
}
