package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"GradScrape/internal/app"
	"GradScrape/internal/config"
	"GradScrape/internal/logging"
)

const configFlag = "config"

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gradscrape",
		Short: "gradscrape collects graduate admission reports and summarizes them.",
		Long: `gradscrape scrapes applicant result pages, reconciles them into a record store
and serves gated pull and analysis triggers over HTTP.

Configuration is read from the YAML file passed with --config, falling back to
$GRADSCRAPE_CONFIG, with environment variables taking precedence over both.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String(configFlag, "", "Path to the YAML configuration file")

	cmd.AddCommand(
		serveCmd(),
		pullCmd(),
		analyzeCmd(),
		migrateCmd(),
	)

	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, run the scheduler and seed an empty store.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(ctx context.Context, application *app.Application) error {
				return application.Serve(ctx)
			})
		},
	}
}

func pullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Run one ingestion and print the run summary.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(ctx context.Context, application *app.Application) error {
				run, err := application.PullOnce(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), run)
			})
		},
	}
}

func analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Recompute aggregates over the record store and print them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(ctx context.Context, application *app.Application) error {
				result, err := application.Analyze(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the record store schema and exit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return app.Migrate(cmd.Context(), cfg.Database, logger)
		},
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	path, err := cmd.Flags().GetString(configFlag)
	if err != nil {
		return config.Config{}, nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logging.New(cfg.Logging.Level, cfg.Logging.Format), nil
}

func withApplication(cmd *cobra.Command, fn func(context.Context, *app.Application) error) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("close application", "error", err)
		}
	}()

	return fn(ctx, application)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
