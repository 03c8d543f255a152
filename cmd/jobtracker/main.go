package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/target/jobtracker/config"
	"github.com/target/jobtracker/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	if err := run(ctx); err != nil {
		slog.Default().ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}

	logger, logCloser, err := bootstrap.InitLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := logCloser.Close(); cerr != nil {
			fmt.Fprintln(os.Stderr, "close log file:", cerr)
		}
	}()

	catalog, err := config.LoadCatalog(cfg.Tracker.JobsFile)
	if err != nil {
		return err
	}

	logStartupInfo(ctx, logger, &cfg, catalog)

	infra, err := bootstrap.ConnectInfrastructure(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := infra.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close infrastructure failed", "error", cerr)
		}
	}()

	tracker, err := bootstrap.BuildTracker(bootstrap.TrackerBuildConfig{
		Config:  &cfg,
		Catalog: catalog,
		Infra:   infra,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	return bootstrap.RunServicesWithShutdown(ctx, &bootstrap.ServiceOrchestrationConfig{
		Config:  &cfg,
		Tracker: tracker,
		Logger:  logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig, catalog *config.Catalog) {
	logger.InfoContext(ctx, "starting jobtracker",
		"jobs_config", cfg.Tracker.JobsFile,
		"jobs", len(catalog.Jobs),
		"hosts", len(catalog.Hosts),
		"interval", cfg.Tracker.Interval,
		"ledger_backend", cfg.Ledger.Backend,
		"reporting_backend", cfg.Reporting.Backend,
		"source_kind", cfg.Sources.Kind,
		"http_enabled", cfg.HTTP.Enabled,
	)
}
