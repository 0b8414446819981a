package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"

	"GradScrape/internal/cleaning"
	"GradScrape/internal/config"
	"GradScrape/internal/domain"
	"GradScrape/internal/gate"
	"GradScrape/internal/httpapi"
	"GradScrape/internal/infrastructure/llm"
	"GradScrape/internal/infrastructure/parser"
	"GradScrape/internal/infrastructure/scheduler"
	"GradScrape/internal/infrastructure/storage"
	"GradScrape/internal/infrastructure/telegram"
	"GradScrape/internal/logging"
	"GradScrape/internal/metrics"
	"GradScrape/internal/ports"
	"GradScrape/internal/scanner"
	"GradScrape/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     ports.RecordStore
	metrics   *metrics.Recorder
	ingestion *usecase.Ingestion
	seeder    *usecase.Ingestion
	analysis  *usecase.Analysis
	scheduler *usecase.Scheduler
}

// New opens the record store and builds every component around one shared
// busy gate. The caller owns Close.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}

	registry := scanner.NewRegistry()
	registry.Register(parser.NewGradCafeScanner(nil, cfg.Scraper, baseLogger.With("component", "scanner.gradcafe")))
	registry.Register(parser.NewFileScanner())

	source := parser.NewStrategySource(registry, cfg.Sources, baseLogger.With("component", "source"))

	var standardizer ports.Standardizer
	if cfg.LLM.Endpoint != "" {
		standardizer = llm.NewClient(cfg.LLM)
	}

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.Enabled() {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram)
	}

	recorder := metrics.New()
	busy := gate.New()
	loader := usecase.NewLoader(store, baseLogger.With("component", "loader"))

	deps := usecase.IngestionDeps{
		Gate:         busy,
		Source:       source,
		Cleaner:      cleaning.NewNormalizer(cfg.Validation),
		Standardizer: standardizer,
		Loader:       loader,
		Notifier:     notifier,
		Metrics:      recorder,
		Logger:       baseLogger.With("component", "ingestion"),
		BaseContext:  ctx,
	}
	ingestion := usecase.NewIngestion(deps)

	seedDeps := deps
	seedDeps.Source = source.ForSources([]config.SourceConfig{{Name: "seed", Scanner: "file", URL: cfg.Seed.Path}})
	seedDeps.Notifier = nil
	seedDeps.Logger = baseLogger.With("component", "seed")

	analysis := usecase.NewAnalysis(usecase.AnalysisDeps{
		Gate:    busy,
		Store:   store,
		Metrics: recorder,
		Logger:  baseLogger.With("component", "analysis"),
	})

	var driver ports.Scheduler
	if cfg.Scheduler.Enabled {
		driver = scheduler.NewIntervalScheduler(cfg.Scheduler.Interval, cfg.Scheduler.RunOnStart, cfg.Scheduler.Location())
	}

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		store:     store,
		metrics:   recorder,
		ingestion: ingestion,
		seeder:    usecase.NewIngestion(seedDeps),
		analysis:  analysis,
		scheduler: usecase.NewScheduler(driver, ingestion, baseLogger.With("component", "scheduler")),
	}, nil
}

// Handler builds the HTTP API over the application's use cases.
func (a *Application) Handler() http.Handler {
	return httpapi.NewHandler(httpapi.Deps{
		Ingestion: a.ingestion,
		Analysis:  a.analysis,
		Store:     a.store,
		Gatherer:  a.metrics.Registry(),
		Logger:    a.logger.With("component", "http"),
	})
}

// Serve seeds an empty store, starts the scheduler and serves HTTP until ctx
// is cancelled. In-flight runs are awaited before returning.
func (a *Application) Serve(ctx context.Context) error {
	a.seedIfEmpty(ctx)

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	server := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: a.cfg.HTTP.ReadTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown", "error", err)
	}
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduler stop", "error", err)
	}
	a.ingestion.Wait()

	if serveErr != nil {
		return fmt.Errorf("serve http: %w", serveErr)
	}
	return nil
}

// PullOnce runs one synchronous ingestion.
func (a *Application) PullOnce(ctx context.Context) (domain.IngestionRun, error) {
	return a.ingestion.RunOnce(ctx, domain.TriggerCLI)
}

// Analyze runs one gated refresh.
func (a *Application) Analyze(ctx context.Context) (domain.RefreshResult, error) {
	return a.analysis.Refresh(ctx)
}

// Close releases the record store.
func (a *Application) Close() error {
	return a.store.Close()
}

// seedIfEmpty loads the configured dump through the gated pipeline when the
// store holds no records yet.
func (a *Application) seedIfEmpty(ctx context.Context) {
	path := a.cfg.Seed.Path
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		a.logger.Debug("seed file unavailable", "path", path, "error", err)
		return
	}

	count, err := a.store.Count(ctx)
	if err != nil {
		a.logger.Warn("count records before seeding", "error", err)
		return
	}
	if count > 0 {
		return
	}

	run, err := a.seeder.RunOnce(ctx, domain.TriggerSeed)
	if err != nil {
		a.logger.Warn("seed skipped", "error", err)
		return
	}
	a.logger.Info("store seeded", "path", path, "status", run.Status, "inserted", run.Load.Inserted)
}

// Migrate creates the schema for SQL backends and exits.
func Migrate(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) error {
	if strings.EqualFold(strings.TrimSpace(cfg.Driver), storage.DriverMemory) {
		logger.Info("memory store needs no migration")
		return nil
	}

	dialect, err := storage.ParseDialect(cfg.Driver)
	if err != nil {
		return err
	}
	store, err := storage.OpenSQL(ctx, dialect, cfg.DSN, cfg.MaxOpenConns)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("schema migrated", "driver", dialect)
	return nil
}
