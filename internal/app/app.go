package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"ArticleHarvester/internal/clock"
	"ArticleHarvester/internal/config"
	"ArticleHarvester/internal/infrastructure/cache"
	"ArticleHarvester/internal/infrastructure/classifier"
	"ArticleHarvester/internal/infrastructure/parser"
	"ArticleHarvester/internal/infrastructure/scheduler"
	"ArticleHarvester/internal/infrastructure/storage"
	"ArticleHarvester/internal/logging"
	"ArticleHarvester/internal/metrics"
	"ArticleHarvester/internal/ports"
	"ArticleHarvester/internal/scanner"
	"ArticleHarvester/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	scheduler *usecase.Scheduler

	redis   *redis.Client
	durable *storage.PostgresRepository
}

// New builds the stores, categorizer and source adapters described by cfg
// and registers every source with the scheduler. Nothing runs until Run.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &Application{cfg: cfg, logger: baseLogger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	dedup, err := a.dedupStore(ctx)
	if err != nil {
		return nil, err
	}

	var durable ports.DurableStore
	if cfg.DurableSink.Enabled {
		repo, err := storage.NewPostgresRepository(ctx, storage.RepositoryConfig{
			DSN:      cfg.Database.DSN,
			Table:    cfg.Database.Table,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("durable sink: %w", err)
		}
		a.durable = repo
		durable = repo
	} else {
		baseLogger.Info("durable sink disabled")
	}

	categorizer, err := newCategorizer(cfg.Classifier)
	if err != nil {
		return nil, err
	}

	registry := scanner.NewRegistry()
	registry.Register(parser.NewArxivStrategy(&http.Client{Timeout: cfg.Scheduler.HTTPTimeout}))
	registry.Register(parser.NewSelectorStrategy(cfg.Scheduler.HTTPTimeout))

	adapters, err := parser.BuildAdapters(registry, cfg.Sites, baseLogger.With("component", "scanner"))
	if err != nil {
		return nil, err
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Dedup:       dedup,
		Durable:     durable,
		Categorizer: categorizer,
		Logger:      baseLogger.With("component", "pipeline"),
	})

	driver := scheduler.NewFixedDelayScheduler(clock.New(), baseLogger.With("component", "scheduler"))
	a.scheduler = usecase.NewScheduler(driver, pipeline, baseLogger.With("component", "jobs"))
	for _, adapter := range adapters {
		if err := a.scheduler.Register(adapter); err != nil {
			return nil, err
		}
	}

	ok = true
	return a, nil
}

func (a *Application) dedupStore(ctx context.Context) (ports.DedupStore, error) {
	if a.cfg.Redis.Address == "" {
		a.logger.Warn("redis address not configured, using in-memory dedup store")
		return cache.NewMemoryStore(), nil
	}

	client, err := cache.NewClient(ctx, cache.ClientConfig{
		Address:  a.cfg.Redis.Address,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("dedup store: %w", err)
	}
	a.redis = client
	return cache.NewRedisStore(client, a.cfg.Redis.TTL), nil
}

func newCategorizer(cfg config.ClassifierConfig) (ports.Categorizer, error) {
	if cfg.Endpoint != "" {
		return classifier.NewClient(cfg.Endpoint, cfg.APIKey, cfg.Timeout), nil
	}

	rules := make([]classifier.Rule, 0, len(cfg.Categories))
	for _, r := range cfg.Categories {
		rules = append(rules, classifier.Rule{ID: r.ID, Name: r.Name, Keywords: r.Keywords})
	}
	c, err := classifier.NewKeywordClassifier(rules)
	if err != nil {
		return nil, fmt.Errorf("keyword classifier: %w", err)
	}
	return c, nil
}

// Sources lists the registered source names.
func (a *Application) Sources() []string {
	return a.scheduler.Sources()
}

// Run starts every source on its own schedule and blocks until ctx is done,
// then stops the scheduler, waiting up to the shutdown timeout for in-flight
// executions.
func (a *Application) Run(ctx context.Context) error {
	var metricsSrv *http.Server
	if addr := a.cfg.Metrics.Address; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		metricsSrv = &http.Server{Handler: metrics.NewRouter(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server stopped", "error", err)
			}
		}()
		a.logger.Info("metrics endpoint listening", "address", ln.Addr().String())
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("scheduler started", "sources", a.scheduler.Sources())

	<-ctx.Done()
	a.logger.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Scheduler.ShutdownTimeout)
	defer cancel()

	var errs error
	if err := a.scheduler.Stop(stopCtx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(stopCtx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("stop metrics server: %w", err))
		}
	}
	return errs
}

// RunOnce executes one source immediately and returns its report.
func (a *Application) RunOnce(ctx context.Context, source string) (usecase.Report, error) {
	return a.scheduler.RunOnce(ctx, source)
}

// Close releases store connections.
func (a *Application) Close() {
	if a.durable != nil {
		a.durable.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", "error", err)
		}
	}
}
