package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ArticleHarvester/internal/domain"
	"ArticleHarvester/internal/ports"
)

// ErrUnknownSource is returned by RunOnce for unregistered names.
var ErrUnknownSource = errors.New("source is not registered")

// Scheduler binds every registered source adapter to the pipeline and hands
// the resulting crawl-then-analyze jobs to a timer driver.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	logger   *slog.Logger

	mu        sync.Mutex
	sources   map[string]registration
	order     []string
	scheduled map[string]struct{} // handed to the driver
	started   bool
}

type registration struct {
	adapter ports.SourceAdapter
	cfg     domain.SourceJobConfig
}

// NewScheduler returns a helper to register sources and start/stop their jobs.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		driver:    driver,
		pipeline:  pipeline,
		logger:    logger,
		sources:   map[string]registration{},
		scheduled: map[string]struct{}{},
	}
}

// Register reads the adapter's schedule once and stores the pairing. Nothing
// runs until Start.
func (s *Scheduler) Register(adapter ports.SourceAdapter) error {
	if adapter == nil {
		return fmt.Errorf("register: nil adapter")
	}
	name := adapter.Name()
	cfg := adapter.Schedule()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("register %s: scheduler already started", name)
	}
	if _, ok := s.sources[name]; ok {
		return fmt.Errorf("register %s: source already registered", name)
	}
	s.sources[name] = registration{adapter: adapter, cfg: cfg}
	s.order = append(s.order, name)
	return nil
}

// Sources lists registered source names in registration order.
func (s *Scheduler) Sources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Start schedules every registered source on the driver and starts it. A
// failed Start may be retried: sources already handed to the driver are not
// scheduled twice.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return fmt.Errorf("scheduler is not configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler already started")
	}

	for _, name := range s.order {
		if _, ok := s.scheduled[name]; ok {
			continue
		}
		reg := s.sources[name]
		if err := s.driver.Schedule(name, reg.cfg, s.job(reg.adapter)); err != nil {
			return fmt.Errorf("schedule %s: %w", name, err)
		}
		s.scheduled[name] = struct{}{}
		s.logger.Info("source scheduled",
			"source", name,
			"initial_delay", reg.cfg.InitialDelay,
			"period", reg.cfg.Period)
	}

	if err := s.driver.Start(ctx); err != nil {
		return fmt.Errorf("start driver: %w", err)
	}
	s.started = true
	return nil
}

// Stop cancels future runs and waits for in-flight ones.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}

// RunOnce executes the named source immediately, outside of its schedule.
func (s *Scheduler) RunOnce(ctx context.Context, name string) (Report, error) {
	s.mu.Lock()
	reg, ok := s.sources[name]
	s.mu.Unlock()
	if !ok {
		return Report{}, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	return s.pipeline.Run(ctx, reg.adapter)
}

func (s *Scheduler) job(adapter ports.SourceAdapter) ports.Job {
	log := s.logger.With("source", adapter.Name())
	return func(ctx context.Context, trigger time.Time) {
		report, err := s.pipeline.Run(ctx, adapter)
		if err != nil {
			log.Error("execution aborted", "trigger", trigger, "error", err)
			return
		}
		log.Info("execution finished",
			"trigger", trigger,
			"fetched", report.Fetched,
			"persisted", report.Persisted,
			"took", report.Duration)
	}
}
