package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ArticleHarvester/internal/clock"
	"ArticleHarvester/internal/domain"
	"ArticleHarvester/internal/ports"
)

// ErrAlreadyStarted is returned when jobs are scheduled after Start.
var ErrAlreadyStarted = errors.New("scheduler already started")

// FixedDelayScheduler runs every job on its own goroutine and timer. A job
// first fires after its initial delay; the next firing is armed only once the
// previous run has returned, so runs of the same job never overlap.
type FixedDelayScheduler struct {
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	entries []entry
	names   map[string]struct{}
	started bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

type entry struct {
	name string
	cfg  domain.SourceJobConfig
	job  ports.Job
}

var _ ports.Scheduler = (*FixedDelayScheduler)(nil)

// NewFixedDelayScheduler builds a scheduler; nil clock means the system clock.
func NewFixedDelayScheduler(clk clock.Clock, logger *slog.Logger) *FixedDelayScheduler {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FixedDelayScheduler{
		clock:  clk,
		logger: logger,
		names:  map[string]struct{}{},
	}
}

// Schedule stores a job. It takes effect on Start.
func (s *FixedDelayScheduler) Schedule(name string, cfg domain.SourceJobConfig, job ports.Job) error {
	if job == nil {
		return fmt.Errorf("job %s: nil job", name)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	if _, ok := s.names[name]; ok {
		return fmt.Errorf("job %s is already scheduled", name)
	}
	s.names[name] = struct{}{}
	s.entries = append(s.entries, entry{name: name, cfg: cfg, job: job})
	return nil
}

// Start launches one loop per scheduled job.
func (s *FixedDelayScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.stop = make(chan struct{})

	for _, e := range s.entries {
		s.wg.Add(1)
		go s.loop(ctx, e, s.stop)
	}

	s.logger.Info("scheduler started", "jobs", len(s.entries))
	return nil
}

// Stop cancels all future firings and waits for in-flight runs to return or
// for ctx to expire.
func (s *FixedDelayScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.stop == nil {
		s.mu.Unlock()
		return nil
	}
	close(s.stop)
	s.stop = nil
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for running jobs: %w", ctx.Err())
	}
}

func (s *FixedDelayScheduler) loop(ctx context.Context, e entry, stop <-chan struct{}) {
	defer s.wg.Done()

	timer := s.clock.NewTimer(e.cfg.InitialDelay)
	defer timer.Stop()

	// Runs are never interrupted by Stop or by the parent context.
	runCtx := context.WithoutCancel(ctx)
	log := s.logger.With("job", e.name)

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case trigger := <-timer.C():
			s.run(runCtx, log, e, trigger)
		}

		select {
		case <-stop:
			return
		default:
		}
		timer.Reset(e.cfg.Period)
		log.Debug("job re-armed", "next_in", e.cfg.Period)
	}
}

func (s *FixedDelayScheduler) run(ctx context.Context, log *slog.Logger, e entry, trigger time.Time) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", "panic", r)
		}
	}()
	e.job(ctx, trigger)
}
