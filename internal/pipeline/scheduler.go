package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"github.com/couchcryptid/brewery-data-etl/internal/config"
	"github.com/couchcryptid/brewery-data-etl/internal/observability"
)

// ErrRunInProgress is returned when a run is triggered while another one is
// still active.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// Runner executes one full pipeline run.
type Runner interface {
	RunAll(ctx context.Context, runID string) error
}

// Scheduler triggers pipeline runs on a cron schedule and retries failed runs.
type Scheduler struct {
	runner        Runner
	schedule      string
	maxRetries    int
	retryDelay    time.Duration
	retryMaxDelay time.Duration
	clock         clockwork.Clock
	logger        *slog.Logger
	metrics       *observability.Metrics
	running       atomic.Bool
	newRunID      func() string
}

// NewScheduler creates a scheduler for runner using the schedule and retry
// settings from cfg.
func NewScheduler(runner Runner, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		runner:        runner,
		schedule:      cfg.Schedule,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    cfg.RetryDelay,
		retryMaxDelay: cfg.RetryMaxDelay,
		clock:         clock,
		logger:        logger,
		metrics:       metrics,
		newRunID:      NewRunID,
	}
}

// Run blocks until ctx is cancelled, triggering RunOnce on every schedule tick.
// An in-flight run is allowed to finish before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() {
		if err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
			s.logger.Error("scheduled run failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.schedule, err)
	}

	c.Start()
	s.logger.Info("pipeline scheduler started", "schedule", s.schedule, "max_retries", s.maxRetries)

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("pipeline scheduler stopped")
	return nil
}

// RunOnce executes a full run, retrying up to maxRetries times. Retries wait
// retryDelay; when retryMaxDelay is larger the wait doubles after each
// failure up to that cap. It returns ErrRunInProgress without running if
// another run is active.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.RunsSkipped.Inc()
		s.logger.Warn("skipping scheduled run, previous run still in progress")
		return ErrRunInProgress
	}
	defer s.running.Store(false)

	s.metrics.PipelineRunning.Set(1)
	defer s.metrics.PipelineRunning.Set(0)

	delay := s.retryDelay
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			s.metrics.RunRetries.Inc()
			s.logger.Warn("retrying pipeline run", "attempt", attempt, "max_retries", s.maxRetries, "delay", delay)
			if !s.sleep(ctx, delay) {
				return errors.Join(err, ctx.Err())
			}
			delay = retry.NextBackoff(delay, s.retryMaxDelay)
		}

		runID := s.newRunID()
		err = s.runner.RunAll(ctx, runID)
		if err == nil {
			s.logger.Info("pipeline run succeeded", "run_id", runID, "attempts", attempt+1)
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
	}

	s.metrics.RunFailures.Inc()
	s.logger.Error("pipeline run failed, retries exhausted", "attempts", s.maxRetries+1, "error", err)
	return fmt.Errorf("pipeline failed after %d attempts: %w", s.maxRetries+1, err)
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.clock.After(d):
		return true
	}
}
