package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/brewery-data-etl/internal/config"
	"github.com/couchcryptid/brewery-data-etl/internal/domain"
	"github.com/couchcryptid/brewery-data-etl/internal/observability"
)

// Fetcher retrieves the full brewery list from the source API.
type Fetcher interface {
	FetchBreweries(ctx context.Context) ([]domain.Record, error)
}

// RawStore persists and reloads the raw layer.
type RawStore interface {
	Save(records []domain.Record, dir, name string) error
	Load(dir, name string) (*domain.Table, error)
}

// TableStore writes and reads the partitioned silver and gold layers.
type TableStore interface {
	Write(ctx context.Context, table *domain.Table, dir string) error
	Read(ctx context.Context, dir string) (*domain.Table, error)
}

// GoldPublisher ships gold counts to downstream consumers.
type GoldPublisher interface {
	PublishCounts(ctx context.Context, runID string, counts []domain.LocationCount) error
}

// Stage names one step of the pipeline.
type Stage string

const (
	StageExtract   Stage = "extract"
	StageTransform Stage = "transform"
	StageAggregate Stage = "aggregate"
	StageValidate  Stage = "validate"
)

// Stages lists the stages RunAll executes, in order.
var Stages = []Stage{StageExtract, StageTransform, StageAggregate}

// Pipeline runs the extract, transform, and aggregate stages against the
// configured paths. Stages share nothing in memory; each reads its input from
// the previous stage's output on disk.
type Pipeline struct {
	cfg       *config.Config
	fetcher   Fetcher
	raw       RawStore
	tables    TableStore
	publisher GoldPublisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
	ready     atomic.Bool

	mu      sync.Mutex
	lastRun *RunStatus
}

// RunStatus describes the outcome of the latest RunAll.
type RunStatus struct {
	RunID       string    `json:"run_id"`
	Outcome     string    `json:"outcome"`
	FailedStage Stage     `json:"failed_stage,omitempty"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Option configures optional Pipeline collaborators.
type Option func(*Pipeline)

// WithPublisher publishes gold counts after every aggregate stage.
func WithPublisher(pub GoldPublisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithClock replaces the wall clock used for durations.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// New creates a Pipeline with the given stores and observability.
func New(cfg *config.Config, f Fetcher, raw RawStore, tables TableStore, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:     cfg,
		fetcher: f,
		raw:     raw,
		tables:  tables,
		logger:  logger,
		metrics: metrics,
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewRunID returns an identifier that ties together the logs, metrics, and
// published messages of one invocation.
func NewRunID() string {
	return uuid.NewString()
}

// CheckReadiness returns nil once a full run has succeeded. Until then the
// error names the stage the latest run failed at, if any.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if p.ready.Load() {
		return nil
	}
	if last, ok := p.LastRun(); ok && last.FailedStage != "" {
		return fmt.Errorf("no successful run yet, run %s failed at %s stage", last.RunID, last.FailedStage)
	}
	return errors.New("pipeline has not completed a successful run yet")
}

// LastRun returns the status of the latest RunAll, if one has finished.
func (p *Pipeline) LastRun() (RunStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastRun == nil {
		return RunStatus{}, false
	}
	return *p.lastRun, true
}

// RunAll executes every stage in order and stops at the first failure.
func (p *Pipeline) RunAll(ctx context.Context, runID string) error {
	status := RunStatus{RunID: runID, StartedAt: p.clock.Now()}
	err := p.runAll(ctx, runID, &status)

	status.FinishedAt = p.clock.Now()
	status.Outcome = "success"
	if err != nil {
		status.Outcome = "error"
		status.Error = err.Error()
	} else {
		p.ready.Store(true)
	}
	p.mu.Lock()
	p.lastRun = &status
	p.mu.Unlock()
	return err
}

func (p *Pipeline) runAll(ctx context.Context, runID string, status *RunStatus) error {
	if err := p.cfg.ValidateAll(); err != nil {
		p.logger.Error("invalid configuration", "run_id", runID, "error", err)
		return err
	}
	for _, stage := range Stages {
		if err := p.RunStage(ctx, stage, runID); err != nil {
			status.FailedStage = stage
			return err
		}
	}
	return nil
}

// RunStage executes a single stage by name.
func (p *Pipeline) RunStage(ctx context.Context, stage Stage, runID string) error {
	switch stage {
	case StageExtract:
		return p.Extract(ctx, runID)
	case StageTransform:
		return p.Transform(ctx, runID)
	case StageAggregate:
		return p.Aggregate(ctx, runID)
	case StageValidate:
		return p.Validate(ctx, runID)
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}
}

// Extract fetches the brewery list and writes it to the raw layer.
func (p *Pipeline) Extract(ctx context.Context, runID string) error {
	return p.runStage(ctx, StageExtract, runID, p.cfg.ValidateExtract, func(ctx context.Context, logger *slog.Logger) error {
		records, err := p.fetcher.FetchBreweries(ctx)
		if err != nil {
			return fmt.Errorf("fetch breweries: %w", err)
		}
		p.metrics.RecordsFetched.Add(float64(len(records)))

		if err := p.raw.Save(records, p.cfg.RawPath, p.cfg.RawFileName); err != nil {
			return fmt.Errorf("save raw data: %w", err)
		}
		p.metrics.RowsWritten.WithLabelValues("raw").Add(float64(len(records)))
		logger.Debug("raw layer written", "records", len(records))
		return nil
	})
}

// Transform loads the raw layer, cleans it, and writes the silver layer.
func (p *Pipeline) Transform(ctx context.Context, runID string) error {
	return p.runStage(ctx, StageTransform, runID, p.cfg.ValidateTransform, func(ctx context.Context, logger *slog.Logger) error {
		raw, err := p.raw.Load(p.cfg.RawPath, p.cfg.RawFileName)
		if err != nil {
			return fmt.Errorf("load raw data: %w", err)
		}

		silver, err := domain.Transform(raw)
		if err != nil {
			return fmt.Errorf("transform raw data: %w", err)
		}

		if err := p.tables.Write(ctx, silver, p.cfg.SilverPath); err != nil {
			return fmt.Errorf("write silver layer: %w", err)
		}
		p.metrics.RowsWritten.WithLabelValues("silver").Add(float64(len(silver.Rows)))
		logger.Debug("silver layer written", "rows", len(silver.Rows), "columns", len(silver.Columns))
		return nil
	})
}

// Aggregate reads the silver layer, counts breweries per location and type,
// and writes the gold layer.
func (p *Pipeline) Aggregate(ctx context.Context, runID string) error {
	return p.runStage(ctx, StageAggregate, runID, p.cfg.ValidateAggregate, func(ctx context.Context, logger *slog.Logger) error {
		silver, err := p.tables.Read(ctx, p.cfg.SilverPath)
		if err != nil {
			return fmt.Errorf("read silver layer: %w", err)
		}

		counts, err := domain.Aggregate(silver)
		if err != nil {
			return fmt.Errorf("aggregate silver layer: %w", err)
		}

		if err := p.tables.Write(ctx, domain.CountsTable(counts), p.cfg.GoldPath); err != nil {
			return fmt.Errorf("write gold layer: %w", err)
		}
		p.metrics.RowsWritten.WithLabelValues("gold").Add(float64(len(counts)))
		p.metrics.GoldGroups.Set(float64(len(counts)))
		logger.Debug("gold layer written", "groups", len(counts))

		if p.publisher == nil {
			return nil
		}
		if err := p.publisher.PublishCounts(ctx, runID, counts); err != nil {
			return err
		}
		p.metrics.GoldPublished.Add(float64(len(counts)))
		return nil
	})
}

// Validate checks the gold layer against the silver layer it was built from.
func (p *Pipeline) Validate(ctx context.Context, runID string) error {
	return p.runStage(ctx, StageValidate, runID, p.cfg.ValidateAggregate, func(ctx context.Context, logger *slog.Logger) error {
		silver, err := p.tables.Read(ctx, p.cfg.SilverPath)
		if err != nil {
			return fmt.Errorf("read silver layer: %w", err)
		}
		gold, err := p.tables.Read(ctx, p.cfg.GoldPath)
		if err != nil {
			return fmt.Errorf("read gold layer: %w", err)
		}
		if err := domain.ValidateLayers(silver, gold); err != nil {
			return fmt.Errorf("layer validation failed:\n%w", err)
		}
		logger.Debug("layers consistent", "silver_rows", len(silver.Rows), "gold_rows", len(gold.Rows))
		return nil
	})
}

// runStage wraps one stage with configuration checks, logging, and metrics.
// Every failure is logged here once and returned.
func (p *Pipeline) runStage(
	ctx context.Context,
	stage Stage,
	runID string,
	validate func() error,
	fn func(ctx context.Context, logger *slog.Logger) error,
) error {
	logger := p.logger.With("stage", string(stage), "run_id", runID)
	start := p.clock.Now()
	logger.Info("stage started")

	err := validate()
	if err == nil {
		err = fn(ctx, logger)
	}

	elapsed := p.clock.Since(start)
	p.metrics.StageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())

	if err != nil {
		p.metrics.StageRuns.WithLabelValues(string(stage), "error").Inc()
		logger.Error("stage failed", "error", err, "duration", elapsed)
		return fmt.Errorf("%s stage: %w", stage, err)
	}

	p.metrics.StageRuns.WithLabelValues(string(stage), "success").Inc()
	p.metrics.LastSuccess.WithLabelValues(string(stage)).Set(float64(p.clock.Now().Unix()))
	logger.Info("stage finished", "duration", elapsed)
	return nil
}
