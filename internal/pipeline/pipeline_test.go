package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/couchcryptid/brewery-data-etl/internal/adapter/rawstore"
	"github.com/couchcryptid/brewery-data-etl/internal/config"
	"github.com/couchcryptid/brewery-data-etl/internal/domain"
	"github.com/couchcryptid/brewery-data-etl/internal/observability"
	"github.com/couchcryptid/brewery-data-etl/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeFetcher struct {
	records []domain.Record
	err     error
	calls   int
}

func (f *fakeFetcher) FetchBreweries(_ context.Context) ([]domain.Record, error) {
	f.calls++
	return f.records, f.err
}

type fakeRaw struct {
	saved   []domain.Record
	saveErr error
	loadErr error
}

func (f *fakeRaw) Save(records []domain.Record, _, _ string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = records
	return nil
}

func (f *fakeRaw) Load(_, _ string) (*domain.Table, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return domain.Normalize(f.saved), nil
}

type fakeTables struct {
	data     map[string]*domain.Table
	writeErr error
}

func newFakeTables() *fakeTables {
	return &fakeTables{data: make(map[string]*domain.Table)}
}

func (f *fakeTables) Write(_ context.Context, table *domain.Table, dir string) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.data[dir] = table
	return nil
}

func (f *fakeTables) Read(_ context.Context, dir string) (*domain.Table, error) {
	t, ok := f.data[dir]
	if !ok {
		return nil, fmt.Errorf("no dataset at %s", dir)
	}
	return t, nil
}

type fakePublisher struct {
	runID  string
	counts []domain.LocationCount
	err    error
}

func (f *fakePublisher) PublishCounts(_ context.Context, runID string, counts []domain.LocationCount) error {
	if f.err != nil {
		return f.err
	}
	f.runID = runID
	f.counts = counts
	return nil
}

// --- helpers ---

func testConfig() *config.Config {
	return &config.Config{
		APIURL:      "http://api.test/breweries",
		RawPath:     "/raw",
		RawFileName: "breweries",
		SilverPath:  "/silver",
		GoldPath:    "/gold",
	}
}

func brewery(id, breweryType, city, addr1, street any) domain.Record {
	return domain.Record{
		"id":           id,
		"name":         fmt.Sprintf("Brewery %v", id),
		"brewery_type": breweryType,
		"address_1":    addr1,
		"address_2":    nil,
		"address_3":    nil,
		"street":       street,
		"city":         city,
		"state":        "Colorado",
		"country":      "United States",
		"phone":        nil,
	}
}

func sampleRecords() []domain.Record {
	return []domain.Record{
		brewery("b-1", "micro", "Denver", "1 Main St", "1 Main St"),
		brewery("b-2", "micro", "Denver", nil, "2 Oak Ave"),
		brewery("b-3", "brewpub", "Boulder", nil, nil),
	}
}

type harness struct {
	fetcher   *fakeFetcher
	raw       *fakeRaw
	tables    *fakeTables
	publisher *fakePublisher
	metrics   *observability.Metrics
	logs      *bytes.Buffer
	pipeline  *pipeline.Pipeline
}

func newHarness(cfg *config.Config) *harness {
	h := &harness{
		fetcher:   &fakeFetcher{records: sampleRecords()},
		raw:       &fakeRaw{},
		tables:    newFakeTables(),
		publisher: &fakePublisher{},
		metrics:   observability.NewMetricsForTesting(),
		logs:      &bytes.Buffer{},
	}
	logger := slog.New(slog.NewJSONHandler(h.logs, nil))
	h.pipeline = pipeline.New(cfg, h.fetcher, h.raw, h.tables, logger, h.metrics, pipeline.WithPublisher(h.publisher))
	return h
}

func (h *harness) stageRuns(stage, outcome string) float64 {
	return testutil.ToFloat64(h.metrics.StageRuns.WithLabelValues(stage, outcome))
}

// --- tests ---

func TestPipeline_RunAll_HappyPath(t *testing.T) {
	h := newHarness(testConfig())

	require.Error(t, h.pipeline.CheckReadiness(context.Background()))
	_, ok := h.pipeline.LastRun()
	assert.False(t, ok)
	require.NoError(t, h.pipeline.RunAll(context.Background(), "run-1"))
	require.NoError(t, h.pipeline.CheckReadiness(context.Background()))

	last, ok := h.pipeline.LastRun()
	require.True(t, ok)
	assert.Equal(t, "run-1", last.RunID)
	assert.Equal(t, "success", last.Outcome)
	assert.Empty(t, last.FailedStage)

	assert.Equal(t, 1, h.fetcher.calls)
	assert.Len(t, h.raw.saved, 3)

	silver := h.tables.data["/silver"]
	require.NotNil(t, silver)
	assert.Equal(t, domain.ColumnAddress, silver.Columns[len(silver.Columns)-1])
	assert.False(t, silver.HasColumn(domain.ColumnStreet))
	for _, row := range silver.Rows {
		for _, c := range silver.Columns {
			assert.IsType(t, "", row[c], "column %s", c)
		}
	}

	expected := []domain.LocationCount{
		{Country: "United States", State: "Colorado", City: "Boulder", BreweryType: "brewpub", Total: 1},
		{Country: "United States", State: "Colorado", City: "Denver", BreweryType: "micro", Total: 2},
	}
	gold, err := domain.CountsFromTable(h.tables.data["/gold"])
	require.NoError(t, err)
	if diff := cmp.Diff(expected, gold); diff != "" {
		t.Errorf("gold mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, expected, h.publisher.counts)
	assert.Equal(t, "run-1", h.publisher.runID)

	for _, stage := range []string{"extract", "transform", "aggregate"} {
		assert.InDelta(t, 1, h.stageRuns(stage, "success"), 0, stage)
	}
	assert.InDelta(t, 3, testutil.ToFloat64(h.metrics.RecordsFetched), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(h.metrics.GoldGroups), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(h.metrics.GoldPublished), 0)

	assert.Contains(t, h.logs.String(), `"stage":"transform"`)
	assert.Contains(t, h.logs.String(), `"run_id":"run-1"`)
	assert.NotContains(t, h.logs.String(), `"level":"ERROR"`)
}

func TestPipeline_RunAll_StopsAtFirstFailure(t *testing.T) {
	h := newHarness(testConfig())
	h.fetcher.err = errors.New("connection refused")

	err := h.pipeline.RunAll(context.Background(), "run-2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract stage")
	assert.Contains(t, err.Error(), "connection refused")

	assert.Nil(t, h.raw.saved)
	assert.Empty(t, h.tables.data)
	assert.InDelta(t, 1, h.stageRuns("extract", "error"), 0)
	assert.InDelta(t, 0, h.stageRuns("transform", "success")+h.stageRuns("transform", "error"), 0)

	readyErr := h.pipeline.CheckReadiness(context.Background())
	require.Error(t, readyErr)
	assert.Equal(t, "no successful run yet, run run-2 failed at extract stage", readyErr.Error())

	last, ok := h.pipeline.LastRun()
	require.True(t, ok)
	assert.Equal(t, "error", last.Outcome)
	assert.Equal(t, pipeline.StageExtract, last.FailedStage)
	assert.Contains(t, last.Error, "connection refused")
}

func TestPipeline_RunAll_FailureAfterSuccessStaysReady(t *testing.T) {
	h := newHarness(testConfig())
	require.NoError(t, h.pipeline.RunAll(context.Background(), "run-ok"))

	h.tables.writeErr = errors.New("disk full")
	require.Error(t, h.pipeline.RunAll(context.Background(), "run-bad"))

	require.NoError(t, h.pipeline.CheckReadiness(context.Background()), "the last good layers are still served")
	last, ok := h.pipeline.LastRun()
	require.True(t, ok)
	assert.Equal(t, "run-bad", last.RunID)
	assert.Equal(t, pipeline.StageTransform, last.FailedStage)
}

func TestPipeline_Extract_MissingConfig(t *testing.T) {
	cfg := testConfig()
	cfg.RawPath = ""
	h := newHarness(cfg)

	err := h.pipeline.Extract(context.Background(), "run-3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RAW_PATH is required")
	assert.Zero(t, h.fetcher.calls)
	assert.InDelta(t, 1, h.stageRuns("extract", "error"), 0)
}

func TestPipeline_RunAll_InvalidConfigRunsNothing(t *testing.T) {
	cfg := testConfig()
	cfg.GoldPath = ""
	h := newHarness(cfg)

	err := h.pipeline.RunAll(context.Background(), "run-4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOLD_PATH is required")
	assert.Zero(t, h.fetcher.calls)
}

func TestPipeline_Extract_SaveError(t *testing.T) {
	h := newHarness(testConfig())
	h.raw.saveErr = errors.New("disk full")

	err := h.pipeline.Extract(context.Background(), "run-5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestPipeline_Transform_RawNotFound(t *testing.T) {
	h := newHarness(testConfig())
	h.raw.loadErr = fmt.Errorf("%w: /raw/breweries.json", rawstore.ErrRawNotFound)

	err := h.pipeline.Transform(context.Background(), "run-6")
	require.ErrorIs(t, err, rawstore.ErrRawNotFound)
	assert.Empty(t, h.tables.data)
}

func TestPipeline_Transform_MissingAddressColumn(t *testing.T) {
	h := newHarness(testConfig())
	h.raw.saved = []domain.Record{{"id": "b-1", "address_1": "1 Main St", "street": "1 Main St"}}

	err := h.pipeline.Transform(context.Background(), "run-7")
	var missing *domain.MissingColumnError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, domain.ColumnAddress2, missing.Column)
	assert.Empty(t, h.tables.data)
}

func TestPipeline_Transform_EmptyRaw(t *testing.T) {
	h := newHarness(testConfig())
	h.raw.saved = []domain.Record{}

	err := h.pipeline.Transform(context.Background(), "run-8")
	require.ErrorIs(t, err, domain.ErrEmptyTable)
}

func TestPipeline_Transform_WriteError(t *testing.T) {
	h := newHarness(testConfig())
	h.raw.saved = sampleRecords()
	h.tables.writeErr = errors.New("permission denied")

	err := h.pipeline.Transform(context.Background(), "run-9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write silver layer")
}

func TestPipeline_Aggregate_MissingSilver(t *testing.T) {
	h := newHarness(testConfig())

	err := h.pipeline.Aggregate(context.Background(), "run-10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read silver layer")
	assert.Nil(t, h.publisher.counts)
}

func TestPipeline_Aggregate_PublishError(t *testing.T) {
	h := newHarness(testConfig())
	h.publisher.err = errors.New("broker down")
	require.NoError(t, h.pipeline.Extract(context.Background(), "run-11"))
	require.NoError(t, h.pipeline.Transform(context.Background(), "run-11"))

	err := h.pipeline.Aggregate(context.Background(), "run-11")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.NotNil(t, h.tables.data["/gold"], "gold layer is written before publishing")
}

func TestPipeline_Aggregate_WithoutPublisher(t *testing.T) {
	fetcher := &fakeFetcher{records: sampleRecords()}
	tables := newFakeTables()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := pipeline.New(testConfig(), fetcher, &fakeRaw{}, tables, logger, observability.NewMetricsForTesting())

	require.NoError(t, p.RunAll(context.Background(), "run-12"))
	assert.NotNil(t, tables.data["/gold"])
}

func TestPipeline_Validate(t *testing.T) {
	h := newHarness(testConfig())
	require.NoError(t, h.pipeline.RunAll(context.Background(), "run-13"))

	require.NoError(t, h.pipeline.Validate(context.Background(), "run-13"))

	h.tables.data["/gold"] = domain.CountsTable([]domain.LocationCount{
		{Country: "United States", State: "Colorado", City: "Denver", BreweryType: "micro", Total: 5},
	})
	err := h.pipeline.Validate(context.Background(), "run-13")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "layer validation failed")
	assert.InDelta(t, 1, h.stageRuns("validate", "error"), 0)
}

func TestPipeline_RunStage(t *testing.T) {
	h := newHarness(testConfig())

	require.NoError(t, h.pipeline.RunStage(context.Background(), pipeline.StageExtract, "run-14"))
	assert.Equal(t, 1, h.fetcher.calls)

	err := h.pipeline.RunStage(context.Background(), pipeline.Stage("load"), "run-14")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown stage "load"`)
}

func TestNewRunID(t *testing.T) {
	a, b := pipeline.NewRunID(), pipeline.NewRunID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
