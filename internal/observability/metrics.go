package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "brewery_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	StageRuns      *prometheus.CounterVec   // labels: stage={extract,transform,aggregate,validate}, outcome={success,error}
	StageDuration  *prometheus.HistogramVec // labels: stage
	LastSuccess    *prometheus.GaugeVec     // labels: stage
	RecordsFetched prometheus.Counter
	RowsWritten    *prometheus.CounterVec // labels: layer={raw,silver,gold}
	GoldGroups     prometheus.Gauge
	GoldPublished  prometheus.Counter

	// Scheduler metrics.
	PipelineRunning prometheus.Gauge
	RunRetries      prometheus.Counter
	RunsSkipped     prometheus.Counter
	RunFailures     prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		StageRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Stage executions by stage and outcome.",
		}, []string{"stage", "outcome"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of a single stage execution.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		LastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful stage execution.",
		}, []string{"stage"}),
		RecordsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_fetched_total",
			Help:      "Total brewery records returned by the API.",
		}),
		RowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Rows written per layer.",
		}, []string{"layer"}),
		GoldGroups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gold_groups",
			Help:      "Location and brewery type groups in the latest gold layer.",
		}),
		GoldPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gold_messages_published_total",
			Help:      "Gold rows published to Kafka.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a scheduled run is in progress, 0 otherwise.",
		}),
		RunRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_retries_total",
			Help:      "Scheduled run attempts after a failure.",
		}),
		RunsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_skipped_total",
			Help:      "Scheduled runs skipped because the previous run was still active.",
		}),
		RunFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_failures_total",
			Help:      "Scheduled runs that failed after exhausting retries. Alert on increase.",
		}),
	}
}

// Collectors returns every pipeline metric, for registration or pushing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.StageRuns,
		m.StageDuration,
		m.LastSuccess,
		m.RecordsFetched,
		m.RowsWritten,
		m.GoldGroups,
		m.GoldPublished,
		m.PipelineRunning,
		m.RunRetries,
		m.RunsSkipped,
		m.RunFailures,
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.Collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
