package ingest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const MetricsPrefix = "swcatalog_ingest_"

type (
	RecordResult string
	RunOutcome   string
)

const (
	RecordInserted RecordResult = "inserted"
	RecordUpdated  RecordResult = "updated"
	RecordSkipped  RecordResult = "skipped"

	OutcomeSuccess RunOutcome = "success"
	OutcomeFatal   RunOutcome = "fatal"
)

type Metrics struct {
	records     *prometheus.CounterVec
	fetchErrors *prometheus.CounterVec
	runs        *prometheus.CounterVec
	duration    prometheus.Histogram
	lastSuccess prometheus.Gauge
	running     prometheus.Gauge
}

// NewMetrics registers the ingestion metrics with reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		records: f.NewCounterVec(prometheus.CounterOpts{
			Name: MetricsPrefix + "records_total",
			Help: "Number of upstream records processed grouped by kind and result",
		}, []string{"kind", "result"}),
		fetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: MetricsPrefix + "fetch_errors_total",
			Help: "Number of collections whose pagination stopped early",
		}, []string{"kind"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: MetricsPrefix + "runs_total",
			Help: "Number of ingestion runs grouped by outcome",
		}, []string{"outcome"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricsPrefix + "run_duration_seconds",
			Help:    "Wall time of ingestion runs",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: MetricsPrefix + "last_success_timestamp_seconds",
			Help: "Unix time of the last successful ingestion run",
		}),
		running: f.NewGauge(prometheus.GaugeOpts{
			Name: MetricsPrefix + "running",
			Help: "1 while an ingestion run is in progress",
		}),
	}
}

func (m *Metrics) RecordRecord(kind Kind, result RecordResult) {
	if m == nil {
		return
	}
	m.records.With(prometheus.Labels{"kind": string(kind), "result": string(result)}).Inc()
}

func (m *Metrics) RecordFetchError(kind Kind) {
	if m == nil {
		return
	}
	m.fetchErrors.With(prometheus.Labels{"kind": string(kind)}).Inc()
}

func (m *Metrics) RecordRun(outcome RunOutcome, took time.Duration, finished time.Time) {
	if m == nil {
		return
	}
	m.runs.With(prometheus.Labels{"outcome": string(outcome)}).Inc()
	m.duration.Observe(took.Seconds())
	if outcome == OutcomeSuccess {
		m.lastSuccess.Set(float64(finished.Unix()))
	}
}

func (m *Metrics) SetRunning(on bool) {
	if m == nil {
		return
	}
	if on {
		m.running.Set(1)
		return
	}
	m.running.Set(0)
}
