package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Monitor runs by result: success, failed, skipped
	MonitorRuns *prometheus.CounterVec

	MonitorRunDuration prometheus.Histogram

	// Records seen in the window of the last run
	RecordsScanned prometheus.Gauge

	// Per-actor outcomes: unchanged, updated, failed
	ActorOutcomes *prometheus.CounterVec

	// Status transitions written back, by new status
	StatusChanges *prometheus.CounterVec

	// Proxied upstream calls by service and result
	UpstreamRequests *prometheus.CounterVec
}

// New registers every collector on reg. A nil reg gets a private registry
// so callers that do not export metrics (tests, the CLI) can pass nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		MonitorRuns: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "request_monitor_runs_total",
			Help: "Total number of request monitor runs.",
		}, []string{"trigger", "result"}),

		MonitorRunDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "request_monitor_run_duration_seconds",
			Help:    "Histogram of request monitor run durations.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),

		RecordsScanned: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "request_monitor_records_scanned",
			Help: "Number of request records in the window of the last run.",
		}),

		ActorOutcomes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "request_monitor_actor_outcomes_total",
			Help: "Per-actor outcomes of request monitor runs.",
		}, []string{"outcome"}),

		StatusChanges: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "request_monitor_status_changes_total",
			Help: "Actor status transitions written to the backend.",
		}, []string{"status"}),

		UpstreamRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Proxied third-party API calls.",
		}, []string{"service", "result"}),
	}
}
