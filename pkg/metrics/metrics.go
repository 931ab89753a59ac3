package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// State gauges, sampled by the Collector.
	SessionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hutch_sessions_total",
			Help: "Number of persisted sessions",
		},
	)

	JobsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hutch_jobs_total",
			Help: "Number of persisted jobs by status",
		},
		[]string{"status"},
	)

	ActiveJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hutch_active_jobs",
			Help: "Number of sessions with a pending or running job",
		},
	)

	// Lifecycle counters, fed by broker events and direct calls.
	JobsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hutch_jobs_finished_total",
			Help: "Terminal job transitions by status",
		},
		[]string{"status"},
	)

	JobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hutch_job_duration_seconds",
			Help:    "Wall time from job start to terminal status",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600, 14400},
		},
	)

	OutputBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hutch_output_bytes_total",
			Help: "Bytes of assistant text appended to output logs",
		},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hutch_notifications_total",
			Help: "Webhook notification attempts by result",
		},
		[]string{"result"},
	)

	ReconcilerOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hutch_reconciler_outcomes_total",
			Help: "Orphan reconciliation outcomes per container",
		},
		[]string{"outcome"},
	)

	// API metrics.
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hutch_api_requests_total",
			Help: "Tool invocations by tool and result",
		},
		[]string{"tool", "result"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hutch_api_request_duration_seconds",
			Help:    "Tool invocation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)
)

func init() {
	prometheus.MustRegister(SessionsTotal)
	prometheus.MustRegister(JobsTotal)
	prometheus.MustRegister(ActiveJobs)
	prometheus.MustRegister(JobsFinishedTotal)
	prometheus.MustRegister(JobDuration)
	prometheus.MustRegister(OutputBytesTotal)
	prometheus.MustRegister(NotificationsTotal)
	prometheus.MustRegister(ReconcilerOutcomesTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
