// Package metrics exposes Prometheus collectors for the collection pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	runsTotal                  *prometheus.CounterVec
	runDurationSeconds         prometheus.Histogram
	sourceFetchesTotal         *prometheus.CounterVec
	summaryAttemptsTotal       *prometheus.CounterVec
	contentPersistedTotal      prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeStreams              prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_runs_total",
				Help: "Total number of collection runs finished, labeled by status.",
			},
			[]string{"status"},
		)

		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "collector_run_duration_seconds",
				Help:    "Histogram of end-to-end run durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		)

		sourceFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_source_fetches_total",
				Help: "Total number of source fetches, labeled by source type and outcome.",
			},
			[]string{"source_type", "outcome"},
		)

		summaryAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_summary_attempts_total",
				Help: "Total number of summarization attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		contentPersistedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "collector_content_persisted_total",
				Help: "Total number of content rows persisted.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		activeStreams = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "collector_active_event_streams",
				Help: "Number of SSE event streams currently open.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun records a finished run with its duration.
func ObserveRun(status string, duration time.Duration) {
	runsTotal.WithLabelValues(status).Inc()
	runDurationSeconds.Observe(duration.Seconds())
}

// ObserveSourceFetch increments the fetch counter for one source attempt.
func ObserveSourceFetch(sourceType, outcome string) {
	sourceFetchesTotal.WithLabelValues(sourceType, outcome).Inc()
}

// ObserveSummaryAttempt increments the summarization attempt counter.
func ObserveSummaryAttempt(outcome string) {
	summaryAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveContentPersisted increments the persisted content counter.
func ObserveContentPersisted() {
	contentPersistedTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveStreams increments the open stream gauge.
func IncActiveStreams() {
	activeStreams.Inc()
}

// DecActiveStreams decrements the open stream gauge.
func DecActiveStreams() {
	activeStreams.Dec()
}
