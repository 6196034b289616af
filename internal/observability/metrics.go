package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce             sync.Once
	httpRequestsTotal        *prometheus.CounterVec
	httpLatencySeconds       *prometheus.HistogramVec
	submissionsEnqueuedTotal prometheus.Counter
	evaluationsTotal         *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors for the API and the
// evaluation pipeline.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hireloop_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hireloop_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		submissionsEnqueuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hireloop_submissions_enqueued_total",
			Help: "Total number of evaluation jobs durably accepted by the queue.",
		})

		evaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hireloop_evaluations_total",
			Help: "Evaluation jobs processed by workers, by outcome.",
		}, []string{"outcome"})

		prometheus.MustRegister(httpRequestsTotal, httpLatencySeconds, submissionsEnqueuedTotal, evaluationsTotal)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// SubmissionsEnqueued exposes the counter for accepted evaluation jobs.
func SubmissionsEnqueued() prometheus.Counter {
	RegisterMetrics()
	return submissionsEnqueuedTotal
}

// Evaluations exposes the per-outcome counter for processed jobs.
func Evaluations() *prometheus.CounterVec {
	RegisterMetrics()
	return evaluationsTotal
}
