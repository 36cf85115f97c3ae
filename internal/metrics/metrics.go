// Package metrics holds the Prometheus registry and collectors for the
// solver service.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API.
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts requests by method, path, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// SolverRuns counts runs by terminal status.
	SolverRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "solver_runs_total", Help: "Solver runs by status."},
		[]string{"status"},
	)
	// SolverIterations counts multi-start iterations across all runs.
	SolverIterations = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "solver_iterations_total", Help: "Multi-start iterations executed."},
	)
	// SolverImprovements counts incumbent improvements across all runs.
	SolverImprovements = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "solver_improvements_total", Help: "Incumbent improvements observed."},
	)
	// SolveDuration records wall-clock solve durations in seconds.
	SolveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "solver_solve_duration_seconds", Help: "Solve duration in seconds.", Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status.
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds.
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers all collectors on Registry, once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(SolverRuns)
		Registry.MustRegister(SolverIterations)
		Registry.MustRegister(SolverImprovements)
		Registry.MustRegister(SolveDuration)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
