// Package metrics exposes Prometheus instrumentation for ledger operations
// and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tipje"

// Recorder owns a dedicated registry. It implements ledger.Observer.
type Recorder struct {
	registry        *prometheus.Registry
	operations      *prometheus.CounterVec
	conflictRetries *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Total number of ledger mutations by result.",
			},
			[]string{"operation", "result"},
		),
		conflictRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "conflict_retries_total",
				Help:      "Total number of atomic units retried after a concurrent modification.",
			},
			[]string{"operation"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Duration of ledger mutations including retries.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
			},
			[]string{"operation"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled.",
			},
			[]string{"method", "route", "status"},
		),
	}
	r.registry.MustRegister(
		r.operations,
		r.conflictRetries,
		r.duration,
		r.httpRequests,
		collectors.NewGoCollector(),
	)
	return r
}

func (r *Recorder) ObserveOperation(operation, result string, elapsed time.Duration) {
	r.operations.WithLabelValues(operation, result).Inc()
	r.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveConflictRetry(operation string) {
	r.conflictRetries.WithLabelValues(operation).Inc()
}

// ObserveRequest counts one handled HTTP request. route is the matched
// pattern, not the raw path, to keep label cardinality bounded.
func (r *Recorder) ObserveRequest(method, route string, status int) {
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler returns an HTTP handler exposing the registered metrics
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
