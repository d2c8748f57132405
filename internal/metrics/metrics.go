package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricKey is a strongly typed metric identifier.
type MetricKey string

// Metric keys (centralized)
const (
	// Cycles
	CyclesTotal        MetricKey = "cycles_total"
	CycleSuccessTotal  MetricKey = "cycle_success_total"
	CycleDegradedTotal MetricKey = "cycle_degraded_total"
	CycleFailureTotal  MetricKey = "cycle_failure_total"
	AnomaliesTotal     MetricKey = "anomalies_total"

	// Fetch
	FetchAttemptsTotal MetricKey = "fetch_attempts_total"
	FetchFailuresTotal MetricKey = "fetch_failures_total"

	// Diagnose
	DiagnoseAttemptsTotal  MetricKey = "diagnose_attempts_total"
	DiagnoseFailuresTotal  MetricKey = "diagnose_failures_total"
	DiagnoseDegradedTotal  MetricKey = "diagnose_degraded_total"
	ProcessExceptionsTotal MetricKey = "process_exceptions_total"

	// Retries
	RetriesTotal MetricKey = "retries_total"

	// Endpoints
	EndpointsUnhealthy    MetricKey = "endpoints_unhealthy"
	EndpointFailuresTotal MetricKey = "endpoint_failures_total"

	// Sinks
	SinkPublishTotal  MetricKey = "sink_publish_total"
	SinkFailuresTotal MetricKey = "sink_failures_total"

	// History
	HistoryPruneRunsTotal  MetricKey = "history_prune_runs_total"
	HistoryRowsPrunedTotal MetricKey = "history_rows_pruned_total"
)

// gauges move in both directions and are exported as such.
var gauges = map[MetricKey]bool{
	EndpointsUnhealthy: true,
}

// Registry stores all metrics.
type Registry struct {
	mu       sync.RWMutex
	counters map[MetricKey]*int64

	prom          *prometheus.Registry
	cycleDuration prometheus.Histogram
}

// NewRegistry creates a metrics registry. Each registry owns a private
// Prometheus registry so tests and parallel pollers never collide on the
// global default.
func NewRegistry() *Registry {
	r := &Registry{
		counters: make(map[MetricKey]*int64),
		prom:     prometheus.NewRegistry(),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one fetch-diagnose-report cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}
	r.prom.MustRegister(r.cycleDuration, &snapshotCollector{reg: r})
	return r
}

// Inc increments a metric by 1.
func (r *Registry) Inc(key MetricKey) {
	r.Add(key, 1)
}

// Add increments a metric by delta.
func (r *Registry) Add(key MetricKey, delta int64) {
	r.mu.RLock()
	ptr, ok := r.counters[key]
	r.mu.RUnlock()

	if ok {
		atomic.AddInt64(ptr, delta)
		return
	}

	// Slow path: metric not yet initialized
	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if ptr, ok = r.counters[key]; ok {
		atomic.AddInt64(ptr, delta)
		return
	}

	var val int64
	r.counters[key] = &val
	atomic.AddInt64(&val, delta)
}

// ObserveCycle records the duration of one cycle.
func (r *Registry) ObserveCycle(d time.Duration) {
	r.cycleDuration.Observe(d.Seconds())
}

// Gatherer exposes the Prometheus side of the registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.prom
}

// Snapshot returns a copy of every counter, keyed by name.
func (r *Registry) Snapshot() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int64, len(r.counters))
	for key, ptr := range r.counters {
		out[string(key)] = atomic.LoadInt64(ptr)
	}
	return out
}

// Value returns the current value of one counter.
func (r *Registry) Value(key MetricKey) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ptr, ok := r.counters[key]; ok {
		return atomic.LoadInt64(ptr)
	}
	return 0
}
