// ABOUTME: Prometheus metrics for cache refreshes, fetches, and audit verdicts
// ABOUTME: Dedicated registry, optionally flushed to a node-exporter textfile

package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "pkgaudit"

// Metrics collects counters for one process.
type Metrics struct {
	registry *prometheus.Registry

	// CacheResults counts GetOrRefresh outcomes by kind and status.
	CacheResults *prometheus.CounterVec

	// FetchBytes counts decompressed bytes downloaded by kind.
	FetchBytes *prometheus.CounterVec

	// FetchFailures counts failed fetch sequences by kind.
	FetchFailures *prometheus.CounterVec

	// Verdicts counts non-available verdicts by kind.
	Verdicts *prometheus.CounterVec

	// OracleCalls counts alias oracle invocations by outcome.
	OracleCalls *prometheus.CounterVec

	// AuditDuration observes end-to-end audit latency.
	AuditDuration prometheus.Histogram
}

// NewMetrics creates a metrics set on its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		CacheResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cache_results_total",
			Help:      "Artifact cache lookups by kind and status",
		}, []string{"kind", "status"}),
		FetchBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "fetch_bytes_total",
			Help:      "Decompressed artifact bytes downloaded",
		}, []string{"kind"}),
		FetchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "fetch_failures_total",
			Help:      "Failed artifact fetch sequences",
		}, []string{"kind"}),
		Verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "verdicts_total",
			Help:      "Problem verdicts produced by audits",
		}, []string{"verdict"}),
		OracleCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "oracle_calls_total",
			Help:      "Alias oracle invocations by outcome",
		}, []string{"outcome"}),
		AuditDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "audit_duration_seconds",
			Help:      "End-to-end audit duration",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
	}
}

// Registry exposes the underlying gatherer.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes all metrics in the text exposition format to path,
// atomically, for the node-exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

// The helpers below are no-ops on a nil *Metrics.

// ObserveCache records a cache lookup outcome.
func (m *Metrics) ObserveCache(kind, status string) {
	if m == nil {
		return
	}
	m.CacheResults.WithLabelValues(kind, status).Inc()
}

// ObserveFetch records a fetch sequence for kind; size is ignored on failure.
func (m *Metrics) ObserveFetch(kind string, size int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.FetchFailures.WithLabelValues(kind).Inc()
		return
	}
	m.FetchBytes.WithLabelValues(kind).Add(float64(size))
}

// ObserveVerdict records one problem verdict.
func (m *Metrics) ObserveVerdict(verdict string) {
	if m == nil {
		return
	}
	m.Verdicts.WithLabelValues(verdict).Inc()
}

// ObserveOracle records one alias oracle call outcome.
func (m *Metrics) ObserveOracle(outcome string) {
	if m == nil {
		return
	}
	m.OracleCalls.WithLabelValues(outcome).Inc()
}

// ObserveAuditSeconds records an audit duration.
func (m *Metrics) ObserveAuditSeconds(seconds float64) {
	if m == nil {
		return
	}
	m.AuditDuration.Observe(seconds)
}
