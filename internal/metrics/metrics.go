// Package metrics provides Prometheus metrics for the sync engine.
// All recording methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	SyncCycles        *prometheus.CounterVec
	DiscoveryAttempts *prometheus.CounterVec
	RemoteRequests    *prometheus.CounterVec
	RemoteDuration    *prometheus.HistogramVec
	CacheWrites       *prometheus.CounterVec
	ActionsTotal      *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
	Presentations     prometheus.Gauge
	Completion        prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		SyncCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roomsync_sync_cycles_total",
				Help: "Sync cycles by outcome (synced, offline, failed, skipped).",
			},
			[]string{"result", "trigger"},
		),
		DiscoveryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roomsync_discovery_attempts_total",
				Help: "Project/room discovery attempts by outcome.",
			},
			[]string{"result"},
		),
		RemoteRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roomsync_remote_requests_total",
				Help: "Board API requests by operation and status.",
			},
			[]string{"operation", "status"},
		),
		RemoteDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "roomsync_remote_request_duration_seconds",
				Help:    "Board API request duration including retries.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		CacheWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roomsync_cache_writes_total",
				Help: "Local cache snapshot writes by result.",
			},
			[]string{"result"},
		),
		ActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roomsync_actions_total",
				Help: "Host actions invoked by id and result.",
			},
			[]string{"action", "result"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roomsync_errors_total",
				Help: "Total errors by module and type.",
			},
			[]string{"module", "type"},
		),
		Presentations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "roomsync_presentations",
				Help: "Presentations in the most recent synced list.",
			},
		),
		Completion: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "roomsync_current_completion_percent",
				Help: "Completion percent of the current presentation.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.SyncCycles,
		m.DiscoveryAttempts,
		m.RemoteRequests,
		m.RemoteDuration,
		m.CacheWrites,
		m.ActionsTotal,
		m.ErrorsTotal,
		m.Presentations,
		m.Completion,
	)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSync increments the sync cycle counter.
func (m *Metrics) RecordSync(result, trigger string) {
	if m == nil {
		return
	}
	m.SyncCycles.WithLabelValues(result, trigger).Inc()
}

// RecordDiscovery increments the discovery counter.
func (m *Metrics) RecordDiscovery(result string) {
	if m == nil {
		return
	}
	m.DiscoveryAttempts.WithLabelValues(result).Inc()
}

// ObserveRemote records one board API request.
func (m *Metrics) ObserveRemote(operation, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RemoteRequests.WithLabelValues(operation, status).Inc()
	m.RemoteDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordCacheWrite increments the cache write counter.
func (m *Metrics) RecordCacheWrite(result string) {
	if m == nil {
		return
	}
	m.CacheWrites.WithLabelValues(result).Inc()
}

// RecordAction increments the action counter.
func (m *Metrics) RecordAction(action, result string) {
	if m == nil {
		return
	}
	m.ActionsTotal.WithLabelValues(action, result).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(module, errType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(module, errType).Inc()
}

// SetPresentations sets the presentation gauge.
func (m *Metrics) SetPresentations(n int) {
	if m == nil {
		return
	}
	m.Presentations.Set(float64(n))
}

// SetCompletion sets the completion gauge.
func (m *Metrics) SetCompletion(pct float64) {
	if m == nil {
		return
	}
	m.Completion.Set(pct)
}
