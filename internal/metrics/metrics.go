// Package metrics exposes engine counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"checkengine/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	LabelPlugin    = "plugin"
	LabelState     = "state"
	LabelTransport = "transport"
	LabelOutcome   = "outcome"
)

// Metrics owns the engine registry and its collectors.
// All methods are no-ops on a nil receiver so callers can run without metrics.
type Metrics struct {
	registry      *prometheus.Registry
	checks        *prometheus.CounterVec
	crashes       *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec
	cycleDuration prometheus.Histogram
	hosts         prometheus.Gauge
	ingest        *prometheus.CounterVec
}

// New creates registry with engine, Go runtime and process collectors.
// Params: metric namespace.
// Returns: metrics set.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checks",
			Name:      "total",
			Help:      "Service checks executed, by plugin and resulting state.",
		}, []string{LabelPlugin, LabelState}),
		crashes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checks",
			Name:      "crashes_total",
			Help:      "Check plugin crashes recorded as crash reports.",
		}, []string{LabelPlugin}),
		checkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "checks",
			Name:      "duration_seconds",
			Help:      "Duration of one service check.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{LabelPlugin}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "duration_seconds",
			Help:      "Duration of one check cycle over all hosts.",
			Buckets:   prometheus.DefBuckets,
		}),
		hosts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "hosts",
			Help:      "Hosts checked in the last cycle.",
		}),
		ingest: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "payloads_total",
			Help:      "Raw host data payloads received, by transport and outcome.",
		}, []string{LabelTransport, LabelOutcome}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.checks,
		m.crashes,
		m.checkDuration,
		m.cycleDuration,
		m.hosts,
		m.ingest,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveCheck counts one finished service check.
// Params: plugin name, resulting state and check duration.
// Returns: none.
func (m *Metrics) ObserveCheck(plugin domain.CheckPluginName, state domain.State, took time.Duration) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues(string(plugin), state.String()).Inc()
	m.checkDuration.WithLabelValues(string(plugin)).Observe(took.Seconds())
}

// ObserveCrash counts one crash report.
func (m *Metrics) ObserveCrash(plugin string) {
	if m == nil {
		return
	}
	m.crashes.WithLabelValues(plugin).Inc()
}

// ObserveCycle records one check cycle.
// Params: cycle duration and number of checked hosts.
// Returns: none.
func (m *Metrics) ObserveCycle(took time.Duration, hosts int) {
	if m == nil {
		return
	}
	m.cycleDuration.Observe(took.Seconds())
	m.hosts.Set(float64(hosts))
}

// ObserveIngest counts received payloads.
// Params: transport name, payload count and push error.
// Returns: none.
func (m *Metrics) ObserveIngest(transport string, payloads int, err error) {
	if m == nil {
		return
	}
	outcome := "accepted"
	if err != nil {
		outcome = "rejected"
	}
	m.ingest.WithLabelValues(transport, outcome).Add(float64(payloads))
}

// Handler serves the registry in Prometheus exposition format.
// Params: none.
// Returns: HTTP handler (404 on nil receiver).
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
