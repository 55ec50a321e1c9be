// Package metrics exposes Prometheus instrumentation for the cascade,
// initializer, dependency graph, trigger and queue dispatch paths.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jobcascade"

// Trigger outcomes recorded by TriggerFired.
const (
	OutcomeQueued    = "queued"
	OutcomeCoalesced = "coalesced"
	OutcomeDisabled  = "disabled"
	OutcomeError     = "error"
)

// Dispatch outcomes recorded by QueueDispatched.
const (
	DispatchStarted = "started"
	DispatchBlocked = "blocked"
	DispatchDropped = "dropped"
	DispatchFailed  = "failed"
)

// Metrics holds every collector on a private registry. A nil *Metrics is valid
// and records nothing, which is how disabled metrics are represented.
type Metrics struct {
	registry *prometheus.Registry

	ProjectsCreatedTotal       *prometheus.CounterVec
	GraphRebuildsTotal         *prometheus.CounterVec
	GraphRebuildDuration       prometheus.Histogram
	GraphProjects              prometheus.Gauge
	TriggersTotal              *prometheus.CounterVec
	QueueDispatchTotal         *prometheus.CounterVec
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec
}

// New creates the collectors and registers them, along with the Go runtime and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ProjectsCreatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "projects_initialized_total",
				Help:      "Total number of projects initialized, by entry path and whether a creator grant was attached",
			},
			[]string{"path", "grant"},
		),
		GraphRebuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "graph_rebuilds_total",
				Help:      "Total number of dependency graph rebuilds",
			},
			[]string{"status"},
		),
		GraphRebuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "graph_rebuild_duration_seconds",
				Help:      "Duration of dependency graph rebuilds in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
		),
		GraphProjects: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "graph_projects",
				Help:      "Number of projects in the current dependency graph snapshot",
			},
		),
		TriggersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "triggers_total",
				Help:      "Total number of downstream trigger evaluations, by outcome",
			},
			[]string{"outcome"},
		),
		QueueDispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_dispatch_total",
				Help:      "Total number of ready queue items handled by the dispatcher, by outcome",
			},
			[]string{"outcome"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m.registry.MustRegister(
		m.ProjectsCreatedTotal,
		m.GraphRebuildsTotal,
		m.GraphRebuildDuration,
		m.GraphProjects,
		m.TriggersTotal,
		m.QueueDispatchTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDurationSeconds,
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

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ProjectInitialized records one run of the creation/copy initializer.
func (m *Metrics) ProjectInitialized(path string, granted bool) {
	if m == nil {
		return
	}
	grant := "none"
	if granted {
		grant = "creator"
	}
	m.ProjectsCreatedTotal.WithLabelValues(path, grant).Inc()
}

// GraphRebuilt records a rebuild attempt. projects is ignored on failure.
func (m *Metrics) GraphRebuilt(d time.Duration, projects int, err error) {
	if m == nil {
		return
	}
	m.GraphRebuildDuration.Observe(d.Seconds())
	if err != nil {
		m.GraphRebuildsTotal.WithLabelValues("error").Inc()
		return
	}
	m.GraphRebuildsTotal.WithLabelValues("success").Inc()
	m.GraphProjects.Set(float64(projects))
}

// TriggerFired records the outcome of firing one downstream trigger.
func (m *Metrics) TriggerFired(outcome string) {
	if m == nil {
		return
	}
	m.TriggersTotal.WithLabelValues(outcome).Inc()
}

// QueueDispatched records how the dispatcher handled one ready queue item.
func (m *Metrics) QueueDispatched(outcome string) {
	if m == nil {
		return
	}
	m.QueueDispatchTotal.WithLabelValues(outcome).Inc()
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDurationSeconds.WithLabelValues(method, route).Observe(d.Seconds())
}
