// Package metrics exposes the agent's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal  *prometheus.CounterVec
	ExportsTotal   *prometheus.CounterVec
	FramesRendered prometheus.Counter
	ActiveJobs     prometheus.Gauge
	ErrorsTotal    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reelforge",
		Name:      "http_requests_total",
		Help:      "HTTP requests served, by method and status class.",
	}, []string{"method", "status"})

	m.ExportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reelforge",
		Name:      "exports_total",
		Help:      "Export jobs finished, by outcome.",
	}, []string{"outcome"})

	m.FramesRendered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reelforge",
		Name:      "frames_rendered_total",
		Help:      "Frames composited across all export jobs.",
	})

	m.ActiveJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reelforge",
		Name:      "active_export_jobs",
		Help:      "Export jobs currently owned by the runner.",
	})

	m.ErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reelforge",
		Name:      "errors_total",
		Help:      "Errors observed, by component.",
	}, []string{"component"})

	m.registry.MustRegister(
		m.RequestsTotal,
		m.ExportsTotal,
		m.FramesRendered,
		m.ActiveJobs,
		m.ErrorsTotal,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
