// Package metrics owns the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
	EventMutations *prometheus.CounterVec
	LayoutDropped  prometheus.Counter
	OverlayFetches *prometheus.CounterVec
	OverlayEntries prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raspored",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "raspored",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		EventMutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raspored",
			Name:      "event_mutations_total",
			Help:      "Schedule event writes by operation and outcome.",
		}, []string{"op", "result"}),
		LayoutDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "raspored",
			Name:      "layout_dropped_events_total",
			Help:      "Events left out of a rendered week because they start outside the grid.",
		}),
		OverlayFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raspored",
			Name:      "overlay_fetches_total",
			Help:      "ICS overlay feed fetches by feed and outcome.",
		}, []string{"feed", "result"}),
		OverlayEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "raspored",
			Name:      "overlay_entries",
			Help:      "Parsed overlay entries currently cached.",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
