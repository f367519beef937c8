// Package metrics exposes the server's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's instruments. A single instance is shared
// by the HTTP middleware and the event hub.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	SyncUploadsTotal *prometheus.CounterVec
	EventClients     prometheus.Gauge
}

// New creates a Metrics with its own registry, keeping tests isolated
// from the global default registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fittrack_http_requests_total",
			Help: "HTTP requests by route pattern and status code.",
		}, []string{"route", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fittrack_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		SyncUploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fittrack_sync_uploads_total",
			Help: "Sync uploads by domain.",
		}, []string{"domain"}),
		EventClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fittrack_event_clients",
			Help: "Currently connected change-notification clients.",
		}),
	}
}

// Handler serves the /metrics scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
