// Package metrics holds the Prometheus collectors of the console.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Upstream call outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	UpstreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "landconsole_upstream_requests_total",
		Help: "Calls to the layer collection and auth endpoints by operation and outcome",
	}, []string{"op", "outcome"})
	UpstreamDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "landconsole_upstream_duration_ms",
		Help:    "Upstream call duration in milliseconds",
		Buckets: []float64{5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000},
	}, []string{"op"})
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "landconsole_active_sessions",
		Help: "Console sessions currently open",
	})
	ConnectedSurfaces = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "landconsole_connected_surfaces",
		Help: "Browser map surfaces connected over websocket",
	})
	GeometryParseFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "landconsole_geometry_parse_failures_total",
		Help: "Geometry drafts rejected on commit",
	})
)

func init() {
	prometheus.MustRegister(UpstreamRequestsTotal)
	prometheus.MustRegister(UpstreamDurationMs)
	prometheus.MustRegister(ActiveSessions)
	prometheus.MustRegister(ConnectedSurfaces)
	prometheus.MustRegister(GeometryParseFailuresTotal)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveUpstream records one upstream call.
func ObserveUpstream(op string, durationMs float64, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	UpstreamRequestsTotal.WithLabelValues(op, outcome).Inc()
	UpstreamDurationMs.WithLabelValues(op).Observe(durationMs)
}
