package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_console_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "admin_console_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	loginCallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_console_login_callbacks_total",
			Help: "OAuth callbacks by outcome.",
		},
		[]string{"outcome"},
	)
	tenantSwitchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_console_tenant_context_changes_total",
			Help: "Tenant context switch and exit attempts by result.",
		},
		[]string{"action", "result"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, loginCallbacksTotal, tenantSwitchesTotal)
}

// RegisterActiveSessionsGauge registers a gauge reporting live in-memory sessions.
func RegisterActiveSessionsGauge(countFn func() float64) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "admin_console_active_sessions",
			Help: "Number of browser sessions with live session-scoped state.",
		},
		countFn,
	))
}

// MetricsHandler returns the Prometheus metrics HTTP handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
