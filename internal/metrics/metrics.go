// Package metrics provides Prometheus instrumentation for the proxy:
// request counts, cache hit/miss rates, and upstream fetch latency.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the proxy's Prometheus collectors. A nil *Metrics is safe to
// call methods on (they become no-ops), so components may be constructed
// with metrics disabled.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	upstreamFetchDuration *prometheus.HistogramVec
	upstreamErrors        *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a Metrics instance registered against a fresh registry, so
// that multiple instances (e.g. one per test) never collide on collector
// names the way a package-level global registry would.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crates_io_proxy_requests_total",
			Help: "Total number of inbound requests by kind and status.",
		}, []string{"kind", "status"}),

		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crates_io_proxy_request_duration_seconds",
			Help:    "Inbound request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),

		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crates_io_proxy_cache_hits_total",
			Help: "Total number of cache hits by kind (crate or index).",
		}, []string{"kind"}),

		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crates_io_proxy_cache_misses_total",
			Help: "Total number of cache misses by kind (crate or index).",
		}, []string{"kind"}),

		upstreamFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crates_io_proxy_upstream_fetch_duration_seconds",
			Help:    "Upstream fetch duration in seconds by kind.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),

		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crates_io_proxy_upstream_errors_total",
			Help: "Total number of upstream fetch errors by kind and error type.",
		}, []string{"kind", "error_type"}),

		registry: reg,
	}

	reg.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.cacheHits,
		m.cacheMisses,
		m.upstreamFetchDuration,
		m.upstreamErrors,
	)

	return m
}

// Handler returns the HTTP handler serving this instance's metrics in the
// Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records an inbound request's outcome and duration.
func (m *Metrics) ObserveRequest(kind string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(kind, statusLabel(status)).Inc()
	m.requestDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveCacheHit records a cache hit for the given kind ("crate" or
// "index").
func (m *Metrics) ObserveCacheHit(kind string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(kind).Inc()
}

// ObserveCacheMiss records a cache miss for the given kind.
func (m *Metrics) ObserveCacheMiss(kind string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(kind).Inc()
}

// ObserveUpstreamFetch records an upstream fetch's duration.
func (m *Metrics) ObserveUpstreamFetch(kind string, duration time.Duration) {
	if m == nil {
		return
	}
	m.upstreamFetchDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveUpstreamError records an upstream fetch failure by error type
// ("transport" or "upstream").
func (m *Metrics) ObserveUpstreamError(kind, errorType string) {
	if m == nil {
		return
	}
	m.upstreamErrors.WithLabelValues(kind, errorType).Inc()
}

func statusLabel(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status == 304:
		return "304"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "other"
	}
}
