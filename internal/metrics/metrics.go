// Package metrics exposes Prometheus collectors for the lookup path.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"visitor-webhook/internal/circuitbreaker"
	"visitor-webhook/internal/common/errors"
	"visitor-webhook/internal/visitors"
)

const namespace = "visitor_webhook"

// Metrics holds every collector the service records to
type Metrics struct {
	registry *prometheus.Registry

	cacheRequests   *prometheus.CounterVec
	staleServes     prometheus.Counter
	refreshes       *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	snapshotRows    prometheus.Gauge
	snapshotKeys    prometheus.Gauge
	lastRefresh     prometheus.Gauge
	lookups         *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	breakerState    prometheus.Gauge
	rateLimited     prometheus.Counter
	keepalivePings  *prometheus.CounterVec
}

// New creates the collectors and registers them on a private registry
// together with the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache reads by result",
		}, []string{"result"}),
		staleServes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_stale_serves_total",
			Help:      "Reads answered from a snapshot older than the TTL",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_refreshes_total",
			Help:      "Snapshot refreshes by status and error type",
		}, []string{"status", "error_type"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_refresh_duration_seconds",
			Help:      "Time spent fetching and indexing the remote table",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		snapshotRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_snapshot_rows",
			Help:      "Rows read in the last successful refresh",
		}),
		snapshotKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_snapshot_keys",
			Help:      "Distinct keys in the last successful refresh",
		}),
		lastRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_last_refresh_timestamp_seconds",
			Help:      "Unix timestamp of the last successful refresh",
		}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Lookups by outcome",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code",
		}, []string{"route", "method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sheets_circuit_state",
			Help:      "Sheets circuit breaker state (0 closed, 1 open, 2 half-open)",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Requests rejected by the rate limiter",
		}),
		keepalivePings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keepalive_pings_total",
			Help:      "Keep-alive pings by status",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.cacheRequests, m.staleServes, m.refreshes, m.refreshDuration,
		m.snapshotRows, m.snapshotKeys, m.lastRefresh, m.lookups,
		m.httpRequests, m.httpDuration, m.breakerState, m.rateLimited,
		m.keepalivePings,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// CacheHit implements visitors.Observer
func (m *Metrics) CacheHit() {
	m.cacheRequests.WithLabelValues("hit").Inc()
}

// CacheMiss implements visitors.Observer
func (m *Metrics) CacheMiss() {
	m.cacheRequests.WithLabelValues("miss").Inc()
}

// StaleServed implements visitors.Observer
func (m *Metrics) StaleServed() {
	m.staleServes.Inc()
}

// RefreshSucceeded implements visitors.Observer
func (m *Metrics) RefreshSucceeded(duration time.Duration, rows, keys int) {
	m.refreshes.WithLabelValues("success", "").Inc()
	m.refreshDuration.Observe(duration.Seconds())
	m.snapshotRows.Set(float64(rows))
	m.snapshotKeys.Set(float64(keys))
	m.lastRefresh.SetToCurrentTime()
}

// RefreshFailed implements visitors.Observer
func (m *Metrics) RefreshFailed(duration time.Duration, err error) {
	m.refreshes.WithLabelValues("error", string(errors.GetType(err))).Inc()
	m.refreshDuration.Observe(duration.Seconds())
}

// LookupCompleted implements visitors.Observer
func (m *Metrics) LookupCompleted(outcome visitors.Outcome) {
	m.lookups.WithLabelValues(string(outcome)).Inc()
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(route, method string, status int, duration time.Duration) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// BreakerStateChanged tracks the Sheets circuit breaker
func (m *Metrics) BreakerStateChanged(_ string, _, to circuitbreaker.State) {
	m.breakerState.Set(float64(to))
}

// RateLimited counts a rejected request
func (m *Metrics) RateLimited() {
	m.rateLimited.Inc()
}

// KeepalivePing counts a keep-alive ping by outcome
func (m *Metrics) KeepalivePing(ok bool) {
	status := "success"
	if !ok {
		status = "error"
	}
	m.keepalivePings.WithLabelValues(status).Inc()
}
