package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	occurrencesMaterialized prometheus.Counter
	groupOperations         *prometheus.CounterVec
	viewCacheLookups        *prometheus.CounterVec
	indexedEvents           prometheus.Gauge
	syncRuns                *prometheus.CounterVec
}

// New creates and registers all collectors on a private registry.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		occurrencesMaterialized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "occurrences_materialized_total",
			Help:      "Occurrence records written for recurring events",
		}),
		groupOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "repeat_group_operations_total",
				Help:      "Single and group edit/delete operations",
			},
			[]string{"operation"},
		),
		viewCacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "view_cache_lookups_total",
				Help:      "Calendar view cache lookups by result",
			},
			[]string{"result"},
		),
		indexedEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexed_events",
			Help:      "Events held by the in-memory index",
		}),
		syncRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "index_sync_runs_total",
				Help:      "Scheduled index reloads by outcome",
			},
			[]string{"outcome"},
		),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.occurrencesMaterialized,
		m.groupOperations,
		m.viewCacheLookups,
		m.indexedEvents,
		m.syncRuns,
	)
	return m
}

// Middleware records request counts and latencies.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			m.requestsTotal.WithLabelValues(c.Request().Method, c.Path(), fmt.Sprintf("%d", status)).Inc()
			m.requestDuration.WithLabelValues(c.Request().Method, c.Path()).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) OccurrencesMaterialized(n int) {
	if m == nil {
		return
	}
	m.occurrencesMaterialized.Add(float64(n))
}

func (m *Metrics) GroupOperation(op string) {
	if m == nil {
		return
	}
	m.groupOperations.WithLabelValues(op).Inc()
}

func (m *Metrics) ViewCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.viewCacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) IndexSize(n int) {
	if m == nil {
		return
	}
	m.indexedEvents.Set(float64(n))
}

func (m *Metrics) SyncRun(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.syncRuns.WithLabelValues(outcome).Inc()
}
