package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "dividendquotes"

// Outcome labels for upstream calls that did not fail.
const OutcomeOK = "ok"

// Metrics wraps the prometheus collectors for the quote client and the
// HTTP handlers. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	cacheLookups     *prometheus.CounterVec
	upstreamCalls    *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	crumbRetries     *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
}

// Upstream latency buckets, in seconds.
var defaultBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// New creates the collectors on a fresh registry that also carries the
// Go and process collectors.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,

		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Cache lookups by operation and result (hit, miss, stale)",
			},
			[]string{"operation", "result"},
		),

		upstreamCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_calls_total",
				Help:      "Upstream attempts by operation and outcome (ok or error kind)",
			},
			[]string{"operation", "outcome"},
		),

		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_call_duration_seconds",
				Help:      "Upstream attempt latency",
				Buckets:   defaultBuckets,
			},
			[]string{"operation"},
		),

		crumbRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "crumb_retries_total",
				Help:      "Retries triggered by an invalidated crumb",
			},
			[]string{"operation"},
		),

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status code",
			},
			[]string{"route", "status"},
		),
	}

	registry.MustRegister(
		m.cacheLookups,
		m.upstreamCalls,
		m.upstreamDuration,
		m.crumbRetries,
		m.httpRequests,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format. Response
// compression is left to the server middleware.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{DisableCompression: true})
}

// CacheLookup records a cache lookup result.
func (m *Metrics) CacheLookup(operation, result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(operation, result).Inc()
}

// UpstreamCall records one upstream attempt.
func (m *Metrics) UpstreamCall(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.upstreamCalls.WithLabelValues(operation, outcome).Inc()
	m.upstreamDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// CrumbRetry records a retry caused by crumb invalidation.
func (m *Metrics) CrumbRetry(operation string) {
	if m == nil {
		return
	}
	m.crumbRetries.WithLabelValues(operation).Inc()
}

// HTTPRequest records a served request.
func (m *Metrics) HTTPRequest(route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}
