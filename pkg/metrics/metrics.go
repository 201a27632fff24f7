// Package metrics defines the Prometheus collectors used by the retrieval
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vsr"

// Query outcomes recorded by ObserveQuery.
const (
	OutcomeOK        = "ok"
	OutcomeZeroScore = "zero_score"
	OutcomeCached    = "cached"
	OutcomeError     = "error"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	RateLimitedTotal     prometheus.Counter

	QueriesTotal   *prometheus.CounterVec
	QueryLatency   *prometheus.HistogramVec
	QueryHits      prometheus.Histogram
	CacheRequests  *prometheus.CounterVec
	DigestDocs     prometheus.Gauge
	DigestTerms    prometheus.Gauge
	DigestBuild    prometheus.Gauge
	Shards         prometheus.Gauge
	CircuitState   *prometheus.GaugeVec
	AnalyticsTotal *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates all collectors and registers them with reg. Passing
// prometheus.DefaultRegisterer exposes them on the global handler.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed.",
			},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_rate_limited_total",
				Help:      "Requests rejected by the rate limiter.",
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Retrieval queries by weighting scheme and outcome (ok, zero_score, cached, error).",
			},
			[]string{"scheme", "outcome"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_latency_seconds",
				Help:      "Retrieval latency in seconds, cache lookups included.",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"scheme"},
		),
		QueryHits: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_matching_documents",
				Help:      "Documents with a positive score per query.",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		CacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_requests_total",
				Help:      "Ranking cache lookups by result (hit, miss, error).",
			},
			[]string{"result"},
		),
		DigestDocs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "digest_documents",
				Help:      "Collection size of the loaded index digest.",
			},
		),
		DigestTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "digest_terms",
				Help:      "Distinct terms with at least one posting in the loaded digest.",
			},
		),
		DigestBuild: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "digest_build_seconds",
				Help:      "Time taken to load the index and build the digest.",
			},
		),
		Shards: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "scoring_shards",
				Help:      "Number of document-range shards scored per query.",
			},
		),
		CircuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		AnalyticsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analytics_events_total",
				Help:      "Query analytics events by status (published, dropped, consumed).",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.RateLimitedTotal,
		m.QueriesTotal,
		m.QueryLatency,
		m.QueryHits,
		m.CacheRequests,
		m.DigestDocs,
		m.DigestTerms,
		m.DigestBuild,
		m.Shards,
		m.CircuitState,
		m.AnalyticsTotal,
	)
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}
	return m
}

// ObserveDigest records the shape of a freshly built digest.
func (m *Metrics) ObserveDigest(docs, terms, shards int, took time.Duration) {
	m.DigestDocs.Set(float64(docs))
	m.DigestTerms.Set(float64(terms))
	m.Shards.Set(float64(shards))
	m.DigestBuild.Set(took.Seconds())
}

// ObserveQuery records one retrieval. hits is ignored for errors.
func (m *Metrics) ObserveQuery(scheme, outcome string, hits int, took time.Duration) {
	m.QueriesTotal.WithLabelValues(scheme, outcome).Inc()
	m.QueryLatency.WithLabelValues(scheme).Observe(took.Seconds())
	if outcome != OutcomeError {
		m.QueryHits.Observe(float64(hits))
	}
}

func (m *Metrics) CacheHit()   { m.CacheRequests.WithLabelValues("hit").Inc() }
func (m *Metrics) CacheMiss()  { m.CacheRequests.WithLabelValues("miss").Inc() }
func (m *Metrics) CacheError() { m.CacheRequests.WithLabelValues("error").Inc() }

// Handler returns the scrape handler for the registry m was created with.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
