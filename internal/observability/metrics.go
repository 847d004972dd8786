package observability

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/helixir/materials-aggregator/internal/domain"
)

// Metrics contains all Prometheus metrics for the materials aggregator,
// grouped by upstream calls, source fetches, caches, persistence, the HTTP
// API and background refresh.
type Metrics struct {
	// UpstreamRequests counts HTTP attempts to providers, labeled by source and status ("0" for network errors).
	UpstreamRequests *prometheus.CounterVec

	// UpstreamRequestDuration observes provider HTTP attempt latency in seconds.
	UpstreamRequestDuration *prometheus.HistogramVec

	// UpstreamRateLimited counts 429 responses by source.
	UpstreamRateLimited *prometheus.CounterVec

	// SourceFetches counts adapter fetches by source and outcome (ok or an upstream error kind).
	SourceFetches *prometheus.CounterVec

	// SourceFetchDuration observes adapter fetch duration in seconds.
	SourceFetchDuration *prometheus.HistogramVec

	// RecordsFetched counts normalized records returned by adapters.
	RecordsFetched *prometheus.CounterVec

	// CacheLookups counts freshness cache lookups by cache and result (hit, miss).
	CacheLookups *prometheus.CounterVec

	// RecordsPersisted counts inserted records by kind.
	RecordsPersisted *prometheus.CounterVec

	// RecordsDuplicate counts records skipped by natural key, by kind.
	RecordsDuplicate *prometheus.CounterVec

	// PersistFailures counts rolled-back batches by kind.
	PersistFailures *prometheus.CounterVec

	// HTTPRequests counts API requests by method, route and status.
	HTTPRequests *prometheus.CounterVec

	// HTTPRequestDuration observes API latency in seconds.
	HTTPRequestDuration *prometheus.HistogramVec

	// RefreshRuns counts background refreshes by kind and outcome.
	RefreshRuns *prometheus.CounterVec

	// NotificationsPublished counts ingest notifications by outcome.
	NotificationsPublished *prometheus.CounterVec
}

// NewMetrics creates metrics registered with the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates metrics registered with reg.
func NewMetricsWithRegisterer(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		UpstreamRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of HTTP attempts to content providers",
		}, []string{"source", "status"}),
		UpstreamRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Duration of HTTP attempts to content providers in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		UpstreamRateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_rate_limited_total",
			Help:      "Total number of rate limit responses from content providers",
		}, []string{"source"}),

		SourceFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetches_total",
			Help:      "Total number of adapter fetches by outcome",
		}, []string{"source", "outcome"}),
		SourceFetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_duration_seconds",
			Help:      "Duration of adapter fetches in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"source"}),
		RecordsFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_fetched_total",
			Help:      "Total number of normalized records returned by adapters",
		}, []string{"source"}),

		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Total number of freshness cache lookups by result",
		}, []string{"cache", "result"}),

		RecordsPersisted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_persisted_total",
			Help:      "Total number of records inserted",
		}, []string{"kind"}),
		RecordsDuplicate: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_duplicate_total",
			Help:      "Total number of records skipped because they already exist",
		}, []string{"kind"}),
		PersistFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Total number of persistence batches rolled back",
		}, []string{"kind"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of API requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of API requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		RefreshRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_runs_total",
			Help:      "Total number of background refreshes by kind and outcome",
		}, []string{"kind", "outcome"}),
		NotificationsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_published_total",
			Help:      "Total number of records-ingested notifications by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveUpstreamRequest records one provider HTTP attempt.
func (m *Metrics) ObserveUpstreamRequest(source string, status int, d time.Duration) {
	m.UpstreamRequests.WithLabelValues(source, strconv.Itoa(status)).Inc()
	m.UpstreamRequestDuration.WithLabelValues(source).Observe(d.Seconds())
	if status == 429 {
		m.UpstreamRateLimited.WithLabelValues(source).Inc()
	}
}

// RecordSourceFetch records one adapter fetch.
func (m *Metrics) RecordSourceFetch(source string, records int, d time.Duration, err error) {
	m.SourceFetches.WithLabelValues(source, FetchOutcome(err)).Inc()
	m.SourceFetchDuration.WithLabelValues(source).Observe(d.Seconds())
	if err == nil {
		m.RecordsFetched.WithLabelValues(source).Add(float64(records))
	}
}

// RecordCacheLookup records a freshness cache hit or miss.
func (m *Metrics) RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(cache, result).Inc()
}

// RecordPersisted records the outcome of one persisted batch.
func (m *Metrics) RecordPersisted(kind string, inserted, duplicates int) {
	m.RecordsPersisted.WithLabelValues(kind).Add(float64(inserted))
	m.RecordsDuplicate.WithLabelValues(kind).Add(float64(duplicates))
}

// RecordPersistFailed records a rolled-back batch.
func (m *Metrics) RecordPersistFailed(kind string) {
	m.PersistFailures.WithLabelValues(kind).Inc()
}

// RecordHTTPRequest records one API request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordRefresh records one background refresh of a record kind.
func (m *Metrics) RecordRefresh(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.RefreshRuns.WithLabelValues(kind, outcome).Inc()
}

// RecordNotification records one publish attempt.
func (m *Metrics) RecordNotification(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.NotificationsPublished.WithLabelValues(outcome).Inc()
}

// FetchOutcome labels a fetch result: "ok", the upstream error kind, or "error".
func FetchOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	var upstreamErr *domain.UpstreamError
	if errors.As(err, &upstreamErr) {
		return string(upstreamErr.Kind)
	}
	return "error"
}
