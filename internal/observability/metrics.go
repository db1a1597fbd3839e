package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream fetch rate per source and outcome. Watch for: a single source's
	// error ratio climbing (provider outage) vs all sources failing (network).
	SourceFetchesTotal *prometheus.CounterVec

	// Upstream fetch latency per source. Watch for: p95 approaching the per-source timeout.
	SourceFetchDuration *prometheus.HistogramVec

	// Per-source timeouts. A subset of fetch errors; split out because timeouts
	// dominate the aggregate deadline budget.
	SourceTimeoutsTotal *prometheus.CounterVec

	// Observations discarded by the aligner for malformed timestamps.
	ObservationsDroppedTotal prometheus.Counter

	// Individual fields dropped by physical-plausibility range checks.
	FieldsDroppedRangeTotal *prometheus.CounterVec

	// Fused points produced before quality filtering.
	FusedPointsTotal prometheus.Counter

	// Fused points excluded for falling below the caller's minimum quality.
	PointsBelowQualityTotal prometheus.Counter

	// Requests answered with the explicit no-usable-data failure.
	NoUsableDataTotal prometheus.Counter

	// Result cache hits/misses per backend.
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Concurrent cache misses for the same key (stampede indicator).
	CacheStampedeDetectedTotal prometheus.Counter

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Cache warming runs and failures.
	CacheWarmingTotal       prometheus.Counter
	CacheWarmingErrorsTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	SourceFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourceFetchesTotal",
			Help: "Total upstream fetches per source and outcome",
		},
		[]string{"source", "status"},
	)
	SourceFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sourceFetchDurationSeconds",
			Help:    "Upstream fetch latency in seconds per source",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"source"},
	)
	SourceTimeoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourceTimeoutsTotal",
			Help: "Upstream fetches abandoned at the per-source timeout",
		},
		[]string{"source"},
	)
	ObservationsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "observationsDroppedTotal",
			Help: "Raw observations discarded for malformed timestamps",
		},
	)
	FieldsDroppedRangeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsDroppedRangeTotal",
			Help: "Fields dropped by physical-plausibility range checks",
		},
		[]string{"field"},
	)
	FusedPointsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fusedPointsTotal",
			Help: "Fused points produced before quality filtering",
		},
	)
	PointsBelowQualityTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pointsBelowQualityTotal",
			Help: "Fused points excluded by the minimum-quality threshold",
		},
	)
	NoUsableDataTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "noUsableDataTotal",
			Help: "Requests that failed with no usable data from any source",
		},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Result cache hits per backend",
		},
		[]string{"backend"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Result cache misses per backend",
		},
		[]string{"backend"},
	)
	CacheStampedeDetectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheStampedeDetectedTotal",
			Help: "Concurrent cache misses observed for the same key",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Cache warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs that had at least one spot fail",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		SourceFetchesTotal, SourceFetchDuration, SourceTimeoutsTotal,
		ObservationsDroppedTotal, FieldsDroppedRangeTotal,
		FusedPointsTotal, PointsBelowQualityTotal, NoUsableDataTotal,
		CacheHitsTotal, CacheMissesTotal, CacheStampedeDetectedTotal,
		RateLimitDeniedTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
