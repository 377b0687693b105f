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

	// Concurrent requests in flight. Watch for: saturation.
	HTTPRequestsInFlight prometheus.Gauge

	// Archive API call rate by status. Watch for: error vs success ratio.
	ArchiveAPICallsTotal *prometheus.CounterVec

	// Archive API latency per attempt. Multi-year ranges are slow; buckets go to 30s.
	ArchiveAPIDuration *prometheus.HistogramVec

	// Retry attempts for archive calls. Watch for: high retries = unstable upstream.
	ArchiveAPIRetriesTotal prometheus.Counter

	// Unrecoverable fetch failures by category.
	FetchErrorsTotal *prometheus.CounterVec

	// Response cache hits and misses by backend.
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Cache backend errors by operation (get/set).
	CacheErrorsTotal *prometheus.CounterVec

	// Concurrent fetches for the same key folded into one upstream call.
	RequestCoalescingHitsTotal prometheus.Counter

	// Fetch results discarded because a newer query superseded them.
	StaleFetchDiscardedTotal prometheus.Counter

	// Circuit breaker state: 0 closed, 1 half-open, 2 open.
	CircuitBreakerState prometheus.Gauge

	// Circuit breaker transitions by target state.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Forecast fit+predict duration by trend.
	ForecastDuration *prometheus.HistogramVec

	// Forecast requests refused because the history is too short.
	ForecastGatedTotal prometheus.Counter

	// Live dashboard sessions.
	SessionsActive prometheus.Gauge

	// Cache warming runs and failures.
	CacheWarmingTotal       prometheus.Counter
	CacheWarmingErrorsTotal prometheus.Counter

	// Rate limit denials.
	RateLimitDeniedTotal prometheus.Counter
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
	ArchiveAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archiveApiCallsTotal",
			Help: "Total number of weather archive API calls",
		},
		[]string{"status"},
	)
	ArchiveAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "archiveApiDurationSeconds",
			Help:    "Weather archive API latency in seconds (per attempt)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"status"},
	)
	ArchiveAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "archiveApiRetriesTotal",
			Help: "Total number of retry attempts for archive API calls",
		},
	)
	FetchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchErrorsTotal",
			Help: "Unrecoverable weather fetch failures by category",
		},
		[]string{"category"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of response cache hits",
		},
		[]string{"backend"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Total number of response cache misses",
		},
		[]string{"backend"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Response cache backend errors by operation",
		},
		[]string{"operation"},
	)
	RequestCoalescingHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "requestCoalescingHitsTotal",
			Help: "Fetches that shared an in-flight upstream call",
		},
	)
	StaleFetchDiscardedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "staleFetchDiscardedTotal",
			Help: "Fetch results dropped because a newer query superseded them",
		},
	)
	CircuitBreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Archive circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Archive circuit breaker transitions by target state",
		},
		[]string{"to"},
	)
	ForecastDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forecastDurationSeconds",
			Help:    "Forecast fit and predict duration in seconds",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"trend"},
	)
	ForecastGatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "forecastGatedTotal",
			Help: "Forecast requests refused because history spans under a year",
		},
	)
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessionsActive",
			Help: "Number of live dashboard sessions",
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
			Help: "Cache warming runs with at least one failed query",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		ArchiveAPICallsTotal, ArchiveAPIDuration, ArchiveAPIRetriesTotal,
		FetchErrorsTotal,
		CacheHitsTotal, CacheMissesTotal, CacheErrorsTotal,
		RequestCoalescingHitsTotal, StaleFetchDiscardedTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		ForecastDuration, ForecastGatedTotal,
		SessionsActive,
		CacheWarmingTotal, CacheWarmingErrorsTotal,
		RateLimitDeniedTotal,
	)
}

// CircuitBreakerStateValue maps a breaker state name to the gauge value.
func CircuitBreakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

// RecordCircuitBreakerTransition updates the state gauge and transition counter.
func RecordCircuitBreakerTransition(to string) {
	CircuitBreakerTransitionsTotal.WithLabelValues(to).Inc()
	CircuitBreakerState.Set(CircuitBreakerStateValue(to))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
