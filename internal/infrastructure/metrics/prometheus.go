// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vidproxy"

var (
	// CacheOperationsTotal tracks CacheMap operations.
	// Labels:
	//   - operation: get, set, delete
	//   - status: hit, miss, success, error
	//   - cache_type: json, data
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of CacheMap operations",
		},
		[]string{"operation", "status", "cache_type"},
	)

	// DBQueriesTotal tracks database queries.
	// Labels:
	//   - query_type: select, insert, update, delete
	//   - table: playback_events
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_queries_total",
			Help:      "Total number of database queries",
		},
		[]string{"query_type", "table"},
	)

	// SingleflightRequestsTotal tracks CacheMap singleflight behavior.
	// Labels:
	//   - result: initiated (new execution), shared (reused result)
	SingleflightRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleflight_requests_total",
			Help:      "Total number of singleflight requests",
		},
		[]string{"result"},
	)

	// PrefetchInFlight reports the current number of segment prefetches
	// holding a worker permit.
	PrefetchInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "prefetch_in_flight",
			Help:      "Current number of in-flight segment prefetch fetches",
		},
	)

	// RateLimitDecisionsTotal tracks rate limiter decisions.
	// Labels:
	//   - decision: allowed, denied
	RateLimitDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_decisions_total",
			Help:      "Total number of rate limiter decisions",
		},
		[]string{"decision"},
	)

	// HTTPRequestDuration tracks handler latency.
	// Labels:
	//   - route: the chi route pattern
	//   - status: HTTP status code
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)
)

// Cache operation status constants.
const (
	CacheStatusHit     = "hit"
	CacheStatusMiss    = "miss"
	CacheStatusSuccess = "success"
	CacheStatusError   = "error"
)

// Cache operation type constants.
const (
	CacheOpGet    = "get"
	CacheOpSet    = "set"
	CacheOpDelete = "delete"
)

// Cache type constants.
const (
	CacheTypeJSON = "json"
	CacheTypeData = "data"
)

// DB query type constants.
const (
	DBQuerySelect = "select"
	DBQueryInsert = "insert"
)

// Table name constants.
const (
	TablePlaybackEvents = "playback_events"
)

// Singleflight result constants.
const (
	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)

// Rate limit decision constants.
const (
	RateLimitAllowed = "allowed"
	RateLimitDenied  = "denied"
)
