package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks response cache hits.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ram_cache_hits_total",
			Help: "Total number of response cache hits",
		},
	)

	// CacheMisses tracks response cache misses.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ram_cache_misses_total",
			Help: "Total number of response cache misses",
		},
	)

	// CacheErrors tracks cache operation errors.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ram_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)

var (
	// ConditionalRequests tracks requests sent with If-None-Match or If-Modified-Since.
	ConditionalRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ram_cache_conditional_requests_total",
			Help: "Total number of conditional requests sent to revalidate expired entries",
		},
	)

	// NotModifiedResponses tracks 304 answers that refreshed a cached entry.
	NotModifiedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ram_cache_not_modified_total",
			Help: "Total number of 304 Not Modified responses served from cache",
		},
	)
)
