// Package metrics is the Prometheus registry of ram-browser.
// Component metrics live in their packages (client, cache, ratelimit,
// pagination, episodes); metrics shared by more than one component are
// declared here.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the registerer all ram-browser metrics use via promauto.
var Registry = prometheus.DefaultRegisterer

// Component labels for StaleResults.
const (
	ComponentPagination = "pagination"
	ComponentEpisodes   = "episodes"
)

// StaleResults counts results discarded because the filter or selection
// they were requested for is no longer current.
var StaleResults = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Name: "ram_stale_results_total",
		Help: "Results discarded because they were superseded",
	},
	[]string{"component"},
)

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - ram_requests_total{endpoint, status} (Counter): requests by endpoint and HTTP status ("cached", "throttled", "network_error" for non-HTTP outcomes)
//   - ram_request_duration_seconds{endpoint} (Histogram): request duration
//   - ram_errors_total{class} (Counter): errors by class (network, decode, server)
//
// Cache Metrics (pkg/cache):
//   - ram_cache_hits_total (Counter)
//   - ram_cache_misses_total (Counter)
//   - ram_cache_errors_total{operation} (Counter): get, set, delete
//
// Throttle Metrics (pkg/ratelimit):
//   - ram_throttle_blocks_total (Counter): requests refused while the server asked to back off
//   - ram_throttle_events_total (Counter): 429 responses observed
//
// Pagination Metrics (pkg/pagination):
//   - ram_pages_loaded_total{direction} (Counter): initial, append
//   - ram_page_failures_total{direction} (Counter)
//
// Episode Metrics (pkg/episodes):
//   - ram_episode_cache_hits_total (Counter)
//   - ram_episode_fetches_total (Counter): batch requests sent
//
// Shared (this package):
//   - ram_stale_results_total{component} (Counter): pagination, episodes
//
// Example Prometheus Queries:
//
//	# Cache Hit Rate
//	sum(rate(ram_cache_hits_total[5m])) /
//	(sum(rate(ram_cache_hits_total[5m])) + sum(rate(ram_cache_misses_total[5m])))
//
//	# Append failures
//	rate(ram_page_failures_total{direction="append"}[5m])
//
//	# P95 Request Latency
//	histogram_quantile(0.95, rate(ram_request_duration_seconds_bucket[5m]))
