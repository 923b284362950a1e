// Package metrics exposes the Prometheus metrics of the service.
// All metrics are defined in their respective packages (osm, cache, ratelimit,
// changeset, batch) and registered via promauto on the default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the Prometheus registry the collectors are registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the source served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/osm):
//   - osm_requests_total{endpoint, status} (Counter): OSM API requests by endpoint and HTTP status ("cached" for cache hits)
//   - osm_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - osm_errors_total{class} (Counter): Fetch errors by class (client, server, network, malformed)
//
// Cache Metrics (pkg/cache):
//   - osm_cache_hits_total{backend} (Counter): Cache hits by backend
//   - osm_cache_misses_total{backend} (Counter): Cache misses by backend
//   - osm_cache_stored_bytes_total{backend} (Counter): Bytes written to the cache
//   - osm_cache_errors_total{operation} (Counter): Cache operation errors
//
// Rate Limit Metrics (pkg/ratelimit):
//   - osm_rate_limit_checks_total{backend, outcome} (Counter): Limiter decisions
//   - osm_rate_limit_blocks_total (Counter): Aggregations refused by the limiter
//
// Aggregation Metrics (pkg/changeset):
//   - osm_pagination_pages (Histogram): Pages fetched per listing
//   - osm_pagination_truncated_total (Counter): Listings stopped at the depth cap
//   - osm_diff_failures_total{class} (Counter): Skipped changeset diffs
//   - osm_aggregations_total{outcome} (Counter): Aggregations by outcome (complete, partial, failed, cancelled)
//   - osm_aggregation_duration_seconds (Histogram): Aggregation duration
//
// Batch Metrics (pkg/batch):
//   - osm_batch_users_total (Counter): Users processed
//   - osm_batch_user_errors_total{reason} (Counter): Users without a result
//
// HTTP Metrics (cmd/whatdidyoudo):
//   - whatdidyoudo_http_requests_total{route, status} (Counter): Inbound requests
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(osm_cache_hits_total[5m])) /
//   (sum(rate(osm_cache_hits_total[5m])) + sum(rate(osm_cache_misses_total[5m])))
//
//   # Share of partial aggregations
//   rate(osm_aggregations_total{outcome="partial"}[1h]) / rate(osm_aggregations_total[1h])
//
//   # P95 OSM Request Latency
//   histogram_quantile(0.95, rate(osm_request_duration_seconds_bucket[5m]))
