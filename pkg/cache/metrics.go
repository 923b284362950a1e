package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by backend (memory, redis, sqlite)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osm_cache_hits_total",
			Help: "Total number of OSM fetch cache hits",
		},
		[]string{"backend"},
	)

	// CacheMisses tracks cache misses by backend
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osm_cache_misses_total",
			Help: "Total number of OSM fetch cache misses",
		},
		[]string{"backend"},
	)

	// CacheStoredBytes tracks bytes written to the cache by backend
	CacheStoredBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osm_cache_stored_bytes_total",
			Help: "Total bytes written to the OSM fetch cache",
		},
		[]string{"backend"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osm_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // get, set, prune, decode
	)
)
