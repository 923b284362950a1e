// Package cache provides the key-value store behind the OSM fetch cache.
//
// Responses from the OSM API are cached by URL. Whether a response may be
// stored at all is decided by the caller (see osm.Client.FetchXML): windows that
// reach into the present and diffs of open changesets are never written,
// because their content can still change.
//
// Three backends implement Store:
//
//   - RedisStore shares the cache between service instances
//   - SQLiteStore persists entries in a local database file
//   - MemoryStore keeps a bounded LRU of entries in process (single instance, tests)
//
// CompressedStore wraps any of them and LZ4-compresses the stored bodies.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := cache.NewRedisStore(redisClient)
//
//	key := cache.URLKey("https://api.openstreetmap.org/api/0.6/changeset/42/download")
//
//	data, err := store.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from OSM, then
//		_ = store.Set(ctx, key, body, cache.DefaultTTL)
//	}
//
// # Metrics
//
//   - osm_cache_hits_total{backend} - Cache hits
//   - osm_cache_misses_total{backend} - Cache misses
//   - osm_cache_stored_bytes_total{backend} - Bytes written
//   - osm_cache_errors_total{operation} - Cache operation errors
package cache
