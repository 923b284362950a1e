package cache

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is how long a cached OSM response is kept.
const DefaultTTL = 7 * 24 * time.Hour

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrEmptyKey is returned when a store operation is called without a key
	ErrEmptyKey = errors.New("cache key cannot be empty")
)

// Store is a key-value cache with per-entry TTL.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value stored under key, or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key for ttl. A non-positive ttl stores nothing.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
