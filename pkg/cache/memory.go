package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultMaxEntries bounds a MemoryStore when no size is configured.
const DefaultMaxEntries = 10000

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// MemoryStore is an in-process Store holding at most maxEntries values; the
// least recently used entry makes room for a new one. No entry lives longer
// than maxTTL, and a shorter ttl passed to Set is honoured on Get. Prune
// drops expired entries early.
type MemoryStore struct {
	// mu orders Set against Prune; reads go straight to the LRU.
	mu      sync.Mutex
	entries *expirable.LRU[string, memoryEntry]
	now     func() time.Time
}

// NewMemoryStore creates an empty in-process store. maxEntries <= 0 means
// DefaultMaxEntries; maxTTL <= 0 means DefaultTTL.
func NewMemoryStore(maxEntries int, maxTTL time.Duration) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if maxTTL <= 0 {
		maxTTL = DefaultTTL
	}

	return &MemoryStore{
		entries: expirable.NewLRU[string, memoryEntry](maxEntries, nil, maxTTL),
		now:     time.Now,
	}
}

// Get returns the value stored under key, or ErrCacheMiss.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	entry, ok := s.entries.Get(key)
	if !ok || !s.now().Before(entry.expires) {
		CacheMisses.WithLabelValues("memory").Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("memory").Inc()
	return entry.data, nil
}

// Set stores a copy of value under key for ttl.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if ttl <= 0 {
		return nil
	}

	data := make([]byte, len(value))
	copy(data, value)

	s.mu.Lock()
	s.entries.Add(key, memoryEntry{data: data, expires: s.now().Add(ttl)})
	s.mu.Unlock()

	CacheStoredBytes.WithLabelValues("memory").Add(float64(len(data)))
	return nil
}

// Prune removes all expired entries and returns how many were removed.
func (s *MemoryStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for _, key := range s.entries.Keys() {
		entry, ok := s.entries.Peek(key)
		if ok && !now.Before(entry.expires) && s.entries.Remove(key) {
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, expired or not.
func (s *MemoryStore) Len() int {
	return s.entries.Len()
}
