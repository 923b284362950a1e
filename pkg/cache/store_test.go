package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis starts an in-memory Redis server for unit tests.
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })

	return client, server
}

func TestNewRedisStore_Panic(t *testing.T) {
	assert.Panics(t, func() { NewRedisStore(nil) })
}

func TestRedisStore_SetAndGet(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	key := URLKey("https://api.openstreetmap.org/api/0.6/changeset/1/download")
	require.NoError(t, store.Set(ctx, key, []byte("<osmChange/>"), time.Hour))

	data, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "<osmChange/>", string(data))
}

func TestRedisStore_Miss(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewRedisStore(client)

	_, err := store.Get(context.Background(), "osm:nothing")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisStore_Expiry(t *testing.T) {
	client, server := setupTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "osm:k", []byte("v"), time.Minute))
	assert.Equal(t, time.Minute, server.TTL("osm:k"))

	server.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "osm:k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisStore_NonPositiveTTL(t *testing.T) {
	client, server := setupTestRedis(t)
	store := NewRedisStore(client)

	require.NoError(t, store.Set(context.Background(), "osm:k", []byte("v"), 0))
	assert.False(t, server.Exists("osm:k"))
}

func TestRedisStore_ServerDown(t *testing.T) {
	client, server := setupTestRedis(t)
	store := NewRedisStore(client)
	server.Close()

	_, err := store.Get(context.Background(), "osm:k")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCacheMiss), "backend failure must not look like a miss")
}

func TestStores_EmptyKey(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	for name, store := range map[string]Store{
		"redis":  NewRedisStore(client),
		"memory": NewMemoryStore(0, 0),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(ctx, "")
			assert.ErrorIs(t, err, ErrEmptyKey)
			assert.ErrorIs(t, store.Set(ctx, "", []byte("v"), time.Hour), ErrEmptyKey)
		})
	}
}

func TestMemoryStore_SetAndGet(t *testing.T) {
	store := NewMemoryStore(0, 0)
	ctx := context.Background()

	value := []byte("<osm/>")
	require.NoError(t, store.Set(ctx, "osm:k", value, time.Hour))

	// Mutating the caller's slice must not change the stored value.
	value[1] = 'X'

	data, err := store.Get(ctx, "osm:k")
	require.NoError(t, err)
	assert.Equal(t, "<osm/>", string(data))
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore(0, 0)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "osm:a", []byte("a"), time.Minute))
	require.NoError(t, store.Set(ctx, "osm:b", []byte("b"), time.Hour))

	now = now.Add(2 * time.Minute)

	_, err := store.Get(ctx, "osm:a")
	assert.ErrorIs(t, err, ErrCacheMiss)

	_, err = store.Get(ctx, "osm:b")
	assert.NoError(t, err)

	// Reads never evict; Prune does.
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, 1, store.Prune())
	assert.Equal(t, 1, store.Len())

	now = now.Add(2 * time.Hour)
	assert.Equal(t, 1, store.Prune())
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_RefreshAfterExpiredRead(t *testing.T) {
	store := NewMemoryStore(0, 0)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "osm:k", []byte("old"), time.Minute))
	now = now.Add(time.Hour)

	_, err := store.Get(ctx, "osm:k")
	require.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, store.Set(ctx, "osm:k", []byte("new"), time.Minute))

	data, err := store.Get(ctx, "osm:k")
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestMemoryStore_BoundedSize(t *testing.T) {
	store := NewMemoryStore(2, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "osm:a", []byte("a"), time.Hour))
	require.NoError(t, store.Set(ctx, "osm:b", []byte("b"), time.Hour))
	_, err := store.Get(ctx, "osm:a")
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "osm:c", []byte("c"), time.Hour))

	assert.Equal(t, 2, store.Len())
	_, err = store.Get(ctx, "osm:b")
	assert.ErrorIs(t, err, ErrCacheMiss, "least recently used entry is evicted")
	_, err = store.Get(ctx, "osm:a")
	assert.NoError(t, err)
}

func TestMemoryStore_MaxTTLCapsEntries(t *testing.T) {
	store := NewMemoryStore(0, 50*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "osm:k", []byte("v"), time.Hour))
	require.Eventually(t, func() bool {
		_, err := store.Get(ctx, "osm:k")
		return errors.Is(err, ErrCacheMiss)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := NewMemoryStore(0, 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Set(ctx, "osm:shared", []byte("value"), time.Hour)
			_, _ = store.Get(ctx, "osm:shared")
		}()
	}
	wg.Wait()

	data, err := store.Get(ctx, "osm:shared")
	require.NoError(t, err)
	assert.Equal(t, "value", string(data))
}
