package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/whatdidyoudo/pkg/batch"
	"github.com/Sternrassler/whatdidyoudo/pkg/cache"
	"github.com/Sternrassler/whatdidyoudo/pkg/changeset"
	"github.com/Sternrassler/whatdidyoudo/pkg/config"
	"github.com/Sternrassler/whatdidyoudo/pkg/logging"
	"github.com/Sternrassler/whatdidyoudo/pkg/osm"
	"github.com/Sternrassler/whatdidyoudo/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// pruneInterval is how often expired entries of a local cache are dropped.
const pruneInterval = 10 * time.Minute

// app holds the wired service objects.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	// redis is nil unless a backend uses it
	redis   *redis.Client
	store   cache.Store
	memory  *cache.MemoryStore
	sqlite  *cache.SQLiteStore
	limiter ratelimit.Limiter
	rate    ratelimit.Rate
	client  *osm.Client
	runner  *batch.Runner
}

// newApp wires the OSM client, cache, limiter and batch runner from cfg.
func newApp(cfg *config.Config) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logging.NewLogger("app"),
		rate:   ratelimit.Rate{Requests: cfg.RateLimit.Requests, Period: cfg.RateLimit.Period},
	}

	if cfg.UsesRedis() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			Password: cfg.Redis.Password,
		})
	}

	var err error
	switch cfg.Cache.Backend {
	case config.BackendRedis:
		a.store = cache.NewRedisStore(a.redis)
	case config.BackendSQLite:
		a.sqlite, err = cache.NewSQLiteStore(cfg.Cache.Path)
		if err != nil {
			a.close()
			return nil, err
		}
		a.store = a.sqlite
	default:
		a.memory = cache.NewMemoryStore(cfg.Cache.MaxEntries, cfg.Cache.TTL)
		a.store = a.memory
	}
	if cfg.Cache.Compress {
		a.store = cache.NewCompressedStore(a.store)
	}

	switch cfg.RateLimit.Backend {
	case config.BackendRedis:
		a.limiter, err = ratelimit.NewRedisLimiter(a.redis, a.rate, logging.NewLogger("ratelimit"))
	default:
		a.limiter, err = ratelimit.NewMemoryLimiter(a.rate, logging.NewLogger("ratelimit"))
	}
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create rate limiter: %w", err)
	}

	a.client, err = osm.New(osm.Config{
		BaseURL:   cfg.OSM.BaseURL,
		UserAgent: cfg.OSM.UserAgent,
		Timeout:   cfg.OSM.Timeout,
		Cache:     a.store,
		CacheTTL:  cfg.Cache.TTL,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create OSM client: %w", err)
	}

	paginator := changeset.NewPaginator(a.client, changeset.PaginatorConfig{
		PageSize: cfg.OSM.PageSize,
		MaxDepth: cfg.OSM.MaxDepth,
	}, logging.NewLogger("paginator"))

	aggregator := changeset.NewAggregator(paginator, a.client, changeset.AggregatorConfig{
		DiffWorkers: cfg.OSM.DiffWorkers,
	}, logging.NewLogger("aggregator"))

	a.runner = batch.NewRunner(aggregator, a.limiter, a.rate, logging.NewLogger("batch"))

	return a, nil
}

// ping checks the Redis connection, if any.
func (a *app) ping(ctx context.Context) error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Ping(ctx).Err()
}

// pruneCache periodically drops expired entries of a local cache until ctx
// is done. Redis expires entries itself.
func (a *app) pruneCache(ctx context.Context) {
	if a.memory == nil && a.sqlite == nil {
		return
	}

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.prune(ctx)
		}
	}
}

func (a *app) prune(ctx context.Context) {
	var (
		n   int
		err error
	)
	switch {
	case a.memory != nil:
		n = a.memory.Prune()
	case a.sqlite != nil:
		n, err = a.sqlite.Prune(ctx)
	}

	if err != nil {
		a.logger.Warn().Err(err).Msg("Failed to prune cache")
		return
	}
	if n > 0 {
		a.logger.Debug().Int("pruned", n).Msg("Pruned cache")
	}
}

func (a *app) close() {
	if a.sqlite != nil {
		if err := a.sqlite.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close cache database")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
}
