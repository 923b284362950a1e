package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisLimiter is a fixed-window limiter whose counters live in Redis, so all
// service instances share one budget per client.
type RedisLimiter struct {
	redis  *redis.Client
	rate   Rate
	logger zerolog.Logger
	now    func() time.Time
}

// NewRedisLimiter creates a Redis-backed limiter.
func NewRedisLimiter(redisClient *redis.Client, rate Rate, logger zerolog.Logger) (*RedisLimiter, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if err := rate.Validate(); err != nil {
		return nil, err
	}
	return &RedisLimiter{
		redis:  redisClient,
		rate:   rate,
		logger: logger,
		now:    time.Now,
	}, nil
}

// counterKey returns the Redis key of clientKey's counter for the window
// containing now.
func (l *RedisLimiter) counterKey(clientKey string, now time.Time) string {
	return fmt.Sprintf("%s:%s:%d", RedisKeyPrefix, clientKey, l.rate.windowStart(now).Unix())
}

// Allow increments the client's counter for the current window.
func (l *RedisLimiter) Allow(ctx context.Context, clientKey string) (bool, error) {
	now := l.now()
	key := l.counterKey(clientKey, now)

	// INCR and EXPIRE in one round trip; the key outlives its window slightly
	// so a clock skew between instances cannot reset a counter early.
	pipe := l.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.rate.Period+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		rateLimitChecksTotal.WithLabelValues("redis", "error").Inc()
		return false, fmt.Errorf("store rate limit counter in redis: %w", err)
	}

	count := incr.Val()
	if count > int64(l.rate.Requests) {
		l.logger.Warn().
			Str("client", clientKey).
			Int64("count", count).
			Str("limit", l.rate.String()).
			Dur("reset_in", l.rate.TimeUntilReset(now)).
			Msg("Rate limit exceeded - request refused")
		rateLimitChecksTotal.WithLabelValues("redis", "blocked").Inc()
		return false, nil
	}

	l.logger.Debug().
		Str("client", clientKey).
		Int64("count", count).
		Msg("Rate limit check passed")
	rateLimitChecksTotal.WithLabelValues("redis", "allowed").Inc()
	return true, nil
}
