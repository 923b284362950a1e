package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultMaxClients bounds the number of clients a MemoryLimiter tracks.
const DefaultMaxClients = 100000

// MemoryLimiter is a token-bucket limiter for a single service instance.
// Each client gets a bucket of Requests tokens refilled over Period.
//
// Buckets are dropped one Period after they were created: by then a bucket
// has refilled completely, so a fresh one is indistinguishable.
type MemoryLimiter struct {
	mu      sync.Mutex
	budget  Rate
	limit   rate.Limit
	buckets *expirable.LRU[string, *rate.Limiter]
	logger  zerolog.Logger
	now     func() time.Time
}

// NewMemoryLimiter creates an in-process limiter.
func NewMemoryLimiter(budget Rate, logger zerolog.Logger) (*MemoryLimiter, error) {
	if err := budget.Validate(); err != nil {
		return nil, err
	}

	return &MemoryLimiter{
		budget:  budget,
		limit:   rate.Limit(float64(budget.Requests) / budget.Period.Seconds()),
		buckets: expirable.NewLRU[string, *rate.Limiter](DefaultMaxClients, nil, budget.Period),
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Allow takes one token from clientKey's bucket.
func (l *MemoryLimiter) Allow(_ context.Context, clientKey string) (bool, error) {
	if !l.bucket(clientKey).AllowN(l.now(), 1) {
		l.logger.Warn().
			Str("client", clientKey).
			Str("limit", l.budget.String()).
			Msg("Rate limit exceeded - request refused")
		rateLimitChecksTotal.WithLabelValues("memory", "blocked").Inc()
		return false, nil
	}

	rateLimitChecksTotal.WithLabelValues("memory", "allowed").Inc()
	return true, nil
}

// bucket returns clientKey's bucket, creating a full one if needed.
func (l *MemoryLimiter) bucket(clientKey string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets.Get(clientKey); ok {
		return b
	}
	b := rate.NewLimiter(l.limit, l.budget.Requests)
	l.buckets.Add(clientKey, b)
	return b
}
