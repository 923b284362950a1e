package ratelimit

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for rate limiting.
var (
	rateLimitChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "osm_rate_limit_checks_total",
		Help: "Total rate limit checks by backend and outcome",
	}, []string{"backend", "outcome"})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "osm_rate_limit_blocks_total",
		Help: "Total number of aggregations refused by the rate limiter",
	})
)

// Limiter decides whether a client may start another aggregation.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow consumes one request from clientKey's budget and reports whether
	// it was within the limit.
	Allow(ctx context.Context, clientKey string) (bool, error)
}

// ExceededError is returned by Check when the client's budget is exhausted.
type ExceededError struct {
	ClientKey string
	Rate      Rate
}

// Error implements the error interface.
func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %s", e.Rate)
}

// Check consumes one request for clientKey and returns *ExceededError when the
// limit is hit. Backend failures are returned wrapped.
func Check(ctx context.Context, l Limiter, rate Rate, clientKey string) error {
	allowed, err := l.Allow(ctx, clientKey)
	if err != nil {
		return fmt.Errorf("rate limit check: %w", err)
	}
	if !allowed {
		rateLimitBlocksTotal.Inc()
		return &ExceededError{ClientKey: clientKey, Rate: rate}
	}
	return nil
}

// Unlimited is a Limiter that allows everything.
type Unlimited struct{}

// Allow always returns true.
func (Unlimited) Allow(context.Context, string) (bool, error) { return true, nil }
