// Package ratelimit gates outbound OSM work per client.
// Each aggregation attempt consumes one request from the client's budget; a
// client that exhausted its budget is refused until it refills. The Redis
// limiter counts fixed windows shared by all instances; the memory limiter
// keeps a token bucket per client.
package ratelimit

import (
	"fmt"
	"time"
)

// Redis keys for limiter state storage.
const (
	RedisKeyPrefix = "osm:rate_limit"
)

// Rate is a request budget per period.
type Rate struct {
	// Requests is the number of requests allowed per Period.
	Requests int `json:"requests"`

	// Period is the time over which Requests are allowed.
	Period time.Duration `json:"period"`
}

// DefaultRate is ten aggregations per minute per client.
var DefaultRate = Rate{Requests: 10, Period: time.Minute}

// Validate reports whether the rate can be enforced.
func (r Rate) Validate() error {
	if r.Requests <= 0 {
		return fmt.Errorf("rate limit requests must be positive (got %d)", r.Requests)
	}
	if r.Period < time.Second {
		return fmt.Errorf("rate limit period must be at least 1s (got %s)", r.Period)
	}
	return nil
}

// String renders the rate for user-facing messages, e.g. "10 per minute".
func (r Rate) String() string {
	switch r.Period {
	case time.Second:
		return fmt.Sprintf("%d per second", r.Requests)
	case time.Minute:
		return fmt.Sprintf("%d per minute", r.Requests)
	case time.Hour:
		return fmt.Sprintf("%d per hour", r.Requests)
	case 24 * time.Hour:
		return fmt.Sprintf("%d per day", r.Requests)
	default:
		return fmt.Sprintf("%d per %s", r.Requests, r.Period)
	}
}

// windowStart returns the start of the fixed window containing t.
func (r Rate) windowStart(t time.Time) time.Time {
	return t.Truncate(r.Period)
}

// TimeUntilReset returns the duration until the window containing now ends.
func (r Rate) TimeUntilReset(now time.Time) time.Duration {
	return r.windowStart(now).Add(r.Period).Sub(now)
}
