// Package config loads the service configuration from defaults, an optional
// YAML file and WHATDIDYOUDO_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Backend names accepted by cache.backend and ratelimit.backend.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	// BackendSQLite is a cache backend only.
	BackendSQLite = "sqlite"
)

// Config is the top-level configuration.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	OSM       OSMConfig       `mapstructure:"osm"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// OSMConfig holds the API client and aggregation settings.
type OSMConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	UserAgent   string        `mapstructure:"user_agent"`
	Timeout     time.Duration `mapstructure:"timeout"`
	PageSize    int           `mapstructure:"page_size"`
	MaxDepth    int           `mapstructure:"max_depth"`
	DiffWorkers int           `mapstructure:"diff_workers"`
}

// CacheConfig selects the fetch cache. MaxEntries bounds the memory
// backend (0 means the store's default size); Path is the database file of the sqlite
// backend; Compress LZ4-compresses cached bodies.
type CacheConfig struct {
	Backend    string        `mapstructure:"backend"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
	Path       string        `mapstructure:"path"`
	Compress   bool          `mapstructure:"compress"`
}

// RedisConfig is shared by the Redis cache and limiter backends.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
}

// RateLimitConfig is the per-client aggregation budget.
type RateLimitConfig struct {
	Backend  string        `mapstructure:"backend"`
	Requests int           `mapstructure:"requests"`
	Period   time.Duration `mapstructure:"period"`
}

// ServerConfig holds HTTP server settings. TrustedProxies lists the
// addresses or CIDR ranges of reverse proxies whose X-Forwarded-For header
// identifies the client; requests from any other peer are keyed by the
// peer address.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	TrustedProxies []string      `mapstructure:"trusted_proxies"`
}

// TrustedProxyPrefixes parses TrustedProxies. A bare address is a
// single-host prefix.
func (c ServerConfig) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, entry := range c.TrustedProxies {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidTrustedProxy, entry)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}

		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTrustedProxy, entry)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Sentinel errors for configuration validation.
var (
	// ErrMissingUserAgent indicates osm.user_agent is empty.
	ErrMissingUserAgent = errors.New("osm.user_agent is required")
	// ErrMissingBaseURL indicates osm.base_url is empty.
	ErrMissingBaseURL = errors.New("osm.base_url is required")
	// ErrInvalidTimeout indicates osm.timeout is not positive.
	ErrInvalidTimeout = errors.New("osm.timeout must be positive")
	// ErrInvalidPageSize indicates osm.page_size is not positive.
	ErrInvalidPageSize = errors.New("osm.page_size must be positive")
	// ErrInvalidMaxDepth indicates osm.max_depth is not positive.
	ErrInvalidMaxDepth = errors.New("osm.max_depth must be positive")
	// ErrInvalidDiffWorkers indicates osm.diff_workers is not positive.
	ErrInvalidDiffWorkers = errors.New("osm.diff_workers must be positive")
	// ErrInvalidCacheBackend indicates an unknown cache.backend.
	ErrInvalidCacheBackend = errors.New("cache.backend must be memory, redis or sqlite")
	// ErrMissingCachePath indicates the sqlite backend without cache.path.
	ErrMissingCachePath = errors.New("cache.path is required for the sqlite backend")
	// ErrInvalidCacheTTL indicates cache.ttl is not positive.
	ErrInvalidCacheTTL = errors.New("cache.ttl must be positive")
	// ErrInvalidRateLimitBackend indicates an unknown ratelimit.backend.
	ErrInvalidRateLimitBackend = errors.New("ratelimit.backend must be memory or redis")
	// ErrInvalidRateLimit indicates a non-positive rate limit budget.
	ErrInvalidRateLimit = errors.New("ratelimit.requests and ratelimit.period must be positive")
	// ErrMissingRedisAddr indicates a Redis backend without redis.addr.
	ErrMissingRedisAddr = errors.New("redis.addr is required for the redis backend")
	// ErrInvalidTrustedProxy indicates a server.trusted_proxies entry that is
	// neither an IP address nor a CIDR range.
	ErrInvalidTrustedProxy = errors.New("server.trusted_proxies entries must be IP addresses or CIDR ranges")
	// ErrInvalidCacheMaxEntries indicates a negative cache.max_entries.
	ErrInvalidCacheMaxEntries = errors.New("cache.max_entries must not be negative")
)

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	if err := c.validateOSM(); err != nil {
		return err
	}

	switch c.Cache.Backend {
	case BackendMemory, BackendRedis:
	case BackendSQLite:
		if c.Cache.Path == "" {
			return ErrMissingCachePath
		}
	default:
		return ErrInvalidCacheBackend
	}
	if c.Cache.TTL <= 0 {
		return ErrInvalidCacheTTL
	}
	if c.Cache.MaxEntries < 0 {
		return ErrInvalidCacheMaxEntries
	}

	switch c.RateLimit.Backend {
	case BackendMemory, BackendRedis:
	default:
		return ErrInvalidRateLimitBackend
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Period <= 0 {
		return ErrInvalidRateLimit
	}

	if c.UsesRedis() && c.Redis.Addr == "" {
		return ErrMissingRedisAddr
	}

	if _, err := c.Server.TrustedProxyPrefixes(); err != nil {
		return err
	}

	return nil
}

func (c *Config) validateOSM() error {
	switch {
	case c.OSM.BaseURL == "":
		return ErrMissingBaseURL
	case c.OSM.UserAgent == "":
		return ErrMissingUserAgent
	case c.OSM.Timeout <= 0:
		return ErrInvalidTimeout
	case c.OSM.PageSize <= 0:
		return ErrInvalidPageSize
	case c.OSM.MaxDepth <= 0:
		return ErrInvalidMaxDepth
	case c.OSM.DiffWorkers <= 0:
		return ErrInvalidDiffWorkers
	}
	return nil
}

// UsesRedis reports whether any backend needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.Cache.Backend == BackendRedis || c.RateLimit.Backend == BackendRedis
}
