package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = "whatdidyoudo"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix.
const envPrefix = "WHATDIDYOUDO"

// Defaults.
const (
	DefaultBaseURL      = "https://api.openstreetmap.org/api/0.6"
	DefaultUserAgent    = "whatdidyoudo/dev (+https://github.com/Sternrassler/whatdidyoudo)"
	DefaultTimeout      = 120 * time.Second
	DefaultPageSize     = 100
	DefaultMaxDepth     = 50
	DefaultDiffWorkers  = 1
	DefaultCacheTTL     = 7 * 24 * time.Hour
	DefaultCachePath    = "whatdidyoudo-cache.db"
	DefaultCacheEntries = 10000
	DefaultRedisAddr    = "localhost:6379"
	DefaultRateRequests = 10
	DefaultRatePeriod   = time.Minute
	DefaultServerAddr   = ":8080"
	DefaultReadTimeout  = 10 * time.Second
	DefaultWriteTimeout = 10 * time.Minute
	DefaultLogLevel     = "info"
)

// Load loads configuration from file, env vars, and defaults.
// If path is non-empty, it is used as the explicit config file path.
// Otherwise, whatdidyoudo.yaml is searched in the working directory and
// /etc/whatdidyoudo. A missing config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/whatdidyoudo")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return decode(v)
}

// Default returns the built-in configuration, ignoring files and the
// environment.
func Default() *Config {
	v := viper.New()
	applyDefaults(v)

	cfg, err := decode(v)
	if err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return cfg
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Cache.Backend = strings.ToLower(strings.TrimSpace(cfg.Cache.Backend))
	cfg.RateLimit.Backend = strings.ToLower(strings.TrimSpace(cfg.RateLimit.Backend))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("osm.base_url", DefaultBaseURL)
	v.SetDefault("osm.user_agent", DefaultUserAgent)
	v.SetDefault("osm.timeout", DefaultTimeout)
	v.SetDefault("osm.page_size", DefaultPageSize)
	v.SetDefault("osm.max_depth", DefaultMaxDepth)
	v.SetDefault("osm.diff_workers", DefaultDiffWorkers)

	v.SetDefault("cache.backend", BackendMemory)
	v.SetDefault("cache.ttl", DefaultCacheTTL)
	v.SetDefault("cache.max_entries", DefaultCacheEntries)
	v.SetDefault("cache.path", DefaultCachePath)
	v.SetDefault("cache.compress", false)

	v.SetDefault("redis.addr", DefaultRedisAddr)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")

	v.SetDefault("ratelimit.backend", BackendMemory)
	v.SetDefault("ratelimit.requests", DefaultRateRequests)
	v.SetDefault("ratelimit.period", DefaultRatePeriod)

	v.SetDefault("server.addr", DefaultServerAddr)
	v.SetDefault("server.read_timeout", DefaultReadTimeout)
	v.SetDefault("server.write_timeout", DefaultWriteTimeout)
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.pretty", false)
}
