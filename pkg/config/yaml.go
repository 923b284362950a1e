package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

const redacted = "******"

// effective mirrors Config for rendering; durations are printed in Go
// duration syntax so the output can be loaded again.
type effective struct {
	OSM struct {
		BaseURL     string `yaml:"base_url"`
		UserAgent   string `yaml:"user_agent"`
		Timeout     string `yaml:"timeout"`
		PageSize    int    `yaml:"page_size"`
		MaxDepth    int    `yaml:"max_depth"`
		DiffWorkers int    `yaml:"diff_workers"`
	} `yaml:"osm"`
	Cache struct {
		Backend    string `yaml:"backend"`
		TTL        string `yaml:"ttl"`
		MaxEntries int    `yaml:"max_entries"`
		Path       string `yaml:"path"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"cache"`
	Redis struct {
		Addr     string `yaml:"addr"`
		DB       int    `yaml:"db"`
		Password string `yaml:"password,omitempty"`
	} `yaml:"redis"`
	RateLimit struct {
		Backend  string `yaml:"backend"`
		Requests int    `yaml:"requests"`
		Period   string `yaml:"period"`
	} `yaml:"ratelimit"`
	Server struct {
		Addr           string   `yaml:"addr"`
		ReadTimeout    string   `yaml:"read_timeout"`
		WriteTimeout   string   `yaml:"write_timeout"`
		TrustedProxies []string `yaml:"trusted_proxies"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`
}

// YAML renders the configuration as a YAML document with the Redis password
// redacted.
func (c *Config) YAML() ([]byte, error) {
	var e effective

	e.OSM.BaseURL = c.OSM.BaseURL
	e.OSM.UserAgent = c.OSM.UserAgent
	e.OSM.Timeout = c.OSM.Timeout.String()
	e.OSM.PageSize = c.OSM.PageSize
	e.OSM.MaxDepth = c.OSM.MaxDepth
	e.OSM.DiffWorkers = c.OSM.DiffWorkers

	e.Cache.Backend = c.Cache.Backend
	e.Cache.TTL = c.Cache.TTL.String()
	e.Cache.MaxEntries = c.Cache.MaxEntries
	e.Cache.Path = c.Cache.Path
	e.Cache.Compress = c.Cache.Compress

	e.Redis.Addr = c.Redis.Addr
	e.Redis.DB = c.Redis.DB
	if c.Redis.Password != "" {
		e.Redis.Password = redacted
	}

	e.RateLimit.Backend = c.RateLimit.Backend
	e.RateLimit.Requests = c.RateLimit.Requests
	e.RateLimit.Period = c.RateLimit.Period.String()

	e.Server.Addr = c.Server.Addr
	e.Server.ReadTimeout = c.Server.ReadTimeout.String()
	e.Server.WriteTimeout = c.Server.WriteTimeout.String()
	e.Server.TrustedProxies = c.Server.TrustedProxies

	e.Logging.Level = c.Logging.Level
	e.Logging.Pretty = c.Logging.Pretty

	out, err := yaml.Marshal(&e)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}
