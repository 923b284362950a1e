// Package osm provides the OpenStreetMap API client: URL construction, XML
// decoding and the URL-keyed fetch cache.
package osm

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/whatdidyoudo/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for OSM client operations.
var (
	osmRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "osm_requests_total",
		Help: "Total OSM API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	osmRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "osm_request_duration_seconds",
		Help:    "OSM API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"endpoint"})

	osmErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "osm_errors_total",
		Help: "Total OSM fetch errors by class",
	}, []string{"class"})
)

const (
	// DefaultBaseURL is the public OSM API v0.6.
	DefaultBaseURL = "https://api.openstreetmap.org/api/0.6"

	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = 120 * time.Second

	// maxErrorBody is how much of an error response body is kept in HTTPError.
	maxErrorBody = 512
)

// Client fetches and decodes OSM API documents.
type Client struct {
	httpClient *http.Client
	cache      cache.Store
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the API, without trailing slash
	BaseURL string

	// User-Agent header (REQUIRED by the OSM API usage policy)
	// Format: "AppName/Version (contact)"
	UserAgent string

	// Timeout per request
	Timeout time.Duration

	// Cache stores raw response bodies keyed by URL; nil disables caching
	Cache cache.Store

	// CacheTTL is how long a cached response is kept
	CacheTTL time.Duration
}

// DefaultConfig returns the configuration for the public OSM API.
func DefaultConfig(store cache.Store, userAgent string) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		UserAgent: userAgent,
		Timeout:   DefaultTimeout,
		Cache:     store,
		CacheTTL:  cache.DefaultTTL,
	}
}

// New creates a new OSM client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.DefaultTTL
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cache:  cfg.Cache,
		config: cfg,
		logger: log.With().Str("component", "osm-client").Logger(),
	}, nil
}

// ChangesetsURL returns the query URL for user's changesets inside [start, end).
func (c *Client) ChangesetsURL(user string, start, end time.Time) string {
	q := url.Values{}
	q.Set("display_name", user)
	q.Set("time", start.UTC().Format(TimeFormat)+","+end.UTC().Format(TimeFormat))
	return c.config.BaseURL + "/changesets?" + q.Encode()
}

// DiffURL returns the download URL of a changeset's osmChange document.
func (c *Client) DiffURL(id string) string {
	return c.config.BaseURL + "/changeset/" + url.PathEscape(id) + "/download"
}

// Changesets lists user's changesets inside [start, end), newest first.
func (c *Client) Changesets(ctx context.Context, user string, start, end time.Time, cacheResult bool) (*ChangesetList, error) {
	var list ChangesetList
	if err := c.FetchXML(ctx, c.ChangesetsURL(user, start, end), cacheResult, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Diff downloads the osmChange document of changeset id.
func (c *Client) Diff(ctx context.Context, id string, cacheResult bool) (*Diff, error) {
	var diff Diff
	if err := c.FetchXML(ctx, c.DiffURL(id), cacheResult, &diff); err != nil {
		return nil, err
	}
	return &diff, nil
}

// FetchXML resolves rawURL and decodes the XML body into v.
//
// A cached body for rawURL is used without a network call, whatever the
// value of cacheResult. Otherwise the body is fetched and, if it decodes and
// cacheResult is true, stored under the URL. Errors are *HTTPError,
// *TransportError or *MalformedResponseError.
func (c *Client) FetchXML(ctx context.Context, rawURL string, cacheResult bool, v any) error {
	endpoint := endpointLabel(rawURL)
	key := cache.URLKey(rawURL)

	if body, ok := c.cached(ctx, key, endpoint); ok {
		if err := xml.Unmarshal(body, v); err != nil {
			osmErrorsTotal.WithLabelValues(string(ErrorClassMalformed)).Inc()
			return &MalformedResponseError{URL: rawURL, Err: err}
		}
		return nil
	}

	body, err := c.get(ctx, rawURL, endpoint)
	if err != nil {
		return err
	}

	if err := xml.Unmarshal(body, v); err != nil {
		osmErrorsTotal.WithLabelValues(string(ErrorClassMalformed)).Inc()
		c.logger.Warn().Err(err).Str("url", rawURL).Msg("Malformed OSM response")
		return &MalformedResponseError{URL: rawURL, Err: err}
	}

	if cacheResult && c.cache != nil {
		if err := c.cache.Set(ctx, key, body, c.config.CacheTTL); err != nil {
			c.logger.Warn().Err(err).Str("url", rawURL).Msg("Failed to cache response")
		} else {
			c.logger.Debug().
				Str("url", rawURL).
				Dur("ttl", c.config.CacheTTL).
				Msg("Cached response")
		}
	}

	return nil
}

// cached returns the cached body for key. Cache failures are logged and
// treated as misses.
func (c *Client) cached(ctx context.Context, key, endpoint string) ([]byte, bool) {
	if c.cache == nil {
		return nil, false
	}

	body, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("key", key).Msg("Cache get error")
		}
		return nil, false
	}

	osmRequestsTotal.WithLabelValues(endpoint, "cached").Inc()
	c.logger.Debug().Str("key", key).Msg("Cache hit")
	return body, true
}

// get performs one GET request and returns the body of a 2xx response.
func (c *Client) get(ctx context.Context, rawURL, endpoint string) ([]byte, error) {
	startTime := time.Now()
	defer func() {
		osmRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/xml")

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("url", rawURL).
		Msg("Executing OSM request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("url", rawURL).Msg("HTTP request failed")
		osmErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		osmRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, &TransportError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	osmRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		httpErr := &HTTPError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(snippet)),
		}
		osmErrorsTotal.WithLabelValues(string(httpErr.Class())).Inc()

		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(httpErr.Class())).
			Msg("OSM request error")
		return nil, httpErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		osmErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &TransportError{URL: rawURL, Err: fmt.Errorf("read response body: %w", err)}
	}

	return body, nil
}

// endpointLabel maps a URL to a low-cardinality metrics label.
func endpointLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "other"
	}
	switch {
	case strings.HasSuffix(u.Path, "/changesets"):
		return "changesets"
	case strings.HasSuffix(u.Path, "/download"):
		return "changeset_download"
	default:
		return "other"
	}
}
