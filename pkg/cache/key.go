package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// CacheKey identifies a cached OSM API response.
type CacheKey struct {
	// Host is the API host (e.g., "api.openstreetmap.org")
	Host string

	// Endpoint is the API path (e.g., "/api/0.6/changeset/42/download")
	Endpoint string

	// QueryParams are the query parameters (e.g., {"display_name": "rompe"})
	QueryParams url.Values
}

// String generates a deterministic cache key string.
// Format: osm:host/endpoint:query1=val1:query2=val2
//
// Example:
//
//	osm:api.openstreetmap.org/api/0.6/changesets:display_name=rompe:time=2025-01-01T00:00:00Z,2025-01-01T23:59:59Z
func (k CacheKey) String() string {
	parts := []string{"osm"}

	resource := strings.Trim(strings.ToLower(k.Host)+"/"+strings.Trim(k.Endpoint, "/"), "/")
	if resource != "" {
		parts = append(parts, resource)
	}

	// Sorted for determinism; the OSM API does not depend on parameter order.
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(k.QueryParams[key], ",")))
		}
	}

	return strings.Join(parts, ":")
}

// KeyFromURL builds the cache key for a parsed request URL.
func KeyFromURL(u *url.URL) CacheKey {
	return CacheKey{
		Host:        u.Host,
		Endpoint:    u.Path,
		QueryParams: u.Query(),
	}
}

// URLKey returns the cache key string for a raw URL. URLs that fail to parse
// are keyed by their raw text.
func URLKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "osm:raw:" + rawURL
	}
	return KeyFromURL(u).String()
}
