package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/whatdidyoudo/pkg/batch"
	"github.com/Sternrassler/whatdidyoudo/pkg/changeset"
	"github.com/Sternrassler/whatdidyoudo/pkg/ratelimit"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	clientKey string
	users     []string
	window    changeset.Window
}

// stubRunner records batch calls and returns one changeset per user.
type stubRunner struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (s *stubRunner) AggregateAll(_ context.Context, clientKey string, users []string, w changeset.Window) *batch.Result {
	s.mu.Lock()
	s.calls = append(s.calls, recordedCall{clientKey: clientKey, users: users, window: w})
	s.mu.Unlock()

	result := &batch.Result{
		Window:       w,
		Changes:      map[string]changeset.Editors{},
		ChangesetIDs: []string{},
		Errors:       []string{},
		Warnings:     []string{},
	}
	for i, user := range users {
		editors := changeset.Editors{}
		editors.Get("JOSM").Changesets = 1
		result.Changes[user] = editors
		result.ChangesetIDs = append(result.ChangesetIDs, string(rune('1'+i)))
	}
	return result
}

func (s *stubRunner) lastCall(t *testing.T) recordedCall {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.calls)
	return s.calls[len(s.calls)-1]
}

var fixedNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func newTestServer(runner batchRunner, ping pinger) http.Handler {
	s := newServer(runner, ping, nil, zerolog.Nop())
	s.now = func() time.Time { return fixedNow }
	return s.routes()
}

func get(t *testing.T, h http.Handler, target string, header http.Header) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "192.0.2.10:54321"
	for k, v := range header {
		req.Header[k] = v
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Result()
}

func TestHealthEndpoint(t *testing.T) {
	resp := get(t, newTestServer(&stubRunner{}, nil), "/health", nil)
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	resp := get(t, newTestServer(&stubRunner{}, nil), "/health", http.Header{"X-Request-Id": {"abc-123"}})
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))
}

func TestReadyEndpoint(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	h := newTestServer(&stubRunner{}, func(ctx context.Context) error { return client.Ping(ctx).Err() })

	t.Run("ready", func(t *testing.T) {
		resp := get(t, h, "/ready", nil)
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "OK", string(body))
	})

	t.Run("not_ready_redis_down", func(t *testing.T) {
		mr.Close()
		resp := get(t, h, "/ready", nil)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestReadyWithoutRedis(t *testing.T) {
	resp := get(t, newTestServer(&stubRunner{}, nil), "/ready", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(&stubRunner{}, nil)
	get(t, h, "/health", nil)

	resp := get(t, h, "/metrics", nil)
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "# TYPE")
	assert.Contains(t, string(body), `whatdidyoudo_http_requests_total{route="GET /health",status="200"}`)
}

func TestChangesEndpoint(t *testing.T) {
	runner := &stubRunner{}
	h := newTestServer(runner, nil)

	resp := get(t, h, "/api/changes?user=rompe,+alice&start=2025-10-31T00:00&end=2026-01-02T23:59", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body struct {
		Users         []string                                `json:"users"`
		Changes       map[string]map[string]changeset.Changes `json:"changes"`
		ChangesetIDs  []string                                `json:"changeset_ids"`
		ChangesetURLs []string                                `json:"changeset_urls"`
		Errors        []string                                `json:"errors"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Equal(t, []string{"rompe", "alice"}, body.Users)
	assert.Equal(t, changeset.Changes{Changesets: 1}, body.Changes["alice"]["JOSM"])
	assert.Equal(t, []string{"1", "2"}, body.ChangesetIDs)
	assert.Equal(t, []string{
		"https://www.openstreetmap.org/changeset/1",
		"https://www.openstreetmap.org/changeset/2",
	}, body.ChangesetURLs)
	assert.Empty(t, body.Errors)

	call := runner.lastCall(t)
	assert.Equal(t, "192.0.2.10", call.clientKey)
	assert.Equal(t, time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC), call.window.Start)
	assert.Equal(t, time.Date(2026, 1, 2, 23, 59, 59, 0, time.UTC), call.window.End)
}

func TestChangesEndpoint_InvalidWindow(t *testing.T) {
	runner := &stubRunner{}
	resp := get(t, newTestServer(runner, nil), "/api/changes?user=rompe&start=2026-01-02&end=2026-01-01", nil)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "invalid time window")
	assert.Empty(t, runner.calls)
}

func TestChangesEndpoint_NoUsers(t *testing.T) {
	runner := &stubRunner{}
	resp := get(t, newTestServer(runner, nil), "/api/changes?user=+,+", nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, runner.lastCall(t).users)
}

func TestUserRoutes(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		wantUsers []string
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "today",
			target:    "/rompe",
			wantUsers: []string{"rompe"},
			wantStart: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 3, 14, 23, 59, 59, 0, time.UTC),
		},
		{
			name:      "trailing slash",
			target:    "/rompe/",
			wantUsers: []string{"rompe"},
			wantStart: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 3, 14, 23, 59, 59, 0, time.UTC),
		},
		{
			name:      "date",
			target:    "/rompe,alice/2026-01-02",
			wantUsers: []string{"rompe", "alice"},
			wantStart: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 1, 2, 23, 59, 59, 0, time.UTC),
		},
		{
			name:      "escaped space",
			target:    "/Max%20Mustermann/2026-01-02",
			wantUsers: []string{"Max Mustermann"},
			wantStart: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 1, 2, 23, 59, 59, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &stubRunner{}
			resp := get(t, newTestServer(runner, nil), tt.target, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			call := runner.lastCall(t)
			assert.Equal(t, tt.wantUsers, call.users)
			assert.Equal(t, tt.wantStart, call.window.Start)
			assert.Equal(t, tt.wantEnd, call.window.End)
		})
	}
}

func TestUserRoute_InvalidDate(t *testing.T) {
	resp := get(t, newTestServer(&stubRunner{}, nil), "/rompe/yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClientKey(t *testing.T) {
	proxies := []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("2001:db8:ffff::/48"),
	}

	tests := []struct {
		name       string
		remoteAddr string
		forwarded  []string
		want       string
	}{
		{"remote host", "192.0.2.10:54321", nil, "192.0.2.10"},
		{"ipv6 remote host", "[2001:db8::1]:443", nil, "2001:db8::1"},
		{"no port", "unix-socket", nil, "unix-socket"},
		{"untrusted peer ignores header", "198.51.100.7:4000", []string{"10.0.0.5"}, "198.51.100.7"},
		{"trusted peer uses client hop", "10.0.0.1:80", []string{"203.0.113.7"}, "203.0.113.7"},
		{"spoofed left hops ignored", "10.0.0.1:80", []string{"1.2.3.4, 203.0.113.7"}, "203.0.113.7"},
		{"trusted hops skipped", "10.0.0.1:80", []string{"203.0.113.7, 10.9.9.9"}, "203.0.113.7"},
		{"multiple header lines", "10.0.0.1:80", []string{"1.2.3.4", "203.0.113.7, 10.0.0.2"}, "203.0.113.7"},
		{"blank hops skipped", "10.0.0.1:80", []string{"203.0.113.7, , "}, "203.0.113.7"},
		{"only trusted hops", "10.0.0.1:80", []string{"10.0.0.3, 10.0.0.2"}, "10.0.0.3"},
		{"garbage hop stops walk", "10.0.0.1:80", []string{"203.0.113.7, bogus, 10.0.0.2"}, "10.0.0.2"},
		{"trusted peer without header", "10.0.0.1:80", nil, "10.0.0.1"},
		{"ipv6 proxy", "[2001:db8:ffff::1]:443", []string{"2001:db8:1::7"}, "2001:db8:1::7"},
		{"mapped ipv4 proxy", "[::ffff:10.0.0.1]:80", []string{"203.0.113.7"}, "203.0.113.7"},
	}

	s := newServer(&stubRunner{}, nil, proxies, zerolog.Nop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for _, v := range tt.forwarded {
				req.Header.Add("X-Forwarded-For", v)
			}
			assert.Equal(t, tt.want, s.clientKey(req))
		})
	}
}

// countingAggregator counts aggregations and returns empty results.
type countingAggregator struct {
	mu    sync.Mutex
	users []string
}

func (c *countingAggregator) Aggregate(_ context.Context, user string, w changeset.Window) (*changeset.Result, error) {
	c.mu.Lock()
	c.users = append(c.users, user)
	c.mu.Unlock()
	return &changeset.Result{User: user, Window: w, Editors: changeset.Editors{}, ChangesetIDs: []string{}}, nil
}

func TestChangesEndpoint_ForwardedForDoesNotResetBudget(t *testing.T) {
	limiter, err := ratelimit.NewMemoryLimiter(ratelimit.Rate{Requests: 2, Period: time.Hour}, zerolog.Nop())
	require.NoError(t, err)

	aggregator := &countingAggregator{}
	runner := batch.NewRunner(aggregator, limiter, ratelimit.Rate{Requests: 2, Period: time.Hour}, zerolog.Nop())
	h := newServer(runner, nil, []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}, zerolog.Nop()).routes()

	refused := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/changes?user=rompe&start=2026-01-02", nil)
		req.RemoteAddr = "198.51.100.7:4000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))

		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Errors []string `json:"errors"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		refused += len(body.Errors)
	}

	assert.Len(t, aggregator.users, 2)
	assert.Equal(t, 18, refused)
}

func TestUnknownRoute(t *testing.T) {
	resp := get(t, newTestServer(&stubRunner{}, nil), "/a/b/c", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json"))
}
