package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/whatdidyoudo/pkg/batch"
	"github.com/Sternrassler/whatdidyoudo/pkg/changeset"
	"github.com/Sternrassler/whatdidyoudo/pkg/logging"
	"github.com/Sternrassler/whatdidyoudo/pkg/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "whatdidyoudo_http_requests_total",
	Help: "Total inbound HTTP requests by route and status",
}, []string{"route", "status"})

// readyTimeout bounds the readiness check.
const readyTimeout = 2 * time.Second

// batchRunner runs a batch aggregation.
type batchRunner interface {
	AggregateAll(ctx context.Context, clientKey string, users []string, w changeset.Window) *batch.Result
}

// pinger checks a backend connection.
type pinger func(ctx context.Context) error

// server serves the HTTP API.
type server struct {
	runner  batchRunner
	ping    pinger
	proxies []netip.Prefix
	logger  zerolog.Logger
	now     func() time.Time
}

// newServer creates the HTTP API. proxies are the reverse proxies whose
// X-Forwarded-For header is honoured.
func newServer(runner batchRunner, ping pinger, proxies []netip.Prefix, logger zerolog.Logger) *server {
	if ping == nil {
		ping = func(context.Context) error { return nil }
	}
	return &server{
		runner:  runner,
		ping:    ping,
		proxies: proxies,
		logger:  logger,
		now:     time.Now,
	}
}

// changesResponse is the JSON body of a changes query.
type changesResponse struct {
	*batch.Result
	Users         []string `json:"users"`
	ChangesetURLs []string `json:"changeset_urls"`
}

// changesetURLPrefix is the OSM website page of a changeset.
const changesetURLPrefix = "https://www.openstreetmap.org/changeset/"

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/changes", s.handleChanges)
	mux.HandleFunc("GET /{user}", s.handleUser)
	mux.HandleFunc("GET /{user}/{$}", s.handleUser)
	mux.HandleFunc("GET /{user}/{date}", s.handleUser)

	return s.middleware(mux)
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := s.ping(ctx); err != nil {
		logging.FromContext(r.Context()).Warn().Err(err).Msg("Readiness check failed")
		http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// handleChanges serves /api/changes?user=a,b&start=...&end=...
func (s *server) handleChanges(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.serveChanges(w, r, q.Get("user"), q.Get("start"), q.Get("end"))
}

// handleUser serves /{user} (today) and /{user}/{date}.
func (s *server) handleUser(w http.ResponseWriter, r *http.Request) {
	s.serveChanges(w, r, r.PathValue("user"), r.PathValue("date"), "")
}

func (s *server) serveChanges(w http.ResponseWriter, r *http.Request, rawUsers, start, end string) {
	window, err := changeset.NormalizeWindow(start, end, s.now())
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	users := batch.ParseUsers(rawUsers)
	result := s.runner.AggregateAll(r.Context(), s.clientKey(r), users, window)

	resp := changesResponse{
		Result:        result,
		Users:         users,
		ChangesetURLs: make([]string, 0, len(result.ChangesetIDs)),
	}
	for _, id := range result.ChangesetIDs {
		resp.ChangesetURLs = append(resp.ChangesetURLs, changesetURLPrefix+id)
	}

	writeJSON(w, r, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Warn().Err(err).Msg("Failed to write response")
	}
}

// clientKey identifies the caller for rate limiting. It is the peer
// address, unless the peer is a trusted proxy: then X-Forwarded-For is
// walked from the right and the first hop outside the trusted ranges wins.
func (s *server) clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	peer, err := netip.ParseAddr(host)
	if err != nil || !s.trusted(peer) {
		return host
	}

	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	key := peer.Unmap().String()
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		addr, err := netip.ParseAddr(hop)
		if err != nil {
			break
		}
		key = addr.Unmap().String()
		if !s.trusted(addr) {
			break
		}
	}
	return key
}

// trusted reports whether addr belongs to a configured proxy range.
func (s *server) trusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range s.proxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// statusRecorder captures the response status.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// middleware tags each request with an ID and logs it once served.
func (s *server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)

		r = r.WithContext(logging.WithRequestID(r.Context(), s.logger, requestID))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()

		logging.FromContext(r.Context()).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Str("client", s.clientKey(r)).
			Dur("duration", time.Since(startTime)).
			Msg("HTTP request")
	})
}
