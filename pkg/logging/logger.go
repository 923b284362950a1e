// Package logging configures zerolog for whatdidyoudo and carries
// request-scoped loggers through contexts.
package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level: debug, info, warn or error. Anything
	// else means info.
	Level string

	// Pretty switches from JSON lines to zerolog's console writer.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer

	// Version, when set, is attached to every entry.
	Version string
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	lc := zerolog.New(out).With().Timestamp()
	if cfg.Version != "" {
		lc = lc.Str("version", cfg.Version)
	}
	log.Logger = lc.Logger()

	return log.Logger
}

// ParseLevel maps a configured level name to a zerolog level.
func ParseLevel(name string) zerolog.Level {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = "warn"
	}

	switch level, err := zerolog.ParseLevel(name); {
	case err != nil, level == zerolog.NoLevel:
		return zerolog.InfoLevel
	case level < zerolog.DebugLevel, level > zerolog.ErrorLevel:
		return zerolog.InfoLevel
	default:
		return level
	}
}

// NewLogger creates a child of the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

type ctxKey struct{}

// WithRequestID returns a copy of ctx carrying a logger derived from logger
// that tags every entry with requestID. A disabled logger is stored as well
// and keeps the request silent.
func WithRequestID(ctx context.Context, logger zerolog.Logger, requestID string) context.Context {
	l := logger.With().Str("request_id", requestID).Logger()
	return context.WithValue(ctx, ctxKey{}, &l)
}

// FromContext returns the logger stored in ctx by WithRequestID, or the
// global logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zerolog.Logger); ok {
		return l
	}
	return &log.Logger
}

// Levels in use:
//
//	debug  cache hits, stored entries, pagination progress
//	info   finished aggregations and batches, HTTP requests, server lifecycle
//	warn   skipped diffs, truncated pagination, rate limit refusals, cache
//	       backend errors
//	error  users without a result, unreachable Redis or OSM API
//
// Common fields: component, user, window, changeset, endpoint, error_class,
// client, request_id.
