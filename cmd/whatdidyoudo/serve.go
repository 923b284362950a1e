package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/Sternrassler/whatdidyoudo/pkg/config"
	"github.com/Sternrassler/whatdidyoudo/pkg/logging"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 15 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")

	return cmd
}

// setupLogging configures the global logger from cfg.
func setupLogging(cfg *config.Config) {
	logging.Setup(logging.Config{
		Level:   cfg.Logging.Level,
		Pretty:  cfg.Logging.Pretty,
		Output:  os.Stderr,
		Version: version,
	})
}

func runServe(ctx context.Context, cfg *config.Config) error {
	setupLogging(cfg)
	logger := logging.NewLogger("server")

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.ping(ctx); err != nil {
		return fmt.Errorf("connect to Redis at %s: %w", cfg.Redis.Addr, err)
	}
	if a.redis != nil {
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
	}

	proxies, err := cfg.Server.TrustedProxyPrefixes()
	if err != nil {
		return err
	}

	go a.pruneCache(ctx)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      newServer(a.runner, a.ping, proxies, logger).routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.Server.Addr).
			Str("user_agent", cfg.OSM.UserAgent).
			Str("cache", cfg.Cache.Backend).
			Str("ratelimit", cfg.RateLimit.Backend).
			Msg("Starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
