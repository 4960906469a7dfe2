package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/api"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/middleware"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Start the HTTP API for indexing control, statistics and search.

The process stops on SIGINT or SIGTERM: running crawls are stopped and
recorded as failed with "stopped by shutdown" before the backends close.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().IntP("port", "p", 0, "Override the configured HTTP port")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	var cacheStats api.CacheStats
	if a.cache != nil {
		cacheStats = a.cache
	}
	h := api.NewHandler(a.coordinator, a.searcher, a.stats, cacheStats, cfg.Search)
	opts := api.RouterOptions{
		Metrics:        a.metrics,
		Analytics:      analytics.NewHandler(a.aggregator),
		Health:         a.health,
		RequestTimeout: cfg.Server.WriteTimeout,
	}
	if cfg.Search.RateLimitPerMinute > 0 {
		opts.Limiter = pkgmw.NewLimiter(ctx, time.Minute)
		opts.SearchRateLimit = cfg.Search.RateLimitPerMinute
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(h, opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search engine listening", "addr", server.Addr, "sites", len(cfg.Sites))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	slog.Info("search engine stopped")
	return nil
}
