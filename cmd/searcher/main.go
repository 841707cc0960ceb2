package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/backend"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/searcher.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format, "search-service")
	slog.Info("starting search service", "port", cfg.Server.Port, "backend", cfg.Index.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := backend.Open(ctx, cfg, backend.RoleSearcher)
	if err != nil {
		slog.Error("failed to open backends", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		if err := m.Serve(ctx, cfg.Metrics.Port, "search-service"); err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
	}

	var queryCache *cache.QueryCache
	if cfg.Search.CacheEnabled && b.Redis != nil {
		queryCache = cache.New(b.Redis, cfg.Redis.CacheTTL)
		slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)

		if len(cfg.Kafka.Brokers) > 0 {
			invalidations := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete, cache.InvalidateOnIndexChange(queryCache))
			go func() {
				if err := invalidations.Start(ctx); err != nil {
					slog.Error("cache invalidation consumer error", "error", err)
				}
			}()
			slog.Info("invalidating cache on index events", "topic", cfg.Kafka.Topics.IndexComplete)
		} else {
			slog.Warn("kafka brokers not configured, cached results expire only by ttl")
		}
	}

	checker := health.NewChecker()
	b.RegisterHealth(checker)

	engine := executor.New(b.Postings, b.Documents, m, resilience.CircuitBreakerConfig{})
	h := handler.New(engine, queryCache, handler.ServiceInfo{
		Service: "search-service",
		Mode:    b.Mode(),
		Probe:   b.Database,
	}, m)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.Server.RateLimitRPS > 0 {
		chain = middleware.RateLimit(middleware.NewClientLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, 10*time.Minute))(chain)
	}
	chain = middleware.Metrics(m, mux)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
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

	slog.Info("search service listening", "addr", server.Addr, "mode", b.Mode())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
