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
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/events"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/indexer/handler"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/middleware"
)

const (
	notifyBatchSize     = 50
	notifyFlushInterval = 2 * time.Second
	// rebuildWriteMargin keeps the connection open long enough to write the
	// rebuild response after Rebuild.Timeout fires.
	rebuildWriteMargin = 30 * time.Second
)

func main() {
	configPath := flag.String("config", "configs/indexer.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format, "index-service")
	slog.Info("starting index service",
		"port", cfg.Server.Port,
		"backend", cfg.Index.Backend,
		"ledger", cfg.Index.Ledger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := backend.Open(ctx, cfg, backend.RoleIndexer)
	if err != nil {
		slog.Error("failed to open backends", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		if err := m.Serve(ctx, cfg.Metrics.Port, "index-service"); err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
	}

	pipeline := indexer.NewPipeline(b.Postings, b.Ledger, b.Documents, cfg.Index, m)
	coordinator := indexer.NewCoordinator(pipeline, cfg.Rebuild)

	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer producer.Close()
		notifier := events.NewBatchNotifier(producer, notifyBatchSize, notifyFlushInterval)
		notifier.Start(ctx)
		defer notifier.Close()
		pipeline.SetNotifier(notifier)

		kafkaConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.BookIngested, consumer.HandleMessage(pipeline))
		indexConsumer := consumer.New(kafkaConsumer)
		go func() {
			if err := indexConsumer.Start(ctx); err != nil {
				slog.Error("consumer error", "error", err)
			}
		}()
		slog.Info("consuming ingest events",
			"topic", cfg.Kafka.Topics.BookIngested,
			"group", cfg.Kafka.ConsumerGroup,
			"notify_topic", cfg.Kafka.Topics.IndexComplete,
		)
	} else {
		slog.Info("kafka brokers not configured, event-driven indexing disabled")
	}

	checker := health.NewChecker()
	b.RegisterHealth(checker)

	h := handler.New(pipeline, coordinator, handler.ServiceInfo{
		Service:     "index-service",
		Mode:        b.Mode(),
		ControlFile: b.ControlFile(),
		Probe:       b.Database,
	})

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	isRebuild := func(r *http.Request) bool {
		return r.Method == http.MethodPost && r.URL.Path == "/index/rebuild"
	}

	var chain http.Handler = mux
	chain = middleware.Unless(isRebuild, middleware.Timeout(cfg.Server.WriteTimeout))(chain)
	chain = middleware.Metrics(m, mux)(chain)
	chain = middleware.RequestID(chain)

	writeTimeout := cfg.Server.WriteTimeout
	if rt := cfg.Rebuild.Timeout + rebuildWriteMargin; cfg.Rebuild.Timeout > 0 && rt > writeTimeout {
		writeTimeout = rt
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: writeTimeout,
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

	slog.Info("index service listening", "addr", server.Addr, "mode", b.Mode())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("index service stopped")
}
