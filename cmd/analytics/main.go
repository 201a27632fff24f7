// Command analytics runs the standalone query-analytics service.
//
// It consumes query events published by the search service from Kafka,
// aggregates them in memory (volume, zero-score queries, latency
// percentiles, cache hit rate, top queries, per-scheme counts) and serves
// GET /api/v1/analytics. With analytics.snapshotInterval set, aggregates are
// snapshotted to PostgreSQL or SQLite and restored on the next start.
//
// Usage:
//
//	analytics [--config configs/development.yaml] [--port 8081]
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/postgres"
)

func main() {
	configPath := pflag.StringP("config", "c", "configs/development.yaml", "path to config file")
	port := pflag.IntP("port", "p", 8081, "HTTP port")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Server.Port = *port
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("analytics service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting analytics service", "port", cfg.Server.Port, "topic", cfg.Kafka.Topics.QueryEvents)
	m := metrics.New(prometheus.DefaultRegisterer)
	agg := analytics.NewAggregator()
	checker := health.NewChecker(5 * time.Second)

	var snapshotsDone <-chan struct{}
	if cfg.Analytics.SnapshotInterval > 0 {
		db, dialect, err := openSnapshotDB(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		store, err := aggregator.NewStore(db, dialect)
		if err != nil {
			return err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		latest, err := store.LatestSnapshot(ctx)
		if err != nil {
			return err
		}
		if latest != nil {
			agg.Restore(*latest)
			slog.Info("analytics restored from snapshot", "total_queries", latest.TotalQueries)
		}
		snapshotsDone = store.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
		checker.Register("snapshot_store", health.PingCheck(db.PingContext, health.StatusDegraded))
	}

	handle := analytics.HandleEvent(agg)
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.QueryEvents,
		func(ctx context.Context, key, value []byte) error {
			m.AnalyticsTotal.WithLabelValues("consumed").Inc()
			return handle(ctx, key, value)
		},
	)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Start(ctx); err != nil {
			slog.Error("analytics consumer error", "error", err)
		}
	}()
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		select {
		case <-consumerDone:
			return health.ComponentHealth{Status: health.StatusDown, Message: "consumer stopped"}
		default:
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("lag %d", consumer.Lag())}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(agg).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", m.Handler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
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

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	<-consumerDone
	if snapshotsDone != nil {
		<-snapshotsDone
	}
	return nil
}

func openSnapshotDB(ctx context.Context, cfg *config.Config) (*sql.DB, aggregator.Dialect, error) {
	switch cfg.Analytics.Store {
	case config.SourceSQLite:
		db, err := sql.Open("sqlite3", "file:"+cfg.Analytics.StorePath+"?_busy_timeout=5000")
		if err != nil {
			return nil, "", fmt.Errorf("opening snapshot database: %w", err)
		}
		return db, aggregator.SQLite, nil
	default:
		client, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, "", err
		}
		return client.DB, aggregator.Postgres, nil
	}
}
