// Command searcher serves vector-space retrieval over HTTP.
//
// It loads the configured inverted index, digests it once, and answers
// GET/POST /api/v1/retrieve with cosine-ranked documents. Optional Redis
// caching, Kafka query analytics, rate limiting and a Prometheus metrics
// server are driven by the config file.
//
// Usage:
//
//	searcher [--config configs/development.yaml] [--port 8080]
package main

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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/retrieval/digest"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/resilience"
)

func main() {
	configPath := pflag.StringP("config", "c", "configs/development.yaml", "path to config file")
	port := pflag.IntP("port", "p", 0, "HTTP port (overrides config)")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("searcher failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"scheme", cfg.Retrieval.Scheme,
		"index_source", cfg.Index.Source,
		"shards", cfg.Retrieval.Shards,
	)
	m := metrics.New(prometheus.DefaultRegisterer)

	engine, err := indexer.Open(ctx, cfg)
	if err != nil {
		return err
	}
	d := engine.Digest
	m.ObserveDigest(d.CollectionSize(), d.TermCount(), cfg.Retrieval.Shards, engine.Took)

	var scorerOpts []ranker.Option
	if cfg.Retrieval.LegacyBinary {
		scorerOpts = append(scorerOpts, ranker.WithLegacyBinaryAccumulation())
	}
	scorer := ranker.New(d, scorerOpts...)
	exec := executor.New(scorer,
		executor.WithShards(cfg.Retrieval.Shards),
		executor.WithDefaultLimit(cfg.Retrieval.TopK),
		executor.WithMaxResults(cfg.Retrieval.MaxResults),
	)

	checker := health.NewChecker(5 * time.Second)
	checker.Register("digest", digestCheck(d))

	queryCache, redisClient := setupCache(ctx, cfg, scorer, m)
	if redisClient != nil {
		defer redisClient.Close()
		checker.Register("redis", health.PingCheck(redisClient.Ping, health.StatusDegraded))
	}

	aggregator := analytics.NewAggregator()
	tracker := analytics.Tracker(aggregator)
	var collector *analytics.Collector
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.QueryEvents)
		defer producer.Close()
		collector = analytics.NewCollector(producer,
			cfg.Analytics.BufferSize, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval,
			analytics.WithPublishHooks(
				func(n int) { m.AnalyticsTotal.WithLabelValues("published").Add(float64(n)) },
				func() { m.AnalyticsTotal.WithLabelValues("dropped").Inc() },
			),
		)
		// The collector outlives ctx so that requests still draining at
		// shutdown are published by Close.
		collector.Start(context.Background())
		tracker = analytics.Multi(aggregator, collector)
		slog.Info("query analytics publishing to kafka", "topic", cfg.Kafka.Topics.QueryEvents)
	}

	h := handler.New(exec, queryCache, tracker, m, handler.Options{
		Query: tokenizer.Options{
			Stem:      cfg.Query.Stem,
			StopWords: cfg.Query.StopWords,
		},
		Tracing: cfg.Tracing.Enabled,
	})

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(aggregator).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		go limiter.Run(ctx, time.Minute)
		chain = middleware.RateLimit(limiter, m)(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.RequestID(chain)

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, m.Handler())
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(shutdownCtx)
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("search service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	// Handlers have returned, so no Track call can race the final flush.
	if collector != nil {
		collector.Close()
		slog.Info("analytics collector closed",
			"published", collector.Published(),
			"dropped", collector.Dropped(),
		)
	}
	return nil
}

// setupCache connects to Redis when enabled. Without Redis, retrieval runs
// uncached.
func setupCache(ctx context.Context, cfg *config.Config, scorer *ranker.Scorer, m *metrics.Metrics) (*cache.QueryCache, *pkgredis.Client) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	client, err := pkgredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, ranking cache disabled", "error", err)
		return nil, nil
	}
	breaker := resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			m.CircuitState.WithLabelValues(name).Set(float64(to))
		},
	})
	m.CircuitState.WithLabelValues(breaker.Name()).Set(float64(resilience.StateClosed))

	variant := cacheVariant(scorer)
	slog.Info("ranking cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL, "variant", variant)
	return cache.New(client, cfg.Redis.CacheTTL, variant, breaker, m), client
}

// cacheVariant namespaces cached rankings by scoring mode and index content,
// so a restart against a different index never serves its predecessor's
// entries.
func cacheVariant(scorer *ranker.Scorer) string {
	variant := string(scorer.Digest().Scheme())
	if scorer.LegacyBinary() {
		variant += "+legacy"
	}
	return variant + ":" + scorer.Digest().Fingerprint()
}

func digestCheck(d *digest.Digest) health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		if d.CollectionSize() == 0 {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "empty collection"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents, %d terms, scheme %s", d.CollectionSize(), d.TermCount(), d.Scheme()),
		}
	}
}
