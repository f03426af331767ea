// Package main is the entry point for the rule evaluation server.
//
// The bootstrap sequence is:
//  1. Load configuration from the environment (and CONFIG_FILE).
//  2. Connect to PostgreSQL, optionally applying the embedded migrations.
//  3. Build the snapshot cache (memory, Redis or none) and the engine.
//  4. Serve HTTP until SIGINT/SIGTERM, then shut down gracefully.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/liamcoop/ruleeval/condition"
	"github.com/liamcoop/ruleeval/internal/config"
	"github.com/liamcoop/ruleeval/internal/logger"
	"github.com/liamcoop/ruleeval/internal/metrics"
	"github.com/liamcoop/ruleeval/internal/tracing"
	"github.com/liamcoop/ruleeval/migrations"
	"github.com/liamcoop/ruleeval/rules"
)

const (
	shutdownTimeout       = 30 * time.Second
	httpReadHeaderTimeout = 5 * time.Second
	httpReadTimeout       = 15 * time.Second
	httpWriteTimeout      = 15 * time.Second
	httpIdleTimeout       = 60 * time.Second
	dbStatsInterval       = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		logger.Fatal("Server failed", "error", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, _ := logger.ParseLevel(cfg.LogLevel)
	logger.SetLevel(level)

	shutdownTracer, err := tracing.Init(context.Background())
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			logger.Error("Tracer shutdown error", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		logger.Info("Applying database migrations")
		if err := migrations.Up(cfg.DatabaseURL); err != nil {
			return err
		}
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	m := metrics.New()

	cache, closeCache, err := newSnapshotCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	evaluator, err := condition.NewEvaluator(
		condition.WithCostLimit(cfg.RuleCostLimit),
		condition.WithTimeout(cfg.RuleTimeout),
	)
	if err != nil {
		return fmt.Errorf("create evaluator: %w", err)
	}

	engine, err := rules.NewEngine(
		rules.NewPostgresRuleStore(db),
		rules.NewPostgresVariableStore(db),
		rules.WithEvaluator(evaluator),
		rules.WithCache(cache),
		rules.WithRecorder(m),
		rules.WithWorkers(cfg.EvalWorkers),
	)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	server := NewServer(engine, ServerOptions{
		DB:          db,
		Metrics:     m,
		Production:  cfg.IsProduction(),
		MaxBodySize: cfg.MaxJSONBodySize,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(server, "ruleeval-http"),
		ReadHeaderTimeout: httpReadHeaderTimeout,
		ReadTimeout:       httpReadTimeout,
		WriteTimeout:      httpWriteTimeout,
		IdleTimeout:       httpIdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server starting", "addr", cfg.HTTPAddr, "cache", cfg.CacheBackend, "env", cfg.AppEnv)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// Periodically export connection pool statistics
	g.Go(func() error {
		ticker := time.NewTicker(dbStatsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				m.SetDBStats(db.Stats())
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("Server stopped")
	return nil
}

// newSnapshotCache builds the configured cache and its cleanup function
func newSnapshotCache(ctx context.Context, cfg *config.Config) (rules.SnapshotCache, func(), error) {
	cacheCfg := rules.CacheConfig{TTL: cfg.CacheTTL}

	switch cfg.CacheBackend {
	case config.CacheNone:
		return rules.NopSnapshotCache{}, func() {}, nil

	case config.CacheRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				logger.Warn("Redis close error", "error", err)
			}
		}
		return rules.NewRedisSnapshotCache(client, rules.DefaultRedisKey, cacheCfg), closeFn, nil

	default:
		return rules.NewInMemorySnapshotCache(cacheCfg), func() {}, nil
	}
}
