// Package main runs the price engine. Every interval it reprices the asset
// catalogue and re-ranks the leaderboard against the new prices. With -once it
// performs a single run and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	rediscache "github.com/archon-research/ledger-engine/internal/adapters/outbound/redis"
	"github.com/archon-research/ledger-engine/internal/adapters/outbound/telemetry"
	"github.com/archon-research/ledger-engine/internal/backend"
	"github.com/archon-research/ledger-engine/internal/pkg/env"
	"github.com/archon-research/ledger-engine/internal/ports/outbound"
	"github.com/archon-research/ledger-engine/internal/services/leaderboard"
	"github.com/archon-research/ledger-engine/internal/services/price_engine"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

type cliConfig struct {
	once         bool
	interval     time.Duration
	concurrency  int
	redisAddr    string
	otlpEndpoint string
}

func parseConfig(args []string) (cliConfig, error) {
	fs := flag.NewFlagSet("price-engine", flag.ContinueOnError)
	once := fs.Bool("once", false, "Run a single repricing pass and exit")
	interval := fs.Duration("interval", 0, "Time between runs (default PRICE_ENGINE_INTERVAL or 2h)")
	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}

	cfg := cliConfig{once: *once, interval: *interval}
	if cfg.interval == 0 {
		d, err := env.GetDuration("PRICE_ENGINE_INTERVAL", 2*time.Hour)
		if err != nil {
			return cliConfig{}, err
		}
		cfg.interval = d
	}
	if cfg.interval < 0 {
		return cliConfig{}, fmt.Errorf("interval must be positive, got %s", cfg.interval)
	}

	concurrency, err := env.GetInt("PRICE_ENGINE_CONCURRENCY", 4)
	if err != nil {
		return cliConfig{}, err
	}
	cfg.concurrency = concurrency
	cfg.redisAddr = env.Get("REDIS_ADDR", "")
	cfg.otlpEndpoint = env.Get("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	return cfg, nil
}

func run(ctx context.Context, args []string) error {
	cfg, err := parseConfig(args)
	if err != nil {
		return err
	}

	logger := env.NewLogger(os.Stdout, slog.LevelInfo)
	slog.SetDefault(logger)

	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricConfig{
		ServiceName:  "price-engine",
		Environment:  env.Get("ENVIRONMENT", "development"),
		OTLPEndpoint: cfg.otlpEndpoint,
	})
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			logger.Warn("metrics shutdown failed", "error", err)
		}
	}()
	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return fmt.Errorf("creating metrics: %w", err)
	}

	backendCfg, err := backend.ConfigFromEnv()
	if err != nil {
		return err
	}
	backendCfg.Logger = logger
	b, err := backend.Open(ctx, backendCfg)
	if err != nil {
		return fmt.Errorf("opening ledger backend: %w", err)
	}
	defer b.Close()

	var cache outbound.LeaderboardCache
	if cfg.redisAddr != "" {
		redisCfg := rediscache.ConfigDefaults()
		redisCfg.Addr = cfg.redisAddr
		redisCfg.Password = env.Get("REDIS_PASSWORD", "")
		c, err := rediscache.NewLeaderboardCache(redisCfg, logger)
		if err != nil {
			return fmt.Errorf("creating leaderboard cache: %w", err)
		}
		defer c.Close()
		cache = c
	}
	board, err := leaderboard.NewService(b.Leaderboard, cache, logger)
	if err != nil {
		return fmt.Errorf("creating leaderboard service: %w", err)
	}

	rerank := func(ctx context.Context, report *price_engine.RunReport) {
		n, err := board.RecomputeAll(ctx)
		if err != nil {
			logger.Error("leaderboard recompute failed", "error", err)
			return
		}
		logger.Info("leaderboard recomputed", "users", n, "repriced", len(report.Updated))
	}

	engine, err := price_engine.NewService(price_engine.Config{
		Interval:    cfg.interval,
		RunOnStart:  true,
		Concurrency: cfg.concurrency,
		OnRun:       rerank,
		Logger:      logger,
	}, b.Prices, metrics)
	if err != nil {
		return fmt.Errorf("creating price engine: %w", err)
	}

	if cfg.once {
		report, err := engine.RunOnce(ctx)
		if err != nil {
			return err
		}
		rerank(ctx, report)
		if len(report.Failed) > 0 {
			return fmt.Errorf("%d assets failed to reprice", len(report.Failed))
		}
		return nil
	}

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("starting price engine: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutting down...")
	return engine.Stop()
}
