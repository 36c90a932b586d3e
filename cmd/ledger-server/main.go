// Package main runs the ledger API: wallet and trade endpoints, the payment
// webhook, the leaderboard, the live balance websocket and health probes.
// Post-commit side effects run on an in-process dispatcher.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"sync/atomic"
	"syscall"
	"time"

	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/joho/godotenv"

	httpapi "github.com/archon-research/ledger-engine/internal/adapters/inbound/http"
	rediscache "github.com/archon-research/ledger-engine/internal/adapters/outbound/redis"
	"github.com/archon-research/ledger-engine/internal/adapters/outbound/signature"
	"github.com/archon-research/ledger-engine/internal/adapters/outbound/sns"
	"github.com/archon-research/ledger-engine/internal/adapters/outbound/telemetry"
	"github.com/archon-research/ledger-engine/internal/backend"
	"github.com/archon-research/ledger-engine/internal/pkg/awsutil"
	"github.com/archon-research/ledger-engine/internal/pkg/env"
	"github.com/archon-research/ledger-engine/internal/ports/outbound"
	"github.com/archon-research/ledger-engine/internal/services/dispatcher"
	"github.com/archon-research/ledger-engine/internal/services/leaderboard"
	"github.com/archon-research/ledger-engine/internal/services/payment"
	"github.com/archon-research/ledger-engine/internal/services/settlement"
	"github.com/archon-research/ledger-engine/internal/services/wallet"
)

// Build-time variables
var (
	GitCommit string
	GitBranch string
	BuildTime string
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if GitCommit == "" {
					GitCommit = setting.Value
				}
			case "vcs.time":
				if BuildTime == "" {
					BuildTime = setting.Value
				}
			}
		}
	}
}

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
	addr          string
	currency      string
	webhookSecret string
	redisAddr     string
	redisPassword string
	snsTopicARN   string
	otlpEndpoint  string
	environment   string
	shutdownGrace time.Duration
}

func parseConfig(args []string) (cliConfig, error) {
	fs := flag.NewFlagSet("ledger-server", flag.ContinueOnError)
	addr := fs.String("addr", "", "HTTP listen address")
	currency := fs.String("currency", "", "Currency for new wallets")
	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}

	cfg := cliConfig{
		addr:     *addr,
		currency: *currency,
	}
	if cfg.addr == "" {
		cfg.addr = env.Get("HTTP_ADDR", ":8080")
	}
	if cfg.currency == "" {
		cfg.currency = env.Get("DEFAULT_CURRENCY", "INR")
	}

	cfg.webhookSecret = env.Get("PAYMENT_WEBHOOK_SECRET", "")
	if cfg.webhookSecret == "" {
		return cliConfig{}, fmt.Errorf("PAYMENT_WEBHOOK_SECRET environment variable is required")
	}

	cfg.redisAddr = env.Get("REDIS_ADDR", "")
	cfg.redisPassword = env.Get("REDIS_PASSWORD", "")
	cfg.snsTopicARN = env.Get("SNS_TOPIC_ARN", "")
	cfg.otlpEndpoint = env.Get("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg.environment = env.Get("ENVIRONMENT", "development")

	grace, err := env.GetDuration("SHUTDOWN_GRACE", 5*time.Second)
	if err != nil {
		return cliConfig{}, err
	}
	cfg.shutdownGrace = grace

	return cfg, nil
}

func run(ctx context.Context, args []string) error {
	cfg, err := parseConfig(args)
	if err != nil {
		return err
	}

	logger := env.NewLogger(os.Stdout, slog.LevelInfo)
	slog.SetDefault(logger)

	logger.Info("starting ledger-server",
		"commit", GitCommit,
		"branch", GitBranch,
		"buildTime", BuildTime,
		"addr", cfg.addr,
	)

	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricConfig{
		ServiceName:    "ledger-server",
		ServiceVersion: GitCommit,
		Environment:    cfg.environment,
		OTLPEndpoint:   cfg.otlpEndpoint,
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
		redisCfg.Password = cfg.redisPassword
		c, err := rediscache.NewLeaderboardCache(redisCfg, logger)
		if err != nil {
			return fmt.Errorf("creating leaderboard cache: %w", err)
		}
		defer c.Close()
		if err := c.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, leaderboard reads go to the store", "error", err)
		}
		cache = c
	}

	board, err := leaderboard.NewService(b.Leaderboard, cache, logger)
	if err != nil {
		return fmt.Errorf("creating leaderboard service: %w", err)
	}

	hub := httpapi.NewBalanceHub(httpapi.BalanceHubConfig{Logger: logger})
	defer hub.Close()

	handlers := []dispatcher.Handler{
		dispatcher.LeaderboardHandler{Leaderboard: board},
		dispatcher.BalanceHandler{Broadcaster: hub},
	}
	if cfg.snsTopicARN != "" {
		awsSettings := awsutil.SettingsFromEnv()
		awsCfg, err := awsutil.LoadConfig(ctx, awsSettings)
		if err != nil {
			return err
		}
		publisher, err := sns.NewPublisher(
			awssns.NewFromConfig(awsCfg, awsSettings.SNSOptions()...),
			sns.Config{TopicARN: cfg.snsTopicARN, Logger: logger},
		)
		if err != nil {
			return fmt.Errorf("creating SNS publisher: %w", err)
		}
		handlers = append(handlers, dispatcher.NotificationHandler{Publisher: publisher})
	} else {
		logger.Info("SNS_TOPIC_ARN not set, transaction confirmations disabled")
	}

	events, err := dispatcher.New(dispatcher.Config{Logger: logger}, metrics, handlers...)
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}
	events.Start()
	defer events.Stop()

	walletSvc, err := wallet.NewService(wallet.Config{Currency: cfg.currency, Logger: logger}, b.Store, b.Reader, events, metrics)
	if err != nil {
		return fmt.Errorf("creating wallet service: %w", err)
	}
	tradeSvc, err := settlement.NewService(settlement.Config{Currency: cfg.currency, Logger: logger}, b.Store, events, metrics)
	if err != nil {
		return fmt.Errorf("creating settlement service: %w", err)
	}
	paymentSvc, err := payment.NewService(walletSvc, signature.NewHMACVerifier([]byte(cfg.webhookSecret)), logger)
	if err != nil {
		return fmt.Errorf("creating payment service: %w", err)
	}

	handler, err := httpapi.NewHandler(httpapi.Services{
		Wallet:      walletSvc,
		Trade:       tradeSvc,
		Leaderboard: board,
		Payment:     paymentSvc,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating HTTP handler: %w", err)
	}

	checker := httpapi.NewPingChecker(b.Ping, 10*time.Second, logger)
	go checker.Run(ctx)

	var shuttingDown atomic.Bool
	server := httpapi.NewServer(httpapi.ServerConfig{Addr: cfg.addr, Logger: logger}, checker, &shuttingDown, func(mux *http.ServeMux) {
		handler.RegisterRoutes(mux)
		hub.RegisterRoutes(mux, handler)
	})
	server.Start()

	<-ctx.Done()
	logger.Info("shutting down...")

	shuttingDown.Store(true)
	if cfg.shutdownGrace > 0 {
		time.Sleep(cfg.shutdownGrace)
	}
	if err := server.Shutdown(10 * time.Second); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
