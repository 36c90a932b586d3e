// Package main consumes transaction confirmations from SQS (fanned out from
// the SNS topic the ledger server publishes to) and e-mails them over SMTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/archon-research/ledger-engine/internal/adapters/outbound/smtp"
	sqsadapter "github.com/archon-research/ledger-engine/internal/adapters/outbound/sqs"
	"github.com/archon-research/ledger-engine/internal/adapters/outbound/telemetry"
	"github.com/archon-research/ledger-engine/internal/pkg/awsutil"
	"github.com/archon-research/ledger-engine/internal/pkg/env"
	"github.com/archon-research/ledger-engine/internal/services/notification_worker"
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
	queueURL    string
	workers     int
	maxReceives int
	smtp        smtp.Config
}

func parseConfig(args []string) (cliConfig, error) {
	fs := flag.NewFlagSet("notification-worker", flag.ContinueOnError)
	queueURL := fs.String("queue", "", "SQS Queue URL")
	workers := fs.Int("workers", 0, "Number of concurrent senders")
	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}

	cfg := cliConfig{queueURL: *queueURL, workers: *workers}
	if cfg.queueURL == "" {
		cfg.queueURL = env.Get("SQS_QUEUE_URL", "")
	}
	if cfg.queueURL == "" {
		return cliConfig{}, fmt.Errorf("queue URL not provided (use -queue flag or SQS_QUEUE_URL env var)")
	}
	if cfg.workers == 0 {
		n, err := env.GetInt("NOTIFICATION_WORKERS", 4)
		if err != nil {
			return cliConfig{}, err
		}
		cfg.workers = n
	}
	if cfg.workers < 0 {
		return cliConfig{}, fmt.Errorf("workers must be positive, got %d", cfg.workers)
	}

	maxReceives, err := env.GetInt("NOTIFICATION_MAX_RECEIVES", 5)
	if err != nil {
		return cliConfig{}, err
	}
	cfg.maxReceives = maxReceives

	cfg.smtp = smtp.Config{
		Host:     env.Get("SMTP_HOST", ""),
		Port:     env.Get("SMTP_PORT", "587"),
		Username: env.Get("SMTP_USERNAME", ""),
		Password: env.Get("SMTP_PASSWORD", ""),
		From:     env.Get("SMTP_FROM", ""),
	}
	return cfg, nil
}

func run(ctx context.Context, args []string) error {
	cfg, err := parseConfig(args)
	if err != nil {
		return err
	}

	logger := env.NewLogger(os.Stdout, slog.LevelInfo)
	slog.SetDefault(logger)

	logger.Info("starting notification worker", "queue", cfg.queueURL, "smtpHost", cfg.smtp.Host)

	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricConfig{
		ServiceName:  "notification-worker",
		Environment:  env.Get("ENVIRONMENT", "development"),
		OTLPEndpoint: env.Get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
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

	settings := awsutil.SettingsFromEnv()
	awsCfg, err := awsutil.LoadConfig(ctx, settings)
	if err != nil {
		return err
	}
	consumer, err := sqsadapter.NewConsumer(awsCfg, sqsadapter.Config{QueueURL: cfg.queueURL}, logger, settings.SQSOptions()...)
	if err != nil {
		return fmt.Errorf("creating SQS consumer: %w", err)
	}
	defer consumer.Close()

	cfg.smtp.Logger = logger
	notifier := smtp.NewNotifier(cfg.smtp)

	service, err := notification_worker.NewService(notification_worker.Config{
		Workers:     cfg.workers,
		MaxReceives: cfg.maxReceives,
		Metrics:     metrics,
		Logger:      logger,
	}, consumer, notifier)
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
