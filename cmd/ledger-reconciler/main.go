// Package main replays every wallet's ledger and the fund account chain and
// reports inconsistencies. The report is written to stdout as JSON and, when
// S3_BUCKET is set, uploaded gzip-compressed. The process exits non-zero if
// any wallet's ledger is inconsistent. Fund total drift is reported as a
// warning unless -strict-fund is set, since totals recorded by concurrent
// writers on different wallets can disagree slightly with a serial replay.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/archon-research/ledger-engine/internal/adapters/outbound/s3"
	"github.com/archon-research/ledger-engine/internal/backend"
	"github.com/archon-research/ledger-engine/internal/pkg/awsutil"
	"github.com/archon-research/ledger-engine/internal/pkg/env"
	"github.com/archon-research/ledger-engine/internal/ports/outbound"
	"github.com/archon-research/ledger-engine/internal/services/reconciler"
)

var (
	errInconsistent = errors.New("ledger is inconsistent")
	errFundDrift    = errors.New("fund totals drifted")
)

func main() {
	_ = godotenv.Load(".env")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

type cliConfig struct {
	bucket        string
	keyPrefix     string
	fundTolerance decimal.Decimal
	strictFund    bool
	quiet         bool
}

func parseConfig(args []string) (cliConfig, error) {
	fs := flag.NewFlagSet("ledger-reconciler", flag.ContinueOnError)
	bucket := fs.String("bucket", "", "S3 bucket for the report (default S3_BUCKET, empty disables upload)")
	tolerance := fs.String("fund-tolerance", "", "Accepted fund balance drift (default FUND_TOLERANCE or 0). "+
		"Under concurrent traffic set it to the largest single movement you expect, e.g. 10000")
	strictFund := fs.Bool("strict-fund", false, "Exit non-zero on fund drift as well (default RECONCILE_STRICT_FUND)")
	quiet := fs.Bool("quiet", false, "Do not print the report")
	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}

	cfg := cliConfig{
		bucket:    *bucket,
		keyPrefix: env.Get("S3_KEY_PREFIX", "reconciliation"),
		quiet:     *quiet,
	}
	if cfg.bucket == "" {
		cfg.bucket = env.Get("S3_BUCKET", "")
	}

	raw := *tolerance
	if raw == "" {
		raw = env.Get("FUND_TOLERANCE", "0")
	}
	tol, err := decimal.NewFromString(raw)
	if err != nil {
		return cliConfig{}, fmt.Errorf("fund tolerance must be a decimal: %w", err)
	}
	if tol.IsNegative() {
		return cliConfig{}, fmt.Errorf("fund tolerance must not be negative, got %s", tol)
	}
	cfg.fundTolerance = tol

	cfg.strictFund = *strictFund
	if !cfg.strictFund {
		if cfg.strictFund, err = env.GetBool("RECONCILE_STRICT_FUND", false); err != nil {
			return cliConfig{}, err
		}
	}

	return cfg, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	cfg, err := parseConfig(args)
	if err != nil {
		return err
	}

	logger := env.NewLogger(os.Stderr, slog.LevelInfo)
	slog.SetDefault(logger)

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

	var writer outbound.S3Writer
	if cfg.bucket != "" {
		settings := awsutil.SettingsFromEnv()
		awsCfg, err := awsutil.LoadConfig(ctx, settings)
		if err != nil {
			return err
		}
		writer = s3.NewWriter(awsCfg, logger, settings.S3Options()...)
	}

	svc, err := reconciler.NewService(reconciler.Config{
		Bucket:        cfg.bucket,
		KeyPrefix:     cfg.keyPrefix,
		FundTolerance: cfg.fundTolerance,
		Logger:        logger,
	}, b.Reader, writer)
	if err != nil {
		return fmt.Errorf("creating reconciler: %w", err)
	}

	report, err := svc.Run(ctx)
	if err != nil {
		return err
	}
	return emit(out, report, cfg, logger)
}

// emit prints the report and turns an inconsistent ledger into an error.
func emit(out io.Writer, report *reconciler.Report, cfg cliConfig, logger *slog.Logger) error {
	if !cfg.quiet {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
	}
	if !report.WalletsOK() {
		return fmt.Errorf("%w: %d wallets, %d fund drifts", errInconsistent, len(report.Inconsistent), len(report.FundDrifts))
	}
	if !report.FundOK() {
		if cfg.strictFund {
			return fmt.Errorf("%w: %d entries, latest %s vs wallets %s",
				errFundDrift, len(report.FundDrifts), report.LatestFund, report.WalletTotal)
		}
		logger.Warn("fund totals drifted beyond tolerance",
			"fundDrifts", len(report.FundDrifts),
			"latestFund", report.LatestFund.String(),
			"walletTotal", report.WalletTotal.String(),
			"tolerance", report.FundTolerance.String())
	}
	return nil
}
