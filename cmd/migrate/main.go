// Package main applies the ledger schema migrations and optionally seeds the
// asset catalogue with demo stocks and mutual funds.
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
	"github.com/shopspring/decimal"

	"github.com/archon-research/ledger-engine/db/migrations"
	"github.com/archon-research/ledger-engine/db/migrator"
	"github.com/archon-research/ledger-engine/internal/adapters/outbound/postgres"
	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/pkg/env"
)

func main() {
	_ = godotenv.Load(".env")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

type cliConfig struct {
	dbURL string
	seed  bool
}

func parseConfig(args []string) (cliConfig, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dbURL := fs.String("db", "", "PostgreSQL connection URL")
	seed := fs.Bool("seed", false, "Insert demo assets after migrating")
	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}

	cfg := cliConfig{dbURL: *dbURL, seed: *seed}
	if cfg.dbURL == "" {
		cfg.dbURL = env.Get("DATABASE_URL", "")
	}
	if cfg.dbURL == "" {
		return cliConfig{}, fmt.Errorf("database URL not provided (use -db flag or DATABASE_URL env var)")
	}
	return cfg, nil
}

// demoAssets is the catalogue inserted by -seed.
func demoAssets() []*entity.Asset {
	return []*entity.Asset{
		{Symbol: "RELIANCE", Name: "Reliance Industries", AssetType: entity.AssetTypeStock, CurrentPrice: decimal.RequireFromString("2450.00")},
		{Symbol: "TCS", Name: "Tata Consultancy Services", AssetType: entity.AssetTypeStock, CurrentPrice: decimal.RequireFromString("3620.50")},
		{Symbol: "INFY", Name: "Infosys", AssetType: entity.AssetTypeStock, CurrentPrice: decimal.RequireFromString("1480.25")},
		{Symbol: "HDFCBANK", Name: "HDFC Bank", AssetType: entity.AssetTypeStock, CurrentPrice: decimal.RequireFromString("1610.00")},
		{Symbol: "NIFTYBEES", Name: "Nifty 50 Index Fund", AssetType: entity.AssetTypeMutualFund, CurrentPrice: decimal.RequireFromString("245.80")},
		{Symbol: "LIQUIDFUND", Name: "Liquid Fund Direct Growth", AssetType: entity.AssetTypeMutualFund, CurrentPrice: decimal.RequireFromString("1050.12")},
	}
}

type assetInserter interface {
	InsertAsset(ctx context.Context, asset *entity.Asset) error
}

// seed inserts the demo assets, skipping symbols already present. It returns
// the number of assets created.
func seed(ctx context.Context, repo assetInserter, assets []*entity.Asset, logger *slog.Logger) (int, error) {
	created := 0
	for _, a := range assets {
		err := repo.InsertAsset(ctx, a)
		switch {
		case errors.Is(err, postgres.ErrAssetExists):
			logger.Info("asset already present", "symbol", a.Symbol)
		case err != nil:
			return created, err
		default:
			created++
		}
	}
	return created, nil
}

func run(ctx context.Context, args []string) error {
	cfg, err := parseConfig(args)
	if err != nil {
		return err
	}

	logger := env.NewLogger(os.Stdout, slog.LevelInfo)
	slog.SetDefault(logger)

	pool, err := postgres.OpenPool(ctx, postgres.DefaultDBConfig(cfg.dbURL))
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if err := migrator.New(pool, migrations.FS, logger).ApplyAll(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("all migrations up to date")

	if !cfg.seed {
		return nil
	}
	repo, err := postgres.NewAssetRepository(pool, logger)
	if err != nil {
		return err
	}
	created, err := seed(ctx, repo, demoAssets(), logger)
	if err != nil {
		return fmt.Errorf("seeding assets: %w", err)
	}
	logger.Info("seed complete", "created", created)
	return nil
}
