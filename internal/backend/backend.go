// Package backend opens the ledger backend selected at startup. Exactly one
// of PostgreSQL or the PostgREST gateway serves a process; they are never mixed.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/archon-research/ledger-engine/internal/adapters/outbound/postgres"
	"github.com/archon-research/ledger-engine/internal/adapters/outbound/postgrest"
	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/pkg/env"
	"github.com/archon-research/ledger-engine/internal/pkg/httpclient"
	"github.com/archon-research/ledger-engine/internal/ports/outbound"
)

// Kind names a ledger backend.
type Kind string

const (
	KindPostgres Kind = "postgres"
	KindREST     Kind = "rest"
)

// Config selects and configures the backend.
type Config struct {
	Kind Kind

	// DatabaseURL is required for KindPostgres.
	DatabaseURL    string
	MaxConns       int32
	AcquireTimeout time.Duration

	// RESTURL and RESTAPIKey are required for KindREST.
	RESTURL    string
	RESTAPIKey string
	RESTRate   float64

	Logger *slog.Logger
}

// ConfigFromEnv reads LEDGER_BACKEND, DATABASE_URL, DB_MAX_CONNS,
// DB_ACQUIRE_TIMEOUT, REST_URL, REST_API_KEY and REST_RATE_LIMIT.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Kind:        Kind(env.Get("LEDGER_BACKEND", string(KindPostgres))),
		DatabaseURL: env.Get("DATABASE_URL", ""),
		RESTURL:     env.Get("REST_URL", ""),
		RESTAPIKey:  env.Get("REST_API_KEY", ""),
	}

	maxConns, err := env.GetInt("DB_MAX_CONNS", 25)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxConns = int32(maxConns)

	if cfg.AcquireTimeout, err = env.GetDuration("DB_ACQUIRE_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}

	rate, err := env.GetInt("REST_RATE_LIMIT", 50)
	if err != nil {
		return Config{}, err
	}
	cfg.RESTRate = float64(rate)

	return cfg, cfg.Validate()
}

// Validate checks that the selected backend has what it needs.
func (c Config) Validate() error {
	switch c.Kind {
	case KindPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: DATABASE_URL is required for the postgres backend", entity.ErrConnectionUnavailable)
		}
	case KindREST:
		if c.RESTURL == "" {
			return fmt.Errorf("%w: REST_URL is required for the rest backend", entity.ErrConnectionUnavailable)
		}
	default:
		return fmt.Errorf("unknown ledger backend %q (want %q or %q)", c.Kind, KindPostgres, KindREST)
	}
	return nil
}

// Backend bundles the ports served by one backend.
type Backend struct {
	Kind        Kind
	Store       outbound.LedgerStore
	Reader      outbound.LedgerReader
	Prices      outbound.PriceRepository
	Leaderboard outbound.LeaderboardRepository

	// Pool is set for KindPostgres only.
	Pool *pgxpool.Pool

	ping  func(ctx context.Context) error
	close func()
}

// Ping checks that the backend answers.
func (b *Backend) Ping(ctx context.Context) error {
	return b.ping(ctx)
}

// Close releases the backend's connections.
func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

// Open connects to the configured backend.
func Open(ctx context.Context, cfg Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Kind {
	case KindPostgres:
		return openPostgres(ctx, cfg, logger)
	default:
		return openREST(cfg, logger)
	}
}

func openPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*Backend, error) {
	dbCfg := postgres.DefaultDBConfig(cfg.DatabaseURL)
	if cfg.MaxConns > 0 {
		dbCfg.MaxConns = cfg.MaxConns
	}
	pool, err := postgres.OpenPool(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entity.ErrStoreUnavailable, err)
	}

	storeCfg := postgres.DefaultStoreConfig()
	storeCfg.Logger = logger
	if cfg.AcquireTimeout > 0 {
		storeCfg.AcquireTimeout = cfg.AcquireTimeout
	}
	store, err := postgres.NewStore(pool, storeCfg)
	if err != nil {
		pool.Close()
		return nil, err
	}
	reader, err := postgres.NewReader(pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	prices, err := postgres.NewAssetRepository(pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	board, err := postgres.NewLeaderboardRepository(pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("ledger backend ready", "backend", KindPostgres)
	return &Backend{
		Kind:        KindPostgres,
		Store:       store,
		Reader:      reader,
		Prices:      prices,
		Leaderboard: board,
		Pool:        pool,
		ping:        store.Ping,
		close:       pool.Close,
	}, nil
}

func openREST(cfg Config, logger *slog.Logger) (*Backend, error) {
	httpCfg := httpclient.DefaultConfig()
	if cfg.RESTRate > 0 {
		httpCfg.RateLimit = rate.Limit(cfg.RESTRate)
	}
	client, err := postgrest.NewClient(postgrest.ClientConfig{
		BaseURL: cfg.RESTURL,
		APIKey:  cfg.RESTAPIKey,
		HTTP:    httpCfg,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	storeCfg := postgrest.DefaultStoreConfig()
	storeCfg.Logger = logger
	store, err := postgrest.NewStore(client, storeCfg)
	if err != nil {
		return nil, err
	}
	reader, err := postgrest.NewReader(client)
	if err != nil {
		return nil, err
	}
	prices, err := postgrest.NewAssetRepository(client)
	if err != nil {
		return nil, err
	}
	board, err := postgrest.NewLeaderboardRepository(client)
	if err != nil {
		return nil, err
	}

	logger.Info("ledger backend ready", "backend", KindREST, "url", cfg.RESTURL)
	return &Backend{
		Kind:        KindREST,
		Store:       store,
		Reader:      reader,
		Prices:      prices,
		Leaderboard: board,
		ping:        client.Ping,
	}, nil
}
