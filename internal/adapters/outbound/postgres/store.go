package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/pkg/retry"
	"github.com/archon-research/ledger-engine/internal/ports/outbound"
)

// Compile-time check that Store implements outbound.LedgerStore.
var _ outbound.LedgerStore = (*Store)(nil)

// StoreConfig configures the ledger store.
type StoreConfig struct {
	// AcquireTimeout bounds the wait for a pooled connection. Default: 5s.
	AcquireTimeout time.Duration

	// Retry governs re-running a transaction that lost a deadlock or
	// serialization race. MaxRetries 0 disables retries.
	Retry retry.Config

	Logger *slog.Logger
}

// DefaultStoreConfig returns the default store configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		AcquireTimeout: 5 * time.Second,
		Retry:          retry.DefaultConfig(),
		Logger:         slog.Default(),
	}
}

// Store is the PostgreSQL ledger store. Every WithTransaction call runs on one
// pooled connection inside one database transaction. Wallet and holding rows
// are locked with SELECT ... FOR UPDATE, so operations on the same user
// serialize while different users proceed in parallel.
//
// Usage:
//
//	store, err := postgres.NewStore(pool, postgres.DefaultStoreConfig())
//	err = store.WithTransaction(ctx, func(tx outbound.LedgerTx) error {
//	    w, err := tx.LockWallet(ctx, userID, "INR")
//	    if err != nil {
//	        return err // triggers rollback
//	    }
//	    return tx.SetWalletBalance(ctx, w, w.Balance.Add(amount))
//	})
type Store struct {
	pool   *pgxpool.Pool
	config StoreConfig
	logger *slog.Logger
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", entity.ErrStoreUnavailable, err)
	}
	return nil
}

// NewStore creates a ledger store. A nil pool yields entity.ErrConnectionUnavailable.
func NewStore(pool *pgxpool.Pool, config StoreConfig) (*Store, error) {
	if pool == nil {
		return nil, entity.ErrConnectionUnavailable
	}
	defaults := DefaultStoreConfig()
	if config.AcquireTimeout <= 0 {
		config.AcquireTimeout = defaults.AcquireTimeout
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	return &Store{
		pool:   pool,
		config: config,
		logger: config.Logger.With("component", "postgres-ledger-store"),
	}, nil
}

// WithTransaction runs fn in a database transaction.
//
// The transaction is rolled back if:
//   - fn returns an error
//   - fn panics (panic is re-raised after rollback)
//   - commit fails
//
// A transaction that fails with entity.ErrConcurrentUpdate (deadlock or
// serialization failure) is re-run from the start.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx outbound.LedgerTx) error) error {
	if s == nil || s.pool == nil {
		return entity.ErrConnectionUnavailable
	}
	return retry.DoVoid(ctx, s.config.Retry, retry.On(entity.ErrConcurrentUpdate),
		func(attempt int, err error, backoff time.Duration) {
			s.logger.Warn("retrying ledger transaction", "attempt", attempt, "backoff", backoff, "error", err)
		},
		func() error { return s.runOnce(ctx, fn) },
	)
}

func (s *Store) runOnce(ctx context.Context, fn func(tx outbound.LedgerTx) error) (err error) {
	acquireCtx, cancel := context.WithTimeout(ctx, s.config.AcquireTimeout)
	conn, err := s.pool.Acquire(acquireCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: acquiring connection: %w", entity.ErrStoreUnavailable, err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}

	defer func() {
		if p := recover(); p != nil {
			rollback(context.WithoutCancel(ctx), tx, s.logger)
			panic(p)
		}
	}()

	if err := fn(&ledgerTx{tx: tx}); err != nil {
		rollback(context.WithoutCancel(ctx), tx, s.logger)
		return mapError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		mapped := mapError(err)
		if errors.Is(mapped, entity.ErrConcurrentUpdate) {
			return fmt.Errorf("failed to commit transaction: %w", mapped)
		}
		return fmt.Errorf("%w: failed to commit transaction: %w", entity.ErrStoreUnavailable, err)
	}
	return nil
}
