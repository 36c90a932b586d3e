package postgrest

import (
	"context"
	"log/slog"
	"time"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/pkg/retry"
	"github.com/archon-research/ledger-engine/internal/ports/outbound"
)

var _ outbound.LedgerStore = (*Store)(nil)

// StoreConfig configures the REST ledger store.
type StoreConfig struct {
	// Retry governs re-running an operation whose conditional wallet or
	// holding write lost to a concurrent writer.
	Retry  retry.Config
	Logger *slog.Logger
}

// DefaultStoreConfig returns the default store configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Retry:  retry.DefaultConfig(),
		Logger: slog.Default(),
	}
}

// Store is the REST ledger store. See the package documentation for how
// writes are committed.
type Store struct {
	client *Client
	config StoreConfig
	logger *slog.Logger
}

// NewStore creates a REST ledger store. A nil client yields
// entity.ErrConnectionUnavailable.
func NewStore(client *Client, config StoreConfig) (*Store, error) {
	if client == nil {
		return nil, entity.ErrConnectionUnavailable
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Store{
		client: client,
		config: config,
		logger: config.Logger.With("component", "postgrest-ledger-store"),
	}, nil
}

// WithTransaction runs fn against a fresh unit of work and commits its
// buffered writes. Wallets and portfolios created by LockWallet and
// EnsurePortfolio are written eagerly and survive a failed operation; they
// carry no balance or holdings.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx outbound.LedgerTx) error) error {
	if s == nil || s.client == nil {
		return entity.ErrConnectionUnavailable
	}
	return retry.DoVoid(ctx, s.config.Retry, retry.On(entity.ErrConcurrentUpdate),
		func(attempt int, err error, backoff time.Duration) {
			s.logger.Warn("retrying ledger operation", "attempt", attempt, "backoff", backoff, "error", err)
		},
		func() error {
			uow := newUnitOfWork(s.client, s.logger)
			if err := fn(uow); err != nil {
				return err
			}
			return uow.commit(ctx)
		},
	)
}
