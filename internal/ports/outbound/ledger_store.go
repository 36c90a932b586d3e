// Package outbound defines the outbound port interfaces.
package outbound

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
)

// LedgerStore is the transactional boundary around wallet, transaction, ledger
// and holding writes. Services inject it to make a financial operation atomic.
//
// Implementations:
//   - postgres.Store: one pgx transaction with row locks (SELECT ... FOR UPDATE)
//   - postgrest.Store: buffered unit of work committed through conditional updates
//   - memory.Store: in-process store for tests and local runs
type LedgerStore interface {
	// WithTransaction runs fn against a transaction handle.
	// If fn returns an error (or panics) every write made through tx is discarded.
	// If fn succeeds the writes are committed together.
	// Returns entity.ErrConnectionUnavailable when no backing store is configured.
	WithTransaction(ctx context.Context, fn func(tx LedgerTx) error) error
}

// LedgerTx is the handle passed to a LedgerStore transaction. Reads that precede
// a read-modify-write (wallet, holding) lock the row until the transaction ends.
type LedgerTx interface {
	// LockWallet returns the user's wallet, creating it with a zero balance if
	// missing, and holds it against concurrent writers.
	LockWallet(ctx context.Context, userID, currency string) (*entity.Wallet, error)

	// SetWalletBalance persists a new balance for a wallet obtained from LockWallet
	// and updates wallet.Balance and wallet.UpdatedAt in place.
	SetWalletBalance(ctx context.Context, wallet *entity.Wallet, balance decimal.Decimal) error

	// InsertTransaction records an immutable transaction row.
	InsertTransaction(ctx context.Context, txn *entity.Transaction) error

	// FundAccountBalance returns the sum of all wallet balances as seen by this transaction.
	FundAccountBalance(ctx context.Context) (decimal.Decimal, error)

	// InsertLedgerEntry records an immutable ledger row.
	InsertLedgerEntry(ctx context.Context, entry *entity.LedgerEntry) error

	// GetAsset returns the asset or entity.ErrAssetNotFound.
	GetAsset(ctx context.Context, assetID string) (*entity.Asset, error)

	// EnsurePortfolio returns the user's portfolio, creating it if missing.
	EnsurePortfolio(ctx context.Context, userID string) (*entity.Portfolio, error)

	// LockHolding returns the holding for (portfolio, asset) or nil when none exists.
	LockHolding(ctx context.Context, portfolioID, assetID string) (*entity.Holding, error)

	// SaveHolding inserts or updates a holding.
	SaveHolding(ctx context.Context, holding *entity.Holding) error

	// DeleteHolding removes a closed holding.
	DeleteHolding(ctx context.Context, holding *entity.Holding) error
}

// LedgerReader serves read-only queries over committed ledger data. It backs
// transaction history, the reporting boundary and reconciliation.
type LedgerReader interface {
	// GetWallet returns the user's wallet or nil when none exists yet.
	GetWallet(ctx context.Context, userID string) (*entity.Wallet, error)

	// ListWallets returns every wallet.
	ListWallets(ctx context.Context) ([]*entity.Wallet, error)

	// ListTransactions returns the user's transactions, newest first.
	ListTransactions(ctx context.Context, userID string, limit int) ([]*entity.Transaction, error)

	// ListLedgerEntries returns a wallet's ledger entries in replay order.
	ListLedgerEntries(ctx context.Context, walletID string) ([]*entity.LedgerEntry, error)

	// LatestLedgerEntry returns the most recently written entry across all wallets,
	// or nil when the ledger is empty.
	LatestLedgerEntry(ctx context.Context) (*entity.LedgerEntry, error)
}
