package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/ports/outbound"
)

var _ outbound.LedgerTx = (*ledgerTx)(nil)

// ledgerTx implements outbound.LedgerTx on one pgx transaction.
type ledgerTx struct {
	tx pgx.Tx
}

const walletColumns = `wallet_id::text, user_id, balance::text, currency, updated_at`

func scanWallet(row pgx.Row) (*entity.Wallet, error) {
	var (
		w       entity.Wallet
		balance string
	)
	if err := row.Scan(&w.WalletID, &w.UserID, &balance, &w.Currency, &w.UpdatedAt); err != nil {
		return nil, err
	}
	b, err := parseNumeric("balance", balance)
	if err != nil {
		return nil, err
	}
	w.Balance = b
	return &w, nil
}

// LockWallet creates the wallet row if it is missing and then locks it. The
// insert relies on the unique user_id so concurrent first calls converge on
// one row.
func (t *ledgerTx) LockWallet(ctx context.Context, userID, currency string) (*entity.Wallet, error) {
	if userID == "" {
		return nil, entity.ErrInvalidUser
	}
	if currency == "" {
		currency = entity.DefaultCurrency
	}

	if _, err := t.tx.Exec(ctx,
		`INSERT INTO wallets (user_id, balance, currency) VALUES ($1, 0, $2)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, currency,
	); err != nil {
		return nil, fmt.Errorf("creating wallet for %s: %w", userID, mapError(err))
	}

	w, err := scanWallet(t.tx.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`,
		userID,
	))
	if err != nil {
		return nil, fmt.Errorf("locking wallet for %s: %w", userID, mapError(err))
	}
	return w, nil
}

func (t *ledgerTx) SetWalletBalance(ctx context.Context, wallet *entity.Wallet, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return fmt.Errorf("wallet %s: balance cannot be negative", wallet.WalletID)
	}
	var updatedAt time.Time
	err := t.tx.QueryRow(ctx,
		`UPDATE wallets SET balance = $1::numeric, updated_at = clock_timestamp()
		 WHERE wallet_id = $2
		 RETURNING updated_at`,
		numeric(balance), wallet.WalletID,
	).Scan(&updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("wallet %s not found", wallet.WalletID)
	}
	if err != nil {
		return fmt.Errorf("updating wallet %s: %w", wallet.WalletID, mapError(err))
	}
	wallet.Balance = balance
	wallet.UpdatedAt = updatedAt
	return nil
}

func (t *ledgerTx) InsertTransaction(ctx context.Context, txn *entity.Transaction) error {
	if err := txn.Validate(); err != nil {
		return err
	}
	err := t.tx.QueryRow(ctx,
		`INSERT INTO transactions
			(transaction_id, user_id, wallet_id, asset_id, transaction_type, amount, quantity, status)
		 VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8)
		 RETURNING created_at`,
		txn.TransactionID, txn.UserID, txn.WalletID, txn.AssetID, string(txn.Type),
		numeric(txn.Amount), optionalNumeric(txn.Quantity), string(txn.Status),
	).Scan(&txn.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting transaction %s: %w", txn.TransactionID, mapError(err))
	}
	return nil
}

// FundAccountBalance sums wallet balances as this transaction sees them: its
// own uncommitted write plus every other wallet's last committed balance.
func (t *ledgerTx) FundAccountBalance(ctx context.Context) (decimal.Decimal, error) {
	var total string
	if err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(balance), 0)::text FROM wallets`).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("summing wallet balances: %w", mapError(err))
	}
	return parseNumeric("fund_account_balance", total)
}

func (t *ledgerTx) InsertLedgerEntry(ctx context.Context, entry *entity.LedgerEntry) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO client_fund_ledger
			(ledger_id, user_id, transaction_id, wallet_id, entry_type, amount, balance_after, fund_account_balance)
		 VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric)
		 RETURNING entry_seq, "timestamp"`,
		entry.LedgerID, entry.UserID, entry.TransactionID, entry.WalletID, string(entry.EntryType),
		numeric(entry.Amount), numeric(entry.BalanceAfter), numeric(entry.FundAccountBalance),
	).Scan(&entry.Sequence, &entry.Timestamp)
	if err != nil {
		return fmt.Errorf("inserting ledger entry %s: %w", entry.LedgerID, mapError(err))
	}
	return nil
}

func (t *ledgerTx) GetAsset(ctx context.Context, assetID string) (*entity.Asset, error) {
	if _, err := uuid.Parse(assetID); err != nil {
		return nil, fmt.Errorf("%w: %s", entity.ErrAssetNotFound, assetID)
	}
	a, err := scanAsset(t.tx.QueryRow(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE asset_id = $1`,
		assetID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", entity.ErrAssetNotFound, assetID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading asset %s: %w", assetID, mapError(err))
	}
	return a, nil
}

func (t *ledgerTx) EnsurePortfolio(ctx context.Context, userID string) (*entity.Portfolio, error) {
	if userID == "" {
		return nil, entity.ErrInvalidUser
	}
	if _, err := t.tx.Exec(ctx,
		`INSERT INTO portfolios (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,
		userID,
	); err != nil {
		return nil, fmt.Errorf("creating portfolio for %s: %w", userID, mapError(err))
	}

	var p entity.Portfolio
	err := t.tx.QueryRow(ctx,
		`SELECT portfolio_id::text, user_id, created_at FROM portfolios WHERE user_id = $1`,
		userID,
	).Scan(&p.PortfolioID, &p.UserID, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("loading portfolio for %s: %w", userID, mapError(err))
	}
	return &p, nil
}

func (t *ledgerTx) LockHolding(ctx context.Context, portfolioID, assetID string) (*entity.Holding, error) {
	var (
		h             entity.Holding
		qty, avgPrice string
	)
	err := t.tx.QueryRow(ctx,
		`SELECT holding_id::text, portfolio_id::text, asset_id::text, quantity::text, average_price::text, updated_at
		 FROM portfolio_holdings
		 WHERE portfolio_id = $1 AND asset_id = $2
		 FOR UPDATE`,
		portfolioID, assetID,
	).Scan(&h.HoldingID, &h.PortfolioID, &h.AssetID, &qty, &avgPrice, &h.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("locking holding %s/%s: %w", portfolioID, assetID, mapError(err))
	}
	if h.Quantity, err = parseNumeric("quantity", qty); err != nil {
		return nil, err
	}
	if h.AveragePrice, err = parseNumeric("average_price", avgPrice); err != nil {
		return nil, err
	}
	return &h, nil
}

func (t *ledgerTx) SaveHolding(ctx context.Context, holding *entity.Holding) error {
	if holding.HoldingID == "" {
		holding.HoldingID = uuid.NewString()
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO portfolio_holdings (holding_id, portfolio_id, asset_id, quantity, average_price, updated_at)
		 VALUES ($1, $2, $3, $4::numeric, $5::numeric, clock_timestamp())
		 ON CONFLICT (portfolio_id, asset_id) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			average_price = EXCLUDED.average_price,
			updated_at = EXCLUDED.updated_at`,
		holding.HoldingID, holding.PortfolioID, holding.AssetID,
		numeric(holding.Quantity), numeric(holding.AveragePrice),
	)
	if err != nil {
		return fmt.Errorf("saving holding %s: %w", holding.HoldingID, mapError(err))
	}
	return nil
}

func (t *ledgerTx) DeleteHolding(ctx context.Context, holding *entity.Holding) error {
	_, err := t.tx.Exec(ctx,
		`DELETE FROM portfolio_holdings WHERE portfolio_id = $1 AND asset_id = $2`,
		holding.PortfolioID, holding.AssetID,
	)
	if err != nil {
		return fmt.Errorf("deleting holding %s: %w", holding.HoldingID, mapError(err))
	}
	return nil
}
