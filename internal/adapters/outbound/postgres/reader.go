package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/ports/outbound"
)

var _ outbound.LedgerReader = (*Reader)(nil)

// Reader serves committed ledger data straight from the pool.
type Reader struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewReader creates a ledger reader.
func NewReader(pool *pgxpool.Pool, logger *slog.Logger) (*Reader, error) {
	if pool == nil {
		return nil, entity.ErrConnectionUnavailable
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{pool: pool, logger: logger.With("component", "postgres-ledger-reader")}, nil
}

func (r *Reader) GetWallet(ctx context.Context, userID string) (*entity.Wallet, error) {
	w, err := scanWallet(r.pool.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading wallet for %s: %w", userID, mapError(err))
	}
	return w, nil
}

func (r *Reader) ListWallets(ctx context.Context) ([]*entity.Wallet, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+walletColumns+` FROM wallets ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("listing wallets: %w", mapError(err))
	}
	defer rows.Close()

	var wallets []*entity.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating wallets: %w", mapError(err))
	}
	return wallets, nil
}

// ListTransactions returns the user's transactions, newest first. A limit of
// zero or less returns all of them.
func (r *Reader) ListTransactions(ctx context.Context, userID string, limit int) ([]*entity.Transaction, error) {
	query := `SELECT transaction_id::text, user_id, wallet_id::text, asset_id::text, transaction_type,
			amount::text, quantity::text, status, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, transaction_id`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transactions for %s: %w", userID, mapError(err))
	}
	defer rows.Close()

	var txns []*entity.Transaction
	for rows.Next() {
		var (
			t              entity.Transaction
			txType, status string
			amount         string
			quantity       *string
		)
		if err := rows.Scan(&t.TransactionID, &t.UserID, &t.WalletID, &t.AssetID, &txType,
			&amount, &quantity, &status, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		t.Type = entity.TransactionType(txType)
		t.Status = entity.TransactionStatus(status)
		if t.Amount, err = parseNumeric("amount", amount); err != nil {
			return nil, err
		}
		if t.Quantity, err = parseOptionalNumeric("quantity", quantity); err != nil {
			return nil, err
		}
		txns = append(txns, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transactions: %w", mapError(err))
	}
	return txns, nil
}

const ledgerColumns = `ledger_id::text, entry_seq, user_id, transaction_id::text, wallet_id::text, entry_type,
	amount::text, balance_after::text, fund_account_balance::text, "timestamp"`

func scanLedgerEntry(row pgx.Row) (*entity.LedgerEntry, error) {
	var (
		e                          entity.LedgerEntry
		entryType                  string
		amount, balanceAfter, fund string
	)
	if err := row.Scan(&e.LedgerID, &e.Sequence, &e.UserID, &e.TransactionID, &e.WalletID, &entryType,
		&amount, &balanceAfter, &fund, &e.Timestamp); err != nil {
		return nil, err
	}
	e.EntryType = entity.EntryType(entryType)
	var err error
	if e.Amount, err = parseNumeric("amount", amount); err != nil {
		return nil, err
	}
	if e.BalanceAfter, err = parseNumeric("balance_after", balanceAfter); err != nil {
		return nil, err
	}
	if e.FundAccountBalance, err = parseNumeric("fund_account_balance", fund); err != nil {
		return nil, err
	}
	return &e, nil
}

// ListLedgerEntries returns a wallet's entries in entry_seq order, which is
// the order the wallet lock granted them.
func (r *Reader) ListLedgerEntries(ctx context.Context, walletID string) ([]*entity.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+ledgerColumns+` FROM client_fund_ledger WHERE wallet_id = $1 ORDER BY entry_seq`,
		walletID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing ledger entries for wallet %s: %w", walletID, mapError(err))
	}
	defer rows.Close()

	var entries []*entity.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ledger entries: %w", mapError(err))
	}
	return entries, nil
}

func (r *Reader) LatestLedgerEntry(ctx context.Context) (*entity.LedgerEntry, error) {
	e, err := scanLedgerEntry(r.pool.QueryRow(ctx,
		`SELECT `+ledgerColumns+` FROM client_fund_ledger ORDER BY entry_seq DESC LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading latest ledger entry: %w", mapError(err))
	}
	return e, nil
}
