package postgrest

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/ports/outbound"
)

var _ outbound.LedgerReader = (*Reader)(nil)

// Reader serves committed ledger data over PostgREST.
type Reader struct {
	client *Client
}

// NewReader creates a ledger reader.
func NewReader(client *Client) (*Reader, error) {
	if client == nil {
		return nil, entity.ErrConnectionUnavailable
	}
	return &Reader{client: client}, nil
}

func (r *Reader) GetWallet(ctx context.Context, userID string) (*entity.Wallet, error) {
	var rows []walletRow
	if err := r.client.get(ctx, "wallets", url.Values{"user_id": {eq(userID)}, "limit": {"1"}}, &rows); err != nil {
		return nil, fmt.Errorf("loading wallet for %s: %w", userID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toEntity(), nil
}

func (r *Reader) ListWallets(ctx context.Context) ([]*entity.Wallet, error) {
	var rows []walletRow
	if err := r.client.get(ctx, "wallets", url.Values{"order": {"user_id.asc"}}, &rows); err != nil {
		return nil, fmt.Errorf("listing wallets: %w", err)
	}
	out := make([]*entity.Wallet, len(rows))
	for i, row := range rows {
		out[i] = row.toEntity()
	}
	return out, nil
}

func (r *Reader) ListTransactions(ctx context.Context, userID string, limit int) ([]*entity.Transaction, error) {
	q := url.Values{
		"user_id": {eq(userID)},
		"order":   {"created_at.desc,transaction_id.asc"},
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var rows []transactionRow
	if err := r.client.get(ctx, "transactions", q, &rows); err != nil {
		return nil, fmt.Errorf("listing transactions for %s: %w", userID, err)
	}
	out := make([]*entity.Transaction, len(rows))
	for i, row := range rows {
		out[i] = row.toEntity()
	}
	return out, nil
}

func (r *Reader) ListLedgerEntries(ctx context.Context, walletID string) ([]*entity.LedgerEntry, error) {
	var rows []ledgerRow
	q := url.Values{"wallet_id": {eq(walletID)}, "order": {"entry_seq.asc"}}
	if err := r.client.get(ctx, "client_fund_ledger", q, &rows); err != nil {
		return nil, fmt.Errorf("listing ledger entries for wallet %s: %w", walletID, err)
	}
	out := make([]*entity.LedgerEntry, len(rows))
	for i, row := range rows {
		out[i] = row.toEntity()
	}
	return out, nil
}

func (r *Reader) LatestLedgerEntry(ctx context.Context) (*entity.LedgerEntry, error) {
	var rows []ledgerRow
	q := url.Values{"order": {"entry_seq.desc"}, "limit": {"1"}}
	if err := r.client.get(ctx, "client_fund_ledger", q, &rows); err != nil {
		return nil, fmt.Errorf("loading latest ledger entry: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toEntity(), nil
}
