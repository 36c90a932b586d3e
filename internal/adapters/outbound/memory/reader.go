package memory

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
)

// GetWallet returns a copy of the user's wallet, or nil.
func (s *Store) GetWallet(_ context.Context, userID string) (*entity.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.data.wallets[userID]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

// ListWallets returns copies of every wallet ordered by user id.
func (s *Store) ListWallets(_ context.Context) ([]*entity.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*entity.Wallet, 0, len(s.data.wallets))
	for _, w := range s.data.wallets {
		cp := *w
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// ListTransactions returns the user's transactions, newest first.
func (s *Store) ListTransactions(_ context.Context, userID string, limit int) ([]*entity.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Transaction
	for i := len(s.data.transactions) - 1; i >= 0; i-- {
		txn := s.data.transactions[i]
		if txn.UserID != userID {
			continue
		}
		cp := *txn
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ListLedgerEntries returns a wallet's entries in write order.
func (s *Store) ListLedgerEntries(_ context.Context, walletID string) ([]*entity.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.LedgerEntry
	for _, e := range s.data.ledger {
		if e.WalletID == walletID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// LatestLedgerEntry returns the last written entry, or nil.
func (s *Store) LatestLedgerEntry(_ context.Context) (*entity.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data.ledger) == 0 {
		return nil, nil
	}
	cp := *s.data.ledger[len(s.data.ledger)-1]
	return &cp, nil
}

// ListAssets returns copies of every asset ordered by symbol.
func (s *Store) ListAssets(_ context.Context) ([]*entity.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*entity.Asset, 0, len(s.data.assets))
	for _, a := range s.data.assets {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// AverageHeldCost returns the mean average_price per held asset.
func (s *Store) AverageHeldCost(_ context.Context) (map[string]decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sums := make(map[string]decimal.Decimal)
	counts := make(map[string]int64)
	for _, h := range s.data.holdings {
		if !h.Quantity.IsPositive() {
			continue
		}
		sums[h.AssetID] = sums[h.AssetID].Add(h.AveragePrice)
		counts[h.AssetID]++
	}
	out := make(map[string]decimal.Decimal, len(sums))
	for assetID, sum := range sums {
		out[assetID] = sum.Div(decimal.NewFromInt(counts[assetID]))
	}
	return out, nil
}

// UpdateAssetPrice stores a new price.
func (s *Store) UpdateAssetPrice(_ context.Context, assetID string, price, changePct decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpUpdateAssetPrice); err != nil {
		return err
	}
	a, ok := s.data.assets[assetID]
	if !ok {
		return entity.ErrAssetNotFound
	}
	a.CurrentPrice = price
	a.PriceChangePct = changePct
	return nil
}

// HoldingsValue returns Σ quantity * current_price over the user's holdings.
func (s *Store) HoldingsValue(_ context.Context, userID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	p, ok := s.data.portfolios[userID]
	if !ok {
		return total, nil
	}
	for _, h := range s.data.holdings {
		if h.PortfolioID != p.PortfolioID {
			continue
		}
		if a, ok := s.data.assets[h.AssetID]; ok {
			total = total.Add(h.Value(a.CurrentPrice))
		}
	}
	return total, nil
}

// UpsertScore stores a user's score, keeping the previous rank.
func (s *Store) UpsertScore(_ context.Context, entry *entity.LeaderboardEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpUpsertScore); err != nil {
		return err
	}
	cp := *entry
	if prev, ok := s.data.scores[entry.UserID]; ok {
		cp.Rank = prev.Rank
	}
	s.data.scores[entry.UserID] = &cp
	return nil
}

// ListScores returns copies of every score.
func (s *Store) ListScores(_ context.Context) ([]*entity.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*entity.LeaderboardEntry, 0, len(s.data.scores))
	for _, e := range s.data.scores {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

// SaveRanks stores ranks.
func (s *Store) SaveRanks(_ context.Context, entries []*entity.LeaderboardEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if cur, ok := s.data.scores[e.UserID]; ok {
			cur.Rank = e.Rank
		}
	}
	return nil
}
