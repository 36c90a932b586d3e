// Package memory provides in-memory implementations of the outbound ports.
//
// Store keeps wallets, transactions, ledger entries, portfolios, holdings,
// assets and leaderboard scores in process memory. Transactions run against a
// copy of the dataset that replaces the live one only on success, so a failed
// or panicking transaction leaves no trace. Transactions are serialized by a
// single mutex; use the postgres adapter where per-row concurrency matters.
//
// The store is intended for tests and local runs. Fault injection (FailOn) lets
// tests break a transaction at a chosen step.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/ports/outbound"
)

// Compile-time checks that Store implements the ledger ports.
var (
	_ outbound.LedgerStore           = (*Store)(nil)
	_ outbound.LedgerReader          = (*Store)(nil)
	_ outbound.PriceRepository       = (*Store)(nil)
	_ outbound.LeaderboardRepository = (*Store)(nil)
)

// Operation names accepted by FailOn.
const (
	OpLockWallet        = "LockWallet"
	OpSetWalletBalance  = "SetWalletBalance"
	OpInsertTransaction = "InsertTransaction"
	OpFundBalance       = "FundAccountBalance"
	OpInsertLedgerEntry = "InsertLedgerEntry"
	OpSaveHolding       = "SaveHolding"
	OpDeleteHolding     = "DeleteHolding"
	OpUpdateAssetPrice  = "UpdateAssetPrice"
	OpUpsertScore       = "UpsertScore"
)

type dataset struct {
	wallets      map[string]*entity.Wallet // by user id
	transactions []*entity.Transaction
	ledger       []*entity.LedgerEntry
	portfolios   map[string]*entity.Portfolio // by user id
	holdings     map[string]*entity.Holding   // by portfolio id + asset id
	assets       map[string]*entity.Asset
	scores       map[string]*entity.LeaderboardEntry
	ledgerSeq    int64
}

func newDataset() *dataset {
	return &dataset{
		wallets:    make(map[string]*entity.Wallet),
		portfolios: make(map[string]*entity.Portfolio),
		holdings:   make(map[string]*entity.Holding),
		assets:     make(map[string]*entity.Asset),
		scores:     make(map[string]*entity.LeaderboardEntry),
	}
}

func (d *dataset) clone() *dataset {
	c := newDataset()
	for k, w := range d.wallets {
		cp := *w
		c.wallets[k] = &cp
	}
	c.transactions = append(c.transactions, d.transactions...)
	c.ledger = append(c.ledger, d.ledger...)
	for k, p := range d.portfolios {
		cp := *p
		c.portfolios[k] = &cp
	}
	for k, h := range d.holdings {
		cp := *h
		c.holdings[k] = &cp
	}
	for k, a := range d.assets {
		cp := *a
		c.assets[k] = &cp
	}
	for k, s := range d.scores {
		cp := *s
		c.scores[k] = &cp
	}
	c.ledgerSeq = d.ledgerSeq
	return c
}

func holdingKey(portfolioID, assetID string) string {
	return portfolioID + "/" + assetID
}

// Store is an in-memory ledger store.
type Store struct {
	mu       sync.Mutex
	data     *dataset
	failures map[string]error
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		data:     newDataset(),
		failures: make(map[string]error),
	}
}

// FailOn makes every subsequent call of op inside a transaction return err.
// Pass a nil err to clear the failure.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) failure(op string) error {
	return s.failures[op]
}

// PutAsset inserts or replaces an asset.
func (s *Store) PutAsset(asset *entity.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *asset
	s.data.assets[asset.AssetID] = &cp
}

// GetAsset returns a copy of an asset, or nil.
func (s *Store) GetAsset(assetID string) *entity.Asset {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.data.assets[assetID]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

// Holdings returns copies of a user's holdings.
func (s *Store) Holdings(userID string) []*entity.Holding {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.portfolios[userID]
	if !ok {
		return nil
	}
	var out []*entity.Holding
	for _, h := range s.data.holdings {
		if h.PortfolioID == p.PortfolioID {
			cp := *h
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out
}

// PutHolding inserts a holding for the user, creating the portfolio if needed.
func (s *Store) PutHolding(userID, assetID string, quantity, averagePrice decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.portfolios[userID]
	if !ok {
		p = &entity.Portfolio{PortfolioID: uuid.NewString(), UserID: userID, CreatedAt: time.Now().UTC()}
		s.data.portfolios[userID] = p
	}
	s.data.holdings[holdingKey(p.PortfolioID, assetID)] = &entity.Holding{
		HoldingID:    uuid.NewString(),
		PortfolioID:  p.PortfolioID,
		AssetID:      assetID,
		Quantity:     quantity,
		AveragePrice: averagePrice,
		UpdatedAt:    time.Now().UTC(),
	}
}

// CountTransactions returns the number of transaction records.
func (s *Store) CountTransactions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.transactions)
}

// CountLedgerEntries returns the number of ledger entries.
func (s *Store) CountLedgerEntries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.ledger)
}

// WithTransaction runs fn against a private copy of the dataset and publishes
// the copy only if fn succeeds.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx outbound.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", entity.ErrStoreUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.data.clone()
	if err := fn(&memTx{store: s, data: working}); err != nil {
		return err
	}
	s.data = working
	return nil
}

// memTx is the LedgerTx bound to a working copy. The store mutex is held for
// the whole transaction, which stands in for row locks.
type memTx struct {
	store *Store
	data  *dataset
}

func (t *memTx) LockWallet(_ context.Context, userID, currency string) (*entity.Wallet, error) {
	if err := t.store.failure(OpLockWallet); err != nil {
		return nil, err
	}
	if w, ok := t.data.wallets[userID]; ok {
		cp := *w
		return &cp, nil
	}
	w, err := entity.NewWallet(uuid.NewString(), userID, currency)
	if err != nil {
		return nil, err
	}
	t.data.wallets[userID] = w
	cp := *w
	return &cp, nil
}

func (t *memTx) SetWalletBalance(_ context.Context, wallet *entity.Wallet, balance decimal.Decimal) error {
	if err := t.store.failure(OpSetWalletBalance); err != nil {
		return err
	}
	w, ok := t.data.wallets[wallet.UserID]
	if !ok || w.WalletID != wallet.WalletID {
		return fmt.Errorf("wallet %s not found", wallet.WalletID)
	}
	if balance.IsNegative() {
		return fmt.Errorf("wallet %s: balance cannot be negative", wallet.WalletID)
	}
	w.Balance = balance
	w.UpdatedAt = time.Now().UTC()
	wallet.Balance = balance
	wallet.UpdatedAt = w.UpdatedAt
	return nil
}

func (t *memTx) InsertTransaction(_ context.Context, txn *entity.Transaction) error {
	if err := t.store.failure(OpInsertTransaction); err != nil {
		return err
	}
	if err := txn.Validate(); err != nil {
		return err
	}
	cp := *txn
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
		txn.CreatedAt = cp.CreatedAt
	}
	t.data.transactions = append(t.data.transactions, &cp)
	return nil
}

func (t *memTx) FundAccountBalance(_ context.Context) (decimal.Decimal, error) {
	if err := t.store.failure(OpFundBalance); err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, w := range t.data.wallets {
		total = total.Add(w.Balance)
	}
	return total, nil
}

func (t *memTx) InsertLedgerEntry(_ context.Context, entry *entity.LedgerEntry) error {
	if err := t.store.failure(OpInsertLedgerEntry); err != nil {
		return err
	}
	t.data.ledgerSeq++
	cp := *entry
	cp.Sequence = t.data.ledgerSeq
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now().UTC()
	}
	entry.Sequence = cp.Sequence
	entry.Timestamp = cp.Timestamp
	t.data.ledger = append(t.data.ledger, &cp)
	return nil
}

func (t *memTx) GetAsset(_ context.Context, assetID string) (*entity.Asset, error) {
	a, ok := t.data.assets[assetID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entity.ErrAssetNotFound, assetID)
	}
	cp := *a
	return &cp, nil
}

func (t *memTx) EnsurePortfolio(_ context.Context, userID string) (*entity.Portfolio, error) {
	if p, ok := t.data.portfolios[userID]; ok {
		cp := *p
		return &cp, nil
	}
	p := &entity.Portfolio{PortfolioID: uuid.NewString(), UserID: userID, CreatedAt: time.Now().UTC()}
	t.data.portfolios[userID] = p
	cp := *p
	return &cp, nil
}

func (t *memTx) LockHolding(_ context.Context, portfolioID, assetID string) (*entity.Holding, error) {
	h, ok := t.data.holdings[holdingKey(portfolioID, assetID)]
	if !ok {
		return nil, nil
	}
	cp := *h
	return &cp, nil
}

func (t *memTx) SaveHolding(_ context.Context, holding *entity.Holding) error {
	if err := t.store.failure(OpSaveHolding); err != nil {
		return err
	}
	cp := *holding
	t.data.holdings[holdingKey(holding.PortfolioID, holding.AssetID)] = &cp
	return nil
}

func (t *memTx) DeleteHolding(_ context.Context, holding *entity.Holding) error {
	if err := t.store.failure(OpDeleteHolding); err != nil {
		return err
	}
	delete(t.data.holdings, holdingKey(holding.PortfolioID, holding.AssetID))
	return nil
}
