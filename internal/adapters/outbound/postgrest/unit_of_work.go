package postgrest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/ports/outbound"
)

var _ outbound.LedgerTx = (*unitOfWork)(nil)

type walletWrite struct {
	wallet   entity.Wallet
	observed decimal.Decimal
	next     *decimal.Decimal
}

type holdingWrite struct {
	observed *holdingRow // nil when no row existed
	next     *entity.Holding
	deleted  bool
}

// unitOfWork reads through to PostgREST and buffers writes until commit.
type unitOfWork struct {
	client *Client
	logger *slog.Logger

	wallets      map[string]*walletWrite // by user id
	walletOrder  []string
	transactions []*entity.Transaction
	entries      []*entity.LedgerEntry
	holdings     map[string]*holdingWrite // by portfolio id + asset id
	holdingOrder []string
}

func newUnitOfWork(client *Client, logger *slog.Logger) *unitOfWork {
	return &unitOfWork{
		client:   client,
		logger:   logger,
		wallets:  make(map[string]*walletWrite),
		holdings: make(map[string]*holdingWrite),
	}
}

func (u *unitOfWork) fetchWallet(ctx context.Context, userID string) (*walletRow, error) {
	var rows []walletRow
	if err := u.client.get(ctx, "wallets", url.Values{"user_id": {eq(userID)}, "limit": {"1"}}, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (u *unitOfWork) LockWallet(ctx context.Context, userID, currency string) (*entity.Wallet, error) {
	if userID == "" {
		return nil, entity.ErrInvalidUser
	}
	if w, ok := u.wallets[userID]; ok {
		cp := w.wallet
		return &cp, nil
	}
	if currency == "" {
		currency = entity.DefaultCurrency
	}

	row, err := u.fetchWallet(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading wallet for %s: %w", userID, err)
	}
	if row == nil {
		create := walletRow{UserID: userID, Balance: decimal.Zero, Currency: currency}
		if err := u.client.insertIgnore(ctx, "wallets", "user_id", []walletRow{create}); err != nil {
			return nil, fmt.Errorf("creating wallet for %s: %w", userID, err)
		}
		if row, err = u.fetchWallet(ctx, userID); err != nil {
			return nil, fmt.Errorf("loading wallet for %s: %w", userID, err)
		}
		if row == nil {
			return nil, fmt.Errorf("wallet for %s missing after create", userID)
		}
	}

	w := row.toEntity()
	u.wallets[userID] = &walletWrite{wallet: *w, observed: w.Balance}
	u.walletOrder = append(u.walletOrder, userID)
	return w, nil
}

func (u *unitOfWork) SetWalletBalance(_ context.Context, wallet *entity.Wallet, balance decimal.Decimal) error {
	w, ok := u.wallets[wallet.UserID]
	if !ok || w.wallet.WalletID != wallet.WalletID {
		return fmt.Errorf("wallet %s was not locked in this operation", wallet.WalletID)
	}
	if balance.IsNegative() {
		return fmt.Errorf("wallet %s: balance cannot be negative", wallet.WalletID)
	}
	now := time.Now().UTC()
	w.next = &balance
	w.wallet.Balance = balance
	w.wallet.UpdatedAt = now
	wallet.Balance = balance
	wallet.UpdatedAt = now
	return nil
}

func (u *unitOfWork) InsertTransaction(_ context.Context, txn *entity.Transaction) error {
	if err := txn.Validate(); err != nil {
		return err
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	u.transactions = append(u.transactions, txn)
	return nil
}

// FundAccountBalance sums the committed balances of every wallet, with this
// operation's pending balances in place of their committed ones.
func (u *unitOfWork) FundAccountBalance(ctx context.Context) (decimal.Decimal, error) {
	var rows []walletRow
	if err := u.client.get(ctx, "wallets", url.Values{"select": {"user_id,balance"}}, &rows); err != nil {
		return decimal.Zero, fmt.Errorf("summing wallet balances: %w", err)
	}
	total := decimal.Zero
	for _, r := range rows {
		if w, ok := u.wallets[r.UserID]; ok && w.next != nil {
			total = total.Add(*w.next)
			continue
		}
		total = total.Add(r.Balance)
	}
	return total, nil
}

func (u *unitOfWork) InsertLedgerEntry(_ context.Context, entry *entity.LedgerEntry) error {
	u.entries = append(u.entries, entry)
	return nil
}

func (u *unitOfWork) GetAsset(ctx context.Context, assetID string) (*entity.Asset, error) {
	if _, err := uuid.Parse(assetID); err != nil {
		return nil, fmt.Errorf("%w: %s", entity.ErrAssetNotFound, assetID)
	}
	var rows []assetRow
	if err := u.client.get(ctx, "assets", url.Values{"asset_id": {eq(assetID)}}, &rows); err != nil {
		return nil, fmt.Errorf("loading asset %s: %w", assetID, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", entity.ErrAssetNotFound, assetID)
	}
	return rows[0].toEntity(), nil
}

func (u *unitOfWork) fetchPortfolio(ctx context.Context, userID string) (*portfolioRow, error) {
	var rows []portfolioRow
	if err := u.client.get(ctx, "portfolios", url.Values{"user_id": {eq(userID)}}, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (u *unitOfWork) EnsurePortfolio(ctx context.Context, userID string) (*entity.Portfolio, error) {
	if userID == "" {
		return nil, entity.ErrInvalidUser
	}
	row, err := u.fetchPortfolio(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading portfolio for %s: %w", userID, err)
	}
	if row == nil {
		if err := u.client.insertIgnore(ctx, "portfolios", "user_id", []portfolioRow{{UserID: userID}}); err != nil {
			return nil, fmt.Errorf("creating portfolio for %s: %w", userID, err)
		}
		if row, err = u.fetchPortfolio(ctx, userID); err != nil {
			return nil, fmt.Errorf("loading portfolio for %s: %w", userID, err)
		}
		if row == nil {
			return nil, fmt.Errorf("portfolio for %s missing after create", userID)
		}
	}
	return &entity.Portfolio{PortfolioID: row.PortfolioID, UserID: row.UserID, CreatedAt: row.CreatedAt}, nil
}

func holdingKey(portfolioID, assetID string) string {
	return portfolioID + "/" + assetID
}

func (u *unitOfWork) LockHolding(ctx context.Context, portfolioID, assetID string) (*entity.Holding, error) {
	key := holdingKey(portfolioID, assetID)
	if w, ok := u.holdings[key]; ok {
		if w.deleted || w.next == nil {
			return nil, nil
		}
		cp := *w.next
		return &cp, nil
	}

	var rows []holdingRow
	q := url.Values{"portfolio_id": {eq(portfolioID)}, "asset_id": {eq(assetID)}}
	if err := u.client.get(ctx, "portfolio_holdings", q, &rows); err != nil {
		return nil, fmt.Errorf("loading holding %s: %w", key, err)
	}

	w := &holdingWrite{}
	u.holdings[key] = w
	u.holdingOrder = append(u.holdingOrder, key)
	if len(rows) == 0 {
		return nil, nil
	}
	w.observed = &rows[0]
	h := rows[0].toEntity()
	cp := *h
	w.next = &cp
	return h, nil
}

func (u *unitOfWork) SaveHolding(_ context.Context, holding *entity.Holding) error {
	w, ok := u.holdings[holdingKey(holding.PortfolioID, holding.AssetID)]
	if !ok {
		return fmt.Errorf("holding %s/%s was not locked in this operation", holding.PortfolioID, holding.AssetID)
	}
	if holding.HoldingID == "" {
		holding.HoldingID = uuid.NewString()
	}
	cp := *holding
	w.next = &cp
	w.deleted = false
	return nil
}

func (u *unitOfWork) DeleteHolding(_ context.Context, holding *entity.Holding) error {
	w, ok := u.holdings[holdingKey(holding.PortfolioID, holding.AssetID)]
	if !ok {
		return fmt.Errorf("holding %s/%s was not locked in this operation", holding.PortfolioID, holding.AssetID)
	}
	w.next = nil
	w.deleted = true
	return nil
}

// undoStack collects compensating writes for steps already committed.
type undoStack []func(ctx context.Context) error

func (u *unitOfWork) rollback(ctx context.Context, undo undoStack) {
	ctx = context.WithoutCancel(ctx)
	for i := len(undo) - 1; i >= 0; i-- {
		if err := undo[i](ctx); err != nil {
			u.logger.Error("failed to undo ledger write", "error", err)
		}
	}
}

// commit writes transaction and ledger rows, then wallets, then holdings. The
// ledger rows go first so that an operation whose conditional wallet write
// succeeds already has its entry sequenced ahead of any operation that reads
// the new balance. A lost conditional write returns entity.ErrConcurrentUpdate
// after undoing the steps before it.
func (u *unitOfWork) commit(ctx context.Context) (err error) {
	var undo undoStack
	defer func() {
		if err != nil {
			u.rollback(ctx, undo)
		}
	}()

	if len(u.transactions) > 0 {
		rows := make([]transactionRow, len(u.transactions))
		ids := make([]string, len(u.transactions))
		for i, t := range u.transactions {
			rows[i] = transactionRowFrom(t)
			ids[i] = t.TransactionID
		}
		var stored []transactionRow
		if err := u.client.insert(ctx, "transactions", rows, &stored); err != nil {
			return fmt.Errorf("inserting transactions: %w", err)
		}
		for i := range stored {
			if i < len(u.transactions) && stored[i].TransactionID == u.transactions[i].TransactionID {
				u.transactions[i].CreatedAt = stored[i].CreatedAt
			}
		}
		undo = append(undo, func(ctx context.Context) error {
			_, err := u.client.remove(ctx, "transactions", url.Values{"transaction_id": {in(ids)}})
			return err
		})
	}

	if len(u.entries) > 0 {
		rows := make([]ledgerRow, len(u.entries))
		ids := make([]string, len(u.entries))
		for i, e := range u.entries {
			rows[i] = ledgerRowFrom(e)
			ids[i] = e.LedgerID
		}
		var stored []ledgerRow
		if err := u.client.insert(ctx, "client_fund_ledger", rows, &stored); err != nil {
			return fmt.Errorf("inserting ledger entries: %w", err)
		}
		for i := range stored {
			if i < len(u.entries) && stored[i].LedgerID == u.entries[i].LedgerID {
				u.entries[i].Sequence = stored[i].Sequence
				u.entries[i].Timestamp = stored[i].Timestamp
			}
		}
		undo = append(undo, func(ctx context.Context) error {
			_, err := u.client.remove(ctx, "client_fund_ledger", url.Values{"ledger_id": {in(ids)}})
			return err
		})
	}

	for _, userID := range u.walletOrder {
		w := u.wallets[userID]
		if w.next == nil {
			continue
		}
		if err := u.commitWallet(ctx, w); err != nil {
			return err
		}
		undo = append(undo, u.undoWallet(w))
	}

	for _, key := range u.holdingOrder {
		w := u.holdings[key]
		step, err := u.commitHolding(ctx, w)
		if err != nil {
			return err
		}
		if step != nil {
			undo = append(undo, step)
		}
	}
	return nil
}

func (u *unitOfWork) commitWallet(ctx context.Context, w *walletWrite) error {
	q := url.Values{
		"wallet_id": {eq(w.wallet.WalletID)},
		"balance":   {eq(w.observed.String())},
	}
	body := map[string]any{"balance": w.next.String(), "updated_at": w.wallet.UpdatedAt}
	n, err := u.client.patch(ctx, "wallets", q, body)
	if err != nil {
		return fmt.Errorf("updating wallet %s: %w", w.wallet.WalletID, err)
	}
	if n == 0 {
		return fmt.Errorf("wallet %s changed since it was read: %w", w.wallet.WalletID, entity.ErrConcurrentUpdate)
	}
	return nil
}

func (u *unitOfWork) undoWallet(w *walletWrite) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		q := url.Values{
			"wallet_id": {eq(w.wallet.WalletID)},
			"balance":   {eq(w.next.String())},
		}
		n, err := u.client.patch(ctx, "wallets", q, map[string]any{"balance": w.observed.String()})
		if err != nil {
			return fmt.Errorf("restoring wallet %s: %w", w.wallet.WalletID, err)
		}
		if n == 0 {
			return fmt.Errorf("restoring wallet %s: balance moved on", w.wallet.WalletID)
		}
		return nil
	}
}

// commitHolding applies one holding write conditioned on the quantity read
// by LockHolding and returns the step that undoes it.
func (u *unitOfWork) commitHolding(ctx context.Context, w *holdingWrite) (func(ctx context.Context) error, error) {
	switch {
	case w.observed == nil && w.next == nil:
		return nil, nil

	case w.observed == nil:
		row := holdingRowFrom(w.next)
		if err := u.client.insert(ctx, "portfolio_holdings", []holdingRow{row}, nil); err != nil {
			if errors.Is(err, errConflict) {
				return nil, fmt.Errorf("holding %s created concurrently: %w", row.AssetID, entity.ErrConcurrentUpdate)
			}
			return nil, fmt.Errorf("inserting holding: %w", err)
		}
		return func(ctx context.Context) error {
			_, err := u.client.remove(ctx, "portfolio_holdings", url.Values{"holding_id": {eq(row.HoldingID)}})
			return err
		}, nil

	case w.deleted:
		observed := *w.observed
		q := url.Values{
			"holding_id": {eq(observed.HoldingID)},
			"quantity":   {eq(observed.Quantity.String())},
		}
		n, err := u.client.remove(ctx, "portfolio_holdings", q)
		if err != nil {
			return nil, fmt.Errorf("deleting holding %s: %w", observed.HoldingID, err)
		}
		if n == 0 {
			return nil, fmt.Errorf("holding %s changed since it was read: %w", observed.HoldingID, entity.ErrConcurrentUpdate)
		}
		return func(ctx context.Context) error {
			return u.client.insert(ctx, "portfolio_holdings", []holdingRow{observed}, nil)
		}, nil

	default:
		observed := *w.observed
		next := holdingRowFrom(w.next)
		q := url.Values{
			"holding_id": {eq(observed.HoldingID)},
			"quantity":   {eq(observed.Quantity.String())},
		}
		body := map[string]any{
			"quantity":      next.Quantity.String(),
			"average_price": next.AveragePrice.String(),
			"updated_at":    next.UpdatedAt,
		}
		n, err := u.client.patch(ctx, "portfolio_holdings", q, body)
		if err != nil {
			return nil, fmt.Errorf("updating holding %s: %w", observed.HoldingID, err)
		}
		if n == 0 {
			return nil, fmt.Errorf("holding %s changed since it was read: %w", observed.HoldingID, entity.ErrConcurrentUpdate)
		}
		return func(ctx context.Context) error {
			q := url.Values{
				"holding_id": {eq(observed.HoldingID)},
				"quantity":   {eq(next.Quantity.String())},
			}
			_, err := u.client.patch(ctx, "portfolio_holdings", q, map[string]any{
				"quantity":      observed.Quantity.String(),
				"average_price": observed.AveragePrice.String(),
			})
			return err
		}, nil
	}
}
