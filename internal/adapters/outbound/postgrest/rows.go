package postgrest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
)

// Row types mirror the table columns as PostgREST serializes them. NUMERIC
// arrives as a JSON number and is sent back as a string; decimal handles both.

type walletRow struct {
	WalletID  string          `json:"wallet_id,omitempty"`
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	UpdatedAt time.Time       `json:"updated_at,omitzero"`
}

func (r walletRow) toEntity() *entity.Wallet {
	return &entity.Wallet{
		WalletID:  r.WalletID,
		UserID:    r.UserID,
		Balance:   r.Balance,
		Currency:  r.Currency,
		UpdatedAt: r.UpdatedAt,
	}
}

type transactionRow struct {
	TransactionID string           `json:"transaction_id"`
	UserID        string           `json:"user_id"`
	WalletID      string           `json:"wallet_id"`
	AssetID       *string          `json:"asset_id"`
	Type          string           `json:"transaction_type"`
	Amount        decimal.Decimal  `json:"amount"`
	Quantity      *decimal.Decimal `json:"quantity"`
	Status        string           `json:"status"`
	CreatedAt     time.Time        `json:"created_at,omitzero"`
}

func transactionRowFrom(t *entity.Transaction) transactionRow {
	return transactionRow{
		TransactionID: t.TransactionID,
		UserID:        t.UserID,
		WalletID:      t.WalletID,
		AssetID:       t.AssetID,
		Type:          string(t.Type),
		Amount:        t.Amount,
		Quantity:      t.Quantity,
		Status:        string(t.Status),
	}
}

func (r transactionRow) toEntity() *entity.Transaction {
	return &entity.Transaction{
		TransactionID: r.TransactionID,
		UserID:        r.UserID,
		WalletID:      r.WalletID,
		AssetID:       r.AssetID,
		Type:          entity.TransactionType(r.Type),
		Amount:        r.Amount,
		Quantity:      r.Quantity,
		Status:        entity.TransactionStatus(r.Status),
		CreatedAt:     r.CreatedAt,
	}
}

type ledgerRow struct {
	LedgerID           string          `json:"ledger_id"`
	Sequence           int64           `json:"entry_seq,omitempty"`
	UserID             string          `json:"user_id"`
	TransactionID      string          `json:"transaction_id"`
	WalletID           string          `json:"wallet_id"`
	EntryType          string          `json:"entry_type"`
	Amount             decimal.Decimal `json:"amount"`
	BalanceAfter       decimal.Decimal `json:"balance_after"`
	FundAccountBalance decimal.Decimal `json:"fund_account_balance"`
	Timestamp          time.Time       `json:"timestamp,omitzero"`
}

func ledgerRowFrom(e *entity.LedgerEntry) ledgerRow {
	return ledgerRow{
		LedgerID:           e.LedgerID,
		UserID:             e.UserID,
		TransactionID:      e.TransactionID,
		WalletID:           e.WalletID,
		EntryType:          string(e.EntryType),
		Amount:             e.Amount,
		BalanceAfter:       e.BalanceAfter,
		FundAccountBalance: e.FundAccountBalance,
	}
}

func (r ledgerRow) toEntity() *entity.LedgerEntry {
	return &entity.LedgerEntry{
		LedgerID:           r.LedgerID,
		Sequence:           r.Sequence,
		UserID:             r.UserID,
		TransactionID:      r.TransactionID,
		WalletID:           r.WalletID,
		EntryType:          entity.EntryType(r.EntryType),
		Amount:             r.Amount,
		BalanceAfter:       r.BalanceAfter,
		FundAccountBalance: r.FundAccountBalance,
		Timestamp:          r.Timestamp,
	}
}

type assetRow struct {
	AssetID        string          `json:"asset_id"`
	Symbol         string          `json:"symbol"`
	Name           string          `json:"name"`
	AssetType      string          `json:"asset_type"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	PriceChangePct decimal.Decimal `json:"price_change_pct"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (r assetRow) toEntity() *entity.Asset {
	return &entity.Asset{
		AssetID:        r.AssetID,
		Symbol:         r.Symbol,
		Name:           r.Name,
		AssetType:      entity.AssetType(r.AssetType),
		CurrentPrice:   r.CurrentPrice,
		PriceChangePct: r.PriceChangePct,
		UpdatedAt:      r.UpdatedAt,
	}
}

type portfolioRow struct {
	PortfolioID string    `json:"portfolio_id,omitempty"`
	UserID      string    `json:"user_id"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
}

type holdingRow struct {
	HoldingID    string          `json:"holding_id"`
	PortfolioID  string          `json:"portfolio_id"`
	AssetID      string          `json:"asset_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	AveragePrice decimal.Decimal `json:"average_price"`
	UpdatedAt    time.Time       `json:"updated_at,omitzero"`
}

func holdingRowFrom(h *entity.Holding) holdingRow {
	return holdingRow{
		HoldingID:    h.HoldingID,
		PortfolioID:  h.PortfolioID,
		AssetID:      h.AssetID,
		Quantity:     h.Quantity,
		AveragePrice: h.AveragePrice,
		UpdatedAt:    time.Now().UTC(),
	}
}

func (r holdingRow) toEntity() *entity.Holding {
	return &entity.Holding{
		HoldingID:    r.HoldingID,
		PortfolioID:  r.PortfolioID,
		AssetID:      r.AssetID,
		Quantity:     r.Quantity,
		AveragePrice: r.AveragePrice,
		UpdatedAt:    r.UpdatedAt,
	}
}

type leaderboardRow struct {
	UserID        string          `json:"user_id"`
	Score         int64           `json:"score"`
	Badge         string          `json:"badge"`
	Rank          int             `json:"rank"`
	HoldingsValue decimal.Decimal `json:"holdings_value"`
	UpdatedAt     time.Time       `json:"updated_at,omitzero"`
}

func (r leaderboardRow) toEntity() *entity.LeaderboardEntry {
	return &entity.LeaderboardEntry{
		UserID:        r.UserID,
		Score:         r.Score,
		Badge:         entity.Badge(r.Badge),
		Rank:          r.Rank,
		HoldingsValue: r.HoldingsValue,
		UpdatedAt:     r.UpdatedAt,
	}
}
