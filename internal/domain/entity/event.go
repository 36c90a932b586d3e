package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEvent is emitted after a financial operation commits. Consumers are
// best-effort side effects: leaderboard recompute, notifications, balance push.
type LedgerEvent struct {
	TransactionID string           `json:"transactionId"`
	UserID        string           `json:"userId"`
	UserEmail     string           `json:"userEmail,omitempty"`
	WalletID      string           `json:"walletId"`
	Type          TransactionType  `json:"type"`
	AssetID       string           `json:"assetId,omitempty"`
	Symbol        string           `json:"symbol,omitempty"`
	Amount        decimal.Decimal  `json:"amount"`
	Quantity      *decimal.Decimal `json:"quantity,omitempty"`
	BalanceAfter  decimal.Decimal  `json:"balanceAfter"`
	Currency      string           `json:"currency"`
	OccurredAt    time.Time        `json:"occurredAt"`
}

// AffectsHoldings reports whether the event changed the user's positions.
func (e LedgerEvent) AffectsHoldings() bool {
	return e.Type == TransactionTypeBuy || e.Type == TransactionTypeSell
}

// Notification is the transaction confirmation handed to the notification boundary.
type Notification struct {
	Email   string      `json:"email"`
	Subject string      `json:"subject"`
	Event   LedgerEvent `json:"event"`
}
