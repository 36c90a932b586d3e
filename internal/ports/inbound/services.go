// Package inbound contains the primary/inbound ports.
// These interfaces define the use cases that the application exposes.
package inbound

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
)

// OperationResult is returned by every successful financial operation.
type OperationResult struct {
	Wallet        *entity.Wallet
	TransactionID string
	Holding       *entity.Holding // nil for cash operations and closed positions
	Quantity      decimal.Decimal // units traded, zero for cash operations
}

// WalletService exposes the wallet engine.
type WalletService interface {
	GetBalance(ctx context.Context, userID string) (*entity.Wallet, error)
	Deposit(ctx context.Context, userID string, amount decimal.Decimal) (*OperationResult, error)
	Withdraw(ctx context.Context, userID string, amount decimal.Decimal) (*OperationResult, error)
	History(ctx context.Context, userID string, limit int) ([]*entity.Transaction, error)
}

// TradeService exposes trade settlement.
type TradeService interface {
	Buy(ctx context.Context, userID, assetID string, quantity decimal.Decimal) (*OperationResult, error)
	Sell(ctx context.Context, userID, assetID string, quantity decimal.Decimal) (*OperationResult, error)
	Invest(ctx context.Context, userID, assetID string, amount decimal.Decimal) (*OperationResult, error)
	Redeem(ctx context.Context, userID, assetID string, quantity decimal.Decimal) (*OperationResult, error)
}

// LeaderboardService exposes scoring.
type LeaderboardService interface {
	RecomputeUser(ctx context.Context, userID string) (*entity.LeaderboardEntry, error)
	Top(ctx context.Context, limit int) ([]*entity.LeaderboardEntry, error)
}

// PaymentConfirmation is the payment-gateway callback payload.
type PaymentConfirmation struct {
	OrderID   string
	PaymentID string
	Signature string
	Amount    decimal.Decimal
	UserID    string
}

// PaymentService credits wallets for verified payments.
type PaymentService interface {
	Confirm(ctx context.Context, p PaymentConfirmation) (*OperationResult, error)
}

// HealthChecker reports readiness and liveness for deployment probes.
type HealthChecker interface {
	IsReady() bool
	IsHealthy() bool
}
