// Package shared provides helpers used by more than one application service.
package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/ports/outbound"
)

// Movement is one change to a wallet balance together with the audit records
// it produces.
type Movement struct {
	Wallet   *entity.Wallet
	Type     entity.TransactionType
	Amount   decimal.Decimal
	AssetID  string
	Quantity decimal.Decimal

	// Insufficient is the error returned when a debit exceeds the balance.
	Insufficient error
}

// Posting is what ApplyMovement wrote.
type Posting struct {
	Transaction *entity.Transaction
	Entry       *entity.LedgerEntry
}

// ApplyMovement runs the write sequence shared by every financial operation:
// update the locked wallet, insert the transaction record, read the fund total
// and insert the ledger entry. The wallet must have been obtained from tx.LockWallet.
func ApplyMovement(ctx context.Context, tx outbound.LedgerTx, m Movement) (*Posting, error) {
	entryType := m.Type.EntryType()

	var (
		newBalance decimal.Decimal
		err        error
	)
	if entryType == entity.EntryTypeCredit {
		newBalance, err = m.Wallet.Credit(m.Amount)
	} else {
		insufficient := m.Insufficient
		if insufficient == nil {
			insufficient = entity.ErrInsufficientFunds
		}
		newBalance, err = m.Wallet.Debit(m.Amount, insufficient)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.SetWalletBalance(ctx, m.Wallet, newBalance); err != nil {
		return nil, fmt.Errorf("updating wallet balance: %w", err)
	}

	now := time.Now().UTC()
	txn := &entity.Transaction{
		TransactionID: uuid.NewString(),
		UserID:        m.Wallet.UserID,
		WalletID:      m.Wallet.WalletID,
		Type:          m.Type,
		Amount:        m.Amount,
		Status:        entity.TransactionStatusCompleted,
		CreatedAt:     now,
	}
	if m.AssetID != "" {
		assetID := m.AssetID
		qty := m.Quantity
		txn.AssetID = &assetID
		txn.Quantity = &qty
	}
	if err := tx.InsertTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("inserting transaction: %w", err)
	}

	fundBalance, err := tx.FundAccountBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading fund account balance: %w", err)
	}

	entry := &entity.LedgerEntry{
		LedgerID:           uuid.NewString(),
		UserID:             m.Wallet.UserID,
		TransactionID:      txn.TransactionID,
		WalletID:           m.Wallet.WalletID,
		EntryType:          entryType,
		Amount:             m.Amount,
		BalanceAfter:       newBalance,
		FundAccountBalance: fundBalance,
		Timestamp:          now,
	}
	if err := tx.InsertLedgerEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("inserting ledger entry: %w", err)
	}

	return &Posting{Transaction: txn, Entry: entry}, nil
}

// Outcome classifies an operation result for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case entity.IsBusinessError(err):
		return "rejected"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

// NopPublisher discards events. Used when a service is built without a dispatcher.
type NopPublisher struct{}

// Publish implements outbound.EventPublisher.
func (NopPublisher) Publish(context.Context, entity.LedgerEvent) {}

// NopMetrics discards metrics.
type NopMetrics struct{}

func (NopMetrics) RecordOperation(context.Context, string, string, time.Duration) {}
func (NopMetrics) RecordPriceRun(context.Context, int, int, time.Duration)        {}
func (NopMetrics) RecordSideEffectFailure(context.Context, string)                {}
