package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType identifies the financial operation that produced a transaction record.
type TransactionType string

const (
	TransactionTypeBuy      TransactionType = "buy"
	TransactionTypeSell     TransactionType = "sell"
	TransactionTypeDeposit  TransactionType = "deposit"
	TransactionTypeWithdraw TransactionType = "withdraw"
)

// TransactionStatus is fixed when the record is created.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Transaction is the immutable audit record of one financial operation.
type Transaction struct {
	TransactionID string
	UserID        string
	WalletID      string
	AssetID       *string
	Type          TransactionType
	Amount        decimal.Decimal
	Quantity      *decimal.Decimal
	Status        TransactionStatus
	CreatedAt     time.Time
}

// EntryType returns the ledger direction implied by the transaction type.
func (t TransactionType) EntryType() EntryType {
	switch t {
	case TransactionTypeDeposit, TransactionTypeSell:
		return EntryTypeCredit
	default:
		return EntryTypeDebit
	}
}

// Validate checks the record before it is persisted.
func (t *Transaction) Validate() error {
	if t.TransactionID == "" {
		return fmt.Errorf("transaction id is required")
	}
	if t.UserID == "" {
		return ErrInvalidUser
	}
	if t.WalletID == "" {
		return fmt.Errorf("wallet id is required")
	}
	switch t.Type {
	case TransactionTypeBuy, TransactionTypeSell:
		if t.AssetID == nil || *t.AssetID == "" {
			return fmt.Errorf("%s transaction requires an asset id", t.Type)
		}
		if t.Quantity == nil || !t.Quantity.IsPositive() {
			return fmt.Errorf("%s transaction: %w", t.Type, ErrInvalidQuantity)
		}
	case TransactionTypeDeposit, TransactionTypeWithdraw:
	default:
		return fmt.Errorf("unknown transaction type %q", t.Type)
	}
	if !t.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	switch t.Status {
	case TransactionStatusPending, TransactionStatusCompleted, TransactionStatusFailed:
	default:
		return fmt.Errorf("unknown transaction status %q", t.Status)
	}
	return nil
}
