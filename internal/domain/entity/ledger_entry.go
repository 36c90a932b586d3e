package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EntryType is the direction of a ledger entry against a wallet.
type EntryType string

const (
	EntryTypeCredit EntryType = "credit"
	EntryTypeDebit  EntryType = "debit"
)

// LedgerEntry ties a transaction to the wallet's balance trajectory and to the
// fund-wide total at the time it was written.
type LedgerEntry struct {
	LedgerID           string
	Sequence           int64
	UserID             string
	TransactionID      string
	WalletID           string
	EntryType          EntryType
	Amount             decimal.Decimal
	BalanceAfter       decimal.Decimal
	FundAccountBalance decimal.Decimal
	Timestamp          time.Time
}

// Signed returns the amount with the sign of its direction.
func (e *LedgerEntry) Signed() decimal.Decimal {
	if e.EntryType == EntryTypeDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// ReplayMismatch describes an entry whose recorded balance disagrees with the replay.
type ReplayMismatch struct {
	LedgerID string
	Expected decimal.Decimal
	Recorded decimal.Decimal
}

// ReplayLedger replays entries of one wallet, which must already be in replay
// order, starting from a zero balance. It returns the final balance and every
// entry whose BalanceAfter differs from the replayed value.
func ReplayLedger(entries []*LedgerEntry) (decimal.Decimal, []ReplayMismatch, error) {
	balance := decimal.Zero
	var mismatches []ReplayMismatch
	walletID := ""
	for _, e := range entries {
		if walletID == "" {
			walletID = e.WalletID
		} else if e.WalletID != walletID {
			return decimal.Zero, nil, fmt.Errorf("ledger replay spans wallets %s and %s", walletID, e.WalletID)
		}
		balance = balance.Add(e.Signed())
		if !balance.Equal(e.BalanceAfter) {
			mismatches = append(mismatches, ReplayMismatch{
				LedgerID: e.LedgerID,
				Expected: balance,
				Recorded: e.BalanceAfter,
			})
			// Continue from the recorded value so one bad row is reported once.
			balance = e.BalanceAfter
		}
	}
	return balance, mismatches, nil
}
