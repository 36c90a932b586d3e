package entity

import (
	"errors"
	"strings"
	"testing"
)

func TestTransaction_Validate(t *testing.T) {
	assetID := "asset-1"
	qty := d("5")

	valid := func() *Transaction {
		return &Transaction{
			TransactionID: "t-1",
			UserID:        "u-1",
			WalletID:      "w-1",
			Type:          TransactionTypeDeposit,
			Amount:        d("10"),
			Status:        TransactionStatusCompleted,
		}
	}

	tests := []struct {
		name        string
		mutate      func(*Transaction)
		wantErr     error
		errContains string
	}{
		{name: "valid deposit", mutate: func(*Transaction) {}},
		{name: "valid buy", mutate: func(tx *Transaction) {
			tx.Type = TransactionTypeBuy
			tx.AssetID = &assetID
			tx.Quantity = &qty
		}},
		{name: "missing user", mutate: func(tx *Transaction) { tx.UserID = "" }, wantErr: ErrInvalidUser},
		{name: "zero amount", mutate: func(tx *Transaction) { tx.Amount = d("0") }, wantErr: ErrInvalidAmount},
		{name: "buy without asset", mutate: func(tx *Transaction) {
			tx.Type = TransactionTypeBuy
			tx.Quantity = &qty
		}, errContains: "requires an asset id"},
		{name: "unknown type", mutate: func(tx *Transaction) { tx.Type = "transfer" }, errContains: "unknown transaction type"},
		{name: "unknown status", mutate: func(tx *Transaction) { tx.Status = "done" }, errContains: "unknown transaction status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := valid()
			tt.mutate(tx)
			err := tx.Validate()
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
			case tt.errContains != "":
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("expected error containing %q, got %v", tt.errContains, err)
				}
			default:
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		})
	}
}

func TestErrConnectionUnavailableIsStoreUnavailable(t *testing.T) {
	if !errors.Is(ErrConnectionUnavailable, ErrStoreUnavailable) {
		t.Fatal("ErrConnectionUnavailable must match ErrStoreUnavailable")
	}
	if IsBusinessError(ErrStoreUnavailable) {
		t.Error("store errors are not business errors")
	}
	if !IsBusinessError(ErrInsufficientBalance) {
		t.Error("insufficient balance is a business error")
	}
}
