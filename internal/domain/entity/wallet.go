package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a wallet is created without an explicit currency.
const DefaultCurrency = "INR"

// Wallet is a user's cash balance. There is at most one wallet per user.
type Wallet struct {
	WalletID  string
	UserID    string
	Balance   decimal.Decimal
	Currency  string
	UpdatedAt time.Time
}

// NewWallet creates an empty wallet for the user.
func NewWallet(walletID, userID, currency string) (*Wallet, error) {
	if walletID == "" {
		return nil, fmt.Errorf("wallet id is required")
	}
	if userID == "" {
		return nil, ErrInvalidUser
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	return &Wallet{
		WalletID:  walletID,
		UserID:    userID,
		Balance:   decimal.Zero,
		Currency:  currency,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// Credit returns the balance after adding amount. The wallet itself is not modified.
func (w *Wallet) Credit(amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return w.Balance.Add(amount), nil
}

// Debit returns the balance after subtracting amount, or insufficient if the
// balance does not cover it. The wallet itself is not modified.
func (w *Wallet) Debit(amount decimal.Decimal, insufficient error) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	if w.Balance.LessThan(amount) {
		return decimal.Zero, fmt.Errorf("%w: balance %s, required %s", insufficient, w.Balance.StringFixed(MoneyScale), amount.StringFixed(MoneyScale))
	}
	return w.Balance.Sub(amount), nil
}
