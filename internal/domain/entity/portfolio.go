package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Portfolio groups a user's holdings. One per user.
type Portfolio struct {
	PortfolioID string
	UserID      string
	CreatedAt   time.Time
}

// Holding is a position in one asset inside a portfolio.
type Holding struct {
	HoldingID    string
	PortfolioID  string
	AssetID      string
	Quantity     decimal.Decimal
	AveragePrice decimal.Decimal
	UpdatedAt    time.Time
}

// NewHolding opens a position at the given price.
func NewHolding(holdingID, portfolioID, assetID string, quantity, price decimal.Decimal) (*Holding, error) {
	if !quantity.IsPositive() {
		return nil, ErrInvalidQuantity
	}
	if !price.IsPositive() {
		return nil, ErrInvalidPrice
	}
	return &Holding{
		HoldingID:    holdingID,
		PortfolioID:  portfolioID,
		AssetID:      assetID,
		Quantity:     quantity,
		AveragePrice: RoundPrice(price),
		UpdatedAt:    time.Now().UTC(),
	}, nil
}

// Add folds a new lot into the position using weighted-average cost basis.
func (h *Holding) Add(quantity, price decimal.Decimal) error {
	if !quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	newQty := h.Quantity.Add(quantity)
	cost := h.Quantity.Mul(h.AveragePrice).Add(quantity.Mul(price))
	h.AveragePrice = cost.DivRound(newQty, PriceScale)
	h.Quantity = newQty
	h.UpdatedAt = time.Now().UTC()
	return nil
}

// Reduce removes quantity from the position. It reports whether the position
// is closed, meaning the remainder is within QuantityEpsilon of zero.
func (h *Holding) Reduce(quantity decimal.Decimal) (closed bool, err error) {
	if !quantity.IsPositive() {
		return false, ErrInvalidQuantity
	}
	if h.Quantity.LessThan(quantity) {
		return false, fmt.Errorf("%w: holding %s, requested %s", ErrInsufficientQuantity, h.Quantity.String(), quantity.String())
	}
	h.Quantity = h.Quantity.Sub(quantity)
	h.UpdatedAt = time.Now().UTC()
	return h.Quantity.LessThanOrEqual(QuantityEpsilon), nil
}

// Value returns quantity * price.
func (h *Holding) Value(price decimal.Decimal) decimal.Decimal {
	return h.Quantity.Mul(price)
}
