package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AssetType distinguishes listed stocks from mutual funds.
type AssetType string

const (
	AssetTypeStock      AssetType = "stock"
	AssetTypeMutualFund AssetType = "mutual_fund"
)

// Asset is a tradable instrument. Prices are written only by the price engine.
type Asset struct {
	AssetID        string
	Symbol         string
	Name           string
	AssetType      AssetType
	CurrentPrice   decimal.Decimal
	PriceChangePct decimal.Decimal
	UpdatedAt      time.Time
}

// TradablePrice returns the current price or ErrInvalidPrice when it is not positive.
func (a *Asset) TradablePrice() (decimal.Decimal, error) {
	if !a.CurrentPrice.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s priced at %s", ErrInvalidPrice, a.Symbol, a.CurrentPrice.String())
	}
	return a.CurrentPrice, nil
}

// IsFund reports whether the asset is a mutual fund.
func (a *Asset) IsFund() bool {
	return a.AssetType == AssetTypeMutualFund
}
