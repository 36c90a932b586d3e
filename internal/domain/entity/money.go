package entity

import "github.com/shopspring/decimal"

const (
	// MoneyScale is the number of fractional digits kept for currency amounts.
	MoneyScale int32 = 2

	// QuantityScale is the number of fractional digits kept for fund units.
	QuantityScale int32 = 6

	// PriceScale is the number of fractional digits kept for asset prices.
	PriceScale int32 = 4
)

// QuantityEpsilon is the remaining quantity below which a holding is treated as closed.
var QuantityEpsilon = decimal.New(1, -QuantityScale)

// RoundMoney rounds an amount to currency precision, half away from zero.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// RoundQuantity rounds a quantity to fund-unit precision.
func RoundQuantity(d decimal.Decimal) decimal.Decimal {
	return d.Round(QuantityScale)
}

// RoundPrice rounds a price to price precision.
func RoundPrice(d decimal.Decimal) decimal.Decimal {
	return d.Round(PriceScale)
}
