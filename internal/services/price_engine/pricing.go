package price_engine

import (
	"math"
	"math/rand/v2"

	"github.com/shopspring/decimal"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
)

// Mode describes how a new price was derived.
type Mode string

const (
	ModeDrift  Mode = "drift"
	ModeProfit Mode = "profit"
	ModeLoss   Mode = "loss"
)

// Bias ranges applied to held assets, as fractions of the average held cost.
const (
	profitMin = 0.05
	profitMax = 0.20
	lossMin   = 0.01
	lossMax   = 0.05
)

// minPrice is the floor for drifted prices.
var minPrice = decimal.New(1, -2)

// uniform draws from [lo, hi).
func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// drift applies an unbiased perturbation of at most maxChange in either direction.
func drift(rng *rand.Rand, price decimal.Decimal, maxChange float64) decimal.Decimal {
	factor := 1 + uniform(rng, -maxChange, maxChange)
	next := entity.RoundPrice(price.Mul(decimal.NewFromFloat(factor)))
	if next.LessThan(minPrice) {
		return minPrice
	}
	return next
}

// biased prices a held asset relative to its average held cost.
func biased(rng *rand.Rand, avgCost decimal.Decimal, mode Mode) decimal.Decimal {
	var factor float64
	if mode == ModeLoss {
		factor = 1 - uniform(rng, lossMin, lossMax)
	} else {
		factor = 1 + uniform(rng, profitMin, profitMax)
	}
	next := entity.RoundPrice(avgCost.Mul(decimal.NewFromFloat(factor)))
	if next.LessThan(minPrice) {
		return minPrice
	}
	return next
}

// lossCount returns the size of the loss group for n held assets: about a
// third, never less than one.
func lossCount(n int) int {
	if n == 0 {
		return 0
	}
	return max(1, int(math.Round(float64(n)/3)))
}

// partition shuffles held asset ids and assigns the first lossCount to the loss group.
func partition(rng *rand.Rand, held []string) map[string]Mode {
	shuffled := append([]string(nil), held...)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	losers := lossCount(len(shuffled))
	modes := make(map[string]Mode, len(shuffled))
	for i, id := range shuffled {
		if i < losers {
			modes[id] = ModeLoss
		} else {
			modes[id] = ModeProfit
		}
	}
	return modes
}

// changePct returns (next-prev)/prev in percent, rounded to 2 dp.
func changePct(prev, next decimal.Decimal) decimal.Decimal {
	if !prev.IsPositive() {
		return decimal.Zero
	}
	return next.Sub(prev).Div(prev).Mul(decimal.NewFromInt(100)).Round(2)
}
