package outbound

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
)

// PriceRepository is used by the price engine. Price writes are not serialized
// against trade settlement.
type PriceRepository interface {
	// ListAssets returns every asset.
	ListAssets(ctx context.Context) ([]*entity.Asset, error)

	// AverageHeldCost returns, per asset with outstanding holdings, the mean
	// average_price across those holdings.
	AverageHeldCost(ctx context.Context) (map[string]decimal.Decimal, error)

	// UpdateAssetPrice stores a new price and the percentage change from the old one.
	UpdateAssetPrice(ctx context.Context, assetID string, price, changePct decimal.Decimal) error
}

// LeaderboardRepository stores scores and ranks.
type LeaderboardRepository interface {
	// HoldingsValue returns Σ quantity * current_price over all of a user's holdings.
	HoldingsValue(ctx context.Context, userID string) (decimal.Decimal, error)

	// UpsertScore stores a user's score and badge.
	UpsertScore(ctx context.Context, entry *entity.LeaderboardEntry) error

	// ListScores returns every scored user.
	ListScores(ctx context.Context) ([]*entity.LeaderboardEntry, error)

	// SaveRanks persists the rank of every given entry.
	SaveRanks(ctx context.Context, entries []*entity.LeaderboardEntry) error
}

// LeaderboardCache caches the ranked board between recomputes.
type LeaderboardCache interface {
	Get(ctx context.Context) ([]*entity.LeaderboardEntry, bool, error)
	Set(ctx context.Context, entries []*entity.LeaderboardEntry) error
	Invalidate(ctx context.Context) error
}
