package postgrest

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/ports/outbound"
)

var (
	_ outbound.PriceRepository       = (*AssetRepository)(nil)
	_ outbound.LeaderboardRepository = (*LeaderboardRepository)(nil)
)

// AssetRepository reads and reprices assets over PostgREST.
type AssetRepository struct {
	client *Client
}

// NewAssetRepository creates an asset repository.
func NewAssetRepository(client *Client) (*AssetRepository, error) {
	if client == nil {
		return nil, entity.ErrConnectionUnavailable
	}
	return &AssetRepository{client: client}, nil
}

func (r *AssetRepository) ListAssets(ctx context.Context) ([]*entity.Asset, error) {
	var rows []assetRow
	if err := r.client.get(ctx, "assets", url.Values{"order": {"symbol.asc"}}, &rows); err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}
	out := make([]*entity.Asset, len(rows))
	for i, row := range rows {
		out[i] = row.toEntity()
	}
	return out, nil
}

// AverageHeldCost averages average_price per asset over open holdings.
// PostgREST aggregates are often disabled, so the mean is taken here.
func (r *AssetRepository) AverageHeldCost(ctx context.Context) (map[string]decimal.Decimal, error) {
	var rows []holdingRow
	q := url.Values{"select": {"asset_id,quantity,average_price"}, "quantity": {"gt.0"}}
	if err := r.client.get(ctx, "portfolio_holdings", q, &rows); err != nil {
		return nil, fmt.Errorf("averaging held cost: %w", err)
	}

	sums := make(map[string]decimal.Decimal)
	counts := make(map[string]int64)
	for _, row := range rows {
		sums[row.AssetID] = sums[row.AssetID].Add(row.AveragePrice)
		counts[row.AssetID]++
	}
	out := make(map[string]decimal.Decimal, len(sums))
	for id, sum := range sums {
		out[id] = sum.DivRound(decimal.NewFromInt(counts[id]), entity.PriceScale)
	}
	return out, nil
}

func (r *AssetRepository) UpdateAssetPrice(ctx context.Context, assetID string, price, changePct decimal.Decimal) error {
	body := map[string]any{
		"current_price":    price.String(),
		"price_change_pct": changePct.String(),
		"updated_at":       time.Now().UTC(),
	}
	n, err := r.client.patch(ctx, "assets", url.Values{"asset_id": {eq(assetID)}}, body)
	if err != nil {
		return fmt.Errorf("updating price of %s: %w", assetID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", entity.ErrAssetNotFound, assetID)
	}
	return nil
}

// LeaderboardRepository stores leaderboard scores over PostgREST.
type LeaderboardRepository struct {
	client *Client
}

// NewLeaderboardRepository creates a leaderboard repository.
func NewLeaderboardRepository(client *Client) (*LeaderboardRepository, error) {
	if client == nil {
		return nil, entity.ErrConnectionUnavailable
	}
	return &LeaderboardRepository{client: client}, nil
}

type valuedHolding struct {
	Quantity decimal.Decimal `json:"quantity"`
	Asset    struct {
		CurrentPrice decimal.Decimal `json:"current_price"`
	} `json:"assets"`
}

func (r *LeaderboardRepository) HoldingsValue(ctx context.Context, userID string) (decimal.Decimal, error) {
	var portfolios []portfolioRow
	if err := r.client.get(ctx, "portfolios", url.Values{"user_id": {eq(userID)}}, &portfolios); err != nil {
		return decimal.Zero, fmt.Errorf("loading portfolio of %s: %w", userID, err)
	}
	if len(portfolios) == 0 {
		return decimal.Zero, nil
	}

	var holdings []valuedHolding
	q := url.Values{
		"portfolio_id": {eq(portfolios[0].PortfolioID)},
		"select":       {"quantity,assets(current_price)"},
	}
	if err := r.client.get(ctx, "portfolio_holdings", q, &holdings); err != nil {
		return decimal.Zero, fmt.Errorf("valuing holdings of %s: %w", userID, err)
	}
	total := decimal.Zero
	for _, h := range holdings {
		total = total.Add(h.Quantity.Mul(h.Asset.CurrentPrice))
	}
	return total, nil
}

// scoreRow omits rank so an upsert leaves the stored rank alone.
type scoreRow struct {
	UserID        string          `json:"user_id"`
	Score         int64           `json:"score"`
	Badge         string          `json:"badge"`
	HoldingsValue decimal.Decimal `json:"holdings_value"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (r *LeaderboardRepository) UpsertScore(ctx context.Context, entry *entity.LeaderboardEntry) error {
	row := scoreRow{
		UserID:        entry.UserID,
		Score:         entry.Score,
		Badge:         string(entry.Badge),
		HoldingsValue: entry.HoldingsValue,
		UpdatedAt:     time.Now().UTC(),
	}
	if err := r.client.upsert(ctx, "leaderboard", "user_id", []scoreRow{row}); err != nil {
		return fmt.Errorf("upserting score of %s: %w", entry.UserID, err)
	}
	return nil
}

func (r *LeaderboardRepository) ListScores(ctx context.Context) ([]*entity.LeaderboardEntry, error) {
	var rows []leaderboardRow
	if err := r.client.get(ctx, "leaderboard", nil, &rows); err != nil {
		return nil, fmt.Errorf("listing scores: %w", err)
	}
	out := make([]*entity.LeaderboardEntry, len(rows))
	for i, row := range rows {
		out[i] = row.toEntity()
	}
	return out, nil
}

type rankRow struct {
	UserID string `json:"user_id"`
	Rank   int    `json:"rank"`
}

// SaveRanks writes every rank in one bulk upsert.
func (r *LeaderboardRepository) SaveRanks(ctx context.Context, entries []*entity.LeaderboardEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]rankRow, len(entries))
	for i, e := range entries {
		rows[i] = rankRow{UserID: e.UserID, Rank: e.Rank}
	}
	if err := r.client.upsert(ctx, "leaderboard", "user_id", rows); err != nil {
		return fmt.Errorf("saving %d ranks: %w", len(entries), err)
	}
	return nil
}
