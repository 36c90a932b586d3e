package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/ports/outbound"
)

var _ outbound.PriceRepository = (*AssetRepository)(nil)

// ErrAssetExists is returned by InsertAsset when the symbol is already taken.
var ErrAssetExists = errors.New("asset symbol already exists")

const assetColumns = `asset_id::text, symbol, name, asset_type, current_price::text, price_change_pct::text, updated_at`

func scanAsset(row pgx.Row) (*entity.Asset, error) {
	var (
		a                entity.Asset
		assetType        string
		price, changePct string
	)
	if err := row.Scan(&a.AssetID, &a.Symbol, &a.Name, &assetType, &price, &changePct, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.AssetType = entity.AssetType(assetType)
	var err error
	if a.CurrentPrice, err = parseNumeric("current_price", price); err != nil {
		return nil, err
	}
	if a.PriceChangePct, err = parseNumeric("price_change_pct", changePct); err != nil {
		return nil, err
	}
	return &a, nil
}

// AssetRepository reads and reprices the asset catalogue.
type AssetRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewAssetRepository creates an asset repository.
func NewAssetRepository(pool *pgxpool.Pool, logger *slog.Logger) (*AssetRepository, error) {
	if pool == nil {
		return nil, entity.ErrConnectionUnavailable
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AssetRepository{pool: pool, logger: logger.With("component", "postgres-asset-repository")}, nil
}

func (r *AssetRepository) ListAssets(ctx context.Context) ([]*entity.Asset, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+assetColumns+` FROM assets ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", mapError(err))
	}
	defer rows.Close()

	var assets []*entity.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating assets: %w", mapError(err))
	}
	return assets, nil
}

func (r *AssetRepository) AverageHeldCost(ctx context.Context) (map[string]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT asset_id::text, AVG(average_price)::text
		 FROM portfolio_holdings
		 WHERE quantity > 0
		 GROUP BY asset_id`)
	if err != nil {
		return nil, fmt.Errorf("averaging held cost: %w", mapError(err))
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var assetID, avg string
		if err := rows.Scan(&assetID, &avg); err != nil {
			return nil, fmt.Errorf("scanning held cost: %w", err)
		}
		d, err := parseNumeric("average_price", avg)
		if err != nil {
			return nil, err
		}
		out[assetID] = d
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating held cost: %w", mapError(err))
	}
	return out, nil
}

func (r *AssetRepository) UpdateAssetPrice(ctx context.Context, assetID string, price, changePct decimal.Decimal) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE assets SET current_price = $1::numeric, price_change_pct = $2::numeric, updated_at = NOW()
		 WHERE asset_id = $3`,
		numeric(price), numeric(changePct), assetID,
	)
	if err != nil {
		return fmt.Errorf("updating price of %s: %w", assetID, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", entity.ErrAssetNotFound, assetID)
	}
	return nil
}

// InsertAsset adds an asset to the catalogue and fills in its id.
func (r *AssetRepository) InsertAsset(ctx context.Context, asset *entity.Asset) error {
	if !asset.CurrentPrice.IsPositive() {
		return fmt.Errorf("%w: %s", entity.ErrInvalidPrice, asset.Symbol)
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO assets (symbol, name, asset_type, current_price)
		 VALUES ($1, $2, $3, $4::numeric)
		 RETURNING asset_id::text, updated_at`,
		asset.Symbol, asset.Name, string(asset.AssetType), numeric(asset.CurrentPrice),
	).Scan(&asset.AssetID, &asset.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrAssetExists, asset.Symbol)
	}
	if err != nil {
		return fmt.Errorf("inserting asset %s: %w", asset.Symbol, mapError(err))
	}
	r.logger.Info("asset created", "symbol", asset.Symbol, "id", asset.AssetID)
	return nil
}

// GetAssetBySymbol returns the asset or entity.ErrAssetNotFound.
func (r *AssetRepository) GetAssetBySymbol(ctx context.Context, symbol string) (*entity.Asset, error) {
	a, err := scanAsset(r.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE symbol = $1`, symbol))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", entity.ErrAssetNotFound, symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("loading asset %s: %w", symbol, mapError(err))
	}
	return a, nil
}
