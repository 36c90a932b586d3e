package testutil

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SeedAsset inserts an asset and returns its generated id.
func SeedAsset(t *testing.T, ctx context.Context, pool *pgxpool.Pool, symbol, assetType, price string) string {
	t.Helper()
	var id string
	err := pool.QueryRow(ctx, `
		INSERT INTO assets (symbol, name, asset_type, current_price)
		VALUES ($1, $1, $2, $3::numeric)
		ON CONFLICT (symbol) DO UPDATE SET current_price = EXCLUDED.current_price
		RETURNING asset_id::text
	`, symbol, assetType, price).Scan(&id)
	if err != nil {
		t.Fatalf("failed to insert test asset %s: %v", symbol, err)
	}
	return id
}

// CountRows returns the number of rows in table.
func CountRows(t *testing.T, ctx context.Context, pool *pgxpool.Pool, table string) int {
	t.Helper()
	var n int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("failed to count %s: %v", table, err)
	}
	return n
}
