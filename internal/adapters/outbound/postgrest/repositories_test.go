package postgrest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/services/leaderboard"
)

func TestAssetRepository(t *testing.T) {
	f := newRestFixture(t)
	ctx := context.Background()
	fund := f.seedAsset("FUND1", "mutual_fund", "40")
	f.seedAsset("ACME", "stock", "100")

	assets, err := f.assets.ListAssets(ctx)
	if err != nil {
		t.Fatalf("ListAssets: %v", err)
	}
	if len(assets) != 2 || assets[0].Symbol != "ACME" || assets[1].Symbol != "FUND1" {
		t.Fatalf("ListAssets = %+v, want ACME then FUND1", assets)
	}

	f.server.put("portfolio_holdings", row{"holding_id": uuid.NewString(), "portfolio_id": "p1", "asset_id": fund, "quantity": "1", "average_price": "30"})
	f.server.put("portfolio_holdings", row{"holding_id": uuid.NewString(), "portfolio_id": "p2", "asset_id": fund, "quantity": "2", "average_price": "50"})
	f.server.put("portfolio_holdings", row{"holding_id": uuid.NewString(), "portfolio_id": "p3", "asset_id": fund, "quantity": "0", "average_price": "999"})

	costs, err := f.assets.AverageHeldCost(ctx)
	if err != nil {
		t.Fatalf("AverageHeldCost: %v", err)
	}
	if got := costs[fund]; !got.Equal(dec("40")) {
		t.Errorf("average held cost = %s, want 40", got)
	}
	if len(costs) != 1 {
		t.Errorf("assets with held cost = %d, want 1", len(costs))
	}

	if err := f.assets.UpdateAssetPrice(ctx, fund, dec("41.5"), dec("3.75")); err != nil {
		t.Fatalf("UpdateAssetPrice: %v", err)
	}
	err = f.assets.UpdateAssetPrice(ctx, uuid.NewString(), dec("1"), dec("0"))
	if !errors.Is(err, entity.ErrAssetNotFound) {
		t.Errorf("UpdateAssetPrice unknown asset error = %v, want ErrAssetNotFound", err)
	}
}

func TestLeaderboardRepository_RanksThroughService(t *testing.T) {
	f := newRestFixture(t)
	ctx := context.Background()
	assetID := f.seedAsset("ACME", "stock", "100")

	for user, qty := range map[string]string{"alice": "5", "bob": "5", "carol": "4"} {
		if _, err := f.wallets.Deposit(ctx, user, dec("1000")); err != nil {
			t.Fatalf("Deposit: %v", err)
		}
		if _, err := f.settlement.Buy(ctx, user, assetID, dec(qty)); err != nil {
			t.Fatalf("Buy: %v", err)
		}
	}

	client := f.store.client
	repo, err := NewLeaderboardRepository(client)
	if err != nil {
		t.Fatalf("NewLeaderboardRepository: %v", err)
	}

	value, err := repo.HoldingsValue(ctx, "alice")
	if err != nil {
		t.Fatalf("HoldingsValue: %v", err)
	}
	if !value.Equal(dec("500")) {
		t.Errorf("HoldingsValue = %s, want 500", value)
	}
	if value, err := repo.HoldingsValue(ctx, "nobody"); err != nil || !value.IsZero() {
		t.Errorf("HoldingsValue(nobody) = %s, %v, want 0", value, err)
	}

	svc, err := leaderboard.NewService(repo, nil, nil)
	if err != nil {
		t.Fatalf("leaderboard.NewService: %v", err)
	}
	for _, user := range []string{"alice", "bob", "carol"} {
		if _, err := svc.RecomputeUser(ctx, user); err != nil {
			t.Fatalf("RecomputeUser(%s): %v", user, err)
		}
	}

	top, err := svc.Top(ctx, 0)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	want := map[string]int{"alice": 1, "bob": 1, "carol": 3}
	if len(top) != len(want) {
		t.Fatalf("leaderboard size = %d, want %d", len(top), len(want))
	}
	for _, e := range top {
		if e.Rank != want[e.UserID] {
			t.Errorf("rank of %s = %d, want %d", e.UserID, e.Rank, want[e.UserID])
		}
	}

	// A fresh score keeps the stored rank until ranks are saved again.
	if err := repo.UpsertScore(ctx, entity.NewLeaderboardEntry("carol", dec("10000"))); err != nil {
		t.Fatalf("UpsertScore: %v", err)
	}
	scores, err := repo.ListScores(ctx)
	if err != nil {
		t.Fatalf("ListScores: %v", err)
	}
	for _, e := range scores {
		if e.UserID == "carol" && (e.Rank != 3 || e.Score != 100) {
			t.Errorf("carol = rank %d score %d, want rank 3 score 100", e.Rank, e.Score)
		}
	}
}
