package main

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/archon-research/ledger-engine/internal/adapters/outbound/postgres"
	"github.com/archon-research/ledger-engine/internal/domain/entity"
)

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		envDB     string
		wantCfg   cliConfig
		wantError string
	}{
		{
			name:    "flag",
			args:    []string{"-db", "postgres://localhost/cli", "-seed"},
			wantCfg: cliConfig{dbURL: "postgres://localhost/cli", seed: true},
		},
		{
			name:    "env fallback",
			envDB:   "postgres://localhost/env",
			wantCfg: cliConfig{dbURL: "postgres://localhost/env"},
		},
		{
			name:      "missing database URL",
			wantError: "database URL not provided",
		},
		{
			name:      "invalid flag",
			args:      []string{"--nonexistent"},
			wantError: "flag provided but not defined",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", tt.envDB)

			cfg, err := parseConfig(tt.args)
			if tt.wantError != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantError) {
					t.Fatalf("expected error containing %q, got %v", tt.wantError, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg != tt.wantCfg {
				t.Errorf("config = %+v, want %+v", cfg, tt.wantCfg)
			}
		})
	}
}

type mockInserter struct {
	insertFn func(ctx context.Context, asset *entity.Asset) error
}

func (m *mockInserter) InsertAsset(ctx context.Context, asset *entity.Asset) error {
	return m.insertFn(ctx, asset)
}

func TestSeed(t *testing.T) {
	assets := demoAssets()
	var seen []string
	repo := &mockInserter{insertFn: func(_ context.Context, a *entity.Asset) error {
		seen = append(seen, a.Symbol)
		if a.Symbol == "TCS" {
			return postgres.ErrAssetExists
		}
		return nil
	}}

	created, err := seed(context.Background(), repo, assets, slog.Default())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if created != len(assets)-1 {
		t.Errorf("created = %d, want %d", created, len(assets)-1)
	}
	if len(seen) != len(assets) {
		t.Errorf("inserted %d assets, want %d", len(seen), len(assets))
	}
}

func TestSeed_StopsOnError(t *testing.T) {
	boom := errors.New("connection reset")
	calls := 0
	repo := &mockInserter{insertFn: func(context.Context, *entity.Asset) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	}}

	created, err := seed(context.Background(), repo, demoAssets(), slog.Default())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if created != 1 || calls != 2 {
		t.Errorf("created = %d calls = %d, want 1 and 2", created, calls)
	}
}

func TestDemoAssets_Valid(t *testing.T) {
	symbols := map[string]bool{}
	for _, a := range demoAssets() {
		if !a.CurrentPrice.IsPositive() {
			t.Errorf("%s: price must be positive", a.Symbol)
		}
		if a.AssetType != entity.AssetTypeStock && a.AssetType != entity.AssetTypeMutualFund {
			t.Errorf("%s: unexpected type %q", a.Symbol, a.AssetType)
		}
		if symbols[a.Symbol] {
			t.Errorf("duplicate symbol %s", a.Symbol)
		}
		symbols[a.Symbol] = true
	}
}
