// Package price_engine periodically rewrites asset prices. Assets nobody holds
// drift randomly. Held assets are pushed into a bounded profit or loss band
// around their average held cost, with roughly a third landing in loss each run.
package price_engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/ports/outbound"
	"github.com/archon-research/ledger-engine/internal/services/shared"
)

// Config holds configuration for the price engine.
type Config struct {
	// Interval between runs. Defaults to 2h.
	Interval time.Duration

	// RunOnStart triggers a run as soon as Start is called.
	RunOnStart bool

	// StockMaxChange and FundMaxChange bound the drift of unheld assets.
	// Default to 5% and 2%.
	StockMaxChange float64
	FundMaxChange  float64

	// Concurrency bounds parallel price writes. Defaults to 4.
	Concurrency int

	// Rand is the randomness source. Defaults to a time-seeded PCG.
	Rand *rand.Rand

	// OnRun is called after every successful scheduled run (optional).
	OnRun func(ctx context.Context, report *RunReport)

	Logger *slog.Logger
}

// ConfigDefaults returns the default configuration.
func ConfigDefaults() Config {
	return Config{
		Interval:       2 * time.Hour,
		StockMaxChange: 0.05,
		FundMaxChange:  0.02,
		Concurrency:    4,
		Logger:         slog.Default(),
	}
}

// PriceChange is one asset's update within a run.
type PriceChange struct {
	AssetID   string          `json:"assetId"`
	Symbol    string          `json:"symbol"`
	Mode      Mode            `json:"mode"`
	OldPrice  decimal.Decimal `json:"oldPrice"`
	NewPrice  decimal.Decimal `json:"newPrice"`
	ChangePct decimal.Decimal `json:"changePct"`
}

// AssetFailure records an asset whose price could not be written.
type AssetFailure struct {
	AssetID string `json:"assetId"`
	Symbol  string `json:"symbol"`
	Error   string `json:"error"`
}

// RunReport summarizes one run. Every asset appears in exactly one of Updated or Failed.
type RunReport struct {
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Updated    []PriceChange  `json:"updated"`
	Failed     []AssetFailure `json:"failed"`
}

// Service is the price engine.
type Service struct {
	config  Config
	repo    outbound.PriceRepository
	metrics outbound.MetricsRecorder
	logger  *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a price engine. metrics may be nil.
func NewService(config Config, repo outbound.PriceRepository, metrics outbound.MetricsRecorder) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("repo cannot be nil")
	}
	if metrics == nil {
		metrics = shared.NopMetrics{}
	}

	defaults := ConfigDefaults()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.StockMaxChange <= 0 {
		config.StockMaxChange = defaults.StockMaxChange
	}
	if config.FundMaxChange <= 0 {
		config.FundMaxChange = defaults.FundMaxChange
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	rng := config.Rand
	if rng == nil {
		now := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(now, now>>1))
	}

	return &Service{
		config:  config,
		repo:    repo,
		metrics: metrics,
		rng:     rng,
		logger:  config.Logger.With("component", "price-engine"),
	}, nil
}

// Start runs the engine on its interval until ctx is cancelled or Stop is called.
func (s *Service) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.loop()

	s.logger.Info("price engine started", "interval", s.config.Interval)
	return nil
}

// Stop stops the engine and waits for an in-flight run to finish.
func (s *Service) Stop() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.logger.Info("price engine stopped")
	return nil
}

func (s *Service) loop() {
	defer close(s.done)

	if s.config.RunOnStart {
		s.runLogged()
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runLogged()
		}
	}
}

func (s *Service) runLogged() {
	report, err := s.RunOnce(s.ctx)
	if err != nil {
		s.logger.Error("price run failed", "error", err)
		return
	}
	if s.config.OnRun != nil {
		s.config.OnRun(s.ctx, report)
	}
}

// plan is the price chosen for one asset before it is written.
type plan struct {
	asset *entity.Asset
	mode  Mode
	price decimal.Decimal
}

// RunOnce reprices every asset. It fails only if the asset list or held costs
// cannot be read; per-asset write failures are reported in the RunReport.
func (s *Service) RunOnce(ctx context.Context) (*RunReport, error) {
	report := &RunReport{StartedAt: time.Now().UTC()}

	assets, err := s.repo.ListAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}
	heldCost, err := s.repo.AverageHeldCost(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading held costs: %w", err)
	}

	plans := s.plan(assets, heldCost)

	sem := make(chan struct{}, s.config.Concurrency)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, p := range plans {
		sem <- struct{}{}
		wg.Add(1)
		go func(p plan) {
			defer wg.Done()
			defer func() { <-sem }()

			pct := changePct(p.asset.CurrentPrice, p.price)
			err := s.repo.UpdateAssetPrice(ctx, p.asset.AssetID, p.price, pct)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Warn("failed to update asset price",
					"assetId", p.asset.AssetID,
					"symbol", p.asset.Symbol,
					"error", err)
				report.Failed = append(report.Failed, AssetFailure{
					AssetID: p.asset.AssetID,
					Symbol:  p.asset.Symbol,
					Error:   err.Error(),
				})
				return
			}
			report.Updated = append(report.Updated, PriceChange{
				AssetID:   p.asset.AssetID,
				Symbol:    p.asset.Symbol,
				Mode:      p.mode,
				OldPrice:  p.asset.CurrentPrice,
				NewPrice:  p.price,
				ChangePct: pct,
			})
		}(p)
	}
	wg.Wait()

	sort.Slice(report.Updated, func(i, j int) bool { return report.Updated[i].Symbol < report.Updated[j].Symbol })
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].Symbol < report.Failed[j].Symbol })
	report.FinishedAt = time.Now().UTC()

	s.metrics.RecordPriceRun(ctx, len(report.Updated), len(report.Failed), report.FinishedAt.Sub(report.StartedAt))
	s.logger.Info("price run complete",
		"assets", len(assets),
		"updated", len(report.Updated),
		"failed", len(report.Failed),
		"held", len(heldCost))

	return report, nil
}

// plan draws every random value under one lock so a seeded source gives a
// reproducible run regardless of write scheduling.
func (s *Service) plan(assets []*entity.Asset, heldCost map[string]decimal.Decimal) []plan {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()

	var held []string
	for _, a := range assets {
		if _, ok := heldCost[a.AssetID]; ok {
			held = append(held, a.AssetID)
		}
	}
	modes := partition(s.rng, held)

	plans := make([]plan, 0, len(assets))
	for _, a := range assets {
		p := plan{asset: a}
		if mode, ok := modes[a.AssetID]; ok && heldCost[a.AssetID].IsPositive() {
			p.mode = mode
			p.price = biased(s.rng, heldCost[a.AssetID], mode)
		} else {
			maxChange := s.config.StockMaxChange
			if a.IsFund() {
				maxChange = s.config.FundMaxChange
			}
			p.mode = ModeDrift
			p.price = drift(s.rng, a.CurrentPrice, maxChange)
		}
		plans = append(plans, p)
	}
	return plans
}
