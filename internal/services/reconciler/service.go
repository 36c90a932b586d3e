// Package reconciler audits the ledger: it replays every wallet's entries,
// compares the result with stored balances and checks the fund-wide totals.
package reconciler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/ports/outbound"
)

// Config holds configuration for the reconciler.
type Config struct {
	// Bucket receives the report when a writer is configured. Empty disables upload.
	Bucket string

	// KeyPrefix is prepended to report keys.
	KeyPrefix string

	// FundTolerance is the largest accepted difference between a recorded
	// fund_account_balance and the replayed sum of wallet balances.
	FundTolerance decimal.Decimal

	Logger *slog.Logger
}

// ConfigDefaults returns sensible defaults for the reconciler.
func ConfigDefaults() Config {
	return Config{
		KeyPrefix:     "reconciliation",
		FundTolerance: decimal.Zero,
		Logger:        slog.Default(),
	}
}

// WalletReport is the audit result of one wallet.
type WalletReport struct {
	WalletID        string                  `json:"walletId"`
	UserID          string                  `json:"userId"`
	Entries         int                     `json:"entries"`
	StoredBalance   decimal.Decimal         `json:"storedBalance"`
	ReplayedBalance decimal.Decimal         `json:"replayedBalance"`
	Mismatches      []entity.ReplayMismatch `json:"mismatches,omitempty"`
	Error           string                  `json:"error,omitempty"`
}

// OK reports whether the wallet's ledger is consistent with its balance.
func (w WalletReport) OK() bool {
	return w.Error == "" && len(w.Mismatches) == 0 && w.StoredBalance.Equal(w.ReplayedBalance)
}

// FundDrift is a ledger entry whose recorded fund-wide total disagrees with
// the replayed sum of wallet balances at that point.
type FundDrift struct {
	LedgerID string          `json:"ledgerId"`
	Sequence int64           `json:"sequence"`
	Recorded decimal.Decimal `json:"recorded"`
	Replayed decimal.Decimal `json:"replayed"`
}

// Report is the outcome of one reconciliation run.
type Report struct {
	StartedAt    time.Time       `json:"startedAt"`
	FinishedAt   time.Time       `json:"finishedAt"`
	Wallets      int             `json:"wallets"`
	Entries      int             `json:"entries"`
	WalletTotal  decimal.Decimal `json:"walletTotal"`
	LatestFund   decimal.Decimal `json:"latestFundAccountBalance"`
	Inconsistent []WalletReport  `json:"inconsistentWallets,omitempty"`
	FundDrifts   []FundDrift     `json:"fundDrifts,omitempty"`
	// FundTolerance is the tolerance the fund checks ran with.
	FundTolerance decimal.Decimal `json:"fundTolerance"`
	ReportKey     string          `json:"reportKey,omitempty"`
}

// WalletsOK reports whether every wallet's ledger replays to its stored
// balance. A failure here means money moved without a matching entry.
func (r *Report) WalletsOK() bool {
	return len(r.Inconsistent) == 0
}

// FundOK reports whether the recorded fund totals agree with the replayed sum
// of wallet balances, within FundTolerance. Totals are recorded per
// transaction as that transaction saw them, so concurrent writes to
// different wallets can drift without any wallet being wrong.
func (r *Report) FundOK() bool {
	return len(r.FundDrifts) == 0 &&
		!r.WalletTotal.Sub(r.LatestFund).Abs().GreaterThan(r.FundTolerance)
}

// OK reports whether every check passed.
func (r *Report) OK() bool {
	return r.WalletsOK() && r.FundOK()
}

// Service runs reconciliations.
type Service struct {
	config Config
	reader outbound.LedgerReader
	writer outbound.S3Writer
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates a reconciler. writer may be nil, in which case reports
// are not uploaded.
func NewService(config Config, reader outbound.LedgerReader, writer outbound.S3Writer) (*Service, error) {
	if reader == nil {
		return nil, fmt.Errorf("reader cannot be nil")
	}
	if writer != nil && config.Bucket == "" {
		return nil, fmt.Errorf("bucket is required when a writer is configured")
	}

	defaults := ConfigDefaults()
	if config.KeyPrefix == "" {
		config.KeyPrefix = defaults.KeyPrefix
	}
	if config.FundTolerance.IsNegative() {
		return nil, fmt.Errorf("fund tolerance must not be negative, got %s", config.FundTolerance)
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Service{
		config: config,
		reader: reader,
		writer: writer,
		now:    func() time.Time { return time.Now().UTC() },
		logger: config.Logger.With("component", "reconciler"),
	}, nil
}

// Run audits the whole ledger and uploads the report when configured. A
// report with findings is not an error; infrastructure failures are.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	report := &Report{StartedAt: s.now(), FundTolerance: s.config.FundTolerance}

	wallets, err := s.reader.ListWallets(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing wallets: %w", err)
	}
	report.Wallets = len(wallets)

	var all []*entity.LedgerEntry
	for _, w := range wallets {
		report.WalletTotal = report.WalletTotal.Add(w.Balance)

		entries, err := s.reader.ListLedgerEntries(ctx, w.WalletID)
		if err != nil {
			return nil, fmt.Errorf("listing ledger entries for wallet %s: %w", w.WalletID, err)
		}
		all = append(all, entries...)
		report.Entries += len(entries)

		wr := auditWallet(w, entries)
		if !wr.OK() {
			s.logger.Warn("wallet ledger inconsistent",
				"walletId", w.WalletID,
				"userId", w.UserID,
				"storedBalance", wr.StoredBalance.String(),
				"replayedBalance", wr.ReplayedBalance.String(),
				"mismatches", len(wr.Mismatches))
			report.Inconsistent = append(report.Inconsistent, wr)
		}
	}

	latest, err := s.reader.LatestLedgerEntry(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading latest ledger entry: %w", err)
	}
	if latest != nil {
		report.LatestFund = latest.FundAccountBalance
	}

	report.FundDrifts = replayFund(all, s.config.FundTolerance)
	report.FinishedAt = s.now()

	if s.writer != nil {
		key, err := s.upload(ctx, report)
		if err != nil {
			return report, err
		}
		report.ReportKey = key
	}

	s.logger.Info("reconciliation finished",
		"walletsOk", report.WalletsOK(),
		"fundOk", report.FundOK(),
		"wallets", report.Wallets,
		"entries", report.Entries,
		"inconsistentWallets", len(report.Inconsistent),
		"fundDrifts", len(report.FundDrifts),
		"duration", report.FinishedAt.Sub(report.StartedAt))
	return report, nil
}

func auditWallet(w *entity.Wallet, entries []*entity.LedgerEntry) WalletReport {
	wr := WalletReport{
		WalletID:      w.WalletID,
		UserID:        w.UserID,
		Entries:       len(entries),
		StoredBalance: w.Balance,
	}
	replayed, mismatches, err := entity.ReplayLedger(entries)
	if err != nil {
		wr.Error = err.Error()
		return wr
	}
	wr.ReplayedBalance = replayed
	wr.Mismatches = mismatches
	return wr
}

// replayFund walks every entry in write order, tracking each wallet's
// balance_after, and compares the running sum with the recorded fund total.
func replayFund(entries []*entity.LedgerEntry, tolerance decimal.Decimal) []FundDrift {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Sequence != entries[j].Sequence {
			return entries[i].Sequence < entries[j].Sequence
		}
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})

	balances := make(map[string]decimal.Decimal)
	total := decimal.Zero
	var drifts []FundDrift
	for _, e := range entries {
		total = total.Sub(balances[e.WalletID]).Add(e.BalanceAfter)
		balances[e.WalletID] = e.BalanceAfter
		if total.Sub(e.FundAccountBalance).Abs().GreaterThan(tolerance) {
			drifts = append(drifts, FundDrift{
				LedgerID: e.LedgerID,
				Sequence: e.Sequence,
				Recorded: e.FundAccountBalance,
				Replayed: total,
			})
		}
	}
	return drifts
}

func (s *Service) upload(ctx context.Context, report *Report) (string, error) {
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}
	key := fmt.Sprintf("%s/%s/report-%s.json.gz",
		s.config.KeyPrefix,
		report.StartedAt.Format("2006/01/02"),
		report.StartedAt.Format("20060102T150405Z"))

	if err := s.writer.WriteFile(ctx, s.config.Bucket, key, bytes.NewReader(body), true); err != nil {
		return "", fmt.Errorf("uploading report: %w", err)
	}
	s.logger.Info("uploaded reconciliation report", "bucket", s.config.Bucket, "key", key)
	return key, nil
}
