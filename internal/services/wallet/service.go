// Package wallet implements the wallet engine: balance reads, deposits and
// withdrawals, each settled atomically through the ledger store.
package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/pkg/identity"
	"github.com/archon-research/ledger-engine/internal/ports/inbound"
	"github.com/archon-research/ledger-engine/internal/ports/outbound"
	"github.com/archon-research/ledger-engine/internal/services/shared"
)

var _ inbound.WalletService = (*Service)(nil)

// Config holds configuration for the wallet engine.
type Config struct {
	// Currency assigned to wallets created by this service.
	Currency string

	// HistoryLimit caps History when the caller passes no limit.
	HistoryLimit int

	Logger *slog.Logger
}

func configDefaults() Config {
	return Config{
		Currency:     entity.DefaultCurrency,
		HistoryLimit: 50,
		Logger:       slog.Default(),
	}
}

// Service is the wallet engine.
type Service struct {
	config  Config
	store   outbound.LedgerStore
	reader  outbound.LedgerReader
	events  outbound.EventPublisher
	metrics outbound.MetricsRecorder
	logger  *slog.Logger
}

// NewService creates a wallet engine. events and metrics may be nil.
func NewService(
	config Config,
	store outbound.LedgerStore,
	reader outbound.LedgerReader,
	events outbound.EventPublisher,
	metrics outbound.MetricsRecorder,
) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil: %w", entity.ErrConnectionUnavailable)
	}
	if reader == nil {
		return nil, fmt.Errorf("reader cannot be nil")
	}
	if events == nil {
		events = shared.NopPublisher{}
	}
	if metrics == nil {
		metrics = shared.NopMetrics{}
	}

	defaults := configDefaults()
	if config.Currency == "" {
		config.Currency = defaults.Currency
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = defaults.HistoryLimit
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Service{
		config:  config,
		store:   store,
		reader:  reader,
		events:  events,
		metrics: metrics,
		logger:  config.Logger.With("component", "wallet"),
	}, nil
}

// GetBalance returns the user's wallet, creating an empty one on first access.
func (s *Service) GetBalance(ctx context.Context, userID string) (*entity.Wallet, error) {
	if userID == "" {
		return nil, entity.ErrInvalidUser
	}

	w, err := s.reader.GetWallet(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reading wallet: %w", err)
	}
	if w != nil {
		return w, nil
	}

	err = s.store.WithTransaction(ctx, func(tx outbound.LedgerTx) error {
		w, err = tx.LockWallet(ctx, userID, s.config.Currency)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating wallet: %w", err)
	}
	return w, nil
}

// Deposit credits amount to the user's wallet.
func (s *Service) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (*inbound.OperationResult, error) {
	return s.move(ctx, "deposit", userID, entity.TransactionTypeDeposit, amount)
}

// Withdraw debits amount from the user's wallet. Nothing is written when the
// balance does not cover the amount.
func (s *Service) Withdraw(ctx context.Context, userID string, amount decimal.Decimal) (*inbound.OperationResult, error) {
	return s.move(ctx, "withdraw", userID, entity.TransactionTypeWithdraw, amount)
}

func (s *Service) move(ctx context.Context, op, userID string, txnType entity.TransactionType, amount decimal.Decimal) (result *inbound.OperationResult, err error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordOperation(ctx, op, shared.Outcome(err), time.Since(start))
	}()

	if userID == "" {
		return nil, entity.ErrInvalidUser
	}
	amount = entity.RoundMoney(amount)
	if !amount.IsPositive() {
		return nil, entity.ErrInvalidAmount
	}

	var (
		wallet  *entity.Wallet
		posting *shared.Posting
	)
	err = s.store.WithTransaction(ctx, func(tx outbound.LedgerTx) error {
		w, err := tx.LockWallet(ctx, userID, s.config.Currency)
		if err != nil {
			return fmt.Errorf("locking wallet: %w", err)
		}
		p, err := shared.ApplyMovement(ctx, tx, shared.Movement{
			Wallet:       w,
			Type:         txnType,
			Amount:       amount,
			Insufficient: entity.ErrInsufficientBalance,
		})
		if err != nil {
			return err
		}
		wallet, posting = w, p
		return nil
	})
	if err != nil {
		if entity.IsBusinessError(err) {
			s.logger.Info(op+" rejected", "userId", userID, "amount", amount.String(), "reason", err)
		} else {
			s.logger.Error(op+" failed", "userId", userID, "amount", amount.String(), "error", err)
		}
		return nil, err
	}

	s.logger.Debug(op+" settled",
		"userId", userID,
		"walletId", wallet.WalletID,
		"transactionId", posting.Transaction.TransactionID,
		"balance", wallet.Balance.String())

	s.events.Publish(ctx, entity.LedgerEvent{
		TransactionID: posting.Transaction.TransactionID,
		UserID:        userID,
		UserEmail:     identity.Email(ctx),
		WalletID:      wallet.WalletID,
		Type:          txnType,
		Amount:        amount,
		BalanceAfter:  wallet.Balance,
		Currency:      wallet.Currency,
		OccurredAt:    posting.Entry.Timestamp,
	})

	return &inbound.OperationResult{
		Wallet:        wallet,
		TransactionID: posting.Transaction.TransactionID,
	}, nil
}

// History returns the user's transactions, newest first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]*entity.Transaction, error) {
	if userID == "" {
		return nil, entity.ErrInvalidUser
	}
	if limit <= 0 || limit > s.config.HistoryLimit {
		limit = s.config.HistoryLimit
	}
	txns, err := s.reader.ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	return txns, nil
}

// LedgerEntries returns the user's ledger entries in replay order. It returns
// an empty slice for users without a wallet.
func (s *Service) LedgerEntries(ctx context.Context, userID string) ([]*entity.LedgerEntry, error) {
	if userID == "" {
		return nil, entity.ErrInvalidUser
	}
	w, err := s.reader.GetWallet(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reading wallet: %w", err)
	}
	if w == nil {
		return []*entity.LedgerEntry{}, nil
	}
	entries, err := s.reader.ListLedgerEntries(ctx, w.WalletID)
	if err != nil {
		return nil, fmt.Errorf("listing ledger entries: %w", err)
	}
	return entries, nil
}
