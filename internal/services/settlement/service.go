// Package settlement implements trade settlement. Each trade moves cash and
// units together: the wallet, the holding, the transaction record and the
// ledger entry are written in one ledger store transaction.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/pkg/identity"
	"github.com/archon-research/ledger-engine/internal/ports/inbound"
	"github.com/archon-research/ledger-engine/internal/ports/outbound"
	"github.com/archon-research/ledger-engine/internal/services/shared"
)

var _ inbound.TradeService = (*Service)(nil)

// Config holds configuration for trade settlement.
type Config struct {
	Currency string
	Logger   *slog.Logger
}

// Service settles trades.
type Service struct {
	config  Config
	store   outbound.LedgerStore
	events  outbound.EventPublisher
	metrics outbound.MetricsRecorder
	logger  *slog.Logger
}

// NewService creates a trade settlement service. events and metrics may be nil.
func NewService(config Config, store outbound.LedgerStore, events outbound.EventPublisher, metrics outbound.MetricsRecorder) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil: %w", entity.ErrConnectionUnavailable)
	}
	if events == nil {
		events = shared.NopPublisher{}
	}
	if metrics == nil {
		metrics = shared.NopMetrics{}
	}
	if config.Currency == "" {
		config.Currency = entity.DefaultCurrency
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Service{
		config:  config,
		store:   store,
		events:  events,
		metrics: metrics,
		logger:  config.Logger.With("component", "settlement"),
	}, nil
}

type side int

const (
	sideBuy side = iota
	sideSell
)

// order is a validated trade request.
type order struct {
	op       string
	side     side
	userID   string
	assetID  string
	quantity decimal.Decimal // units; zero for amount-based orders until priced
	amount   decimal.Decimal // cash; set only for Invest
	fundOnly bool
}

// Buy purchases quantity units at the current price.
func (s *Service) Buy(ctx context.Context, userID, assetID string, quantity decimal.Decimal) (*inbound.OperationResult, error) {
	return s.settle(ctx, order{op: "buy", side: sideBuy, userID: userID, assetID: assetID, quantity: quantity})
}

// Sell disposes of quantity units at the current price.
func (s *Service) Sell(ctx context.Context, userID, assetID string, quantity decimal.Decimal) (*inbound.OperationResult, error) {
	return s.settle(ctx, order{op: "sell", side: sideSell, userID: userID, assetID: assetID, quantity: quantity})
}

// Invest buys fund units worth amount at the current NAV.
func (s *Service) Invest(ctx context.Context, userID, assetID string, amount decimal.Decimal) (*inbound.OperationResult, error) {
	return s.settle(ctx, order{op: "invest", side: sideBuy, userID: userID, assetID: assetID, amount: amount, fundOnly: true})
}

// Redeem sells quantity fund units at the current NAV.
func (s *Service) Redeem(ctx context.Context, userID, assetID string, quantity decimal.Decimal) (*inbound.OperationResult, error) {
	return s.settle(ctx, order{op: "redeem", side: sideSell, userID: userID, assetID: assetID, quantity: quantity, fundOnly: true})
}

func (o *order) validate() error {
	if o.userID == "" {
		return entity.ErrInvalidUser
	}
	if o.assetID == "" {
		return fmt.Errorf("%w: asset id is required", entity.ErrAssetNotFound)
	}
	if o.op == "invest" {
		o.amount = entity.RoundMoney(o.amount)
		if !o.amount.IsPositive() {
			return entity.ErrInvalidAmount
		}
		return nil
	}
	o.quantity = entity.RoundQuantity(o.quantity)
	if !o.quantity.IsPositive() {
		return entity.ErrInvalidQuantity
	}
	return nil
}

// price resolves the units and cash value of the order at the asset's price.
func (o *order) price(price decimal.Decimal) (quantity, value decimal.Decimal, err error) {
	if o.op == "invest" {
		quantity = o.amount.DivRound(price, entity.QuantityScale)
		if !quantity.IsPositive() {
			return decimal.Zero, decimal.Zero, fmt.Errorf("%w: amount buys no units at %s", entity.ErrInvalidAmount, price.String())
		}
		return quantity, o.amount, nil
	}
	value = entity.RoundMoney(price.Mul(o.quantity))
	if !value.IsPositive() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: quantity %s is worth nothing at %s", entity.ErrInvalidQuantity, o.quantity.String(), price.String())
	}
	return o.quantity, value, nil
}

type settled struct {
	asset    *entity.Asset
	wallet   *entity.Wallet
	holding  *entity.Holding
	quantity decimal.Decimal
	value    decimal.Decimal
	posting  *shared.Posting
}

func (s *Service) settle(ctx context.Context, o order) (result *inbound.OperationResult, err error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordOperation(ctx, o.op, shared.Outcome(err), time.Since(start))
	}()

	if err := o.validate(); err != nil {
		return nil, err
	}

	var out settled
	err = s.store.WithTransaction(ctx, func(tx outbound.LedgerTx) error {
		res, err := s.settleInTx(ctx, tx, o)
		if err != nil {
			return err
		}
		out = *res
		return nil
	})
	if err != nil {
		if entity.IsBusinessError(err) {
			s.logger.Info(o.op+" rejected", "userId", o.userID, "assetId", o.assetID, "reason", err)
		} else {
			s.logger.Error(o.op+" failed", "userId", o.userID, "assetId", o.assetID, "error", err)
		}
		return nil, err
	}

	s.logger.Debug(o.op+" settled",
		"userId", o.userID,
		"assetId", o.assetID,
		"quantity", out.quantity.String(),
		"value", out.value.String(),
		"transactionId", out.posting.Transaction.TransactionID)

	qty := out.quantity
	s.events.Publish(ctx, entity.LedgerEvent{
		TransactionID: out.posting.Transaction.TransactionID,
		UserID:        o.userID,
		UserEmail:     identity.Email(ctx),
		WalletID:      out.wallet.WalletID,
		Type:          out.posting.Transaction.Type,
		AssetID:       out.asset.AssetID,
		Symbol:        out.asset.Symbol,
		Amount:        out.value,
		Quantity:      &qty,
		BalanceAfter:  out.wallet.Balance,
		Currency:      out.wallet.Currency,
		OccurredAt:    out.posting.Entry.Timestamp,
	})

	return &inbound.OperationResult{
		Wallet:        out.wallet,
		TransactionID: out.posting.Transaction.TransactionID,
		Holding:       out.holding,
		Quantity:      out.quantity,
	}, nil
}

func (s *Service) settleInTx(ctx context.Context, tx outbound.LedgerTx, o order) (*settled, error) {
	asset, err := tx.GetAsset(ctx, o.assetID)
	if err != nil {
		return nil, err
	}
	if o.fundOnly && !asset.IsFund() {
		return nil, fmt.Errorf("%w: %s is a %s", entity.ErrAssetTypeMismatch, asset.Symbol, asset.AssetType)
	}
	price, err := asset.TradablePrice()
	if err != nil {
		return nil, err
	}
	quantity, value, err := o.price(price)
	if err != nil {
		return nil, err
	}

	portfolio, err := tx.EnsurePortfolio(ctx, o.userID)
	if err != nil {
		return nil, fmt.Errorf("ensuring portfolio: %w", err)
	}
	wallet, err := tx.LockWallet(ctx, o.userID, s.config.Currency)
	if err != nil {
		return nil, fmt.Errorf("locking wallet: %w", err)
	}
	holding, err := tx.LockHolding(ctx, portfolio.PortfolioID, asset.AssetID)
	if err != nil {
		return nil, fmt.Errorf("locking holding: %w", err)
	}

	movement := shared.Movement{
		Wallet:   wallet,
		Amount:   value,
		AssetID:  asset.AssetID,
		Quantity: quantity,
	}

	switch o.side {
	case sideBuy:
		movement.Type = entity.TransactionTypeBuy
		movement.Insufficient = entity.ErrInsufficientFunds
		if _, err := wallet.Debit(value, entity.ErrInsufficientFunds); err != nil {
			return nil, err
		}
		if holding == nil {
			holding, err = entity.NewHolding(uuid.NewString(), portfolio.PortfolioID, asset.AssetID, quantity, price)
			if err != nil {
				return nil, err
			}
		} else if err := holding.Add(quantity, price); err != nil {
			return nil, err
		}
		if err := tx.SaveHolding(ctx, holding); err != nil {
			return nil, fmt.Errorf("saving holding: %w", err)
		}

	case sideSell:
		movement.Type = entity.TransactionTypeSell
		if holding == nil {
			return nil, fmt.Errorf("%w: %s", entity.ErrHoldingNotFound, asset.Symbol)
		}
		closed, err := holding.Reduce(quantity)
		if err != nil {
			return nil, err
		}
		if closed {
			if err := tx.DeleteHolding(ctx, holding); err != nil {
				return nil, fmt.Errorf("deleting holding: %w", err)
			}
			holding = nil
		} else if err := tx.SaveHolding(ctx, holding); err != nil {
			return nil, fmt.Errorf("saving holding: %w", err)
		}
	}

	posting, err := shared.ApplyMovement(ctx, tx, movement)
	if err != nil {
		return nil, err
	}

	return &settled{
		asset:    asset,
		wallet:   wallet,
		holding:  holding,
		quantity: quantity,
		value:    value,
		posting:  posting,
	}, nil
}
