package dispatcher

import (
	"context"
	"fmt"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/ports/inbound"
	"github.com/archon-research/ledger-engine/internal/ports/outbound"
)

// LeaderboardHandler rescores the user after trades.
type LeaderboardHandler struct {
	Leaderboard inbound.LeaderboardService
}

func (LeaderboardHandler) Name() string { return "leaderboard" }

func (h LeaderboardHandler) Handle(ctx context.Context, ev entity.LedgerEvent) error {
	if !ev.AffectsHoldings() {
		return nil
	}
	_, err := h.Leaderboard.RecomputeUser(ctx, ev.UserID)
	return err
}

// NotificationHandler publishes a transaction confirmation for users with a
// known e-mail address.
type NotificationHandler struct {
	Publisher outbound.NotificationPublisher
}

func (NotificationHandler) Name() string { return "notification" }

func (h NotificationHandler) Handle(ctx context.Context, ev entity.LedgerEvent) error {
	if ev.UserEmail == "" {
		return nil
	}
	return h.Publisher.PublishNotification(ctx, entity.Notification{
		Email:   ev.UserEmail,
		Subject: Subject(ev),
		Event:   ev,
	})
}

// Subject renders the confirmation subject line for an event.
func Subject(ev entity.LedgerEvent) string {
	amount := ev.Amount.StringFixed(entity.MoneyScale)
	switch ev.Type {
	case entity.TransactionTypeBuy, entity.TransactionTypeSell:
		qty := ""
		if ev.Quantity != nil {
			qty = ev.Quantity.String() + " "
		}
		return fmt.Sprintf("Trade confirmation: %s %s%s for %s %s", ev.Type, qty, ev.Symbol, amount, ev.Currency)
	default:
		return fmt.Sprintf("Transaction confirmation: %s of %s %s", ev.Type, amount, ev.Currency)
	}
}

// BalanceHandler pushes the new balance to connected clients.
type BalanceHandler struct {
	Broadcaster outbound.BalanceBroadcaster
}

func (BalanceHandler) Name() string { return "balance_push" }

func (h BalanceHandler) Handle(_ context.Context, ev entity.LedgerEvent) error {
	h.Broadcaster.NotifyBalance(ev.UserID, ev)
	return nil
}
