package outbound

import (
	"context"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
)

// EventPublisher accepts post-commit ledger events. Publishing never fails the
// financial operation that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, event entity.LedgerEvent)
}

// NotificationPublisher hands transaction confirmations to the notification
// boundary (an SNS topic in production).
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, n entity.Notification) error
}

// Notifier delivers a confirmation to a user. Fire-and-forget from the ledger's
// point of view.
type Notifier interface {
	Send(ctx context.Context, n entity.Notification) error
}

// BalanceBroadcaster pushes balance changes to connected clients.
type BalanceBroadcaster interface {
	NotifyBalance(userID string, event entity.LedgerEvent)
}

// SignatureVerifier is the payment-gateway oracle: it reports whether a payment
// callback is authentic.
type SignatureVerifier interface {
	Verify(orderID, paymentID, signature string) bool
}
