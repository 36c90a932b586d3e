package outbound

import "context"

// SQSMessage represents a message received from SQS.
type SQSMessage struct {
	MessageID     string
	ReceiptHandle string
	Body          string

	// ReceiveCount is how many times the message has been delivered,
	// including this one.
	ReceiveCount int
}

// SQSConsumer consumes messages from a queue.
type SQSConsumer interface {
	// ReceiveMessages fetches up to maxMessages. Returns an empty slice when idle.
	ReceiveMessages(ctx context.Context, maxMessages int) ([]SQSMessage, error)

	// DeleteMessage acknowledges a processed message.
	DeleteMessage(ctx context.Context, receiptHandle string) error

	Close() error
}
