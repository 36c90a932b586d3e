// Package sns publishes transaction confirmations to an AWS SNS topic.
//
// Each notification is serialized as JSON. Downstream, an SQS queue subscribed
// to the topic feeds the notification worker that sends the email.
//
// Message Attributes:
//   - transactionType: "deposit", "withdraw", "buy" or "sell"
//   - userId: the ledger user the confirmation belongs to
package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/pkg/retry"
	"github.com/archon-research/ledger-engine/internal/ports/outbound"
)

// Compile-time check that Publisher implements outbound.NotificationPublisher
var _ outbound.NotificationPublisher = (*Publisher)(nil)

// SNSPublisher defines the subset of SNS client methods used by Publisher.
// This interface allows for easy mocking in tests.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Config holds configuration for the SNS publisher.
type Config struct {
	// TopicARN is the notification topic.
	TopicARN string

	// MaxRetries is the maximum number of retry attempts for transient failures.
	MaxRetries int

	// InitialBackoff is the initial delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum delay between retries.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each retry.
	BackoffFactor float64

	// Logger is the structured logger for the publisher.
	Logger *slog.Logger
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		Logger:         slog.Default(),
	}
}

// Publisher publishes notifications to AWS SNS.
type Publisher struct {
	client SNSPublisher
	config Config
	logger *slog.Logger
}

// NewPublisher creates a new SNS notification publisher.
func NewPublisher(client SNSPublisher, config Config) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("sns client is required")
	}
	if config.TopicARN == "" {
		return nil, errors.New("topic ARN is required")
	}

	defaults := ConfigDefaults()
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.BackoffFactor == 0 {
		config.BackoffFactor = defaults.BackoffFactor
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Publisher{
		client: client,
		config: config,
		logger: config.Logger.With("component", "sns-notifications"),
	}, nil
}

// PublishNotification publishes n to the topic.
func (p *Publisher) PublishNotification(ctx context.Context, n entity.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(p.config.TopicARN),
		Subject:  aws.String(n.Subject),
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"transactionType": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(n.Event.Type)),
			},
			"userId": {
				DataType:    aws.String("String"),
				StringValue: aws.String(n.Event.UserID),
			},
		},
	}

	cfg := retry.Config{
		MaxRetries:     p.config.MaxRetries,
		InitialBackoff: p.config.InitialBackoff,
		MaxBackoff:     p.config.MaxBackoff,
		BackoffFactor:  p.config.BackoffFactor,
	}
	onRetry := func(attempt int, err error, backoff time.Duration) {
		p.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"maxRetries", p.config.MaxRetries,
			"backoff", backoff,
			"error", err,
			"transactionId", n.Event.TransactionID,
		)
	}

	err = retry.DoVoid(ctx, cfg, isRetryableError, onRetry, func() error {
		_, err := p.client.Publish(ctx, input)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}
	return nil
}

// isRetryableError determines if an error should trigger a retry.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Bad requests will not get better
	var invalidParam *types.InvalidParameterException
	if errors.As(err, &invalidParam) {
		return false
	}
	var notFound *types.NotFoundException
	if errors.As(err, &notFound) {
		return false
	}
	var authErr *types.AuthorizationErrorException
	if errors.As(err, &authErr) {
		return false
	}

	// Throttling, internal errors and network issues are transient
	return true
}
