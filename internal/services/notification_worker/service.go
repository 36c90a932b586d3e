// Package notification_worker drains transaction confirmations from SQS and
// hands them to a Notifier.
package notification_worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/ports/outbound"
)

// errUndeliverable marks a message that can never be delivered, so retrying it
// is pointless.
var errUndeliverable = errors.New("undeliverable notification")

// Config holds configuration for the notification worker.
type Config struct {
	// Workers is the number of concurrent senders.
	Workers int

	// BatchSize is how many messages to fetch at once (max 10).
	BatchSize int

	// MaxReceives is how many deliveries a failing message gets before the
	// worker gives up on it and deletes it. Zero leaves it to the queue's
	// redrive policy.
	MaxReceives int

	// ReceiveBackoff is the pause after a failed receive.
	ReceiveBackoff time.Duration

	// Metrics is the metrics recorder (optional).
	Metrics outbound.MetricsRecorder

	Logger *slog.Logger
}

// ConfigDefaults returns sensible defaults for the notification worker.
func ConfigDefaults() Config {
	return Config{
		Workers:        4,
		BatchSize:      10,
		ReceiveBackoff: 5 * time.Second,
		Logger:         slog.Default(),
	}
}

// Service is the notification worker.
type Service struct {
	config    Config
	consumer  outbound.SQSConsumer
	notifier  outbound.Notifier
	metrics   outbound.MetricsRecorder
	logger    *slog.Logger
	closeOnce sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewService creates a new notification worker.
func NewService(config Config, consumer outbound.SQSConsumer, notifier outbound.Notifier) (*Service, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}

	defaults := ConfigDefaults()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.ReceiveBackoff <= 0 {
		config.ReceiveBackoff = defaults.ReceiveBackoff
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Service{
		config:   config,
		consumer: consumer,
		notifier: notifier,
		metrics:  config.Metrics,
		logger:   config.Logger.With("component", "notification-worker"),
		stopCh:   make(chan struct{}),
	}, nil
}

// Run polls the queue and blocks until the context is cancelled or Stop is called.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("starting notification worker", "workers", s.config.Workers)

	msgCh := make(chan outbound.SQSMessage, s.config.Workers*2)
	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i, msgCh)
	}

	shutdown := func(err error) error {
		close(msgCh)
		s.wg.Wait()
		return err
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("context cancelled, stopping notification worker")
			return shutdown(ctx.Err())
		case <-s.stopCh:
			s.logger.Info("stop signal received, stopping notification worker")
			return shutdown(nil)
		default:
		}

		messages, err := s.consumer.ReceiveMessages(ctx, s.config.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return shutdown(ctx.Err())
			}
			s.logger.Error("failed to receive messages", "error", err)
			select {
			case <-time.After(s.config.ReceiveBackoff):
			case <-ctx.Done():
				return shutdown(ctx.Err())
			case <-s.stopCh:
				return shutdown(nil)
			}
			continue
		}

		for _, msg := range messages {
			select {
			case msgCh <- msg:
			case <-ctx.Done():
				return shutdown(ctx.Err())
			}
		}
	}
}

// Stop signals the worker to stop.
func (s *Service) Stop() {
	s.closeOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *Service) worker(ctx context.Context, id int, msgCh <-chan outbound.SQSMessage) {
	defer s.wg.Done()
	logger := s.logger.With("worker", id)

	for msg := range msgCh {
		start := time.Now()
		err := s.processMessage(ctx, msg)
		s.record(ctx, err, time.Since(start))

		if err != nil {
			exhausted := s.config.MaxReceives > 0 && msg.ReceiveCount >= s.config.MaxReceives
			if !errors.Is(err, errUndeliverable) && !exhausted {
				// Left on the queue; it becomes visible again after the visibility timeout.
				logger.Warn("failed to send notification, will retry",
					"messageId", msg.MessageID,
					"receiveCount", msg.ReceiveCount,
					"error", err)
				continue
			}
			logger.Error("dropping notification",
				"messageId", msg.MessageID,
				"receiveCount", msg.ReceiveCount,
				"error", err)
		}

		if err := s.consumer.DeleteMessage(ctx, msg.ReceiptHandle); err != nil {
			logger.Error("failed to delete message", "messageId", msg.MessageID, "error", err)
		}
	}
}

func (s *Service) processMessage(ctx context.Context, msg outbound.SQSMessage) error {
	var n entity.Notification
	if err := json.Unmarshal([]byte(msg.Body), &n); err != nil {
		return fmt.Errorf("%w: parsing message %s: %v", errUndeliverable, msg.MessageID, err)
	}
	if n.Email == "" {
		return fmt.Errorf("%w: message %s has no recipient", errUndeliverable, msg.MessageID)
	}

	if err := s.notifier.Send(ctx, n); err != nil {
		return fmt.Errorf("sending notification for transaction %s: %w", n.Event.TransactionID, err)
	}

	s.logger.Debug("notification sent",
		"messageId", msg.MessageID,
		"transactionId", n.Event.TransactionID,
		"type", n.Event.Type)
	return nil
}

func (s *Service) record(ctx context.Context, err error, d time.Duration) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case errors.Is(err, errUndeliverable):
		outcome = "rejected"
	case err != nil:
		outcome = "error"
	}
	s.metrics.RecordOperation(ctx, "notification_send", outcome, d)
}
