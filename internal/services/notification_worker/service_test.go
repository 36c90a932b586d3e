package notification_worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/ports/outbound"
)

type mockSQSConsumer struct {
	mu        sync.Mutex
	messages  []outbound.SQSMessage
	deleted   []string
	receiveFn func(ctx context.Context, maxMessages int) ([]outbound.SQSMessage, error)
}

func (m *mockSQSConsumer) ReceiveMessages(ctx context.Context, maxMessages int) ([]outbound.SQSMessage, error) {
	if m.receiveFn != nil {
		return m.receiveFn(ctx, maxMessages)
	}
	m.mu.Lock()
	count := min(maxMessages, len(m.messages))
	result := m.messages[:count]
	m.messages = m.messages[count:]
	m.mu.Unlock()

	if len(result) == 0 {
		// Emulate long polling so the fetch loop does not spin.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
	return result, nil
}

func (m *mockSQSConsumer) DeleteMessage(ctx context.Context, receiptHandle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, receiptHandle)
	return nil
}

func (m *mockSQSConsumer) Close() error { return nil }

func (m *mockSQSConsumer) deletedHandles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

type mockNotifier struct {
	mu     sync.Mutex
	sent   []entity.Notification
	sendFn func(ctx context.Context, n entity.Notification) error
}

func (m *mockNotifier) Send(ctx context.Context, n entity.Notification) error {
	if m.sendFn != nil {
		if err := m.sendFn(ctx, n); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return nil
}

func (m *mockNotifier) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type mockMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (m *mockMetrics) RecordOperation(ctx context.Context, operation, outcome string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = map[string]int{}
	}
	m.outcomes[operation+"/"+outcome]++
}
func (m *mockMetrics) RecordPriceRun(context.Context, int, int, time.Duration)    {}
func (m *mockMetrics) RecordSideEffectFailure(ctx context.Context, effect string) {}

func notificationBody(t *testing.T, email, txID string) string {
	t.Helper()
	b, err := json.Marshal(entity.Notification{
		Email:   email,
		Subject: "Deposit confirmed",
		Event: entity.LedgerEvent{
			TransactionID: txID,
			Type:          entity.TransactionTypeDeposit,
			Amount:        decimal.NewFromInt(100),
			BalanceAfter:  decimal.NewFromInt(100),
			Currency:      "INR",
		},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func runUntil(t *testing.T, svc *Service, done func() bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- svc.Run(ctx) }()

	for !done() {
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for worker")
		}
		time.Sleep(5 * time.Millisecond)
	}
	svc.Stop()
	if err := <-errCh; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}

func TestNewService_Validation(t *testing.T) {
	if _, err := NewService(Config{}, nil, &mockNotifier{}); err == nil {
		t.Error("expected error for nil consumer")
	}
	if _, err := NewService(Config{}, &mockSQSConsumer{}, nil); err == nil {
		t.Error("expected error for nil notifier")
	}
	svc, err := NewService(Config{}, &mockSQSConsumer{}, &mockNotifier{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.config.Workers != 4 || svc.config.BatchSize != 10 {
		t.Errorf("defaults not applied: %+v", svc.config)
	}
}

func TestRun_DeliversAndDeletes(t *testing.T) {
	consumer := &mockSQSConsumer{messages: []outbound.SQSMessage{
		{MessageID: "m1", ReceiptHandle: "r1", Body: notificationBody(t, "a@example.com", "tx-1"), ReceiveCount: 1},
		{MessageID: "m2", ReceiptHandle: "r2", Body: notificationBody(t, "b@example.com", "tx-2"), ReceiveCount: 1},
	}}
	notifier := &mockNotifier{}
	metrics := &mockMetrics{}

	svc, err := NewService(Config{Workers: 2, Metrics: metrics}, consumer, notifier)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	runUntil(t, svc, func() bool { return len(consumer.deletedHandles()) == 2 })

	if notifier.sentCount() != 2 {
		t.Errorf("sent %d notifications, want 2", notifier.sentCount())
	}
	if metrics.outcomes["notification_send/ok"] != 2 {
		t.Errorf("outcomes = %v", metrics.outcomes)
	}
}

func TestRun_FailureHandling(t *testing.T) {
	tests := []struct {
		name        string
		msg         outbound.SQSMessage
		maxReceives int
		wantDeleted bool
	}{
		{
			name:        "transient failure stays on queue",
			msg:         outbound.SQSMessage{MessageID: "m1", ReceiptHandle: "r1", Body: `{"email":"fail@example.com"}`, ReceiveCount: 1},
			maxReceives: 5,
			wantDeleted: false,
		},
		{
			name:        "exhausted receives are dropped",
			msg:         outbound.SQSMessage{MessageID: "m1", ReceiptHandle: "r1", Body: `{"email":"fail@example.com"}`, ReceiveCount: 5},
			maxReceives: 5,
			wantDeleted: true,
		},
		{
			name:        "malformed body is dropped",
			msg:         outbound.SQSMessage{MessageID: "m1", ReceiptHandle: "r1", Body: `not json`, ReceiveCount: 1},
			wantDeleted: true,
		},
		{
			name:        "missing recipient is dropped",
			msg:         outbound.SQSMessage{MessageID: "m1", ReceiptHandle: "r1", Body: `{"subject":"x"}`, ReceiveCount: 1},
			wantDeleted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			consumer := &mockSQSConsumer{messages: []outbound.SQSMessage{tt.msg}}
			notifier := &mockNotifier{sendFn: func(ctx context.Context, n entity.Notification) error {
				return errors.New("smtp 421")
			}}
			metrics := &mockMetrics{}

			svc, err := NewService(Config{Workers: 1, MaxReceives: tt.maxReceives, Metrics: metrics}, consumer, notifier)
			if err != nil {
				t.Fatalf("NewService: %v", err)
			}
			runUntil(t, svc, func() bool {
				metrics.mu.Lock()
				defer metrics.mu.Unlock()
				return len(metrics.outcomes) > 0
			})

			deleted := len(consumer.deletedHandles()) == 1
			if deleted != tt.wantDeleted {
				t.Errorf("deleted = %v, want %v", deleted, tt.wantDeleted)
			}
		})
	}
}

func TestRun_ReceiveErrorBacksOff(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	consumer := &mockSQSConsumer{receiveFn: func(ctx context.Context, maxMessages int) ([]outbound.SQSMessage, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil, errors.New("throttled")
	}}
	svc, err := NewService(Config{Workers: 1, ReceiveBackoff: time.Hour}, consumer, &mockNotifier{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := svc.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run = %v, want deadline exceeded", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("receive called %d times during backoff, want 1", calls)
	}
}
