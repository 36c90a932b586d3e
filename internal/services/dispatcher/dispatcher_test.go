package dispatcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockHandler struct {
	name     string
	mu       sync.Mutex
	handleFn func(ctx context.Context, ev entity.LedgerEvent) error
	seen     []entity.LedgerEvent
}

func (m *mockHandler) Name() string { return m.name }

func (m *mockHandler) Handle(ctx context.Context, ev entity.LedgerEvent) error {
	m.mu.Lock()
	m.seen = append(m.seen, ev)
	m.mu.Unlock()
	if m.handleFn != nil {
		return m.handleFn(ctx, ev)
	}
	return nil
}

func (m *mockHandler) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

type mockMetrics struct {
	mu       sync.Mutex
	failures map[string]int
}

func (m *mockMetrics) RecordOperation(context.Context, string, string, time.Duration) {}
func (m *mockMetrics) RecordPriceRun(context.Context, int, int, time.Duration)        {}
func (m *mockMetrics) RecordSideEffectFailure(_ context.Context, effect string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures == nil {
		m.failures = map[string]int{}
	}
	m.failures[effect]++
}

func (m *mockMetrics) get(effect string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[effect]
}

type mockLeaderboard struct {
	mu    sync.Mutex
	users []string
}

func (m *mockLeaderboard) RecomputeUser(_ context.Context, userID string) (*entity.LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, userID)
	return &entity.LeaderboardEntry{UserID: userID}, nil
}

func (m *mockLeaderboard) Top(context.Context, int) ([]*entity.LeaderboardEntry, error) {
	return nil, nil
}

type mockNotificationPublisher struct {
	sent []entity.Notification
	err  error
}

func (m *mockNotificationPublisher) PublishNotification(_ context.Context, n entity.Notification) error {
	m.sent = append(m.sent, n)
	return m.err
}

type mockBroadcaster struct {
	users []string
}

func (m *mockBroadcaster) NotifyBalance(userID string, _ entity.LedgerEvent) {
	m.users = append(m.users, userID)
}

func event(id string, typ entity.TransactionType) entity.LedgerEvent {
	return entity.LedgerEvent{
		TransactionID: id,
		UserID:        "user-1",
		Type:          typ,
		Amount:        decimal.NewFromInt(100),
		Currency:      entity.DefaultCurrency,
	}
}

// ---------------------------------------------------------------------------
// Dispatcher tests
// ---------------------------------------------------------------------------

func TestDispatcher_DeliversToAllHandlers(t *testing.T) {
	a := &mockHandler{name: "a"}
	b := &mockHandler{name: "b"}
	d, err := New(Config{Workers: 2}, nil, a, b)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.Start()

	for i := 0; i < 10; i++ {
		d.Publish(context.Background(), event("tx", entity.TransactionTypeDeposit))
	}
	d.Stop()

	if a.count() != 10 || b.count() != 10 {
		t.Errorf("a=%d b=%d, want 10 each", a.count(), b.count())
	}
}

func TestDispatcher_HandlerFailureIsIsolated(t *testing.T) {
	failing := &mockHandler{name: "failing", handleFn: func(context.Context, entity.LedgerEvent) error {
		return errors.New("smtp down")
	}}
	panicking := &mockHandler{name: "panicking", handleFn: func(context.Context, entity.LedgerEvent) error {
		panic("nil map")
	}}
	ok := &mockHandler{name: "ok"}
	metrics := &mockMetrics{}

	d, err := New(Config{Workers: 1}, metrics, failing, panicking, ok)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.Start()
	d.Publish(context.Background(), event("tx-1", entity.TransactionTypeDeposit))
	d.Stop()

	if ok.count() != 1 {
		t.Errorf("healthy handler ran %d times, want 1", ok.count())
	}
	if metrics.get("failing") != 1 || metrics.get("panicking") != 1 {
		t.Errorf("failures = %v", metrics.failures)
	}
}

func TestDispatcher_FullQueueDropsWithoutBlocking(t *testing.T) {
	release := make(chan struct{})
	blocking := &mockHandler{name: "blocking", handleFn: func(context.Context, entity.LedgerEvent) error {
		<-release
		return nil
	}}
	metrics := &mockMetrics{}
	d, err := New(Config{Workers: 1, QueueSize: 1}, metrics, blocking)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.Start()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			d.Publish(context.Background(), event("tx", entity.TransactionTypeDeposit))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
	close(release)
	d.Stop()

	if metrics.get("dispatch") == 0 {
		t.Error("expected dropped events to be counted")
	}
}

func TestDispatcher_PublishAfterStop(t *testing.T) {
	h := &mockHandler{name: "h"}
	metrics := &mockMetrics{}
	d, err := New(Config{}, metrics, h)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.Start()
	d.Stop()
	d.Publish(context.Background(), event("late", entity.TransactionTypeDeposit))
	d.Stop()

	if h.count() != 0 {
		t.Errorf("event delivered after stop")
	}
	if metrics.get("dispatch") != 1 {
		t.Errorf("dropped event not counted")
	}
}

func TestDispatcher_StopWithoutStartDrainsInline(t *testing.T) {
	h := &mockHandler{name: "h"}
	d, err := New(Config{}, nil, h)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.Publish(context.Background(), event("tx", entity.TransactionTypeDeposit))
	d.Stop()
	if h.count() != 1 {
		t.Errorf("queued event not handled on stop, count=%d", h.count())
	}
}

func TestNew_NilHandler(t *testing.T) {
	if _, err := New(Config{}, nil, nil); err == nil {
		t.Fatal("expected error for nil handler")
	}
}

// ---------------------------------------------------------------------------
// Handler tests
// ---------------------------------------------------------------------------

func TestLeaderboardHandler_OnlyTrades(t *testing.T) {
	lb := &mockLeaderboard{}
	h := LeaderboardHandler{Leaderboard: lb}
	ctx := context.Background()

	for _, typ := range []entity.TransactionType{
		entity.TransactionTypeDeposit, entity.TransactionTypeBuy,
		entity.TransactionTypeWithdraw, entity.TransactionTypeSell,
	} {
		if err := h.Handle(ctx, event("tx", typ)); err != nil {
			t.Fatalf("Handle: %v", err)
		}
	}
	if len(lb.users) != 2 {
		t.Errorf("recomputed %d times, want 2", len(lb.users))
	}
}

func TestNotificationHandler(t *testing.T) {
	pub := &mockNotificationPublisher{}
	h := NotificationHandler{Publisher: pub}
	ctx := context.Background()

	if err := h.Handle(ctx, event("tx-1", entity.TransactionTypeDeposit)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(pub.sent) != 0 {
		t.Fatal("notification sent without an e-mail address")
	}

	ev := event("tx-2", entity.TransactionTypeDeposit)
	ev.UserEmail = "a@example.com"
	if err := h.Handle(ctx, ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(pub.sent) != 1 || pub.sent[0].Email != "a@example.com" {
		t.Fatalf("unexpected notifications %+v", pub.sent)
	}

	pub.err = errors.New("sns throttled")
	if err := h.Handle(ctx, ev); err == nil {
		t.Error("publisher error should be returned to the dispatcher")
	}
}

func TestSubject(t *testing.T) {
	qty := decimal.NewFromInt(5)
	trade := event("tx", entity.TransactionTypeBuy)
	trade.Symbol = "ACME"
	trade.Quantity = &qty

	tests := []struct {
		name string
		ev   entity.LedgerEvent
		want string
	}{
		{"deposit", event("tx", entity.TransactionTypeDeposit), "Transaction confirmation: deposit of 100.00 INR"},
		{"buy", trade, "Trade confirmation: buy 5 ACME for 100.00 INR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Subject(tt.ev); got != tt.want {
				t.Errorf("Subject = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBalanceHandler(t *testing.T) {
	b := &mockBroadcaster{}
	h := BalanceHandler{Broadcaster: b}
	if err := h.Handle(context.Background(), event("tx", entity.TransactionTypeWithdraw)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(b.users) != 1 || !strings.EqualFold(b.users[0], "user-1") {
		t.Errorf("unexpected broadcasts %v", b.users)
	}
}
