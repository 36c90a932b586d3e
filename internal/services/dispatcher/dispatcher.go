// Package dispatcher runs post-commit side effects. Services publish a
// LedgerEvent once their ledger transaction has committed; the dispatcher queues
// it and worker goroutines hand it to every registered handler. Handler
// failures are logged and counted, never reported back to the publisher.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/ports/outbound"
	"github.com/archon-research/ledger-engine/internal/services/shared"
)

var _ outbound.EventPublisher = (*Dispatcher)(nil)

// Handler is one post-commit side effect.
type Handler interface {
	Name() string
	Handle(ctx context.Context, event entity.LedgerEvent) error
}

// Config holds configuration for the dispatcher.
type Config struct {
	// QueueSize bounds the number of pending events. Events published to a full
	// queue are dropped. Defaults to 1024.
	QueueSize int

	// Workers is the number of goroutines draining the queue. Defaults to 4.
	Workers int

	// HandlerTimeout bounds each handler call. Defaults to 10s.
	HandlerTimeout time.Duration

	Logger *slog.Logger
}

func configDefaults() Config {
	return Config{
		QueueSize:      1024,
		Workers:        4,
		HandlerTimeout: 10 * time.Second,
		Logger:         slog.Default(),
	}
}

// Dispatcher is a bounded in-process event queue.
type Dispatcher struct {
	config   Config
	handlers []Handler
	metrics  outbound.MetricsRecorder
	logger   *slog.Logger

	queue chan entity.LedgerEvent

	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// New creates a dispatcher. metrics may be nil.
func New(config Config, metrics outbound.MetricsRecorder, handlers ...Handler) (*Dispatcher, error) {
	for i, h := range handlers {
		if h == nil {
			return nil, fmt.Errorf("handler %d cannot be nil", i)
		}
	}
	if metrics == nil {
		metrics = shared.NopMetrics{}
	}

	defaults := configDefaults()
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = defaults.HandlerTimeout
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Dispatcher{
		config:   config,
		handlers: handlers,
		metrics:  metrics,
		logger:   config.Logger.With("component", "dispatcher"),
		queue:    make(chan entity.LedgerEvent, config.QueueSize),
	}, nil
}

// Start launches the workers.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.logger.Info("dispatcher started", "workers", d.config.Workers, "handlers", len(d.handlers))
}

// Stop stops accepting events, drains the queue and waits for the workers.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		// Nobody will drain the queue; run what is left inline.
		for ev := range d.queue {
			d.dispatch(ev)
		}
	}
	d.wg.Wait()
	d.logger.Info("dispatcher stopped")
}

// Publish queues an event without blocking.
func (d *Dispatcher) Publish(ctx context.Context, event entity.LedgerEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("dropping event after shutdown", "transactionId", event.TransactionID)
		d.metrics.RecordSideEffectFailure(ctx, "dispatch")
		return
	}
	select {
	case d.queue <- event:
	default:
		d.logger.Warn("dispatch queue full, dropping event",
			"transactionId", event.TransactionID,
			"userId", event.UserID,
			"queueSize", d.config.QueueSize)
		d.metrics.RecordSideEffectFailure(ctx, "dispatch")
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for ev := range d.queue {
		d.dispatch(ev)
	}
}

func (d *Dispatcher) dispatch(ev entity.LedgerEvent) {
	for _, h := range d.handlers {
		d.run(h, ev)
	}
}

func (d *Dispatcher) run(h Handler, ev entity.LedgerEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), d.config.HandlerTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("side effect panicked",
				"handler", h.Name(),
				"transactionId", ev.TransactionID,
				"panic", r)
			d.metrics.RecordSideEffectFailure(ctx, h.Name())
		}
	}()

	if err := h.Handle(ctx, ev); err != nil {
		d.logger.Warn("side effect failed",
			"handler", h.Name(),
			"transactionId", ev.TransactionID,
			"userId", ev.UserID,
			"error", err)
		d.metrics.RecordSideEffectFailure(ctx, h.Name())
	}
}
