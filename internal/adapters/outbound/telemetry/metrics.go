package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/archon-research/ledger-engine/internal/ports/outbound"
)

const instrumentationName = "github.com/archon-research/ledger-engine"

var _ outbound.MetricsRecorder = (*Metrics)(nil)

// Metrics implements outbound.MetricsRecorder using OpenTelemetry.
type Metrics struct {
	operations        metric.Int64Counter
	operationLatency  metric.Float64Histogram
	priceRuns         metric.Int64Counter
	pricesUpdated     metric.Int64Counter
	pricesFailed      metric.Int64Counter
	priceRunLatency   metric.Float64Histogram
	sideEffectFailure metric.Int64Counter
}

// NewMetrics creates a recorder on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithProvider(otel.GetMeterProvider())
}

// NewMetricsWithProvider creates a recorder on the given meter provider.
func NewMetricsWithProvider(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(instrumentationName)
	m := &Metrics{}
	var err error

	if m.operations, err = meter.Int64Counter(
		"ledger.operations.total",
		metric.WithDescription("Wallet and trade operations by outcome"),
	); err != nil {
		return nil, fmt.Errorf("failed to create ledger.operations.total counter: %w", err)
	}
	if m.operationLatency, err = meter.Float64Histogram(
		"ledger.operation.duration",
		metric.WithDescription("Time taken to settle a wallet or trade operation"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create ledger.operation.duration histogram: %w", err)
	}
	if m.priceRuns, err = meter.Int64Counter(
		"price_engine.runs.total",
		metric.WithDescription("Completed price engine cycles"),
	); err != nil {
		return nil, fmt.Errorf("failed to create price_engine.runs.total counter: %w", err)
	}
	if m.pricesUpdated, err = meter.Int64Counter(
		"price_engine.assets.updated",
		metric.WithDescription("Asset prices written by the price engine"),
	); err != nil {
		return nil, fmt.Errorf("failed to create price_engine.assets.updated counter: %w", err)
	}
	if m.pricesFailed, err = meter.Int64Counter(
		"price_engine.assets.failed",
		metric.WithDescription("Asset price updates that failed"),
	); err != nil {
		return nil, fmt.Errorf("failed to create price_engine.assets.failed counter: %w", err)
	}
	if m.priceRunLatency, err = meter.Float64Histogram(
		"price_engine.run.duration",
		metric.WithDescription("Time taken by one price engine cycle"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create price_engine.run.duration histogram: %w", err)
	}
	if m.sideEffectFailure, err = meter.Int64Counter(
		"ledger.side_effect.failures",
		metric.WithDescription("Post-commit side effects that failed"),
	); err != nil {
		return nil, fmt.Errorf("failed to create ledger.side_effect.failures counter: %w", err)
	}
	return m, nil
}

// RecordOperation records one settled or rejected operation.
func (m *Metrics) RecordOperation(ctx context.Context, operation, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	)
	m.operations.Add(ctx, 1, attrs)
	m.operationLatency.Record(ctx, duration.Seconds(), attrs)
}

// RecordPriceRun records a price engine cycle.
func (m *Metrics) RecordPriceRun(ctx context.Context, updated, failed int, duration time.Duration) {
	m.priceRuns.Add(ctx, 1)
	m.pricesUpdated.Add(ctx, int64(updated))
	m.pricesFailed.Add(ctx, int64(failed))
	m.priceRunLatency.Record(ctx, duration.Seconds())
}

// RecordSideEffectFailure counts a failed post-commit side effect.
func (m *Metrics) RecordSideEffectFailure(ctx context.Context, effect string) {
	m.sideEffectFailure.Add(ctx, 1, metric.WithAttributes(attribute.String("effect", effect)))
}
