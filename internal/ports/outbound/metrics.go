package outbound

import (
	"context"
	"time"
)

// MetricsRecorder records ledger metrics without depending on a telemetry backend.
type MetricsRecorder interface {
	// RecordOperation records one wallet or trade operation and its outcome
	// ("ok", "rejected" or "error").
	RecordOperation(ctx context.Context, operation, outcome string, duration time.Duration)

	// RecordPriceRun records a price engine cycle.
	RecordPriceRun(ctx context.Context, updated, failed int, duration time.Duration)

	// RecordSideEffectFailure records a best-effort side effect that failed.
	RecordSideEffectFailure(ctx context.Context, effect string)
}
