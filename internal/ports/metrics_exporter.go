package ports

import (
	"context"
	"time"
)

// MetricsExporter exports aggregation and scoring metrics to an external observability system.
type MetricsExporter interface {
	// RecordRecompute records one recompute of an aggregate row.
	RecordRecompute(ctx context.Context, m RecomputeMetrics)
	// RecordFlowScore records the score given to a completed session.
	RecordFlowScore(ctx context.Context, score int, weakest string)
	// Close shuts down the exporter and flushes any pending metrics.
	Close(ctx context.Context) error
}

type RecomputeMetrics struct {
	Granularity  string
	Duration     time.Duration
	SessionCount int64
	Final        bool
	Err          error
}
