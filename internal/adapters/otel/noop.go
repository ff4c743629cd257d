package otel

import (
	"context"

	"github.com/emiliopalmerini/studi/internal/ports"
)

// NoOpExporter is a metrics exporter that does nothing.
type NoOpExporter struct{}

// NewNoOpExporter creates a new no-op exporter for graceful degradation.
func NewNoOpExporter() *NoOpExporter {
	return &NoOpExporter{}
}

func (e *NoOpExporter) RecordRecompute(ctx context.Context, m ports.RecomputeMetrics) {}

func (e *NoOpExporter) RecordFlowScore(ctx context.Context, score int, weakest string) {}

func (e *NoOpExporter) Close(ctx context.Context) error {
	return nil
}
