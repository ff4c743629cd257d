package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/emiliopalmerini/studi/internal/ports"
)

const (
	serviceName    = "studi"
	serviceVersion = "1.0.0"
)

// Exporter exports aggregation metrics to an OTEL Collector.
type Exporter struct {
	provider       *sdkmetric.MeterProvider
	recomputeTotal metric.Int64Counter
	recomputeTime  metric.Float64Histogram
	sessionsHist   metric.Int64Histogram
	flowScoreHist  metric.Int64Histogram
}

// NewExporter creates an exporter pushing to cfg.Endpoint over OTLP/gRPC.
func NewExporter(ctx context.Context, cfg Config) (*Exporter, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTEL exporter is disabled or endpoint not configured")
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	e, err := NewWithReader(sdkmetric.NewPeriodicReader(exp), res)
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(e.provider)
	return e, nil
}

// NewWithReader builds an exporter around an arbitrary metric reader.
func NewWithReader(reader sdkmetric.Reader, res *resource.Resource) (*Exporter, error) {
	popts := []sdkmetric.Option{sdkmetric.WithReader(reader)}
	if res != nil {
		popts = append(popts, sdkmetric.WithResource(res))
	}
	provider := sdkmetric.NewMeterProvider(popts...)
	meter := provider.Meter(serviceName)

	recomputeTotal, err := meter.Int64Counter(
		"studi_aggregate_recomputes_total",
		metric.WithDescription("Aggregate rows recomputed"),
		metric.WithUnit("{recompute}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating recompute counter: %w", err)
	}

	recomputeTime, err := meter.Float64Histogram(
		"studi_aggregate_recompute_seconds",
		metric.WithDescription("Time spent recomputing one aggregate row"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating recompute histogram: %w", err)
	}

	sessionsHist, err := meter.Int64Histogram(
		"studi_aggregate_sessions",
		metric.WithDescription("Sessions folded into one aggregate row"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sessions histogram: %w", err)
	}

	flowScoreHist, err := meter.Int64Histogram(
		"studi_flow_score",
		metric.WithDescription("Flow score of completed sessions"),
		metric.WithUnit("{score}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating flow score histogram: %w", err)
	}

	return &Exporter{
		provider:       provider,
		recomputeTotal: recomputeTotal,
		recomputeTime:  recomputeTime,
		sessionsHist:   sessionsHist,
		flowScoreHist:  flowScoreHist,
	}, nil
}

func (e *Exporter) RecordRecompute(ctx context.Context, m ports.RecomputeMetrics) {
	status := "ok"
	if m.Err != nil {
		status = "error"
	}
	opt := metric.WithAttributes(
		attribute.String("granularity", m.Granularity),
		attribute.String("status", status),
		attribute.Bool("final", m.Final),
	)
	e.recomputeTotal.Add(ctx, 1, opt)
	e.recomputeTime.Record(ctx, m.Duration.Seconds(), opt)
	if m.Err == nil {
		e.sessionsHist.Record(ctx, m.SessionCount, metric.WithAttributes(attribute.String("granularity", m.Granularity)))
	}
}

func (e *Exporter) RecordFlowScore(ctx context.Context, score int, weakest string) {
	e.flowScoreHist.Record(ctx, int64(score), metric.WithAttributes(attribute.String("weakest_component", weakest)))
}

// Close shuts down the exporter and flushes any pending metrics.
func (e *Exporter) Close(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}

var _ ports.MetricsExporter = (*Exporter)(nil)
