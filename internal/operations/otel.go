package operations

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mktsummary/internal/calendar"
	"mktsummary/internal/infrastructure"
	"mktsummary/pkg/contracts/domain"
)

const (
	TracerName = "mktsummary.operations"
)

// BatchTracer provides OpenTelemetry instrumentation for batch runs. A nil
// *BatchTracer is valid and records spans on the global provider only.
type BatchTracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.PipelineMetrics
}

// NewBatchTracer creates a tracer bound to providers.
func NewBatchTracer(providers *infrastructure.OTelProviders) (*BatchTracer, error) {
	metrics, err := infrastructure.CreatePipelineMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}
	return &BatchTracer{
		tracer:  providers.Tracer,
		metrics: metrics,
	}, nil
}

// Metrics returns the pipeline instruments, or nil.
func (bt *BatchTracer) Metrics() *infrastructure.PipelineMetrics {
	if bt == nil {
		return nil
	}
	return bt.metrics
}

func (bt *BatchTracer) tr() trace.Tracer {
	if bt == nil || bt.tracer == nil {
		return otel.Tracer(TracerName)
	}
	return bt.tracer
}

// TraceBatch starts the span covering a whole batch.
func (bt *BatchTracer) TraceBatch(ctx context.Context, batchID string, dates int, workers int) (context.Context, trace.Span) {
	ctx, span := bt.tr().Start(ctx, "batch.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("batch.id", batchID),
			attribute.Int("batch.dates", dates),
			attribute.Int("batch.workers", workers),
		),
	)
	bt.Metrics().BatchStarted(ctx)
	return ctx, span
}

// RecordBatchCompletion closes the batch span with its summary.
func (bt *BatchTracer) RecordBatchCompletion(ctx context.Context, span trace.Span, summary domain.BatchSummary, duration time.Duration) {
	span.SetAttributes(
		attribute.Int("batch.succeeded", summary.Succeeded),
		attribute.Int("batch.skipped", summary.Skipped),
		attribute.Int("batch.failed", summary.Failed),
		attribute.Bool("batch.cancelled", summary.Cancelled),
		attribute.Float64("batch.duration_seconds", duration.Seconds()),
	)
	bt.Metrics().BatchFinished(ctx)

	if summary.Cancelled {
		span.SetStatus(codes.Error, "batch cancelled")
	} else {
		span.SetStatus(codes.Ok, "batch completed")
	}
	span.End()
}

// TraceDate starts the span for one business date.
func (bt *BatchTracer) TraceDate(ctx context.Context, day time.Time) (context.Context, trace.Span) {
	return bt.tr().Start(ctx, "batch.date",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("date", day.Format(calendar.ISODate))),
	)
}

// RecordStep records a completed pipeline step as a span event and metric.
func (bt *BatchTracer) RecordStep(ctx context.Context, state DateState, duration time.Duration) {
	infrastructure.AddSpanEvent(ctx, "date.step",
		attribute.String("step", string(state)),
		attribute.Float64("duration_seconds", duration.Seconds()))
	bt.Metrics().RecordStep(ctx, string(state), duration)
}

// RecordOutcome closes a date span.
func (bt *BatchTracer) RecordOutcome(ctx context.Context, span trace.Span, o domain.Outcome, err error) {
	span.SetAttributes(
		attribute.String("outcome.status", string(o.Status)),
		attribute.Int("outcome.rows", o.Rows),
	)
	if err != nil {
		infrastructure.RecordError(ctx, err)
	} else {
		span.SetStatus(codes.Ok, o.Detail)
	}
	bt.Metrics().RecordDate(ctx, string(o.Status))
	span.End()
}
