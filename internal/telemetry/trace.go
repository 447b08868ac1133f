package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/felixgeelhaar/dramascope"

// Tracer starts the spans emitted by the pipeline. A nil *Tracer is valid
// and produces no-op spans.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer from a provider; a nil provider yields no-op spans.
func NewTracer(tp trace.TracerProvider) *Tracer {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Tracer{tracer: tp.Tracer(instrumentationName)}
}

func (t *Tracer) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return noop.NewTracerProvider().Tracer("").Start(ctx, name)
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartRunSpan creates the root span for one pipeline run.
//
// Usage:
//
//	ctx, span := tracer.StartRunSpan(ctx, runID, "full")
//	defer span.End()
func (t *Tracer) StartRunSpan(ctx context.Context, runID, kind string) (context.Context, trace.Span) {
	return t.start(ctx, "pipeline.run",
		attribute.String("run_id", runID),
		attribute.String("run_kind", kind),
		attribute.String("component", "pipeline"),
	)
}

// StartStationSpan creates a span for one station attempt.
func (t *Tracer) StartStationSpan(ctx context.Context, stationKey string, number, attempt int) (context.Context, trace.Span) {
	return t.start(ctx, "station."+stationKey,
		attribute.String("station", stationKey),
		attribute.Int("station_number", number),
		attribute.Int("attempt", attempt),
		attribute.String("component", "orchestrator"),
	)
}

// StartTaskSpan creates a span for one generative service call.
func (t *Tracer) StartTaskSpan(ctx context.Context, model string) (context.Context, trace.Span) {
	return t.start(ctx, "task.generate",
		attribute.String("model", model),
		attribute.String("component", "taskclient"),
	)
}

// RecordSuccess marks a span as successful with optional result attributes.
func RecordSuccess(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Ok, "")
}

// RecordError records an error in a span and sets error status.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.Bool("error", true))
}

// RecordDuration records the duration of an operation as a span attribute.
func RecordDuration(span trace.Span, name string, duration time.Duration) {
	span.SetAttributes(attribute.Int64(name+"_ms", duration.Milliseconds()))
}
