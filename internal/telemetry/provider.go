package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// retryableExporter wraps an exporter with exponential backoff so a
// collector hiccup does not drop a whole batch
type retryableExporter struct {
	exporter   sdktrace.SpanExporter
	maxRetries uint
	maxElapsed time.Duration
}

func newRetryableExporter(exporter sdktrace.SpanExporter) *retryableExporter {
	return &retryableExporter{
		exporter:   exporter,
		maxRetries: 5,
		maxElapsed: 10 * time.Second,
	}
}

func (re *retryableExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.Multiplier = 1.5

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, re.exporter.ExportSpans(ctx, spans)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(re.maxRetries),
		backoff.WithMaxElapsedTime(re.maxElapsed),
	)
	if err != nil {
		return fmt.Errorf("export failed after retries: %w", err)
	}
	return nil
}

func (re *retryableExporter) Shutdown(ctx context.Context) error {
	return re.exporter.Shutdown(ctx)
}

// createResource creates an OTLP resource with service information
func createResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	return resource.New(
		ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
		resource.WithTelemetrySDK(),
	)
}

// NewProvider builds a tracer provider for cfg. The returned shutdown
// function flushes pending spans and must be called before exit.
func NewProvider(ctx context.Context, cfg Config) (trace.TracerProvider, func(context.Context) error, error) {
	if !cfg.Enabled {
		return noop.NewTracerProvider(), func(context.Context) error { return nil }, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	res, err := createResource(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}

	if cfg.SampleRate < 1.0 {
		opts = append(opts, sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRate)))
	} else {
		opts = append(opts, sdktrace.WithSampler(sdktrace.AlwaysSample()))
	}

	if cfg.Endpoint != "" {
		exportOpts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
		}
		if cfg.Insecure {
			exportOpts = append(exportOpts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, exportOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}

		opts = append(opts, sdktrace.WithBatcher(
			newRetryableExporter(exporter),
			sdktrace.WithBatchTimeout(5*time.Second),
		))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	return tp, tp.Shutdown, nil
}
