package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"go.opentelemetry.io/otel/trace"

	"postman/internal/delivery"
)

// Config holds configuration parameters for OpenTelemetry tracing setup.
// This includes service identification, the OTLP endpoint, sampling configuration,
// and batch processing settings for optimal trace delivery.
type Config struct {
	ServiceName    string        `env:"TRACING_SERVICE_NAME" envDefault:"postman"`
	ServiceVersion string        `env:"TRACING_SERVICE_VERSION" envDefault:"1.0.0"`
	Endpoint       string        `env:"TRACING_ENDPOINT" envDefault:"localhost:4318"`
	SampleRate     float64       `env:"TRACING_SAMPLE_RATE" envDefault:"1.0"`
	BatchTimeout   time.Duration `env:"TRACING_BATCH_TIMEOUT" envDefault:"1s"`
	ExportTimeout  time.Duration `env:"TRACING_EXPORT_TIMEOUT" envDefault:"30s"`
	MaxExportBatch int           `env:"TRACING_MAX_EXPORT_BATCH" envDefault:"512"`
	MaxQueueSize   int           `env:"TRACING_MAX_QUEUE_SIZE" envDefault:"2048"`
}

// Tracer wraps the OpenTelemetry tracer with helpers for producer operations.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates and configures a new OpenTelemetry tracer with OTLP HTTP export.
// It sets up the tracer provider, configures batch processing for efficient trace delivery,
// and returns both the tracer instance and a cleanup function for graceful shutdown.
func NewTracer(config Config) (*Tracer, func(context.Context) error, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlptracehttp.New(
		context.Background(),
		otlptracehttp.WithEndpoint(config.Endpoint),
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithTimeout(config.ExportTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	processor := sdktrace.NewBatchSpanProcessor(
		exporter,
		sdktrace.WithBatchTimeout(config.BatchTimeout),
		sdktrace.WithExportTimeout(config.ExportTimeout),
		sdktrace.WithMaxExportBatchSize(config.MaxExportBatch),
		sdktrace.WithMaxQueueSize(config.MaxQueueSize),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(processor),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.SampleRate))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	cleanup := func(ctx context.Context) error {
		// Force flush all pending spans before shutdown
		if err := tp.ForceFlush(ctx); err != nil {
			return fmt.Errorf("failed to flush traces: %w", err)
		}
		return tp.Shutdown(ctx)
	}

	return FromProvider(tp, config.ServiceName), cleanup, nil
}

// FromProvider builds a Tracer on an existing provider.
func FromProvider(tp trace.TracerProvider, name string) *Tracer {
	return &Tracer{tracer: tp.Tracer(name)}
}

// StartSpan creates a new tracing span with the specified name and options.
func (t *Tracer) StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, spanName, opts...)
}

// RecordError records an error event on the active span and sets the span status to error.
func (t *Tracer) RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// End finishes span with a status derived from err.
func (t *Tracer) End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(t.ErrorAttributes(err)...)
	span.End()
}

// RecordAttributes describes a single record being produced.
func (t *Tracer) RecordAttributes(rec delivery.Record) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("messaging.destination.name", rec.Topic()),
		attribute.Int("messaging.message.body.size", len(rec.Value())),
	}
	if key := rec.Key(); key != nil {
		attrs = append(attrs, attribute.String("messaging.kafka.message.key", string(key)))
	}
	if p, ok := rec.Partition(); ok {
		attrs = append(attrs, attribute.Int("messaging.destination.partition.id", int(p)))
	}
	return attrs
}

// BatchAttributes describes a batch handed to the broker client.
func (t *Tracer) BatchAttributes(system string, records []delivery.Record) []attribute.KeyValue {
	topics := make(map[string]struct{})
	for _, r := range records {
		topics[r.Topic()] = struct{}{}
	}
	return []attribute.KeyValue{
		attribute.String("messaging.system", system),
		attribute.Int("messaging.batch.message_count", len(records)),
		attribute.Int("postman.batch.topics", len(topics)),
	}
}

// ErrorAttributes creates attributes based on error state.
func (t *Tracer) ErrorAttributes(err error) []attribute.KeyValue {
	if err == nil {
		return []attribute.KeyValue{
			attribute.Bool("error", false),
		}
	}
	return []attribute.KeyValue{
		attribute.Bool("error", true),
		attribute.String("error.type", fmt.Sprintf("%T", err)),
		attribute.String("error.message", err.Error()),
	}
}
