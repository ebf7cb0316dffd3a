package coordinator

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"postman/internal/delivery"
	"postman/internal/delivery/tracing"
)

// TracedProducer wraps a delivery.Producer with distributed tracing.
// Layer order: TracedProducer -> MetricsProducer -> Coordinator
type TracedProducer struct {
	producer delivery.Producer
	tracer   *tracing.Tracer
}

// NewTracedProducer creates a new traced producer that wraps a metrics producer
func NewTracedProducer(producer delivery.Producer, tracer *tracing.Tracer) delivery.Producer {
	return &TracedProducer{
		producer: producer,
		tracer:   tracer,
	}
}

func (p *TracedProducer) Deliver(ctx context.Context, rec delivery.Record) error {
	return p.traceRecord(ctx, "producer.deliver", rec, p.producer.Deliver)
}

func (p *TracedProducer) DeliverAsync(ctx context.Context, rec delivery.Record) error {
	return p.traceRecord(ctx, "producer.deliver_async", rec, p.producer.DeliverAsync)
}

func (p *TracedProducer) Produce(ctx context.Context, rec delivery.Record) error {
	return p.traceRecord(ctx, "producer.produce", rec, p.producer.Produce)
}

func (p *TracedProducer) Flush(ctx context.Context) error {
	ctx, span := p.tracer.StartSpan(ctx, "producer.flush")
	err := p.producer.Flush(ctx)
	p.tracer.End(span, err)

	return err
}

func (p *TracedProducer) Shutdown(ctx context.Context) {
	ctx, span := p.tracer.StartSpan(ctx, "producer.shutdown")
	p.producer.Shutdown(ctx)
	p.tracer.End(span, nil)
}

func (p *TracedProducer) traceRecord(
	ctx context.Context,
	name string,
	rec delivery.Record,
	call func(context.Context, delivery.Record) error,
) error {
	ctx, span := p.tracer.StartSpan(ctx, name,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(p.tracer.RecordAttributes(rec)...),
	)
	err := call(ctx, rec)
	p.tracer.End(span, err)

	return err
}

// TracedClient wraps a delivery.Client so every send attempt gets its own
// span.
type TracedClient struct {
	client   delivery.Client
	tracer   *tracing.Tracer
	system   string
	classify delivery.Classifier
}

// NewTracedClient wraps client. system names the backend in span attributes;
// classify labels failed attempts and should be the coordinator's retry
// policy. A nil classify means delivery.IsRetryable.
func NewTracedClient(client delivery.Client, tracer *tracing.Tracer, system string, classify delivery.Classifier) delivery.Client {
	if classify == nil {
		classify = delivery.IsRetryable
	}
	return &TracedClient{
		client:   client,
		tracer:   tracer,
		system:   system,
		classify: classify,
	}
}

func (c *TracedClient) Send(ctx context.Context, records ...delivery.Record) error {
	ctx, span := c.tracer.StartSpan(ctx, "client.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(c.tracer.BatchAttributes(c.system, records)...),
	)
	err := c.client.Send(ctx, records...)
	if err != nil {
		span.SetAttributes(attribute.Bool("postman.retryable", c.classify(err)))
	}
	c.tracer.End(span, err)

	return err
}

func (c *TracedClient) Close() error {
	return c.client.Close()
}
