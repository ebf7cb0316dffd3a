package coordinator

import (
	"context"
	"time"

	"postman/internal/delivery"
	"postman/internal/delivery/metrics"
)

// MetricsProducer wraps a delivery.Producer with metrics collection
type MetricsProducer struct {
	producer delivery.Producer
	registry *metrics.Registry
}

// NewMetricsProducer creates a new instrumented producer
func NewMetricsProducer(producer delivery.Producer, registry *metrics.Registry) delivery.Producer {
	return &MetricsProducer{
		producer: producer,
		registry: registry,
	}
}

func (p *MetricsProducer) Deliver(ctx context.Context, rec delivery.Record) error {
	start := time.Now()
	err := p.producer.Deliver(ctx, rec)
	p.registry.RecordCall("deliver", rec.Topic(), time.Since(start), err)

	return err
}

func (p *MetricsProducer) DeliverAsync(ctx context.Context, rec delivery.Record) error {
	start := time.Now()
	err := p.producer.DeliverAsync(ctx, rec)
	p.registry.RecordCall("deliver_async", rec.Topic(), time.Since(start), err)

	return err
}

func (p *MetricsProducer) Produce(ctx context.Context, rec delivery.Record) error {
	start := time.Now()
	err := p.producer.Produce(ctx, rec)
	p.registry.RecordCall("produce", rec.Topic(), time.Since(start), err)

	return err
}

func (p *MetricsProducer) Flush(ctx context.Context) error {
	start := time.Now()
	err := p.producer.Flush(ctx)
	p.registry.RecordCall("flush", "", time.Since(start), err)

	return err
}

func (p *MetricsProducer) Shutdown(ctx context.Context) {
	start := time.Now()
	p.producer.Shutdown(ctx)
	p.registry.RecordCall("shutdown", "", time.Since(start), nil)
}
