package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"postman/internal/delivery"
)

func newTestTracer() (*Tracer, *tracetest.SpanRecorder) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return FromProvider(tp, "test"), sr
}

func TestTracer_End(t *testing.T) {
	tr, sr := newTestTracer()

	_, ok := tr.StartSpan(context.Background(), "ok")
	tr.End(ok, nil)
	_, failed := tr.StartSpan(context.Background(), "failed")
	tr.End(failed, errors.New("broker down"))

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "broker down", spans[1].Status().Description)
	assert.Contains(t, spans[1].Attributes(), attribute.Bool("error", true))
}

func TestTracer_RecordAttributes(t *testing.T) {
	tr, _ := newTestTracer()

	rec := delivery.NewRecord([]byte("hello"), "greetings", delivery.WithKey([]byte("k")), delivery.WithPartition(3))
	attrs := tr.RecordAttributes(rec)

	assert.Contains(t, attrs, attribute.String("messaging.destination.name", "greetings"))
	assert.Contains(t, attrs, attribute.Int("messaging.message.body.size", 5))
	assert.Contains(t, attrs, attribute.String("messaging.kafka.message.key", "k"))
	assert.Contains(t, attrs, attribute.Int("messaging.destination.partition.id", 3))
}

func TestTracer_BatchAttributes(t *testing.T) {
	tr, _ := newTestTracer()

	attrs := tr.BatchAttributes("kafka", []delivery.Record{
		delivery.NewRecord([]byte("a"), "t1"),
		delivery.NewRecord([]byte("b"), "t1"),
		delivery.NewRecord([]byte("c"), "t2"),
	})

	assert.Contains(t, attrs, attribute.Int("messaging.batch.message_count", 3))
	assert.Contains(t, attrs, attribute.Int("postman.batch.topics", 2))
}
