package fake

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postman/internal/delivery"
)

func values(records []delivery.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = string(r.Value())
	}
	return out
}

func TestProducer_RecordsInCallOrder(t *testing.T) {
	p := New()
	ctx := context.Background()

	require.NoError(t, p.Produce(ctx, delivery.NewRecord([]byte("A"), "t1")))
	require.NoError(t, p.DeliverAsync(ctx, delivery.NewRecord([]byte("B"), "t1")))
	require.NoError(t, p.Deliver(ctx, delivery.NewRecord([]byte("C"), "t2", delivery.WithKey([]byte("k")))))
	require.NoError(t, p.Flush(ctx))
	p.Shutdown(ctx)

	assert.Equal(t, []string{"A", "B", "C"}, values(p.Messages()))
	assert.Equal(t, []string{"t1", "t1", "t2"}, p.Topics())
	assert.Equal(t, []string{"A", "B"}, values(p.MessagesFor("t1")))
	assert.Equal(t, []byte("k"), p.MessagesFor("t2")[0].Key())
	assert.Empty(t, p.MessagesFor("t3"))
}

func TestProducer_Clear(t *testing.T) {
	p := New()
	require.NoError(t, p.Produce(context.Background(), delivery.NewRecord([]byte("A"), "t1")))

	p.Clear()

	assert.Empty(t, p.Messages())
	assert.Empty(t, p.Topics())
}

func TestProducer_FailWith(t *testing.T) {
	p := New()
	ctx := context.Background()
	boom := errors.New("boom")

	p.FailWith(boom)
	assert.ErrorIs(t, p.Deliver(ctx, delivery.NewRecord([]byte("A"), "t1")), boom)
	assert.Empty(t, p.Messages())

	p.FailWith(nil)
	assert.NoError(t, p.Deliver(ctx, delivery.NewRecord([]byte("A"), "t1")))
	assert.Len(t, p.Messages(), 1)
}

func TestProducer_RejectsInvalidRecords(t *testing.T) {
	p := New()
	ctx := context.Background()

	assert.ErrorIs(t, p.Produce(ctx, delivery.NewRecord([]byte("A"), "")), delivery.ErrInvalidRecord)
	assert.ErrorIs(t, p.Deliver(ctx, delivery.NewRecord(nil, "t1")), delivery.ErrInvalidRecord)
	assert.ErrorIs(t, p.DeliverAsync(ctx, delivery.NewRecord([]byte("A"), "t1", delivery.WithPartition(-1))), delivery.ErrInvalidRecord)
	assert.Empty(t, p.Messages())
}
