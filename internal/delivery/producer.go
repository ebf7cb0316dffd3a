package delivery

import "context"

// Producer defines the operations application code uses to publish records.
type Producer interface {
	// Deliver sends the record and blocks until the broker acknowledged it
	// or the delivery failed for good.
	Deliver(ctx context.Context, rec Record) error

	// DeliverAsync buffers the record for the next background flush.
	DeliverAsync(ctx context.Context, rec Record) error

	// Produce appends the record to the buffer without waiting on the network.
	Produce(ctx context.Context, rec Record) error

	// Flush delivers everything currently buffered and waits for the result.
	Flush(ctx context.Context) error

	// Shutdown drains pending records and releases the broker connection.
	// It is safe to call more than once.
	Shutdown(ctx context.Context)
}
