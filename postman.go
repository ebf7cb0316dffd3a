// Package postman publishes records to message broker topics through a
// process-wide producer. Records are buffered in memory and delivered in
// batches by a background goroutine that retries transient failures, so
// callers only block when they ask to (Deliver, Flush).
//
// The package-level functions use a default Handle configured from the
// environment (variables prefixed POSTMAN_). Create a Handle with New for
// explicit wiring.
package postman

import (
	"context"
	"errors"
	"os"
	"sync"

	"postman/internal/delivery"
	"postman/internal/delivery/config"
	"postman/internal/delivery/fake"
)

type (
	// Record is a single message bound for a topic.
	Record = delivery.Record
	// RecordOption sets a record's key or partition.
	RecordOption = delivery.RecordOption
	// Client is the broker connection records are written through.
	Client = delivery.Client
	// Classifier decides whether a failed send is retried.
	Classifier = delivery.Classifier
	// Config is the full set of producer settings.
	Config = config.Config
	// ConfigError lists every problem found in a Config.
	ConfigError = config.Error
	// Fake is the in-memory producer used in test mode.
	Fake = fake.Producer
)

var (
	WithKey          = delivery.WithKey
	WithPartition    = delivery.WithPartition
	WithPartitionKey = delivery.WithPartitionKey
)

var (
	ErrBufferOverflow     = delivery.ErrBufferOverflow
	ErrDeliveryFailed     = delivery.ErrDeliveryFailed
	ErrCoordinatorStopped = delivery.ErrCoordinatorStopped
	ErrInvalidRecord      = delivery.ErrInvalidRecord

	// ErrAlreadyStarted is returned by Configure once the producer is in use.
	ErrAlreadyStarted = errors.New("producer already started")
)

var std = sync.OnceValue(newFromEnv)

// Default returns the handle behind the package-level functions.
func Default() *Handle {
	return std()
}

func Deliver(ctx context.Context, value []byte, topic string, opts ...RecordOption) error {
	return std().Deliver(ctx, value, topic, opts...)
}

func Produce(ctx context.Context, value []byte, topic string, opts ...RecordOption) error {
	return std().Produce(ctx, value, topic, opts...)
}

func ProduceOrDrop(ctx context.Context, value []byte, topic string, opts ...RecordOption) error {
	return std().ProduceOrDrop(ctx, value, topic, opts...)
}

func DeliverAsync(ctx context.Context, value []byte, topic string, opts ...RecordOption) error {
	return std().DeliverAsync(ctx, value, topic, opts...)
}

func DeliverAsyncOrDrop(ctx context.Context, value []byte, topic string, opts ...RecordOption) error {
	return std().DeliverAsyncOrDrop(ctx, value, topic, opts...)
}

func Flush(ctx context.Context) error {
	return std().Flush(ctx)
}

func Shutdown(ctx context.Context) {
	std().Shutdown(ctx)
}

func Configure(mutate func(*Config)) error {
	return std().Configure(mutate)
}

func EnterTestMode() *Fake {
	return std().EnterTestMode()
}

func Testing() *Fake {
	return std().Testing()
}

func ShutdownOnSignal(ctx context.Context, sigs ...os.Signal) (stop func()) {
	return std().ShutdownOnSignal(ctx, sigs...)
}
