// Package coordinator owns the producer's buffer and the single background
// goroutine that flushes it to a delivery.Client. Records are admitted under
// a mutex against record count and byte size limits, handed to the client in
// FIFO chunks, and retried with a flat backoff until they are acknowledged or
// the retry budget is spent.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"postman/internal/delivery"
	"postman/internal/delivery/config"
	"postman/internal/validator"
)

const (
	TriggerInterval  = "interval"
	TriggerThreshold = "threshold"
	TriggerForced    = "forced"
	TriggerShutdown  = "shutdown"
)

// DropReasonDeliveryFailed labels records discarded after the last attempt.
const DropReasonDeliveryFailed = "delivery_failed"

type state int

const (
	stateIdle state = iota
	stateRunning
	stateDraining
	stateStopped
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateRunning:
		return "running"
	case stateDraining:
		return "draining"
	default:
		return "stopped"
	}
}

// Observer receives the coordinator's internal measurements. It is called
// from the flush goroutine and, for buffer levels, while the buffer lock is
// held, so implementations must not call back into the coordinator.
type Observer interface {
	ObserveFlush(trigger string, records int, duration time.Duration, err error)
	ObserveAttempt(err error, retryable bool)
	ObserveBuffer(records, bytes, inFlight int)
	ObserveDropped(topic, reason string)
}

type nopObserver struct{}

func (nopObserver) ObserveFlush(string, int, time.Duration, error) {}
func (nopObserver) ObserveAttempt(error, bool)                     {}
func (nopObserver) ObserveBuffer(int, int, int)                    {}
func (nopObserver) ObserveDropped(string, string)                  {}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithObserver reports buffer levels, flushes and attempts to o.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithClassifier replaces delivery.IsRetryable as the retry policy.
func WithClassifier(classify delivery.Classifier) Option {
	return func(c *Coordinator) {
		if classify != nil {
			c.classify = classify
		}
	}
}

// WithRandom replaces the source of backoff jitter. f must return values in
// [0, 1).
func WithRandom(f func() float64) Option {
	return func(c *Coordinator) {
		if f != nil {
			c.random = f
		}
	}
}

// flushRequest is a Flush call waiting for its result. err collects the
// outcome of a flush that was already sending when the request arrived.
type flushRequest struct {
	done chan error
	err  error
}

// entry is a buffered record. done is set only when a caller waits on the
// record's outcome and has room for exactly one result.
type entry struct {
	rec  delivery.Record
	done chan error
}

// Coordinator implements delivery.Producer on top of a delivery.Client.
type Coordinator struct {
	client   delivery.Client
	config   config.Config
	logger   *zap.Logger
	observer Observer
	classify delivery.Classifier
	random   func() float64

	mu        sync.Mutex
	state     state
	buffer    []entry
	bytes     int
	inFlight  int
	forced    bool
	flushing  bool
	flushReqs []*flushRequest
	joined    []*flushRequest

	kick     chan struct{}
	stopping chan struct{}
	stopped  chan struct{}
}

// New creates an idle Coordinator. The flush goroutine starts on Start or on
// the first admitted record.
func New(client delivery.Client, cfg config.Config, logger *zap.Logger, opts ...Option) (*Coordinator, error) {
	if err := validator.Validate("coordinator", client, logger); err != nil {
		return nil, err
	}

	c := &Coordinator{
		client:   client,
		config:   cfg,
		logger:   logger.Named("coordinator"),
		observer: nopObserver{},
		classify: delivery.IsRetryable,
		random:   randFloat,
		kick:     make(chan struct{}, 1),
		stopping: make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Start launches the flush goroutine. Starting a running coordinator is a
// no-op; starting one that has begun shutting down fails.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.startLocked()
}

func (c *Coordinator) startLocked() error {
	switch c.state {
	case stateIdle:
		c.state = stateRunning
		go c.run()
		c.logger.Debug("coordinator started",
			zap.Duration("deliveryInterval", c.config.DeliveryInterval),
			zap.Int("deliveryThreshold", c.config.DeliveryThreshold),
		)
		return nil
	case stateRunning:
		return nil
	default:
		return delivery.ErrCoordinatorStopped
	}
}

// Running reports whether the coordinator accepts records.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state == stateIdle || c.state == stateRunning
}

// Buffered returns the number of records and bytes waiting for a flush.
func (c *Coordinator) Buffered() (records, bytes int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.buffer), c.bytes
}

// Produce buffers rec for the next scheduled or threshold-triggered flush.
func (c *Coordinator) Produce(_ context.Context, rec delivery.Record) error {
	return c.enqueue(rec, nil)
}

// DeliverAsync buffers rec like Produce. The two differ only at the facade,
// where they are exposed under separate names.
func (c *Coordinator) DeliverAsync(_ context.Context, rec delivery.Record) error {
	return c.enqueue(rec, nil)
}

// Deliver buffers rec, forces a flush and waits for the record to be
// acknowledged or given up on. ctx bounds only the wait: a record that was
// admitted is still delivered if the caller stops waiting.
func (c *Coordinator) Deliver(ctx context.Context, rec delivery.Record) error {
	done := make(chan error, 1)
	if err := c.enqueue(rec, done); err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("failed to wait for delivery to %s: %w", rec.Topic(), ctx.Err())
	}
}

// Flush forces delivery of everything buffered and waits for the result.
// Records already taken by a flush in progress count as buffered: their
// failure fails the Flush as well.
func (c *Coordinator) Flush(ctx context.Context) error {
	req := &flushRequest{done: make(chan error, 1)}

	c.mu.Lock()
	switch c.state {
	case stateIdle:
		c.mu.Unlock()
		return nil
	case stateRunning:
	default:
		c.mu.Unlock()
		return delivery.ErrCoordinatorStopped
	}
	c.flushReqs = append(c.flushReqs, req)
	if c.flushing {
		c.joined = append(c.joined, req)
	}
	c.forced = true
	c.signal()
	c.mu.Unlock()

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("failed to wait for flush: %w", ctx.Err())
	}
}

// Shutdown stops accepting records, flushes what is buffered, closes the
// client and waits for all of it up to ctx. It is safe to call more than
// once and from several goroutines; every call waits for the same drain.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.mu.Lock()
	switch c.state {
	case stateIdle:
		c.state = stateStopped
		c.mu.Unlock()
		c.closeClient()
		close(c.stopped)
		return
	case stateRunning:
		c.state = stateDraining
		close(c.stopping)
		c.logger.Info("coordinator shutting down", zap.Int("buffered", len(c.buffer)))
	}
	c.mu.Unlock()

	select {
	case <-c.stopped:
	case <-ctx.Done():
		c.logger.Warn("stopped waiting for shutdown to complete", zap.Error(ctx.Err()))
	}
}

func (c *Coordinator) enqueue(rec delivery.Record, done chan error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.startLocked(); err != nil {
		return err
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	size := rec.Size()
	if len(c.buffer)+1 > c.config.MaxBufferSize || c.bytes+size > c.config.MaxBufferBytesize {
		return fmt.Errorf("%w: cannot buffer record for topic %s: %d/%d records, %d/%d bytes",
			delivery.ErrBufferOverflow, rec.Topic(),
			len(c.buffer), c.config.MaxBufferSize, c.bytes, c.config.MaxBufferBytesize,
		)
	}

	c.buffer = append(c.buffer, entry{rec: rec, done: done})
	c.bytes += size
	c.observer.ObserveBuffer(len(c.buffer), c.bytes, c.inFlight)

	switch {
	case done != nil:
		c.forced = true
		c.signal()
	case c.config.DeliveryThreshold > 0 && len(c.buffer) >= c.config.DeliveryThreshold:
		c.signal()
	}

	return nil
}

// signal wakes the flush goroutine. Signals raised while a flush is running
// collapse into one follow-up flush.
func (c *Coordinator) signal() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

func (c *Coordinator) closeClient() {
	if err := c.client.Close(); err != nil {
		c.logger.Error("failed to close client", zap.Error(err))
	}
}
