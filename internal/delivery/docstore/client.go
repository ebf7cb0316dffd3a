// Package docstore implements delivery.Client on Couchbase. Each topic is
// split into a fixed number of partitions, and every partition is an
// append-only log of documents keyed by offset.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
	"go.uber.org/zap"

	"postman/internal/delivery"
	kafkaclient "postman/internal/delivery/kafka"
	"postman/internal/validator"
)

var _ delivery.Client = (*Client)(nil)

// Client appends records to their partition logs. Records are placed on
// partitions the same way the Kafka client places them.
type Client struct {
	storage    Storage
	partitions []int
	balancer   *kafkaclient.Balancer
	closer     func() error
	now        func() time.Time
	logger     *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithCloser runs closer when the client is closed, e.g. to disconnect the
// cluster.
func WithCloser(closer func() error) Option {
	return func(c *Client) {
		c.closer = closer
	}
}

// WithClock replaces time.Now for publish timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

func NewClient(storage Storage, partitions int, logger *zap.Logger, opts ...Option) (*Client, error) {
	if err := validator.Validate("docstore client", storage, logger); err != nil {
		return nil, err
	}
	if partitions < 1 {
		return nil, fmt.Errorf("partitions must be at least 1, got %d", partitions)
	}

	c := &Client{
		storage:    storage,
		partitions: make([]int, partitions),
		balancer:   &kafkaclient.Balancer{},
		closer:     func() error { return nil },
		now:        time.Now,
		logger:     logger.Named("docstore"),
	}
	for i := range c.partitions {
		c.partitions[i] = i
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

type partitionBatch struct {
	topic     string
	partition int
	records   []delivery.Record
}

// Send appends records partition by partition. A retried Send may append
// records that were already stored by the failed attempt.
func (c *Client) Send(ctx context.Context, records ...delivery.Record) error {
	batches, err := c.group(records)
	if err != nil {
		return delivery.Fatal(err)
	}

	for _, b := range batches {
		if err := c.appendBatch(ctx, b); err != nil {
			return classify(err)
		}
	}

	return nil
}

// group splits records by topic partition, keeping their relative order.
func (c *Client) group(records []delivery.Record) ([]*partitionBatch, error) {
	type batchKey struct {
		topic     string
		partition int
	}

	var batches []*partitionBatch
	index := make(map[batchKey]*partitionBatch)
	for _, rec := range records {
		p, err := c.partition(rec)
		if err != nil {
			return nil, err
		}

		k := batchKey{topic: rec.Topic(), partition: p}
		b, ok := index[k]
		if !ok {
			b = &partitionBatch{topic: k.topic, partition: k.partition}
			index[k] = b
			batches = append(batches, b)
		}
		b.records = append(b.records, rec)
	}

	return batches, nil
}

func (c *Client) partition(rec delivery.Record) (int, error) {
	if p, ok := rec.Partition(); ok && int(p) >= len(c.partitions) {
		return 0, fmt.Errorf("%w: partition %d of topic %s does not exist, topic has %d",
			delivery.ErrInvalidRecord, p, rec.Topic(), len(c.partitions))
	}

	return c.balancer.Balance(kafkaclient.Message(rec), c.partitions...), nil
}

func (c *Client) appendBatch(ctx context.Context, b *partitionBatch) error {
	offset, err := c.storage.GetOffset(ctx, b.topic, b.partition)
	switch {
	case err == nil:
	case errors.Is(err, gocb.ErrDocumentNotFound):
		offset = 0
	default:
		return fmt.Errorf("failed to get offset for topic %s partition %d: %w", b.topic, b.partition, err)
	}

	now := c.now().UTC()
	for _, rec := range b.records {
		if offset, err = c.insert(ctx, b, rec, offset, now); err != nil {
			return err
		}
	}

	if err := c.storage.CommitOffset(b.topic, b.partition, offset); err != nil {
		return fmt.Errorf("failed to commit offset for topic %s partition %d: %w", b.topic, b.partition, err)
	}

	return nil
}

// insert stores rec at the first free offset at or after offset and returns
// the offset after it. Offsets taken by another producer are skipped, never
// the record.
func (c *Client) insert(ctx context.Context, b *partitionBatch, rec delivery.Record, offset uint64, now time.Time) (uint64, error) {
	for {
		doc := Document{
			ID:          DocumentKey(b.topic, b.partition, offset),
			Topic:       b.topic,
			Partition:   b.partition,
			Offset:      offset,
			Key:         rec.Key(),
			Value:       rec.Value(),
			PublishTime: &now,
		}

		err := c.storage.InsertDocument(ctx, doc)
		switch {
		case err == nil:
			return offset + 1, nil
		case errors.Is(err, gocb.ErrDocumentExists):
			c.logger.Debug("offset already taken, trying the next one", zap.String("id", doc.ID))
			if err := ctx.Err(); err != nil {
				return 0, fmt.Errorf("failed to find a free offset for topic %s partition %d: %w", b.topic, b.partition, err)
			}
			offset++
		default:
			return 0, fmt.Errorf("failed to insert document with ID %s: %w", doc.ID, err)
		}
	}
}

func (c *Client) Close() error {
	if err := c.closer(); err != nil {
		return fmt.Errorf("failed to close docstore: %w", err)
	}
	return nil
}

// classify marks configuration and size problems as fatal. Timeouts,
// temporary failures and unavailable services are retried, as is anything
// unrecognized.
func classify(err error) error {
	switch {
	case errors.Is(err, gocb.ErrAuthenticationFailure),
		errors.Is(err, gocb.ErrValueTooLarge),
		errors.Is(err, gocb.ErrBucketNotFound),
		errors.Is(err, gocb.ErrScopeNotFound),
		errors.Is(err, gocb.ErrCollectionNotFound):
		return delivery.Fatal(err)
	default:
		return delivery.Retryable(err)
	}
}
