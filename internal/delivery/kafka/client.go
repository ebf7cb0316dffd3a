// Package kafka implements delivery.Client on top of segmentio/kafka-go.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"postman/internal/delivery"
	"postman/internal/delivery/config"
	"postman/internal/validator"
)

var _ delivery.Client = (*Client)(nil)

// Client writes records synchronously. Retries are left to the caller, so
// each Send is exactly one produce request per partition.
type Client struct {
	plain      *kafka.Writer
	compressed *kafka.Writer
	threshold  int
	logger     *zap.Logger
}

// New builds the writers described by cfg. No connection is made until the
// first Send.
func New(cfg config.Config, logger *zap.Logger) (*Client, error) {
	if err := validator.Validate("kafka client", logger); err != nil {
		return nil, err
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("no brokers configured")
	}

	transport, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}

	logger = logger.Named("kafka")
	c := &Client{
		plain:     newWriter(cfg, transport, logger),
		threshold: cfg.CompressionThreshold,
		logger:    logger,
	}
	if codec, ok := cfg.Compression(); ok {
		c.compressed = newWriter(cfg, transport, logger)
		c.compressed.Compression = codec
	}

	return c, nil
}

func newTransport(cfg config.Config) (*kafka.Transport, error) {
	tlsConfig, err := cfg.SSL.TLSConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build tls config: %w", err)
	}

	mechanism, err := cfg.SASL.SASLMechanism()
	if err != nil {
		return nil, err
	}

	return &kafka.Transport{
		ClientID:    cfg.ClientID,
		DialTimeout: cfg.ConnectTimeout,
		TLS:         tlsConfig,
		SASL:        mechanism,
	}, nil
}

func newWriter(cfg config.Config, transport *kafka.Transport, logger *zap.Logger) *kafka.Writer {
	sugar := logger.Sugar()

	batchSize := cfg.MaxQueueSize
	if batchSize <= 0 {
		batchSize = cfg.MaxBufferSize
	}

	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &Balancer{},
		MaxAttempts:  1,
		BatchSize:    max(batchSize, 1),
		BatchTimeout: time.Millisecond,
		ReadTimeout:  cfg.SocketTimeout,
		WriteTimeout: cfg.SocketTimeout,
		RequiredAcks: cfg.Acks(),
		Transport:    transport,
		Logger:       kafka.LoggerFunc(sugar.Debugf),
		ErrorLogger:  kafka.LoggerFunc(sugar.Errorf),
	}
}

// Send writes records and waits for the acknowledgements required by the
// writer's RequiredAcks.
func (c *Client) Send(ctx context.Context, records ...delivery.Record) error {
	if len(records) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, len(records))
	for i, rec := range records {
		msgs[i] = Message(rec)
	}

	if err := c.writerFor(len(msgs)).WriteMessages(ctx, msgs...); err != nil {
		return classify(fmt.Errorf("failed to write %d messages: %w", len(msgs), err))
	}

	return nil
}

// writerFor picks the compressing writer once a batch reaches the
// compression threshold.
func (c *Client) writerFor(n int) *kafka.Writer {
	if c.compressed != nil && n >= c.threshold {
		return c.compressed
	}
	return c.plain
}

// Close flushes and closes both writers.
func (c *Client) Close() error {
	var errs []error
	if err := c.plain.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close writer: %w", err))
	}
	if c.compressed != nil {
		if err := c.compressed.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close compressed writer: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Message converts rec for the writer. The record rides along in WriterData
// for the Balancer.
func Message(rec delivery.Record) kafka.Message {
	return kafka.Message{
		Topic:      rec.Topic(),
		Key:        rec.Key(),
		Value:      rec.Value(),
		WriterData: rec,
	}
}
