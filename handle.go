package postman

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"postman/internal/delivery"
	"postman/internal/delivery/config"
	"postman/internal/delivery/coordinator"
	"postman/internal/delivery/fake"
	"postman/internal/delivery/metrics"
	"postman/internal/delivery/tracing"
)

const dropReasonBufferOverflow = "buffer_overflow"

// Handle is one producer. Its coordinator and broker connection are created
// on first use and live until Shutdown.
type Handle struct {
	mu             sync.Mutex
	config         config.Config
	configErr      error
	logger         *zap.Logger
	ownLogger      bool
	newClient      ClientFactory
	classify       Classifier
	registry       *metrics.Registry
	tracerProvider trace.TracerProvider

	producer delivery.Producer
	fake     *fake.Producer
	stopped  bool
	cleanups []func(context.Context) error
}

// New creates a Handle. The configuration defaults to config.Default and is
// validated here; an invalid one is reported as a *ConfigError.
func New(opts ...Option) (*Handle, error) {
	h := &Handle{
		config:    config.Default(),
		newClient: NewClient,
	}
	for _, opt := range opts {
		opt(h)
	}

	if err := h.config.Validate(); err != nil {
		return nil, err
	}
	if h.logger == nil {
		logger, err := h.config.NewLogger()
		if err != nil {
			return nil, err
		}
		h.logger = logger
		h.ownLogger = true
	}

	return h, nil
}

// newFromEnv builds the default handle. A configuration error is kept and
// returned by every operation until Configure fixes it.
func newFromEnv() *Handle {
	cfg, loadErr := config.Load()
	if loadErr != nil {
		cfg = config.Default()
	}

	h, err := New(WithConfig(cfg))
	if err != nil {
		h = &Handle{config: cfg, newClient: NewClient, logger: zap.NewNop()}
		loadErr = err
	}
	if loadErr != nil {
		h.configErr = loadErr
		h.logger.Error("invalid producer configuration", zap.Error(loadErr))
	}

	return h
}

// Logger returns the handle's logger.
func (h *Handle) Logger() *zap.Logger {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.logger
}

// SetLogger replaces the logger. Components created before the call keep
// the previous one.
func (h *Handle) SetLogger(logger *zap.Logger) {
	if logger == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.logger = logger
	h.ownLogger = false
}

// Configure applies mutate to a copy of the configuration and keeps the
// result if it is valid. It fails with ErrAlreadyStarted once the producer
// has been used.
func (h *Handle) Configure(mutate func(*Config)) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.producer != nil || h.stopped {
		return ErrAlreadyStarted
	}

	cfg := h.config
	cfg.Brokers = slices.Clone(cfg.Brokers)
	mutate(&cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if h.ownLogger && cfg.LogLevel != h.config.LogLevel {
		logger, err := cfg.NewLogger()
		if err != nil {
			return err
		}
		h.logger = logger
	}
	h.config = cfg
	h.configErr = nil

	return nil
}

// EnterTestMode routes every following call to an in-memory fake for the
// rest of the handle's life and returns the fake.
func (h *Handle) EnterTestMode() *Fake {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.fake == nil {
		h.fake = fake.New()
		h.logger.Info("test mode enabled, records are kept in memory")
	}
	return h.fake
}

// Testing returns the fake installed by EnterTestMode, or nil.
func (h *Handle) Testing() *Fake {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.fake
}

// Deliver sends one record and waits until the broker acknowledged it or
// delivery failed for good.
func (h *Handle) Deliver(ctx context.Context, value []byte, topic string, opts ...RecordOption) error {
	p, err := h.active()
	if err != nil {
		return err
	}
	return p.Deliver(ctx, delivery.NewRecord(value, topic, opts...))
}

// Produce buffers one record. It fails with ErrBufferOverflow when the buffer
// is full.
func (h *Handle) Produce(ctx context.Context, value []byte, topic string, opts ...RecordOption) error {
	p, err := h.active()
	if err != nil {
		return err
	}
	return p.Produce(ctx, delivery.NewRecord(value, topic, opts...))
}

// ProduceOrDrop is Produce, except that a full buffer drops the record with
// an error log instead of failing.
func (h *Handle) ProduceOrDrop(ctx context.Context, value []byte, topic string, opts ...RecordOption) error {
	return h.dropOnOverflow(topic, h.Produce(ctx, value, topic, opts...))
}

// DeliverAsync buffers one record for the next background flush.
func (h *Handle) DeliverAsync(ctx context.Context, value []byte, topic string, opts ...RecordOption) error {
	p, err := h.active()
	if err != nil {
		return err
	}
	return p.DeliverAsync(ctx, delivery.NewRecord(value, topic, opts...))
}

// DeliverAsyncOrDrop is DeliverAsync with the overflow policy of
// ProduceOrDrop.
func (h *Handle) DeliverAsyncOrDrop(ctx context.Context, value []byte, topic string, opts ...RecordOption) error {
	return h.dropOnOverflow(topic, h.DeliverAsync(ctx, value, topic, opts...))
}

func (h *Handle) dropOnOverflow(topic string, err error) error {
	if !errors.Is(err, delivery.ErrBufferOverflow) {
		return err
	}

	h.mu.Lock()
	logger, registry := h.logger, h.registry
	h.mu.Unlock()

	logger.Error("record dropped due to buffer overflow", zap.String("topic", topic), zap.Error(err))
	if registry != nil {
		registry.ObserveDropped(topic, dropReasonBufferOverflow)
	}
	return nil
}

// Flush delivers everything buffered and waits for the result. It does not
// start a producer that was never used.
func (h *Handle) Flush(ctx context.Context) error {
	h.mu.Lock()
	p := h.producer
	switch {
	case h.fake != nil:
		p = h.fake
	case p == nil && h.stopped:
		h.mu.Unlock()
		return delivery.ErrCoordinatorStopped
	}
	h.mu.Unlock()

	if p == nil {
		return nil
	}
	return p.Flush(ctx)
}

// Shutdown flushes what is buffered, closes the broker connection and stops
// metrics and tracing. Later calls are no-ops.
func (h *Handle) Shutdown(ctx context.Context) {
	h.mu.Lock()
	p := h.producer
	cleanups := h.cleanups
	h.cleanups = nil
	h.stopped = true
	logger := h.logger
	h.mu.Unlock()

	if p != nil {
		p.Shutdown(ctx)
	}

	if len(cleanups) == 0 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, cleanup := range cleanups {
		g.Go(func() error { return cleanup(gctx) })
	}
	if err := g.Wait(); err != nil {
		logger.Error("failed to stop telemetry", zap.Error(err))
	}
}

// Close shuts the handle down without a deadline. It always returns nil and
// exists so a Handle can be deferred as an io.Closer.
func (h *Handle) Close() error {
	h.Shutdown(context.Background())
	return nil
}

// ShutdownOnSignal shuts the handle down when one of sigs (default SIGINT
// and SIGTERM) arrives. Canceling ctx or calling stop stops watching.
func (h *Handle) ShutdownOnSignal(ctx context.Context, sigs ...os.Signal) (stop func()) {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	done := make(chan struct{})

	go func() {
		defer signal.Stop(ch)

		select {
		case sig := <-ch:
			h.Logger().Info("received signal, shutting down", zap.Stringer("signal", sig))
			h.Shutdown(context.WithoutCancel(ctx))
		case <-ctx.Done():
		case <-done:
		}
	}()

	return sync.OnceFunc(func() { close(done) })
}

// active returns the producer calls should go to, building it on first use.
func (h *Handle) active() (delivery.Producer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case h.fake != nil:
		return h.fake, nil
	case h.producer != nil:
		return h.producer, nil
	case h.stopped:
		return nil, delivery.ErrCoordinatorStopped
	case h.configErr != nil:
		return nil, h.configErr
	}

	p, err := h.build()
	if err != nil {
		return nil, err
	}
	h.producer = p

	return p, nil
}

// build wires client, coordinator and the optional telemetry decorators.
// Layer order: TracedProducer -> MetricsProducer -> Coordinator -> (TracedClient ->) Client
func (h *Handle) build() (delivery.Producer, error) {
	client, err := h.newClient(h.config, h.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", h.config.Backend, err)
	}

	var tracer *tracing.Tracer
	switch {
	case h.tracerProvider != nil:
		tracer = tracing.FromProvider(h.tracerProvider, "postman")
	case h.config.TracingEnabled:
		t, cleanup, err := tracing.NewTracer(h.config.Tracing)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
		tracer = t
		h.cleanups = append(h.cleanups, cleanup)
	}
	if tracer != nil {
		client = coordinator.NewTracedClient(client, tracer, h.config.Backend, h.classify)
	}

	registry := h.registry
	if registry == nil && h.config.MetricsEnabled {
		registry = metrics.NewRegistry()
		h.registry = registry
	}

	opts := []coordinator.Option{coordinator.WithClassifier(h.classify)}
	if registry != nil {
		registry.SetSystemInfo(h.config.ClientID, h.config.Backend)
		opts = append(opts, coordinator.WithObserver(registry))
	}

	c, err := coordinator.New(client, h.config, h.logger, opts...)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}
	if err := c.Start(); err != nil {
		return nil, err
	}

	if h.config.MetricsEnabled {
		h.cleanups = append(h.cleanups, h.serveMetrics(registry, c.Running))
	}

	var p delivery.Producer = c
	if registry != nil {
		p = coordinator.NewMetricsProducer(p, registry)
	}
	if tracer != nil {
		p = coordinator.NewTracedProducer(p, tracer)
	}

	h.logger.Info("producer started",
		zap.String("backend", h.config.Backend),
		zap.Strings("brokers", h.config.Brokers),
		zap.String("clientID", h.config.ClientID),
	)

	return p, nil
}

// serveMetrics runs the metrics server until the returned cleanup is called.
func (h *Handle) serveMetrics(registry *metrics.Registry, ready func() bool) func(context.Context) error {
	server := metrics.NewServer(h.config.Metrics, registry, ready, h.logger)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		err := server.Start(ctx)
		if err != nil {
			h.logger.Error("metrics server failed", zap.Error(err))
		}
		errCh <- err
	}()

	return func(stopCtx context.Context) error {
		cancel()
		select {
		case err := <-errCh:
			return err
		case <-stopCtx.Done():
			return stopCtx.Err()
		}
	}
}
