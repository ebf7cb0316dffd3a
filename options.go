package postman

import (
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"postman/internal/delivery/metrics"
)

// Option configures a Handle.
type Option func(*Handle)

// WithConfig replaces the default configuration. It is validated by New.
func WithConfig(cfg Config) Option {
	return func(h *Handle) {
		h.config = cfg
	}
}

// WithLogger sets the logger instead of building one from the config.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handle) {
		h.logger = logger
	}
}

// WithClientFactory replaces the backend selected by Config.Backend.
func WithClientFactory(factory ClientFactory) Option {
	return func(h *Handle) {
		h.newClient = factory
	}
}

// WithClassifier replaces the default retry policy.
func WithClassifier(classify Classifier) Option {
	return func(h *Handle) {
		h.classify = classify
	}
}

// WithRegistry records producer metrics in registry. The caller serves it;
// no metrics server is started.
func WithRegistry(registry *metrics.Registry) Option {
	return func(h *Handle) {
		h.registry = registry
	}
}

// WithTracerProvider traces producer calls and client sends with tp.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(h *Handle) {
		h.tracerProvider = tp
	}
}
