package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"postman/internal/delivery"
)

// Registry encapsulates all metrics and provides a clean interface
// for recording metrics without global state
type Registry struct {
	registry *prometheus.Registry

	// Producer call metrics
	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec

	// Flush metrics
	flushTotal     *prometheus.CounterVec
	flushDuration  *prometheus.HistogramVec
	flushBatchSize prometheus.Histogram
	sendAttempts   *prometheus.CounterVec
	recordsDropped *prometheus.CounterVec

	// Buffer metrics
	bufferRecords   prometheus.Gauge
	bufferBytes     prometheus.Gauge
	inFlightRecords prometheus.Gauge

	// System health metrics
	systemInfo *prometheus.GaugeVec
	startTime  prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	registry := prometheus.NewRegistry()

	r := &Registry{
		registry: registry,

		callsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postman_producer_calls_total",
				Help: "Total number of producer operations",
			},
			[]string{"operation", "topic", "status"}, // status: success, overflow, failed, stopped, error
		),

		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "postman_producer_call_duration_seconds",
				Help:    "Time callers spent blocked in producer operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		flushTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postman_flush_total",
				Help: "Total number of buffer flushes",
			},
			[]string{"trigger", "status"}, // trigger: interval, threshold, forced, shutdown
		),

		flushDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "postman_flush_duration_seconds",
				Help:    "Time spent flushing the buffer, retries included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"trigger"},
		),

		flushBatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "postman_flush_batch_size",
				Help:    "Number of records handed to the broker client per flush",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
		),

		sendAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postman_send_attempts_total",
				Help: "Total number of broker send attempts",
			},
			[]string{"status"}, // status: success, retryable, fatal
		),

		recordsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postman_records_dropped_total",
				Help: "Records that were never delivered",
			},
			[]string{"topic", "reason"}, // reason: buffer_overflow, delivery_failed
		),

		bufferRecords: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "postman_buffer_records",
				Help: "Records waiting in the buffer",
			},
		),

		bufferBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "postman_buffer_bytes",
				Help: "Aggregate size of the records waiting in the buffer",
			},
		),

		inFlightRecords: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "postman_in_flight_records",
				Help: "Records handed to the broker client and not yet acknowledged",
			},
		),

		systemInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "postman_system_info",
				Help: "System information (value is always 1, labels contain info)",
			},
			[]string{"client_id", "backend"},
		),

		startTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "postman_start_time_seconds",
				Help: "Unix timestamp when the producer started",
			},
		),
	}

	// add default Go metrics (memory, GC, goroutines, etc.)
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	registry.MustRegister(
		r.callsTotal,
		r.callDuration,
		r.flushTotal,
		r.flushDuration,
		r.flushBatchSize,
		r.sendAttempts,
		r.recordsDropped,
		r.bufferRecords,
		r.bufferBytes,
		r.inFlightRecords,
		r.systemInfo,
		r.startTime,
	)

	r.startTime.SetToCurrentTime()

	return r
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          r.registry,
	})
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// RecordCall records a producer operation made by application code.
// Calls without a topic (flush) are labelled with an empty topic.
func (r *Registry) RecordCall(operation, topic string, duration time.Duration, err error) {
	r.callsTotal.WithLabelValues(operation, topic, status(err)).Inc()
	r.callDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveFlush implements coordinator.Observer.
func (r *Registry) ObserveFlush(trigger string, records int, duration time.Duration, err error) {
	s := "success"
	if err != nil {
		s = "error"
	}

	r.flushTotal.WithLabelValues(trigger, s).Inc()
	r.flushDuration.WithLabelValues(trigger).Observe(duration.Seconds())
	if records > 0 {
		r.flushBatchSize.Observe(float64(records))
	}
}

// ObserveAttempt implements coordinator.Observer.
func (r *Registry) ObserveAttempt(err error, retryable bool) {
	s := "success"
	switch {
	case err == nil:
	case retryable:
		s = "retryable"
	default:
		s = "fatal"
	}

	r.sendAttempts.WithLabelValues(s).Inc()
}

// ObserveBuffer implements coordinator.Observer.
func (r *Registry) ObserveBuffer(records, bytes, inFlight int) {
	r.bufferRecords.Set(float64(records))
	r.bufferBytes.Set(float64(bytes))
	r.inFlightRecords.Set(float64(inFlight))
}

// ObserveDropped implements coordinator.Observer.
func (r *Registry) ObserveDropped(topic, reason string) {
	r.recordsDropped.WithLabelValues(topic, reason).Inc()
}

// SetSystemInfo sets system information metrics
func (r *Registry) SetSystemInfo(clientID, backend string) {
	r.systemInfo.WithLabelValues(clientID, backend).Set(1)
}

func status(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, delivery.ErrBufferOverflow):
		return "overflow"
	case errors.Is(err, delivery.ErrDeliveryFailed):
		return "failed"
	case errors.Is(err, delivery.ErrCoordinatorStopped):
		return "stopped"
	default:
		return "error"
	}
}
