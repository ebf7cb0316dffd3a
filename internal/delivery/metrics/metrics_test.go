package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"postman/internal/delivery"
)

func TestRegistry_RecordCall(t *testing.T) {
	r := NewRegistry()

	r.RecordCall("produce", "orders", time.Millisecond, nil)
	r.RecordCall("produce", "orders", time.Millisecond, nil)
	r.RecordCall("produce", "orders", time.Millisecond, fmt.Errorf("wrapped: %w", delivery.ErrBufferOverflow))
	r.RecordCall("deliver", "orders", time.Millisecond, delivery.ErrDeliveryFailed)
	r.RecordCall("deliver", "orders", time.Millisecond, delivery.ErrCoordinatorStopped)
	r.RecordCall("deliver", "orders", time.Millisecond, errors.New("other"))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.callsTotal.WithLabelValues("produce", "orders", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.callsTotal.WithLabelValues("produce", "orders", "overflow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.callsTotal.WithLabelValues("deliver", "orders", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.callsTotal.WithLabelValues("deliver", "orders", "stopped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.callsTotal.WithLabelValues("deliver", "orders", "error")))
}

func TestRegistry_Observer(t *testing.T) {
	r := NewRegistry()

	r.ObserveFlush("threshold", 3, time.Millisecond, nil)
	r.ObserveFlush("interval", 0, time.Millisecond, errors.New("broker down"))
	r.ObserveAttempt(nil, false)
	r.ObserveAttempt(errors.New("timeout"), true)
	r.ObserveAttempt(errors.New("auth"), false)
	r.ObserveBuffer(7, 700, 3)
	r.ObserveDropped("orders", "delivery_failed")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.flushTotal.WithLabelValues("threshold", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.flushTotal.WithLabelValues("interval", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sendAttempts.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sendAttempts.WithLabelValues("retryable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sendAttempts.WithLabelValues("fatal")))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.bufferRecords))
	assert.Equal(t, 700.0, testutil.ToFloat64(r.bufferBytes))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.inFlightRecords))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.recordsDropped.WithLabelValues("orders", "delivery_failed")))
}

func TestServer_Routes(t *testing.T) {
	r := NewRegistry()
	r.SetSystemInfo("postman", "kafka")

	ready := true
	s := NewServer(ServerConfig{Port: 0, Timeout: time.Second}, r, func() bool { return ready }, zap.NewNop())

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	res := get("/metrics")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "postman_system_info")

	assert.Equal(t, http.StatusOK, get("/health").Code)
	assert.Equal(t, http.StatusOK, get("/ready").Code)

	ready = false
	res = get("/ready")
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
	assert.Contains(t, res.Body.String(), `"stopped"`)
}
