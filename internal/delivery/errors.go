package delivery

import "errors"

var (
	// ErrBufferOverflow is returned when a record cannot be admitted because
	// the buffer is at its record count or byte size limit.
	ErrBufferOverflow = errors.New("buffer overflow")

	// ErrDeliveryFailed is returned when a synchronous send or forced flush
	// gave up after exhausting its retries.
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrCoordinatorStopped is returned for any operation attempted once
	// shutdown has begun.
	ErrCoordinatorStopped = errors.New("coordinator stopped")

	// ErrInvalidRecord is returned for records missing a topic or value.
	ErrInvalidRecord = errors.New("invalid record")
)
