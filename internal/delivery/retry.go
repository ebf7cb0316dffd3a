package delivery

import (
	"context"
	"errors"
)

// Classifier decides whether a failed send is worth another attempt.
type Classifier func(err error) bool

type classifiedError struct {
	err       error
	retryable bool
}

func (e *classifiedError) Error() string { return e.err.Error() }
func (e *classifiedError) Unwrap() error { return e.err }

// Retryable marks err as transient, e.g. a broker that is not reachable yet.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, retryable: true}
}

// Fatal marks err as permanent, e.g. an authentication failure or a record
// the broker will never accept.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, retryable: false}
}

// IsRetryable is the default Classifier. Errors marked by Retryable or Fatal
// are honored; deadlines count as transient, cancellation and invalid records
// as permanent. Anything else is assumed to be a network condition and is
// retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.retryable
	}

	switch {
	case errors.Is(err, ErrInvalidRecord), errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	default:
		return true
	}
}
