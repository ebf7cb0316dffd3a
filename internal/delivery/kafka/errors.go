package kafka

import (
	"context"
	"errors"

	"github.com/segmentio/kafka-go"

	"postman/internal/delivery"
)

// classify marks err for the coordinator's retry policy. Broker error codes
// carry their own retriability and oversized messages are fatal. Network
// errors and timeouts are retryable.
func classify(err error) error {
	var writeErrs kafka.WriteErrors
	if errors.As(err, &writeErrs) {
		for _, e := range writeErrs {
			if e != nil && !temporary(e) {
				return delivery.Fatal(err)
			}
		}
		return delivery.Retryable(err)
	}

	if temporary(err) {
		return delivery.Retryable(err)
	}
	return delivery.Fatal(err)
}

func temporary(err error) bool {
	var kerr kafka.Error
	var tooLarge kafka.MessageTooLargeError

	switch {
	case errors.As(err, &kerr):
		return kerr.Temporary()
	case errors.As(err, &tooLarge):
		return false
	case errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}
