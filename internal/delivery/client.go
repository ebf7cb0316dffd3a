package delivery

import "context"

// Client is the broker connection records are ultimately written through.
// Implementations block until the broker acknowledged every record, honoring
// their configured required acks, and should mark failures with Retryable or
// Fatal so the coordinator knows whether another attempt can help.
type Client interface {
	Send(ctx context.Context, records ...Record) error
	Close() error
}
