// Package fake provides an in-memory delivery.Producer for application
// tests. Every send is recorded immediately and in call order; nothing
// touches the network.
package fake

import (
	"context"
	"slices"
	"sync"

	"postman/internal/delivery"
)

var _ delivery.Producer = (*Producer)(nil)

// Producer records every valid record it is given. Invalid records are
// rejected with delivery.ErrInvalidRecord, as the real producer does.
type Producer struct {
	mu       sync.Mutex
	messages []delivery.Record
	err      error
}

func New() *Producer {
	return &Producer{}
}

func (p *Producer) Deliver(_ context.Context, rec delivery.Record) error {
	return p.record(rec)
}

func (p *Producer) DeliverAsync(_ context.Context, rec delivery.Record) error {
	return p.record(rec)
}

func (p *Producer) Produce(_ context.Context, rec delivery.Record) error {
	return p.record(rec)
}

// Flush is a no-op.
func (p *Producer) Flush(context.Context) error { return nil }

// Shutdown is a no-op. The producer keeps recording afterwards.
func (p *Producer) Shutdown(context.Context) {}

// FailWith makes every following send return err without recording the
// record. A nil err restores normal behavior.
func (p *Producer) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.err = err
}

func (p *Producer) record(rec delivery.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	p.messages = append(p.messages, rec)
	return nil
}

// Messages returns a copy of every recorded record in call order.
func (p *Producer) Messages() []delivery.Record {
	p.mu.Lock()
	defer p.mu.Unlock()

	return slices.Clone(p.messages)
}

// MessagesFor returns the recorded records bound for topic.
func (p *Producer) MessagesFor(topic string) []delivery.Record {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []delivery.Record
	for _, m := range p.messages {
		if m.Topic() == topic {
			out = append(out, m)
		}
	}
	return out
}

// Topics returns the topic of each recorded record, in call order.
func (p *Producer) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	topics := make([]string, len(p.messages))
	for i, m := range p.messages {
		topics[i] = m.Topic()
	}
	return topics
}

// Clear forgets every recorded record.
func (p *Producer) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.messages = nil
}
