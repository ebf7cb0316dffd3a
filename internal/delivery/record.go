package delivery

import (
	"fmt"
)

// Record is a single message bound for a topic. It is immutable once
// constructed; use NewRecord to build one.
type Record struct {
	value        []byte
	topic        string
	key          []byte
	partition    int32
	hasPartition bool
	partitionKey []byte
}

// RecordOption sets an optional attribute of a Record.
type RecordOption func(*Record)

// WithKey sets the message key used for log compaction and ordering.
func WithKey(key []byte) RecordOption {
	return func(r *Record) {
		r.key = clone(key)
	}
}

// WithPartition targets an explicit partition, overriding any partition key.
func WithPartition(partition int32) RecordOption {
	return func(r *Record) {
		r.partition = partition
		r.hasPartition = true
	}
}

// WithPartitionKey sets the bytes used to derive a partition when no explicit
// partition is given.
func WithPartitionKey(partitionKey []byte) RecordOption {
	return func(r *Record) {
		r.partitionKey = clone(partitionKey)
	}
}

// NewRecord builds a Record, copying every byte slice it is given.
func NewRecord(value []byte, topic string, opts ...RecordOption) Record {
	r := Record{
		value: clone(value),
		topic: topic,
	}
	for _, opt := range opts {
		opt(&r)
	}

	return r
}

// Value, Key and PartitionKey return copies, so a buffered record cannot be
// changed through them.
func (r Record) Value() []byte        { return clone(r.value) }
func (r Record) Topic() string        { return r.topic }
func (r Record) Key() []byte          { return clone(r.key) }
func (r Record) PartitionKey() []byte { return clone(r.partitionKey) }

// Partition returns the explicit partition and whether one was set.
func (r Record) Partition() (int32, bool) {
	return r.partition, r.hasPartition
}

// Size is the number of bytes the record occupies in the producer buffer.
func (r Record) Size() int {
	return len(r.value) + len(r.key)
}

// Validate reports whether the record can be handed to a broker.
func (r Record) Validate() error {
	switch {
	case r.topic == "":
		return fmt.Errorf("%w: topic is required", ErrInvalidRecord)
	case r.value == nil:
		return fmt.Errorf("%w: value is required for topic %s", ErrInvalidRecord, r.topic)
	case r.hasPartition && r.partition < 0:
		return fmt.Errorf("%w: partition %d is negative", ErrInvalidRecord, r.partition)
	}

	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
