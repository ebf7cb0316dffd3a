package kafka

import (
	"github.com/segmentio/kafka-go"

	"postman/internal/delivery"
)

// Balancer places a message on its record's explicit partition, else hashes
// the partition key, else the message key. Keyless messages go round robin.
// Messages must come from Message.
type Balancer struct {
	hash       kafka.CRC32Balancer
	roundRobin kafka.RoundRobin
}

func (b *Balancer) Balance(msg kafka.Message, partitions ...int) int {
	rec, _ := msg.WriterData.(delivery.Record)

	if p, ok := rec.Partition(); ok {
		return int(p)
	}
	if pk := rec.PartitionKey(); len(pk) > 0 {
		msg.Key = pk
		return b.hash.Balance(msg, partitions...)
	}
	if len(msg.Key) > 0 {
		return b.hash.Balance(msg, partitions...)
	}

	return b.roundRobin.Balance(msg, partitions...)
}
