package docstore

import (
	"fmt"
	"time"
)

// Document is one record persisted at its partition offset.
type Document struct {
	ID          string     `json:"id"`
	Topic       string     `json:"topic"`
	Partition   int        `json:"partition"`
	Offset      uint64     `json:"offset"`
	Key         []byte     `json:"key,omitempty"`
	Value       []byte     `json:"value"`
	PublishTime *time.Time `json:"publishTime,omitempty"`
}

// Offset is the next free position of a topic partition.
type Offset struct {
	ID string `json:"id"`
	N  uint64 `json:"n"`
}

func DocumentKey(topic string, partition int, offset uint64) string {
	return fmt.Sprintf("record::%s::%d::%d", topic, partition, offset)
}

func OffsetKey(topic string, partition int) string {
	return fmt.Sprintf("offset::%s::%d", topic, partition)
}
