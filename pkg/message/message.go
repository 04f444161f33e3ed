package message

import (
	"fmt"
	"time"
)

// WriteMessage is one element submitted to a rotating writer.
// Data is persisted; Passthrough is carried downstream unchanged.
type WriteMessage[T, P any] struct {
	Data        T
	Passthrough P
}

// NewWriteMessage creates a WriteMessage with an empty passthrough.
func NewWriteMessage[T any](data T) WriteMessage[T, struct{}] {
	return WriteMessage[T, struct{}]{Data: data}
}

// WithPassthrough creates a WriteMessage carrying the given passthrough.
func WithPassthrough[T, P any](data T, passthrough P) WriteMessage[T, P] {
	return WriteMessage[T, P]{Data: data, Passthrough: passthrough}
}

// RotationMessage is emitted once for every completed file.
type RotationMessage[P any] struct {
	// Path is the destination of the file that was just closed.
	Path string
	// Rotation is the zero-based index of the file within the writer's run.
	Rotation int64
	// Passthroughs holds one entry per element written to the file, in arrival order.
	Passthroughs []P
	// Stats describes the closed file.
	Stats FileStats
}

// KeyValue is the payload of keyed-record handles.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// NewKeyValue creates a KeyValue from strings.
func NewKeyValue(key, value string) KeyValue {
	return KeyValue{Key: []byte(key), Value: []byte(value)}
}

// FileStats contains statistics about the elements written to one file.
type FileStats struct {
	RecordCount    int
	SizeBytes      int64
	FirstWriteTime time.Time
	LastWriteTime  time.Time
}

// KafkaMetadata contains Kafka-specific metadata for a consumed record.
type KafkaMetadata struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Headers   map[string]string
	Timestamp time.Time
}

// PartitionID uniquely identifies a Kafka partition.
type PartitionID struct {
	Topic     string
	Partition int32
}

// String returns a string representation of the partition ID in the format "topic-partition".
func (p PartitionID) String() string {
	return fmt.Sprintf("%s-%d", p.Topic, p.Partition)
}

// ConsumedMessage represents a record consumed from Kafka.
type ConsumedMessage struct {
	Value    []byte
	Metadata KafkaMetadata
	// CommitFunc marks the record as processed. It must not retain Value.
	CommitFunc func() error
}

// PartitionID returns the partition the message was consumed from.
func (m *ConsumedMessage) PartitionID() PartitionID {
	return PartitionID{Topic: m.Metadata.Topic, Partition: m.Metadata.Partition}
}

// Position returns the passthrough that identifies this message downstream.
func (m *ConsumedMessage) Position() Position {
	return Position{
		Topic:     m.Metadata.Topic,
		Partition: m.Metadata.Partition,
		Offset:    m.Metadata.Offset,
		Timestamp: m.Metadata.Timestamp,
		Commit:    m.CommitFunc,
	}
}

// Position is the passthrough carried for a Kafka record: where it came
// from and how to acknowledge it once the file holding it is closed.
type Position struct {
	Topic     string
	Partition int32
	Offset    int64
	Timestamp time.Time
	Commit    func() error
}

// Last returns the final passthrough of a rotation, or false if it is empty.
func (r RotationMessage[P]) Last() (P, bool) {
	var zero P
	if len(r.Passthroughs) == 0 {
		return zero, false
	}
	return r.Passthroughs[len(r.Passthroughs)-1], true
}
