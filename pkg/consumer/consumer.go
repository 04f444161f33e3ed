// Package consumer defines interfaces for Kafka record consumption.
//
// This package provides abstractions for consuming records from Kafka
// and managing consumer lifecycle.
package consumer

import (
	"context"

	"github.com/jittakal/kafrotator/pkg/message"
)

// Consumer reads records from Kafka topics.
type Consumer interface {
	// Subscribe subscribes to one or more topics.
	Subscribe(ctx context.Context, topics []string) error

	// Consume starts consuming messages from subscribed topics.
	// Returns channels for messages and errors.
	Consume(ctx context.Context) (<-chan *message.ConsumedMessage, <-chan error, error)

	// Close closes the consumer and releases resources.
	Close() error
}

// DLQPublisher publishes records that could not be written to a dead letter queue.
type DLQPublisher interface {
	// Publish sends a record to the DLQ with failure information.
	Publish(ctx context.Context, value []byte, metadata message.KafkaMetadata, reason string) error

	// Close closes the publisher and releases resources.
	Close() error
}
