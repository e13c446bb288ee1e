package queue

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed queue
var ErrClosed = errors.New("queue closed")

// Message is one payload published to a topic
type Message struct {
	Topic string
	Value []byte
}

// Queue represents a topic-based message queue
type Queue interface {
	// Publish appends value to topic
	Publish(ctx context.Context, topic string, value []byte) error

	// Consume blocks until a message arrives on topic. It returns
	// context.DeadlineExceeded when no message arrived within the poll window.
	Consume(ctx context.Context, topic string) (*Message, error)

	// Close closes the queue and releases resources
	Close() error
}
