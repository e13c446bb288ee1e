package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// MemoryQueue implements an in-memory queue with one buffered channel per topic
type MemoryQueue struct {
	mu         sync.Mutex
	topics     map[string]chan *Message
	bufferSize int
	closed     bool
	// done is closed by Close. Topic channels stay open so a racing Publish
	// never sends on a closed channel.
	done chan struct{}
}

// NewMemoryQueue creates a new in-memory queue
func NewMemoryQueue(bufferSize int) *MemoryQueue {
	if bufferSize <= 0 {
		bufferSize = 100
	}

	slog.Info("Initialized in-memory queue", "buffer_size", bufferSize)
	return &MemoryQueue{
		topics:     make(map[string]chan *Message),
		bufferSize: bufferSize,
		done:       make(chan struct{}),
	}
}

func (q *MemoryQueue) topic(name string) (chan *Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrClosed
	}
	ch, ok := q.topics[name]
	if !ok {
		ch = make(chan *Message, q.bufferSize)
		q.topics[name] = ch
	}
	return ch, nil
}

// Publish adds a message to the topic
func (q *MemoryQueue) Publish(ctx context.Context, topic string, value []byte) error {
	ch, err := q.topic(topic)
	if err != nil {
		return err
	}

	msg := &Message{Topic: topic, Value: append([]byte(nil), value...)}

	select {
	case ch <- msg:
		slog.Debug("Message published", "topic", topic, "bytes", len(value))
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("queue is full, could not publish to %s", topic)
	}
}

// Consume retrieves the next message from the topic
func (q *MemoryQueue) Consume(ctx context.Context, topic string) (*Message, error) {
	ch, err := q.topic(topic)
	if err != nil {
		return nil, err
	}

	select {
	case msg := <-ch:
		return msg, nil
	case <-q.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes every topic
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.done)
	slog.Info("Memory queue closed")
	return nil
}
