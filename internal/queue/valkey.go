package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/valkey-io/valkey-go"
)

// ValkeyQueue implements a distributed queue using one Valkey list per topic
type ValkeyQueue struct {
	client      valkey.Client
	prefix      string // Key prefix: "taskhub:topic:"
	pollSeconds float64
}

// NewValkeyQueue creates a new Valkey-backed queue
func NewValkeyQueue(addr string) (*ValkeyQueue, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:  []string{addr},
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Valkey: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pingCmd := client.B().Ping().Build()
	if err := client.Do(ctx, pingCmd).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Valkey: %w", err)
	}

	slog.Info("Initialized Valkey queue", "address", addr)
	return NewValkeyQueueWithClient(client), nil
}

// NewValkeyQueueWithClient wraps an existing client
func NewValkeyQueueWithClient(client valkey.Client) *ValkeyQueue {
	return &ValkeyQueue{
		client:      client,
		prefix:      "taskhub:topic:",
		pollSeconds: 5,
	}
}

// Publish pushes a message onto the topic list (RPUSH for FIFO)
func (q *ValkeyQueue) Publish(ctx context.Context, topic string, value []byte) error {
	cmd := q.client.B().Rpush().Key(q.prefix + topic).Element(string(value)).Build()
	if err := q.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	slog.Debug("Message published", "topic", topic, "bytes", len(value))
	return nil
}

// Consume pops the next message (BLPOP with a poll timeout)
func (q *ValkeyQueue) Consume(ctx context.Context, topic string) (*Message, error) {
	cmd := q.client.B().Blpop().Key(q.prefix + topic).Timeout(q.pollSeconds).Build()
	values, err := q.client.Do(ctx, cmd).AsStrSlice()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if valkey.IsValkeyNil(err) {
			return nil, context.DeadlineExceeded
		}
		return nil, fmt.Errorf("failed to consume from %s: %w", topic, err)
	}
	if len(values) < 2 {
		return nil, fmt.Errorf("invalid BLPOP result: expected 2 values, got %d", len(values))
	}

	return &Message{Topic: topic, Value: []byte(values[1])}, nil
}

// Close closes the Valkey connection
func (q *ValkeyQueue) Close() error {
	q.client.Close()
	slog.Info("Valkey queue closed")
	return nil
}
