package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/taskhub-dev/taskhub/internal/queue"
)

// Outcome classifies a consumed message
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeEmpty
	OutcomeMalformed
	OutcomeIncomplete
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeEmpty:
		return "empty"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeIncomplete:
		return "incomplete"
	}
	return "unknown"
}

// Consumer reads task events from a topic and logs them
type Consumer struct {
	queue  queue.Queue
	topic  string
	logger *slog.Logger
}

// NewConsumer creates a consumer for topic
func NewConsumer(q queue.Queue, topic string, logger *slog.Logger) *Consumer {
	return &Consumer{queue: q, topic: topic, logger: logger}
}

// Start consumes until ctx is cancelled or the queue is closed
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Consumer started", "topic", c.topic)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Consumer stopped", "topic", c.topic)
			return ctx.Err()
		default:
		}

		msg, err := c.queue.Consume(ctx, c.topic)
		if err != nil {
			switch {
			case errors.Is(err, queue.ErrClosed):
				c.logger.Info("Queue closed, consumer stopped", "topic", c.topic)
				return nil
			case ctx.Err() != nil:
				continue
			case errors.Is(err, context.DeadlineExceeded):
				// No messages within the poll window
				continue
			}
			c.logger.Error("Failed to consume message", "topic", c.topic, "error", err)
			time.Sleep(time.Second)
			continue
		}

		c.HandleMessage(msg.Value)
	}
}

// HandleMessage validates and logs one message
func (c *Consumer) HandleMessage(value []byte) Outcome {
	value = bytes.TrimSpace(value)
	if len(value) == 0 {
		c.logger.Warn("Received empty message", "topic", c.topic)
		return OutcomeEmpty
	}

	var decoded any
	if err := json.Unmarshal(value, &decoded); err != nil {
		c.logger.Warn("Error decoding message", "topic", c.topic, "error", err, "raw", string(value))
		return OutcomeMalformed
	}
	if isFalsy(decoded) {
		c.logger.Warn("Received empty message", "topic", c.topic)
		return OutcomeEmpty
	}

	fields, ok := decoded.(map[string]any)
	if !ok {
		c.logger.Warn("Unexpected message format", "topic", c.topic, "raw", string(value))
		return OutcomeMalformed
	}

	task, ok := fields["task_data"]
	if !ok || task == nil {
		c.logger.Warn("Received incomplete message", "topic", c.topic, "raw", string(value))
		return OutcomeIncomplete
	}

	c.logger.Info("Received task", "topic", c.topic, "task", task)
	return OutcomeAccepted
}

// isFalsy reports null, false, zero, "" and empty arrays or objects.
func isFalsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case float64:
		return t == 0
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}
