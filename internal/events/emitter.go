package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/taskhub-dev/taskhub/internal/models"
)

// Publisher delivers a payload to a topic. queue.Queue satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, value []byte) error
}

// TaskCreated is published after a task is persisted
type TaskCreated struct {
	TaskData *models.Task `json:"task_data"`
	UserData *models.User `json:"user_data"`
}

// Emitter publishes events in the background. Publishing never blocks or
// fails the caller: when MaxInFlight publishes are pending, new events are
// dropped with a warning.
type Emitter struct {
	publisher Publisher
	topic     string
	timeout   time.Duration
	logger    *slog.Logger
	semaphore chan struct{}

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewEmitter creates an emitter publishing to topic
func NewEmitter(publisher Publisher, topic string, maxInFlight int, timeout time.Duration, logger *slog.Logger) *Emitter {
	if maxInFlight <= 0 {
		maxInFlight = 16
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Emitter{
		publisher: publisher,
		topic:     topic,
		timeout:   timeout,
		logger:    logger,
		semaphore: make(chan struct{}, maxInFlight),
	}
}

// TaskCreated emits a task-created event for task owned by user
func (e *Emitter) TaskCreated(task *models.Task, user *models.User) {
	e.Emit(TaskCreated{TaskData: task, UserData: user})
}

// Emit serializes event now and publishes it in the background. It reports
// whether the event was handed off.
func (e *Emitter) Emit(event any) bool {
	payload, err := json.Marshal(event)
	if err != nil {
		e.logger.Error("Failed to serialize event", "topic", e.topic, "error", err)
		return false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.logger.Warn("Emitter closed, dropping event", "topic", e.topic)
		return false
	}

	select {
	case e.semaphore <- struct{}{}:
	default:
		e.logger.Warn("Too many pending publishes, dropping event", "topic", e.topic)
		return false
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() { <-e.semaphore }()
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("Panic recovered while publishing event", "topic", e.topic, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()

		if err := e.publisher.Publish(ctx, e.topic, payload); err != nil {
			e.logger.Error("Failed to publish event", "topic", e.topic, "error", err)
			return
		}
		e.logger.Debug("Event published", "topic", e.topic)
	}()
	return true
}

// Close stops accepting events and waits for pending publishes
func (e *Emitter) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.wg.Wait()
}
