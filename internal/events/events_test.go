package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/taskhub-dev/taskhub/internal/models"
	"github.com/taskhub-dev/taskhub/internal/queue"
)

type blockingPublisher struct {
	release chan struct{}
	mu      sync.Mutex
	got     [][]byte
	err     error
}

func (p *blockingPublisher) Publish(ctx context.Context, topic string, value []byte) error {
	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, value)
	return p.err
}

func (p *blockingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.got)
}

func testLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestEmitter_PublishesTaskCreated(t *testing.T) {
	q := queue.NewMemoryQueue(10)
	defer q.Close()
	var logs bytes.Buffer
	e := NewEmitter(q, "task_topic", 4, time.Second, testLogger(&logs))

	owner := &models.User{ID: uuid.New(), Email: "boss@example.com", Role: models.RoleEmployer}
	task := &models.Task{ID: 7, Title: "Write report", Priority: models.PriorityHigh, UserID: owner.ID}
	e.TaskCreated(task, owner)
	e.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := q.Consume(ctx, "task_topic")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}

	var payload struct {
		TaskData map[string]any `json:"task_data"`
		UserData map[string]any `json:"user_data"`
	}
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.TaskData["title"] != "Write report" {
		t.Errorf("task_data.title = %v", payload.TaskData["title"])
	}
	if payload.UserData["email"] != "boss@example.com" {
		t.Errorf("user_data.email = %v", payload.UserData["email"])
	}
	if _, leaked := payload.UserData["PasswordHash"]; leaked {
		t.Error("password hash leaked into event")
	}
}

func TestEmitter_DropsWhenSaturated(t *testing.T) {
	pub := &blockingPublisher{release: make(chan struct{})}
	var logs bytes.Buffer
	e := NewEmitter(pub, "task_topic", 1, time.Second, testLogger(&logs))

	if !e.Emit(map[string]string{"n": "1"}) {
		t.Fatal("first event should be dispatched")
	}
	if e.Emit(map[string]string{"n": "2"}) {
		t.Fatal("second event should be dropped while the first is pending")
	}
	if !strings.Contains(logs.String(), "dropping event") {
		t.Errorf("expected drop warning, logs: %s", logs.String())
	}

	close(pub.release)
	e.Close()
	if pub.count() != 1 {
		t.Errorf("expected 1 publish, got %d", pub.count())
	}
}

func TestEmitter_PublishFailureIsLogged(t *testing.T) {
	pub := &blockingPublisher{err: errors.New("broker down")}
	var logs bytes.Buffer
	e := NewEmitter(pub, "task_topic", 2, time.Second, testLogger(&logs))

	if !e.Emit(map[string]int{"id": 1}) {
		t.Fatal("expected dispatch")
	}
	e.Close()

	if !strings.Contains(logs.String(), "broker down") {
		t.Errorf("expected publish error to be logged, logs: %s", logs.String())
	}
}

func TestEmitter_RejectsAfterClose(t *testing.T) {
	pub := &blockingPublisher{}
	var logs bytes.Buffer
	e := NewEmitter(pub, "task_topic", 2, time.Second, testLogger(&logs))
	e.Close()

	if e.Emit(map[string]int{"id": 1}) {
		t.Error("closed emitter accepted an event")
	}
	if e.Emit(make(chan int)) {
		t.Error("unserializable event accepted")
	}
}

func TestConsumer_HandleMessage(t *testing.T) {
	var logs bytes.Buffer
	c := NewConsumer(nil, "task_topic", testLogger(&logs))

	cases := []struct {
		name  string
		value string
		want  Outcome
	}{
		{"empty", "", OutcomeEmpty},
		{"whitespace", "  \n", OutcomeEmpty},
		{"null", "null", OutcomeEmpty},
		{"empty object", "{}", OutcomeEmpty},
		{"not json", "not json", OutcomeMalformed},
		{"empty array", "[]", OutcomeEmpty},
		{"empty string", `""`, OutcomeEmpty},
		{"zero", "0", OutcomeEmpty},
		{"false", "false", OutcomeEmpty},
		{"array", "[1,2]", OutcomeMalformed},
		{"number", "42", OutcomeMalformed},
		{"missing task_data", `{"user_data":{}}`, OutcomeIncomplete},
		{"null task_data", `{"task_data":null}`, OutcomeIncomplete},
		{"valid", `{"task_data":{"id":1,"title":"Write report"},"user_data":{}}`, OutcomeAccepted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.HandleMessage([]byte(tc.value)); got != tc.want {
				t.Errorf("HandleMessage(%q) = %s, want %s", tc.value, got, tc.want)
			}
		})
	}
}

func TestConsumer_StartConsumesUntilClosed(t *testing.T) {
	q := queue.NewMemoryQueue(10)
	var logs syncBuffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	c := NewConsumer(q, "task_topic", logger)

	ctx := context.Background()
	q.Publish(ctx, "task_topic", []byte(`{"task_data":{"title":"Ship it"}}`))

	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	deadline := time.After(2 * time.Second)
	for !strings.Contains(logs.String(), "Received task") {
		select {
		case <-deadline:
			t.Fatalf("message not consumed, logs: %s", logs.String())
		case <-time.After(10 * time.Millisecond):
		}
	}

	q.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after queue close")
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
