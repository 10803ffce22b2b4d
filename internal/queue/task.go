package queue

import (
	"encoding/json"
	"time"
)

// Task states. A task is pending until a worker claims it, active while
// the handler runs, and terminal once completed or failed. A failed
// attempt with budget left moves the task back to pending with a delay.
type State string

const (
	StatePending   State = "pending"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// BackoffKind selects how the retry delay grows between attempts.
type BackoffKind string

const (
	BackoffExponential BackoffKind = "exponential"
	BackoffLinear      BackoffKind = "linear"
	BackoffFixed       BackoffKind = "fixed"
)

// Task is one unit of queued work. The envelope is what the store
// persists; the payload stays opaque to the queue.
type Task struct {
	ID           string          `json:"id"`
	Queue        string          `json:"queue"`
	Payload      json.RawMessage `json:"payload"`
	DedupKey     string          `json:"dedup_key,omitempty"`
	State        State           `json:"state"`
	Attempts     int             `json:"attempts"`
	MaxAttempts  int             `json:"max_attempts"`
	BackoffKind  BackoffKind     `json:"backoff_kind"`
	BackoffDelay time.Duration   `json:"backoff_delay"`
	Progress     int             `json:"progress"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	AvailableAt  time.Time       `json:"available_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// NextDelay returns the wait before the task may run again, based on
// the attempts already made.
func (t *Task) NextDelay() time.Duration {
	switch t.BackoffKind {
	case BackoffLinear:
		return t.BackoffDelay * time.Duration(t.Attempts)
	case BackoffFixed:
		return t.BackoffDelay
	default:
		d := t.BackoffDelay
		for i := 1; i < t.Attempts; i++ {
			d *= 2
		}
		return d
	}
}

// AttemptsLeft reports whether the task still has retry budget.
func (t *Task) AttemptsLeft() bool {
	return t.Attempts < t.MaxAttempts
}

// Counts summarizes a queue for observability endpoints.
type Counts struct {
	Pending   int64 `json:"pending"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}
