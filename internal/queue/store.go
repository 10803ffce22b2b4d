package queue

import (
	"context"
	"time"
)

// Store persists task envelopes and owns the state transitions. The
// engine on top of it never touches storage directly, so the redis
// store used in production and the in-memory store used in tests and
// single-process setups are interchangeable.
type Store interface {
	// Enqueue adds a new pending task.
	Enqueue(ctx context.Context, t *Task) error

	// EnqueueUnique adds the task unless another task with the same
	// dedup key is already pending or active; in that case it returns
	// the existing task and added=false.
	EnqueueUnique(ctx context.Context, t *Task) (existing *Task, added bool, err error)

	// Claim atomically takes the next due pending task, marks it
	// active and increments its attempt count. Returns nil when no
	// task is due.
	Claim(ctx context.Context, queue string, now time.Time) (*Task, error)

	// Update persists mutable fields (progress) of an active task.
	Update(ctx context.Context, t *Task) error

	// Retry moves an active task back to pending at t.AvailableAt.
	Retry(ctx context.Context, t *Task) error

	// Complete marks an active task completed and trims the completed
	// history to keep entries (0 keeps everything). The dedup key, if
	// any, is released.
	Complete(ctx context.Context, t *Task, keep int) error

	// Fail marks an active task terminally failed. Failed tasks are
	// retained for inspection. The dedup key, if any, is released.
	Fail(ctx context.Context, t *Task) error

	// Get retrieves a task by ID, or nil if unknown (e.g. trimmed).
	Get(ctx context.Context, queue, id string) (*Task, error)

	// Counts summarizes the queue by state.
	Counts(ctx context.Context, queue string) (Counts, error)
}
