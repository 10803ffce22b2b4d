package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/hostmaster-io/hostmaster/internal/pkg/errors"
	"github.com/hostmaster-io/hostmaster/internal/pkg/logger"
)

// Options configures a queue's retry and retention policy. Every task
// enqueued on the queue inherits it.
type Options struct {
	// Attempts is the total attempt budget per task (first run
	// included). Zero means one attempt.
	Attempts int

	// BackoffKind and BackoffDelay shape the wait between attempts.
	BackoffKind  BackoffKind
	BackoffDelay time.Duration

	// KeepCompleted bounds the completed-task history. Zero keeps
	// everything. Failed tasks are always retained.
	KeepCompleted int

	// PollInterval is how often an idle worker checks for due tasks.
	PollInterval time.Duration

	// OnTerminal, if set, observes terminal outcomes ("completed",
	// "failed") for metrics.
	OnTerminal func(queue, outcome string)
}

// Handler processes one claimed task. A nil return completes the task;
// an error schedules a retry while attempts remain, unless the error is
// marked permanent, in which case the task fails immediately.
type Handler func(ctx context.Context, t *Task) error

// Queue is a named durable queue. Enqueue and Process may run in
// different processes sharing the same store.
type Queue struct {
	name  string
	store Store
	opts  Options
	log   *logger.Logger
}

// New creates a queue on top of a store
func New(name string, store Store, opts Options, log *logger.Logger) *Queue {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	return &Queue{
		name:  name,
		store: store,
		opts:  opts,
		log:   log.With("queue", name),
	}
}

// Name returns the queue name
func (q *Queue) Name() string { return q.name }

// Enqueue adds a task for the payload and returns its envelope.
func (q *Queue) Enqueue(ctx context.Context, payload interface{}) (*Task, error) {
	t, err := q.newTask(payload, "")
	if err != nil {
		return nil, err
	}
	if err := q.store.Enqueue(ctx, t); err != nil {
		return nil, fmt.Errorf("enqueue on %s: %w", q.name, err)
	}
	return t, nil
}

// EnqueueUnique adds a task unless one with the same dedup key is
// already in flight; then the in-flight task is returned instead.
// Completed and failed tasks do not block a new enqueue.
func (q *Queue) EnqueueUnique(ctx context.Context, dedupKey string, payload interface{}) (*Task, error) {
	t, err := q.newTask(payload, dedupKey)
	if err != nil {
		return nil, err
	}
	existing, added, err := q.store.EnqueueUnique(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("enqueue on %s: %w", q.name, err)
	}
	if !added {
		q.log.With("dedup_key", dedupKey).Debug("task already in flight, skipping enqueue")
		return existing, nil
	}
	return t, nil
}

func (q *Queue) newTask(payload interface{}, dedupKey string) (*Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	now := time.Now().UTC()
	return &Task{
		ID:           uuid.NewString(),
		Queue:        q.name,
		Payload:      body,
		DedupKey:     dedupKey,
		State:        StatePending,
		MaxAttempts:  q.opts.Attempts,
		BackoffKind:  q.opts.BackoffKind,
		BackoffDelay: q.opts.BackoffDelay,
		CreatedAt:    now,
		AvailableAt:  now,
	}, nil
}

// Get retrieves a task envelope, or nil if unknown or trimmed.
func (q *Queue) Get(ctx context.Context, id string) (*Task, error) {
	return q.store.Get(ctx, q.name, id)
}

// Counts summarizes the queue by state.
func (q *Queue) Counts(ctx context.Context) (Counts, error) {
	return q.store.Counts(ctx, q.name)
}

// Progress records handler progress on an active task. Failures here
// are logged and swallowed; progress is advisory.
func (q *Queue) Progress(ctx context.Context, t *Task, pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	t.Progress = pct
	if err := q.store.Update(ctx, t); err != nil {
		q.log.With("task_id", t.ID).ErrorWithErr(err, "failed to record task progress")
	}
}

// Process runs handler workers until ctx is cancelled. Each worker
// claims one task at a time; a task is never handled twice at once.
func (q *Queue) Process(ctx context.Context, concurrency int, h Handler) {
	if concurrency < 1 {
		concurrency = 1
	}

	q.log.Infof("starting %d workers", concurrency)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.worker(ctx, h)
		}()
	}
	wg.Wait()
}

func (q *Queue) worker(ctx context.Context, h Handler) {
	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		t, err := q.store.Claim(ctx, q.name, time.Now().UTC())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.log.ErrorWithErr(err, "failed to claim task")
		}
		if t != nil {
			q.runTask(ctx, t, h)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (q *Queue) runTask(ctx context.Context, t *Task, h Handler) {
	log := q.log.WithFields(map[string]interface{}{
		"task_id": t.ID,
		"attempt": t.Attempts,
	})

	err := q.invoke(ctx, t, h)
	if err == nil {
		now := time.Now().UTC()
		t.State = StateCompleted
		t.Progress = 100
		t.Error = ""
		t.CompletedAt = &now
		if storeErr := q.store.Complete(ctx, t, q.opts.KeepCompleted); storeErr != nil {
			log.ErrorWithErr(storeErr, "failed to complete task")
		}
		if q.opts.OnTerminal != nil {
			q.opts.OnTerminal(q.name, string(StateCompleted))
		}
		log.Debug("task completed")
		return
	}

	t.Error = err.Error()

	if t.AttemptsLeft() && apperrors.Retryable(err) {
		t.State = StatePending
		t.AvailableAt = time.Now().UTC().Add(t.NextDelay())
		if storeErr := q.store.Retry(ctx, t); storeErr != nil {
			log.ErrorWithErr(storeErr, "failed to schedule task retry")
			return
		}
		log.WithError(err).Warn("task attempt failed, retry scheduled")
		return
	}

	now := time.Now().UTC()
	t.State = StateFailed
	t.CompletedAt = &now
	if storeErr := q.store.Fail(ctx, t); storeErr != nil {
		log.ErrorWithErr(storeErr, "failed to mark task failed")
		return
	}
	if q.opts.OnTerminal != nil {
		q.opts.OnTerminal(q.name, string(StateFailed))
	}
	log.WithError(err).Error("task failed permanently")
}

// invoke shields the queue from handler panics; a panic consumes the
// attempt like any other failure.
func (q *Queue) invoke(ctx context.Context, t *Task, h Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task handler panic: %v", r)
		}
	}()
	return h(ctx, t)
}
