package queue

import (
	"context"
	"testing"
	"time"

	"github.com/hostmaster-io/hostmaster/internal/pkg/errors"
	"github.com/hostmaster-io/hostmaster/internal/pkg/logger"
)

func testQueue(t *testing.T, opts Options) (*Queue, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	return New("test", store, opts, log), store
}

// drain claims and runs tasks until none are due, time-travelling past
// backoff delays so tests never sleep.
func drain(ctx context.Context, t *testing.T, q *Queue, h Handler) int {
	t.Helper()
	ran := 0
	now := time.Now().UTC()
	for i := 0; i < 100; i++ {
		task, err := q.store.Claim(ctx, q.name, now)
		if err != nil {
			t.Fatalf("Claim() error = %v", err)
		}
		if task == nil {
			return ran
		}
		ran++
		q.runTask(ctx, task, h)
		now = now.Add(time.Hour)
	}
	t.Fatal("drain did not settle")
	return ran
}

func TestQueue_CompletesTask(t *testing.T) {
	q, _ := testQueue(t, Options{Attempts: 3, BackoffDelay: 2 * time.Second})
	ctx := context.Background()

	task, err := q.Enqueue(ctx, map[string]int{"account_id": 7})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	ran := drain(ctx, t, q, func(ctx context.Context, task *Task) error {
		return nil
	})
	if ran != 1 {
		t.Errorf("handler ran %d times, want 1", ran)
	}

	got, err := q.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.State != StateCompleted {
		t.Errorf("state = %s, want %s", got.State, StateCompleted)
	}
	if got.Progress != 100 {
		t.Errorf("progress = %d, want 100", got.Progress)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
}

func TestQueue_RetriesThenFails(t *testing.T) {
	q, _ := testQueue(t, Options{
		Attempts:     3,
		BackoffKind:  BackoffExponential,
		BackoffDelay: 2 * time.Second,
	})
	ctx := context.Background()

	task, err := q.Enqueue(ctx, "payload")
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	ran := drain(ctx, t, q, func(ctx context.Context, task *Task) error {
		return errors.ProviderTransientError("aws", context.DeadlineExceeded)
	})
	if ran != 3 {
		t.Errorf("handler ran %d times, want 3", ran)
	}

	got, err := q.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.State != StateFailed {
		t.Errorf("state = %s, want %s", got.State, StateFailed)
	}
	if got.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", got.Attempts)
	}
	if got.Error == "" {
		t.Error("failed task should retain its error")
	}
}

func TestQueue_PermanentErrorSkipsRetries(t *testing.T) {
	q, _ := testQueue(t, Options{Attempts: 3, BackoffDelay: time.Second})
	ctx := context.Background()

	task, err := q.Enqueue(ctx, "payload")
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	ran := drain(ctx, t, q, func(ctx context.Context, task *Task) error {
		return errors.CredentialError("sealed key is corrupt", nil)
	})
	if ran != 1 {
		t.Errorf("handler ran %d times, want 1", ran)
	}

	got, _ := q.Get(ctx, task.ID)
	if got.State != StateFailed {
		t.Errorf("state = %s, want %s", got.State, StateFailed)
	}
}

func TestQueue_BackoffDelays(t *testing.T) {
	tests := []struct {
		name     string
		kind     BackoffKind
		delay    time.Duration
		attempts int
		want     time.Duration
	}{
		{"exponential first retry", BackoffExponential, 2 * time.Second, 1, 2 * time.Second},
		{"exponential second retry", BackoffExponential, 2 * time.Second, 2, 4 * time.Second},
		{"linear second retry", BackoffLinear, time.Second, 2, 2 * time.Second},
		{"fixed third retry", BackoffFixed, time.Second, 3, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := &Task{
				BackoffKind:  tt.kind,
				BackoffDelay: tt.delay,
				Attempts:     tt.attempts,
			}
			if got := task.NextDelay(); got != tt.want {
				t.Errorf("NextDelay() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQueue_RetryWaitsForBackoff(t *testing.T) {
	q, _ := testQueue(t, Options{Attempts: 2, BackoffDelay: time.Minute})
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, "payload"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	task, err := q.store.Claim(ctx, q.name, time.Now().UTC())
	if err != nil || task == nil {
		t.Fatalf("Claim() = %v, %v", task, err)
	}
	q.runTask(ctx, task, func(ctx context.Context, task *Task) error {
		return errors.StoreError("db down", nil)
	})

	// Not due yet
	early, err := q.store.Claim(ctx, q.name, time.Now().UTC())
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if early != nil {
		t.Error("retry became claimable before its backoff elapsed")
	}

	// Due after the delay
	late, err := q.store.Claim(ctx, q.name, time.Now().UTC().Add(2*time.Minute))
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if late == nil {
		t.Fatal("retry not claimable after its backoff elapsed")
	}
	if late.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", late.Attempts)
	}
}

func TestQueue_EnqueueUnique(t *testing.T) {
	q, _ := testQueue(t, Options{Attempts: 1})
	ctx := context.Background()

	first, err := q.EnqueueUnique(ctx, "recurring-scan-42", "payload")
	if err != nil {
		t.Fatalf("EnqueueUnique() error = %v", err)
	}

	second, err := q.EnqueueUnique(ctx, "recurring-scan-42", "payload")
	if err != nil {
		t.Fatalf("EnqueueUnique() error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("duplicate enqueue created task %s, want existing %s", second.ID, first.ID)
	}

	counts, _ := q.Counts(ctx)
	if counts.Pending != 1 {
		t.Errorf("pending = %d, want 1", counts.Pending)
	}

	// A finished task releases the key
	drain(ctx, t, q, func(ctx context.Context, task *Task) error { return nil })

	third, err := q.EnqueueUnique(ctx, "recurring-scan-42", "payload")
	if err != nil {
		t.Fatalf("EnqueueUnique() error = %v", err)
	}
	if third.ID == first.ID {
		t.Error("completed task should not block a new unique enqueue")
	}
}

func TestQueue_KeepCompletedTrimsHistory(t *testing.T) {
	q, store := testQueue(t, Options{Attempts: 1, KeepCompleted: 2})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		task, err := q.Enqueue(ctx, i)
		if err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
		ids = append(ids, task.ID)
	}

	drain(ctx, t, q, func(ctx context.Context, task *Task) error { return nil })

	counts, _ := q.Counts(ctx)
	if counts.Completed != 2 {
		t.Errorf("completed = %d, want 2", counts.Completed)
	}

	// Oldest two trimmed, newest two retained
	for _, id := range ids[:2] {
		if got, _ := store.Get(ctx, "test", id); got != nil {
			t.Errorf("task %s should have been trimmed", id)
		}
	}
	for _, id := range ids[2:] {
		if got, _ := store.Get(ctx, "test", id); got == nil {
			t.Errorf("task %s should have been retained", id)
		}
	}
}

func TestQueue_HandlerPanicConsumesAttempt(t *testing.T) {
	q, _ := testQueue(t, Options{Attempts: 2, BackoffDelay: time.Second})
	ctx := context.Background()

	task, err := q.Enqueue(ctx, "payload")
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	ran := drain(ctx, t, q, func(ctx context.Context, task *Task) error {
		panic("boom")
	})
	if ran != 2 {
		t.Errorf("handler ran %d times, want 2", ran)
	}

	got, _ := q.Get(ctx, task.ID)
	if got.State != StateFailed {
		t.Errorf("state = %s, want %s", got.State, StateFailed)
	}
}

func TestQueue_ProcessRunsUntilCancelled(t *testing.T) {
	q, _ := testQueue(t, Options{Attempts: 1, PollInterval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := q.Enqueue(ctx, "payload"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		q.Process(ctx, 2, func(ctx context.Context, task *Task) error {
			return nil
		})
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		counts, _ := q.Counts(context.Background())
		if counts.Completed == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("task not processed before deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Process did not stop after cancel")
	}
}
