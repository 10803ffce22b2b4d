package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hostmaster-io/hostmaster/internal/domain/account"
	"github.com/hostmaster-io/hostmaster/internal/domain/scanjob"
	apperrors "github.com/hostmaster-io/hostmaster/internal/pkg/errors"
	"github.com/hostmaster-io/hostmaster/internal/queue"
	"github.com/hostmaster-io/hostmaster/internal/testutil"
)

func newScanQueue() *queue.Queue {
	return queue.New(ScanQueueName, queue.NewMemoryStore(), queue.Options{Attempts: 3}, testLogger())
}

func seedAccount(t *testing.T, repo *testutil.MockAccountRepository, acct *account.Account) *account.Account {
	t.Helper()
	if _, err := repo.Create(context.Background(), acct); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return acct
}

func TestRequestScan(t *testing.T) {
	accounts := testutil.NewMockAccountRepository()
	jobs := testutil.NewMockScanJobRepository()
	q := newScanQueue()
	acct := seedAccount(t, accounts, &account.Account{UserID: 7, IsActive: true})

	svc := NewScanService(accounts, jobs, q, testLogger())
	job, err := svc.RequestScan(context.Background(), 7, acct.ID)
	if err != nil {
		t.Fatalf("RequestScan: %v", err)
	}

	if job.Status != scanjob.StatusPending {
		t.Errorf("job status = %s, want pending", job.Status)
	}
	stored, err := jobs.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("job row not persisted: %v", err)
	}
	if stored.AccountID != acct.ID {
		t.Errorf("job account = %d, want %d", stored.AccountID, acct.ID)
	}

	counts, err := q.Counts(context.Background())
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.Pending != 1 {
		t.Errorf("pending tasks = %d, want 1", counts.Pending)
	}
}

func TestRequestScanOwnership(t *testing.T) {
	accounts := testutil.NewMockAccountRepository()
	jobs := testutil.NewMockScanJobRepository()
	acct := seedAccount(t, accounts, &account.Account{UserID: 7, IsActive: true})

	svc := NewScanService(accounts, jobs, newScanQueue(), testLogger())
	_, err := svc.RequestScan(context.Background(), 8, acct.ID)
	if apperrors.Code(err) != apperrors.ErrCodeNotFound {
		t.Errorf("foreign account scan: error code = %s, want NOT_FOUND", apperrors.Code(err))
	}
	if len(jobs.Jobs) != 0 {
		t.Errorf("no job row may be created, got %d", len(jobs.Jobs))
	}
}

func TestRequestScanInactiveAccount(t *testing.T) {
	accounts := testutil.NewMockAccountRepository()
	acct := seedAccount(t, accounts, &account.Account{UserID: 7, IsActive: false})

	svc := NewScanService(accounts, testutil.NewMockScanJobRepository(), newScanQueue(), testLogger())
	_, err := svc.RequestScan(context.Background(), 7, acct.ID)
	if apperrors.Code(err) != apperrors.ErrCodeValidation {
		t.Errorf("inactive account scan: error code = %s, want VALIDATION_ERROR", apperrors.Code(err))
	}
}

// failingEnqueuer simulates the queue store going away between the row
// insert and the enqueue.
type failingEnqueuer struct{}

func (failingEnqueuer) Enqueue(ctx context.Context, payload interface{}) (*queue.Task, error) {
	return nil, errors.New("store unavailable")
}

func (failingEnqueuer) EnqueueUnique(ctx context.Context, dedupKey string, payload interface{}) (*queue.Task, error) {
	return nil, errors.New("store unavailable")
}

func TestRequestScanEnqueueFailureFailsJob(t *testing.T) {
	accounts := testutil.NewMockAccountRepository()
	jobs := testutil.NewMockScanJobRepository()
	acct := seedAccount(t, accounts, &account.Account{UserID: 7, IsActive: true})

	svc := NewScanService(accounts, jobs, failingEnqueuer{}, testLogger())
	if _, err := svc.RequestScan(context.Background(), 7, acct.ID); err == nil {
		t.Fatal("expected enqueue failure to surface")
	}

	// The orphaned row must not stay pending forever.
	if len(jobs.Jobs) != 1 {
		t.Fatalf("expected 1 job row, got %d", len(jobs.Jobs))
	}
	for _, j := range jobs.Jobs {
		if j.Status != scanjob.StatusFailed {
			t.Errorf("orphaned job status = %s, want failed", j.Status)
		}
	}
}

// rowFirstEnqueuer fails the test if a task becomes claimable before
// its job row is durable: a worker polling the queue can pick the task
// up immediately, and MarkRunning needs the row to exist.
type rowFirstEnqueuer struct {
	t    *testing.T
	jobs *testutil.MockScanJobRepository
}

func (e *rowFirstEnqueuer) task(payload interface{}) *queue.Task {
	e.t.Helper()
	p, ok := payload.(ScanTaskPayload)
	if !ok {
		e.t.Fatalf("payload type = %T, want ScanTaskPayload", payload)
	}
	if _, exists := e.jobs.Jobs[p.JobID]; !exists {
		e.t.Error("task enqueued before its job row was created")
	}
	body, err := json.Marshal(p)
	if err != nil {
		e.t.Fatalf("marshal payload: %v", err)
	}
	return &queue.Task{ID: "task-1", Payload: body}
}

func (e *rowFirstEnqueuer) Enqueue(ctx context.Context, payload interface{}) (*queue.Task, error) {
	return e.task(payload), nil
}

func (e *rowFirstEnqueuer) EnqueueUnique(ctx context.Context, dedupKey string, payload interface{}) (*queue.Task, error) {
	return e.task(payload), nil
}

func TestScanEnqueueAfterRowCreate(t *testing.T) {
	accounts := testutil.NewMockAccountRepository()
	jobs := testutil.NewMockScanJobRepository()
	acct := seedAccount(t, accounts, &account.Account{UserID: 7, IsActive: true, ScanIntervalMinutes: 60})

	svc := NewScanService(accounts, jobs, &rowFirstEnqueuer{t: t, jobs: jobs}, testLogger())

	if _, err := svc.RequestScan(context.Background(), 7, acct.ID); err != nil {
		t.Fatalf("RequestScan: %v", err)
	}
	if _, err := svc.EnqueueRecurring(context.Background(), acct); err != nil {
		t.Fatalf("EnqueueRecurring: %v", err)
	}
}

func TestEnqueueRecurringDedup(t *testing.T) {
	accounts := testutil.NewMockAccountRepository()
	jobs := testutil.NewMockScanJobRepository()
	q := newScanQueue()
	acct := seedAccount(t, accounts, &account.Account{UserID: 7, IsActive: true, ScanIntervalMinutes: 60})

	svc := NewScanService(accounts, jobs, q, testLogger())

	first, err := svc.EnqueueRecurring(context.Background(), acct)
	if err != nil {
		t.Fatalf("first EnqueueRecurring: %v", err)
	}
	if first == nil {
		t.Fatal("first enqueue must create a job")
	}

	second, err := svc.EnqueueRecurring(context.Background(), acct)
	if err != nil {
		t.Fatalf("second EnqueueRecurring: %v", err)
	}
	if second != nil {
		t.Errorf("second enqueue while in flight must be absorbed, got job %s", second.ID)
	}

	// The absorbed call's row is closed, not left pending forever.
	if got := jobs.Jobs[first.ID]; got == nil || got.Status != scanjob.StatusPending {
		t.Errorf("first job row missing or not pending: %+v", got)
	}
	for id, j := range jobs.Jobs {
		if id != first.ID && j.Status != scanjob.StatusFailed {
			t.Errorf("superseded job row status = %s, want failed", j.Status)
		}
	}
	counts, _ := q.Counts(context.Background())
	if counts.Pending != 1 {
		t.Errorf("pending tasks = %d, want 1", counts.Pending)
	}
}

func TestEnqueueRecurringFailureFailsJob(t *testing.T) {
	accounts := testutil.NewMockAccountRepository()
	jobs := testutil.NewMockScanJobRepository()
	acct := seedAccount(t, accounts, &account.Account{UserID: 7, IsActive: true, ScanIntervalMinutes: 60})

	svc := NewScanService(accounts, jobs, failingEnqueuer{}, testLogger())
	if _, err := svc.EnqueueRecurring(context.Background(), acct); err == nil {
		t.Fatal("expected enqueue failure to surface")
	}

	for _, j := range jobs.Jobs {
		if j.Status != scanjob.StatusFailed {
			t.Errorf("orphaned job status = %s, want failed", j.Status)
		}
	}
}

func TestJobStatusOwnership(t *testing.T) {
	accounts := testutil.NewMockAccountRepository()
	jobs := testutil.NewMockScanJobRepository()
	q := newScanQueue()
	acct := seedAccount(t, accounts, &account.Account{UserID: 7, IsActive: true})

	svc := NewScanService(accounts, jobs, q, testLogger())
	job, err := svc.RequestScan(context.Background(), 7, acct.ID)
	if err != nil {
		t.Fatalf("RequestScan: %v", err)
	}

	got, err := svc.JobStatus(context.Background(), 7, job.ID)
	if err != nil {
		t.Fatalf("JobStatus: %v", err)
	}
	if got.ID != job.ID {
		t.Errorf("job id = %s, want %s", got.ID, job.ID)
	}

	if _, err := svc.JobStatus(context.Background(), 8, job.ID); apperrors.Code(err) != apperrors.ErrCodeNotFound {
		t.Errorf("foreign job status: error code = %s, want NOT_FOUND", apperrors.Code(err))
	}
}
