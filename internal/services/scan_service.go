package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/hostmaster-io/hostmaster/internal/domain/account"
	"github.com/hostmaster-io/hostmaster/internal/domain/scanjob"
	"github.com/hostmaster-io/hostmaster/internal/pkg/errors"
	"github.com/hostmaster-io/hostmaster/internal/pkg/logger"
	"github.com/hostmaster-io/hostmaster/internal/queue"
)

// ScanTaskPayload is the scan queue payload.
type ScanTaskPayload struct {
	JobID     string `json:"job_id"`
	UserID    int64  `json:"user_id"`
	AccountID int64  `json:"account_id"`
	Recurring bool   `json:"recurring,omitempty"`
}

// RecurringDedupKey is the deterministic dedup key for an account's
// recurring scan, so re-scheduling never stacks duplicates.
func RecurringDedupKey(accountID int64) string {
	return fmt.Sprintf("recurring-scan-%d", accountID)
}

// UniqueEnqueuer is the slice of the scan queue this service needs.
type UniqueEnqueuer interface {
	Enqueue(ctx context.Context, payload interface{}) (*queue.Task, error)
	EnqueueUnique(ctx context.Context, dedupKey string, payload interface{}) (*queue.Task, error)
}

// ScanService accepts scan requests: it records the ScanJob row that
// the API polls and hands the task to the durable queue.
type ScanService struct {
	accounts account.Repository
	jobs     scanjob.Repository
	scans    UniqueEnqueuer
	log      *logger.Logger
}

// NewScanService creates a new scan service
func NewScanService(accounts account.Repository, jobs scanjob.Repository, scans UniqueEnqueuer, log *logger.Logger) *ScanService {
	return &ScanService{
		accounts: accounts,
		jobs:     jobs,
		scans:    scans,
		log:      log,
	}
}

// RequestScan validates the account and enqueues an ad-hoc scan.
// Returns the ScanJob for status polling.
func (s *ScanService) RequestScan(ctx context.Context, userID, accountID int64) (*scanjob.ScanJob, error) {
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.UserID != userID {
		return nil, errors.NotFound("account")
	}
	if !acct.IsActive {
		return nil, errors.ValidationError("account is deactivated", map[string]int64{"account_id": accountID})
	}

	job := &scanjob.ScanJob{
		ID:        uuid.NewString(),
		UserID:    userID,
		AccountID: accountID,
		Status:    scanjob.StatusPending,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	payload := ScanTaskPayload{JobID: job.ID, UserID: userID, AccountID: accountID}
	if _, err := s.scans.Enqueue(ctx, payload); err != nil {
		// The row exists but no task will run it; fail it so the
		// poller is not left watching a forever-pending job.
		s.failOrphanedJob(ctx, job.ID, "failed to enqueue scan task")
		return nil, err
	}

	s.log.WithFields(map[string]interface{}{
		"job_id":     job.ID,
		"account_id": accountID,
	}).Info("scan requested")

	return job, nil
}

// EnqueueRecurring enqueues the account's recurring scan unless one is
// already in flight.
func (s *ScanService) EnqueueRecurring(ctx context.Context, acct *account.Account) (*scanjob.ScanJob, error) {
	job := &scanjob.ScanJob{
		ID:        uuid.NewString(),
		UserID:    acct.UserID,
		AccountID: acct.ID,
		Status:    scanjob.StatusPending,
	}

	// Row first, as in RequestScan: a worker can claim the task the
	// moment it lands, and MarkRunning needs the row to exist.
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	payload := ScanTaskPayload{JobID: job.ID, UserID: acct.UserID, AccountID: acct.ID, Recurring: true}
	task, err := s.scans.EnqueueUnique(ctx, RecurringDedupKey(acct.ID), payload)
	if err != nil {
		s.failOrphanedJob(ctx, job.ID, "failed to enqueue recurring scan task")
		return nil, err
	}

	// The dedup key absorbed the enqueue: a recurring scan for this
	// account is already in flight, so the fresh row will never run.
	var existing ScanTaskPayload
	if unmarshalErr := decodePayload(task, &existing); unmarshalErr == nil && existing.JobID != job.ID {
		s.failOrphanedJob(ctx, job.ID, "superseded by an in-flight recurring scan")
		return nil, nil
	}

	return job, nil
}

// failOrphanedJob closes a row no task will ever run.
func (s *ScanService) failOrphanedJob(ctx context.Context, jobID, reason string) {
	if err := s.jobs.MarkFailed(ctx, jobID, reason); err != nil {
		s.log.With("job_id", jobID).ErrorWithErr(err, "failed to fail orphaned scan job")
	}
}

// JobStatus returns the scan job for polling.
func (s *ScanService) JobStatus(ctx context.Context, userID int64, jobID string) (*scanjob.ScanJob, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, errors.NotFound("scan job")
	}
	return job, nil
}

func decodePayload(t *queue.Task, out interface{}) error {
	if t == nil {
		return fmt.Errorf("nil task")
	}
	return json.Unmarshal(t.Payload, out)
}
