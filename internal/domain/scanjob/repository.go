package scanjob

import "context"

// Repository defines the interface for scan job data access
type Repository interface {
	// Create inserts a new pending scan job
	Create(ctx context.Context, j *ScanJob) error

	// Get retrieves a scan job by ID
	Get(ctx context.Context, id string) (*ScanJob, error)

	// MarkRunning transitions a pending or failed (retrying) job to
	// running. Completed jobs are never reopened.
	MarkRunning(ctx context.Context, id string) error

	// MarkCompleted transitions to completed with the resource count
	MarkCompleted(ctx context.Context, id string, resourceCount int) error

	// MarkFailed transitions to failed recording the error message.
	// Terminal rows are never reopened.
	MarkFailed(ctx context.Context, id string, errMsg string) error
}
