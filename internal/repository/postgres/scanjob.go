package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/hostmaster-io/hostmaster/internal/domain/scanjob"
	"github.com/hostmaster-io/hostmaster/internal/pkg/errors"
)

// ScanJobRepository implements scanjob.Repository
type ScanJobRepository struct {
	db     *sql.DB
	driver string
}

// NewScanJobRepository creates a new scan job repository
func NewScanJobRepository(db *sql.DB, driver string) scanjob.Repository {
	return &ScanJobRepository{db: db, driver: driver}
}

// Create inserts a new pending scan job
func (r *ScanJobRepository) Create(ctx context.Context, j *scanjob.ScanJob) error {
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	if j.Status == "" {
		j.Status = scanjob.StatusPending
	}

	query := rebind(r.driver, `
		INSERT INTO scan_jobs (id, user_id, account_id, status, resource_count, errors, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		j.ID, j.UserID, j.AccountID, j.Status, j.ResourceCount,
		errorsParam(j.Errors), j.CreatedAt,
	)
	if err != nil {
		return errors.StoreError("failed to create scan job", err)
	}

	return nil
}

// Get retrieves a scan job by ID
func (r *ScanJobRepository) Get(ctx context.Context, id string) (*scanjob.ScanJob, error) {
	query := rebind(r.driver, `
		SELECT id, user_id, account_id, status, resource_count, errors, created_at, completed_at
		FROM scan_jobs
		WHERE id = ?
	`)

	var j scanjob.ScanJob
	var errsJSON sql.NullString
	var completedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&j.ID, &j.UserID, &j.AccountID, &j.Status, &j.ResourceCount,
		&errsJSON, &j.CreatedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("scan job")
	}
	if err != nil {
		return nil, errors.StoreError("failed to get scan job", err)
	}

	if errsJSON.Valid && errsJSON.String != "" {
		if err := json.Unmarshal([]byte(errsJSON.String), &j.Errors); err != nil {
			return nil, errors.StoreError("failed to decode scan job errors", err)
		}
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}

	return &j, nil
}

// MarkRunning transitions a pending or failed (retrying) job to
// running. Completed jobs stay closed.
func (r *ScanJobRepository) MarkRunning(ctx context.Context, id string) error {
	query := rebind(r.driver, `
		UPDATE scan_jobs
		SET status = ?, completed_at = NULL
		WHERE id = ? AND status != ?
	`)

	result, err := r.db.ExecContext(ctx, query,
		scanjob.StatusRunning, id, scanjob.StatusCompleted,
	)
	if err != nil {
		return errors.StoreError("failed to mark scan job running", err)
	}

	return r.requireRow(result, "scan job")
}

// MarkCompleted transitions to completed with the resource count
func (r *ScanJobRepository) MarkCompleted(ctx context.Context, id string, resourceCount int) error {
	query := rebind(r.driver, `
		UPDATE scan_jobs
		SET status = ?, resource_count = ?, completed_at = ?
		WHERE id = ? AND status NOT IN (?, ?)
	`)

	result, err := r.db.ExecContext(ctx, query,
		scanjob.StatusCompleted, resourceCount, time.Now().UTC(),
		id, scanjob.StatusCompleted, scanjob.StatusFailed,
	)
	if err != nil {
		return errors.StoreError("failed to mark scan job completed", err)
	}

	return r.requireRow(result, "active scan job")
}

// MarkFailed transitions to failed recording the error message.
// Terminal rows stay as they are.
func (r *ScanJobRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	errsJSON, err := json.Marshal([]string{errMsg})
	if err != nil {
		return errors.Internal("failed to encode scan job errors", err)
	}

	query := rebind(r.driver, `
		UPDATE scan_jobs
		SET status = ?, errors = ?, completed_at = ?
		WHERE id = ? AND status NOT IN (?, ?)
	`)

	result, err := r.db.ExecContext(ctx, query,
		scanjob.StatusFailed, string(errsJSON), time.Now().UTC(),
		id, scanjob.StatusCompleted, scanjob.StatusFailed,
	)
	if err != nil {
		return errors.StoreError("failed to mark scan job failed", err)
	}

	return r.requireRow(result, "active scan job")
}

func (r *ScanJobRepository) requireRow(result sql.Result, entity string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.StoreError("failed to get affected rows", err)
	}
	if rowsAffected == 0 {
		return errors.NotFound(entity)
	}
	return nil
}

func errorsParam(errs []string) interface{} {
	if len(errs) == 0 {
		return nil
	}
	b, err := json.Marshal(errs)
	if err != nil {
		return nil
	}
	return string(b)
}
