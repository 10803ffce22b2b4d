package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/hostmaster-io/hostmaster/internal/domain/alert"
	"github.com/hostmaster-io/hostmaster/internal/pkg/errors"
)

// AlertRepository implements alert.Repository
type AlertRepository struct {
	db     *sql.DB
	driver string
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *sql.DB, driver string) alert.Repository {
	return &AlertRepository{db: db, driver: driver}
}

// Create appends a new alert
func (r *AlertRepository) Create(ctx context.Context, a *alert.Alert) (int64, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	query := rebind(r.driver, `
		INSERT INTO alerts (user_id, alert_type, title, message, severity, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	err := r.db.QueryRowContext(ctx, query,
		a.UserID, a.Type, a.Title, a.Message, a.Severity, a.IsRead, a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		return 0, errors.StoreError("failed to create alert", err)
	}

	return a.ID, nil
}

// HasRecent reports whether an alert of the given severity exists for
// the user within the window. Drives the warning cool-down.
func (r *AlertRepository) HasRecent(ctx context.Context, userID int64, severity string, window time.Duration) (bool, error) {
	query := rebind(r.driver, `
		SELECT COUNT(*)
		FROM alerts
		WHERE user_id = ? AND severity = ? AND created_at > ?
	`)

	cutoff := time.Now().UTC().Add(-window)

	var count int64
	err := r.db.QueryRowContext(ctx, query, userID, severity, cutoff).Scan(&count)
	if err != nil {
		return false, errors.StoreError("failed to check recent alerts", err)
	}

	return count > 0, nil
}

// ListUnread retrieves unread alerts, newest first
func (r *AlertRepository) ListUnread(ctx context.Context, userID int64, limit int) ([]*alert.Alert, error) {
	if limit <= 0 {
		limit = 50
	}

	query := rebind(r.driver, `
		SELECT id, user_id, alert_type, title, message, severity, is_read, created_at
		FROM alerts
		WHERE user_id = ? AND is_read = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`)

	rows, err := r.db.QueryContext(ctx, query, userID, false, limit)
	if err != nil {
		return nil, errors.StoreError("failed to list alerts", err)
	}
	defer rows.Close()

	var alerts []*alert.Alert
	for rows.Next() {
		var a alert.Alert
		err := rows.Scan(&a.ID, &a.UserID, &a.Type, &a.Title, &a.Message,
			&a.Severity, &a.IsRead, &a.CreatedAt)
		if err != nil {
			return nil, errors.StoreError("failed to scan alert", err)
		}
		alerts = append(alerts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StoreError("failed to iterate alerts", err)
	}

	return alerts, nil
}

// MarkRead marks an alert as read
func (r *AlertRepository) MarkRead(ctx context.Context, userID int64, id int64) error {
	query := rebind(r.driver, `
		UPDATE alerts
		SET is_read = ?
		WHERE id = ? AND user_id = ?
	`)

	result, err := r.db.ExecContext(ctx, query, true, id, userID)
	if err != nil {
		return errors.StoreError("failed to mark alert read", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.StoreError("failed to get affected rows", err)
	}
	if rowsAffected == 0 {
		return errors.NotFound("alert")
	}

	return nil
}
