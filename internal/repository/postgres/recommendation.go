package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/hostmaster-io/hostmaster/internal/domain/recommendation"
	"github.com/hostmaster-io/hostmaster/internal/pkg/errors"
)

// RecommendationRepository implements recommendation.Repository
type RecommendationRepository struct {
	db     *sql.DB
	driver string
}

// NewRecommendationRepository creates a new recommendation repository
func NewRecommendationRepository(db *sql.DB, driver string) recommendation.Repository {
	return &RecommendationRepository{db: db, driver: driver}
}

// Upsert inserts or refreshes a recommendation keyed by
// (user_id, resource_id, type). Dismissed and applied rows are frozen:
// the conflict update only touches rows still pending.
func (r *RecommendationRepository) Upsert(ctx context.Context, rec *recommendation.Recommendation) error {
	now := time.Now().UTC()

	query := rebind(r.driver, `
		INSERT INTO recommendations (user_id, resource_id, type, title, description, action,
			current_cost, recommended_cost, savings, confidence_score, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, resource_id, type) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			action = excluded.action,
			current_cost = excluded.current_cost,
			recommended_cost = excluded.recommended_cost,
			savings = excluded.savings,
			confidence_score = excluded.confidence_score,
			updated_at = excluded.updated_at
		WHERE recommendations.status = 'pending'
	`)

	_, err := r.db.ExecContext(ctx, query,
		rec.UserID, rec.ResourceID, rec.Type, rec.Title, rec.Description, rec.Action,
		rec.CurrentCost, rec.RecommendedCost, rec.Savings, rec.ConfidenceScore,
		recommendation.StatusPending, now, now,
	)
	if err != nil {
		return errors.StoreError("failed to upsert recommendation", err)
	}

	return nil
}

// ListPending retrieves pending recommendations ordered by savings
func (r *RecommendationRepository) ListPending(ctx context.Context, userID int64) ([]*recommendation.Recommendation, error) {
	query := rebind(r.driver, `
		SELECT id, user_id, resource_id, type, title, description, action,
			current_cost, recommended_cost, savings, confidence_score, status,
			created_at, updated_at
		FROM recommendations
		WHERE user_id = ? AND status = ?
		ORDER BY savings DESC, id
	`)

	rows, err := r.db.QueryContext(ctx, query, userID, recommendation.StatusPending)
	if err != nil {
		return nil, errors.StoreError("failed to list recommendations", err)
	}
	defer rows.Close()

	var recs []*recommendation.Recommendation
	for rows.Next() {
		var rec recommendation.Recommendation
		err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.ResourceID, &rec.Type, &rec.Title,
			&rec.Description, &rec.Action, &rec.CurrentCost, &rec.RecommendedCost,
			&rec.Savings, &rec.ConfidenceScore, &rec.Status,
			&rec.CreatedAt, &rec.UpdatedAt,
		)
		if err != nil {
			return nil, errors.StoreError("failed to scan recommendation", err)
		}
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StoreError("failed to iterate recommendations", err)
	}

	return recs, nil
}

// UpdateStatus moves a pending recommendation to dismissed or applied
func (r *RecommendationRepository) UpdateStatus(ctx context.Context, userID int64, id int64, status string) error {
	if status != recommendation.StatusDismissed && status != recommendation.StatusApplied {
		return errors.ValidationError("invalid recommendation status", map[string]string{"status": status})
	}

	query := rebind(r.driver, `
		UPDATE recommendations
		SET status = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND status = ?
	`)

	result, err := r.db.ExecContext(ctx, query,
		status, time.Now().UTC(), id, userID, recommendation.StatusPending,
	)
	if err != nil {
		return errors.StoreError("failed to update recommendation status", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.StoreError("failed to get affected rows", err)
	}
	if rowsAffected == 0 {
		return errors.NotFound("pending recommendation")
	}

	return nil
}

// TotalSavings sums savings across pending recommendations
func (r *RecommendationRepository) TotalSavings(ctx context.Context, userID int64) (float64, error) {
	query := rebind(r.driver, `
		SELECT COALESCE(SUM(savings), 0)
		FROM recommendations
		WHERE user_id = ? AND status = ?
	`)

	var total float64
	err := r.db.QueryRowContext(ctx, query, userID, recommendation.StatusPending).Scan(&total)
	if err != nil {
		return 0, errors.StoreError("failed to sum savings", err)
	}

	return total, nil
}
