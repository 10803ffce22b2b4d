package recommendation

import "context"

// Repository defines the interface for recommendation data access
type Repository interface {
	// Upsert inserts or refreshes a recommendation keyed by
	// (user_id, resource_id, type). Rows whose status is no longer
	// pending are left untouched.
	Upsert(ctx context.Context, r *Recommendation) error

	// ListPending retrieves pending recommendations ordered by savings
	ListPending(ctx context.Context, userID int64) ([]*Recommendation, error)

	// UpdateStatus moves a pending recommendation to dismissed or applied
	UpdateStatus(ctx context.Context, userID int64, id int64, status string) error

	// TotalSavings sums savings across pending recommendations
	TotalSavings(ctx context.Context, userID int64) (float64, error)
}
