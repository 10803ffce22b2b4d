package cost

import "context"

// Repository defines the interface for cost history data access
type Repository interface {
	// UpsertSnapshot inserts or replaces the snapshot for (user, month)
	UpsertSnapshot(ctx context.Context, s *Snapshot) error

	// GetSnapshot retrieves the snapshot for a month, or nil if absent
	GetSnapshot(ctx context.Context, userID int64, month string) (*Snapshot, error)
}
