package alert

import (
	"context"
	"time"
)

// Repository defines the interface for alert data access
type Repository interface {
	// Create appends a new alert
	Create(ctx context.Context, a *Alert) (int64, error)

	// HasRecent reports whether an alert of the given severity exists
	// for the user within the window (cool-down check)
	HasRecent(ctx context.Context, userID int64, severity string, window time.Duration) (bool, error)

	// ListUnread retrieves unread alerts, newest first
	ListUnread(ctx context.Context, userID int64, limit int) ([]*Alert, error)

	// MarkRead marks an alert as read (consumer side)
	MarkRead(ctx context.Context, userID int64, id int64) error
}
