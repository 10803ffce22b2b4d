package scanjob

import "time"

// ScanJob records one inventory-collection attempt. Completed is
// terminal; failed is terminal only once the queue exhausts its retry
// budget, since an earlier retry reopens the row to running.
type ScanJob struct {
	ID            string     `json:"id"`
	UserID        int64      `json:"user_id"`
	AccountID     int64      `json:"account_id"`
	Status        string     `json:"status"`
	ResourceCount int        `json:"resource_count"`
	Errors        []string   `json:"errors,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Scan job statuses
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// IsTerminal reports whether the status allows no further transitions.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}
