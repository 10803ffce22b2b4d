package recommendation

import "time"

// Recommendation is a cost-optimization advisory tied to at most one
// resource. Regeneration upserts by (user, resource, type); rows a user
// has dismissed or applied are frozen and skipped.
type Recommendation struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	ResourceID      int64     `json:"resource_id"`
	Type            string    `json:"type"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Action          string    `json:"action"`
	CurrentCost     float64   `json:"current_cost"`
	RecommendedCost float64   `json:"recommended_cost"`
	Savings         float64   `json:"savings"`
	ConfidenceScore float64   `json:"confidence_score"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Recommendation types
const (
	TypeRightSizing      = "right-sizing"
	TypeReservedInstance = "reserved-instance"
	TypeTermination      = "termination"
)

// Recommendation statuses. Pending may move to dismissed or applied;
// both are terminal.
const (
	StatusPending   = "pending"
	StatusDismissed = "dismissed"
	StatusApplied   = "applied"
)
