package cost

import "time"

// Snapshot is one month of spend for a user: the total plus per-service
// and per-region breakdowns. Unique on (user, month).
type Snapshot struct {
	UserID        int64              `json:"user_id"`
	Month         string             `json:"month"` // YYYY-MM
	TotalCost     float64            `json:"total_cost"`
	CostByService map[string]float64 `json:"cost_by_service"`
	CostByRegion  map[string]float64 `json:"cost_by_region"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Forecast projects spend under a flat 5% monthly growth assumption.
// It is a documented approximation, not a statistical model.
type Forecast struct {
	NextMonth   float64 `json:"next_month"`
	ThreeMonths float64 `json:"three_months"`
}

// CurrentMonth returns the period key for now, formatted YYYY-MM.
func CurrentMonth() string {
	return time.Now().UTC().Format("2006-01")
}
