package alert

import "time"

// Alert is a persisted notification record. The pipeline only appends;
// read/delete actions belong to the consumer side.
type Alert struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Type      string    `json:"alert_type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// Alert severities
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert types
const (
	TypeCost = "cost_alert"
)

// Channel names for alert delivery
const (
	ChannelDashboard = "dashboard"
	ChannelEmail     = "email"
	ChannelSlack     = "slack"
	ChannelSMS       = "sms"
)
