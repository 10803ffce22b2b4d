package resource

import (
	"encoding/json"
	"time"
)

// Resource is a snapshot of one billable cloud asset. A rescan upserts
// by (user, resource id, type) and refreshes state, cost and metadata;
// it never creates duplicates.
type Resource struct {
	ID           int64           `json:"id"`
	UserID       int64           `json:"user_id"`
	Type         string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	Name         string          `json:"resource_name"`
	Region       string          `json:"region"`
	InstanceType string          `json:"instance_type"`
	State        string          `json:"state"`
	MonthlyCost  float64         `json:"monthly_cost"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	LastSeenAt   time.Time       `json:"last_seen_at"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Resource types
const (
	TypeCompute  = "ec2"
	TypeDatabase = "rds"
)

// Resource states
const (
	StateRunning   = "running"
	StateStopped   = "stopped"
	StateAvailable = "available"
)

// Filter contains resource filtering options
type Filter struct {
	Type    string
	Region  string
	State   string
	MinCost float64
}
