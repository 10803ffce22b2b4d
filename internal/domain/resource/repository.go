package resource

import "context"

// Repository defines the interface for resource data access
type Repository interface {
	// Upsert inserts or refreshes a resource keyed by
	// (user_id, resource_id, resource_type)
	Upsert(ctx context.Context, r *Resource) error

	// GetByID retrieves a resource by its row ID
	GetByID(ctx context.Context, userID int64, id int64) (*Resource, error)

	// List retrieves resources with filters
	List(ctx context.Context, userID int64, filter Filter) ([]*Resource, error)

	// ListTopByCost retrieves the n most expensive resources at or
	// above minCost (expensive-resource alerting)
	ListTopByCost(ctx context.Context, userID int64, minCost float64, n int) ([]*Resource, error)

	// CountByUser counts resources for a user
	CountByUser(ctx context.Context, userID int64) (int64, error)

	// SumRunningCostByType sums monthly_cost of running resources
	// grouped by resource type (cost fallback path)
	SumRunningCostByType(ctx context.Context, userID int64) (map[string]float64, error)
}
