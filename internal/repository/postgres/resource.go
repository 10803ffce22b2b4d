package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/hostmaster-io/hostmaster/internal/domain/resource"
	"github.com/hostmaster-io/hostmaster/internal/pkg/errors"
)

// ResourceRepository implements resource.Repository
type ResourceRepository struct {
	db     *sql.DB
	driver string
}

// NewResourceRepository creates a new resource repository
func NewResourceRepository(db *sql.DB, driver string) resource.Repository {
	return &ResourceRepository{db: db, driver: driver}
}

const resourceColumns = `id, user_id, resource_type, resource_id, resource_name,
		region, instance_type, state, monthly_cost, metadata, last_seen_at, created_at`

// Upsert inserts or refreshes a resource keyed by
// (user_id, resource_id, resource_type)
func (r *ResourceRepository) Upsert(ctx context.Context, res *resource.Resource) error {
	now := time.Now().UTC()
	if res.LastSeenAt.IsZero() {
		res.LastSeenAt = now
	}

	query := rebind(r.driver, `
		INSERT INTO resources (user_id, resource_type, resource_id, resource_name,
			region, instance_type, state, monthly_cost, metadata, last_seen_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, resource_id, resource_type) DO UPDATE SET
			resource_name = excluded.resource_name,
			region = excluded.region,
			instance_type = excluded.instance_type,
			state = excluded.state,
			monthly_cost = excluded.monthly_cost,
			metadata = excluded.metadata,
			last_seen_at = excluded.last_seen_at
		RETURNING id
	`)

	err := r.db.QueryRowContext(ctx, query,
		res.UserID, res.Type, res.ResourceID, res.Name,
		res.Region, res.InstanceType, res.State, res.MonthlyCost,
		metadataParam(res.Metadata), res.LastSeenAt, now,
	).Scan(&res.ID)
	if err != nil {
		return errors.StoreError("failed to upsert resource", err)
	}

	return nil
}

// GetByID retrieves a resource by its row ID
func (r *ResourceRepository) GetByID(ctx context.Context, userID int64, id int64) (*resource.Resource, error) {
	query := rebind(r.driver, `
		SELECT `+resourceColumns+`
		FROM resources
		WHERE user_id = ? AND id = ?
	`)

	res, err := scanResource(r.db.QueryRowContext(ctx, query, userID, id))
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("resource")
	}
	if err != nil {
		return nil, errors.StoreError("failed to get resource", err)
	}

	return res, nil
}

// List retrieves resources with filters
func (r *ResourceRepository) List(ctx context.Context, userID int64, filter resource.Filter) ([]*resource.Resource, error) {
	var conditions []string
	var args []interface{}

	conditions = append(conditions, "user_id = ?")
	args = append(args, userID)

	if filter.Type != "" {
		conditions = append(conditions, "resource_type = ?")
		args = append(args, filter.Type)
	}
	if filter.Region != "" {
		conditions = append(conditions, "region = ?")
		args = append(args, filter.Region)
	}
	if filter.State != "" {
		conditions = append(conditions, "state = ?")
		args = append(args, filter.State)
	}
	if filter.MinCost > 0 {
		conditions = append(conditions, "monthly_cost >= ?")
		args = append(args, filter.MinCost)
	}

	query := rebind(r.driver, `
		SELECT `+resourceColumns+`
		FROM resources
		WHERE `+strings.Join(conditions, " AND ")+`
		ORDER BY monthly_cost DESC, id
	`)

	return r.queryResources(ctx, query, args...)
}

// ListTopByCost retrieves the n most expensive resources at or above minCost
func (r *ResourceRepository) ListTopByCost(ctx context.Context, userID int64, minCost float64, n int) ([]*resource.Resource, error) {
	query := rebind(r.driver, `
		SELECT `+resourceColumns+`
		FROM resources
		WHERE user_id = ? AND monthly_cost >= ?
		ORDER BY monthly_cost DESC, id
		LIMIT ?
	`)

	return r.queryResources(ctx, query, userID, minCost, n)
}

// CountByUser counts resources for a user
func (r *ResourceRepository) CountByUser(ctx context.Context, userID int64) (int64, error) {
	query := rebind(r.driver, `SELECT COUNT(*) FROM resources WHERE user_id = ?`)

	var count int64
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, errors.StoreError("failed to count resources", err)
	}
	return count, nil
}

// SumRunningCostByType sums monthly_cost of running resources by type
func (r *ResourceRepository) SumRunningCostByType(ctx context.Context, userID int64) (map[string]float64, error) {
	query := rebind(r.driver, `
		SELECT resource_type, COALESCE(SUM(monthly_cost), 0)
		FROM resources
		WHERE user_id = ? AND state IN (?, ?)
		GROUP BY resource_type
	`)

	rows, err := r.db.QueryContext(ctx, query, userID, resource.StateRunning, resource.StateAvailable)
	if err != nil {
		return nil, errors.StoreError("failed to sum resource costs", err)
	}
	defer rows.Close()

	sums := make(map[string]float64)
	for rows.Next() {
		var resourceType string
		var total float64
		if err := rows.Scan(&resourceType, &total); err != nil {
			return nil, errors.StoreError("failed to scan cost sum", err)
		}
		sums[resourceType] = total
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StoreError("failed to iterate cost sums", err)
	}

	return sums, nil
}

func (r *ResourceRepository) queryResources(ctx context.Context, query string, args ...interface{}) ([]*resource.Resource, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.StoreError("failed to list resources", err)
	}
	defer rows.Close()

	var resources []*resource.Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, errors.StoreError("failed to scan resource", err)
		}
		resources = append(resources, res)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StoreError("failed to iterate resources", err)
	}

	return resources, nil
}

func scanResource(row rowScanner) (*resource.Resource, error) {
	var res resource.Resource
	var metadata sql.NullString
	err := row.Scan(
		&res.ID, &res.UserID, &res.Type, &res.ResourceID, &res.Name,
		&res.Region, &res.InstanceType, &res.State, &res.MonthlyCost,
		&metadata, &res.LastSeenAt, &res.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if metadata.Valid && metadata.String != "" {
		res.Metadata = json.RawMessage(metadata.String)
	}
	return &res, nil
}

// metadataParam converts raw JSON to a driver-friendly value. Both
// drivers take JSON as text; nil stays NULL.
func metadataParam(m json.RawMessage) interface{} {
	if len(m) == 0 {
		return nil
	}
	return string(m)
}
