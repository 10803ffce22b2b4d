package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/hostmaster-io/hostmaster/internal/domain/cost"
	"github.com/hostmaster-io/hostmaster/internal/pkg/errors"
)

// CostRepository implements cost.Repository
type CostRepository struct {
	db     *sql.DB
	driver string
}

// NewCostRepository creates a new cost history repository
func NewCostRepository(db *sql.DB, driver string) cost.Repository {
	return &CostRepository{db: db, driver: driver}
}

// UpsertSnapshot inserts or replaces the snapshot for (user, month)
func (r *CostRepository) UpsertSnapshot(ctx context.Context, s *cost.Snapshot) error {
	s.UpdatedAt = time.Now().UTC()

	byService, err := json.Marshal(s.CostByService)
	if err != nil {
		return errors.Internal("failed to encode cost by service", err)
	}
	byRegion, err := json.Marshal(s.CostByRegion)
	if err != nil {
		return errors.Internal("failed to encode cost by region", err)
	}

	query := rebind(r.driver, `
		INSERT INTO cost_history (user_id, month, total_cost, cost_by_service, cost_by_region, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, month) DO UPDATE SET
			total_cost = excluded.total_cost,
			cost_by_service = excluded.cost_by_service,
			cost_by_region = excluded.cost_by_region,
			updated_at = excluded.updated_at
	`)

	_, err = r.db.ExecContext(ctx, query,
		s.UserID, s.Month, s.TotalCost, string(byService), string(byRegion), s.UpdatedAt,
	)
	if err != nil {
		return errors.StoreError("failed to upsert cost snapshot", err)
	}

	return nil
}

// GetSnapshot retrieves the snapshot for a month, or NotFound if absent
func (r *CostRepository) GetSnapshot(ctx context.Context, userID int64, month string) (*cost.Snapshot, error) {
	query := rebind(r.driver, `
		SELECT user_id, month, total_cost, cost_by_service, cost_by_region, updated_at
		FROM cost_history
		WHERE user_id = ? AND month = ?
	`)

	var s cost.Snapshot
	var byService, byRegion sql.NullString
	err := r.db.QueryRowContext(ctx, query, userID, month).Scan(
		&s.UserID, &s.Month, &s.TotalCost, &byService, &byRegion, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("cost snapshot")
	}
	if err != nil {
		return nil, errors.StoreError("failed to get cost snapshot", err)
	}

	if byService.Valid && byService.String != "" {
		if err := json.Unmarshal([]byte(byService.String), &s.CostByService); err != nil {
			return nil, errors.StoreError("failed to decode cost by service", err)
		}
	}
	if byRegion.Valid && byRegion.String != "" {
		if err := json.Unmarshal([]byte(byRegion.String), &s.CostByRegion); err != nil {
			return nil, errors.StoreError("failed to decode cost by region", err)
		}
	}

	return &s, nil
}
