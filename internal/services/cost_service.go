package services

import (
	"context"
	"math"
	"time"

	"github.com/hostmaster-io/hostmaster/internal/cache"
	"github.com/hostmaster-io/hostmaster/internal/domain/cost"
	"github.com/hostmaster-io/hostmaster/internal/domain/resource"
	"github.com/hostmaster-io/hostmaster/internal/pkg/errors"
	"github.com/hostmaster-io/hostmaster/internal/pkg/logger"
)

// Cache is the slice of the redis cache the services depend on. A nil
// cache disables caching without changing behavior.
type Cache interface {
	Get(ctx context.Context, key string, out interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	InvalidateUser(ctx context.Context, userID int64) error
}

// CostService aggregates monthly spend. Resolution order: cache, then
// the persisted month snapshot, then an estimate summed from the
// resource inventory. The cache is an accelerator only; a cache
// failure degrades to the slower path, never to an error.
type CostService struct {
	resources resource.Repository
	costs     cost.Repository
	cache     Cache
	log       *logger.Logger
}

// NewCostService creates a new cost service
func NewCostService(resources resource.Repository, costs cost.Repository, c Cache, log *logger.Logger) *CostService {
	return &CostService{
		resources: resources,
		costs:     costs,
		cache:     c,
		log:       log,
	}
}

// GetMonthlyCost returns the user's spend for the given month
// (YYYY-MM; empty means the current month).
func (s *CostService) GetMonthlyCost(ctx context.Context, userID int64, month string) (*cost.Snapshot, error) {
	current := month == "" || month == cost.CurrentMonth()
	if month == "" {
		month = cost.CurrentMonth()
	}

	if s.cache != nil && current {
		var cached cost.Snapshot
		err := s.cache.Get(ctx, cache.CostKey(userID), &cached)
		if err == nil {
			return &cached, nil
		}
		if !cache.IsMiss(err) {
			s.log.WithError(err).Warn("cost cache read failed, falling through")
		}
	}

	snapshot, err := s.costs.GetSnapshot(ctx, userID, month)
	if err != nil && errors.Code(err) != errors.ErrCodeNotFound {
		return nil, err
	}
	if snapshot == nil {
		snapshot, err = s.estimateFromInventory(ctx, userID, month)
		if err != nil {
			return nil, err
		}
	}

	if s.cache != nil && current {
		if err := s.cache.Set(ctx, cache.CostKey(userID), snapshot, cache.CostTTL); err != nil {
			s.log.WithError(err).Warn("cost cache write failed")
		}
	}

	return snapshot, nil
}

// estimateFromInventory sums the monthly cost of running resources.
// Used when no billing snapshot exists for the month.
func (s *CostService) estimateFromInventory(ctx context.Context, userID int64, month string) (*cost.Snapshot, error) {
	byService, err := s.resources.SumRunningCostByType(ctx, userID)
	if err != nil {
		return nil, err
	}

	resources, err := s.resources.List(ctx, userID, resource.Filter{})
	if err != nil {
		return nil, err
	}

	byRegion := make(map[string]float64)
	var total float64
	for _, r := range resources {
		if r.State != resource.StateRunning && r.State != resource.StateAvailable {
			continue
		}
		region := r.Region
		if region == "" {
			region = "global"
		}
		byRegion[region] += r.MonthlyCost
		total += r.MonthlyCost
	}

	for svc, v := range byService {
		byService[svc] = Round2(v)
	}
	for region, v := range byRegion {
		byRegion[region] = Round2(v)
	}

	return &cost.Snapshot{
		UserID:        userID,
		Month:         month,
		TotalCost:     Round2(total),
		CostByService: byService,
		CostByRegion:  byRegion,
		UpdatedAt:     time.Now().UTC(),
	}, nil
}

// RecordActualSpend persists billing-API numbers as the month's
// snapshot and drops the stale cache entry.
func (s *CostService) RecordActualSpend(ctx context.Context, userID int64, total float64, byService, byRegion map[string]float64) error {
	snapshot := &cost.Snapshot{
		UserID:        userID,
		Month:         cost.CurrentMonth(),
		TotalCost:     Round2(total),
		CostByService: byService,
		CostByRegion:  byRegion,
	}
	if err := s.costs.UpsertSnapshot(ctx, snapshot); err != nil {
		return err
	}
	return s.Invalidate(ctx, userID)
}

// Forecast projects spend forward under the flat 5% growth assumption.
func (s *CostService) Forecast(currentTotal float64) cost.Forecast {
	return cost.Forecast{
		NextMonth:   Round2(currentTotal * 1.05),
		ThreeMonths: Round2(currentTotal * 3 * 1.05),
	}
}

// Invalidate drops the user's cached cost and dashboard entries.
func (s *CostService) Invalidate(ctx context.Context, userID int64) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.InvalidateUser(ctx, userID)
}

// Round2 rounds to cents. Applied at boundaries only; intermediate
// sums keep full precision.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
