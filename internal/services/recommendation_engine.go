package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/hostmaster-io/hostmaster/internal/domain/recommendation"
	"github.com/hostmaster-io/hostmaster/internal/domain/resource"
	"github.com/hostmaster-io/hostmaster/internal/pkg/logger"
)

// Confidence scores per heuristic. Termination is the least certain:
// a stopped instance may be stopped on purpose.
const (
	confidenceRightSizing      = 0.85
	confidenceReservedInstance = 0.90
	confidenceTermination      = 0.75

	// reservedInstanceRate is the reserved price as a fraction of
	// on-demand.
	reservedInstanceRate = 0.60

	// minReservedSavings filters out noise: reserved-instance advice
	// under this monthly saving is not worth acting on.
	minReservedSavings = 10.0
)

// downsizeTargets maps oversized instance classes to the next smaller
// class. Classes not listed are considered right-sized.
var downsizeTargets = map[string]string{
	"t3.large":     "t3.medium",
	"t3.xlarge":    "t3.large",
	"m5.large":     "t3.large",
	"m5.xlarge":    "m5.large",
	"db.t3.medium": "db.t3.small",
	"db.m5.large":  "db.t3.medium",
}

// RecommendationEngine derives cost-optimization advice from the
// current resource inventory. The three heuristics are independent;
// one resource can receive all of them.
type RecommendationEngine struct {
	resources       resource.Repository
	recommendations recommendation.Repository
	costs           *CostService
	log             *logger.Logger
}

// NewRecommendationEngine creates a new recommendation engine
func NewRecommendationEngine(
	resources resource.Repository,
	recommendations recommendation.Repository,
	costs *CostService,
	log *logger.Logger,
) *RecommendationEngine {
	return &RecommendationEngine{
		resources:       resources,
		recommendations: recommendations,
		costs:           costs,
		log:             log,
	}
}

// Generate recomputes recommendations for every resource the user
// owns. Each result is upserted by (user, resource, type); rows the
// user already dismissed or applied stay frozen. The user's cost cache
// is invalidated afterwards since projected savings changed.
func (e *RecommendationEngine) Generate(ctx context.Context, userID int64) ([]*recommendation.Recommendation, error) {
	resources, err := e.resources.List(ctx, userID, resource.Filter{})
	if err != nil {
		return nil, err
	}

	var recs []*recommendation.Recommendation
	for _, r := range resources {
		recs = append(recs, e.evaluateResource(r)...)
	}

	for _, rec := range recs {
		if err := e.recommendations.Upsert(ctx, rec); err != nil {
			return nil, err
		}
	}

	if err := e.costs.Invalidate(ctx, userID); err != nil {
		e.log.WithError(err).Warn("failed to invalidate cost cache after regeneration")
	}

	e.log.WithFields(map[string]interface{}{
		"user_id": userID,
		"count":   len(recs),
	}).Info("recommendations regenerated")

	return recs, nil
}

func (e *RecommendationEngine) evaluateResource(r *resource.Resource) []*recommendation.Recommendation {
	var recs []*recommendation.Recommendation

	running := r.State == resource.StateRunning || r.State == resource.StateAvailable

	if running {
		if rec := e.rightSizing(r); rec != nil {
			recs = append(recs, rec)
		}
		if rec := e.reservedInstance(r); rec != nil {
			recs = append(recs, rec)
		}
	}

	if r.State == resource.StateStopped {
		recs = append(recs, e.termination(r))
	}

	return recs
}

// rightSizing proposes the next smaller class at half cost for
// oversized instances.
func (e *RecommendationEngine) rightSizing(r *resource.Resource) *recommendation.Recommendation {
	target, oversized := downsizeTargets[strings.ToLower(r.InstanceType)]
	if !oversized {
		return nil
	}

	recommended := Round2(r.MonthlyCost / 2)
	return &recommendation.Recommendation{
		UserID:     r.UserID,
		ResourceID: r.ID,
		Type:       recommendation.TypeRightSizing,
		Title:      fmt.Sprintf("Right-size %s", r.Name),
		Description: fmt.Sprintf("%s runs on %s but its class is oversized for typical workloads. "+
			"Moving to %s roughly halves the monthly cost.", r.Name, r.InstanceType, target),
		Action:          fmt.Sprintf("Resize %s from %s to %s", r.ResourceID, r.InstanceType, target),
		CurrentCost:     r.MonthlyCost,
		RecommendedCost: recommended,
		Savings:         Round2(r.MonthlyCost - recommended),
		ConfidenceScore: confidenceRightSizing,
		Status:          recommendation.StatusPending,
	}
}

// reservedInstance proposes a reserved commitment at 60% of on-demand,
// emitted only when the saving clears the noise floor.
func (e *RecommendationEngine) reservedInstance(r *resource.Resource) *recommendation.Recommendation {
	recommended := Round2(r.MonthlyCost * reservedInstanceRate)
	savings := Round2(r.MonthlyCost - recommended)
	if savings <= minReservedSavings {
		return nil
	}

	return &recommendation.Recommendation{
		UserID:     r.UserID,
		ResourceID: r.ID,
		Type:       recommendation.TypeReservedInstance,
		Title:      fmt.Sprintf("Reserve capacity for %s", r.Name),
		Description: fmt.Sprintf("%s runs continuously. A 1-year reserved commitment prices it at "+
			"about 60%% of on-demand.", r.Name),
		Action:          fmt.Sprintf("Purchase a reserved instance for %s (%s)", r.ResourceID, r.InstanceType),
		CurrentCost:     r.MonthlyCost,
		RecommendedCost: recommended,
		Savings:         savings,
		ConfidenceScore: confidenceReservedInstance,
		Status:          recommendation.StatusPending,
	}
}

// termination flags stopped instances that still bill for storage.
func (e *RecommendationEngine) termination(r *resource.Resource) *recommendation.Recommendation {
	return &recommendation.Recommendation{
		UserID:     r.UserID,
		ResourceID: r.ID,
		Type:       recommendation.TypeTermination,
		Title:      fmt.Sprintf("Terminate stopped resource %s", r.Name),
		Description: fmt.Sprintf("%s has been stopped but keeps billing for attached storage. "+
			"Terminate it if it is no longer needed.", r.Name),
		Action:          fmt.Sprintf("Terminate %s", r.ResourceID),
		CurrentCost:     r.MonthlyCost,
		RecommendedCost: 0,
		Savings:         r.MonthlyCost,
		ConfidenceScore: confidenceTermination,
		Status:          recommendation.StatusPending,
	}
}
