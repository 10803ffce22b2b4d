package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hostmaster-io/hostmaster/internal/domain/account"
	"github.com/hostmaster-io/hostmaster/internal/domain/resource"
	"github.com/hostmaster-io/hostmaster/internal/domain/scanjob"
	"github.com/hostmaster-io/hostmaster/internal/pkg/errors"
	"github.com/hostmaster-io/hostmaster/internal/pkg/logger"
	"github.com/hostmaster-io/hostmaster/internal/pkg/metrics"
	"github.com/hostmaster-io/hostmaster/internal/queue"
	"github.com/hostmaster-io/hostmaster/internal/scanner"
	"github.com/hostmaster-io/hostmaster/internal/services"
	"github.com/hostmaster-io/hostmaster/internal/vault"
)

// ProgressReporter records advisory progress on an active task.
type ProgressReporter interface {
	Progress(ctx context.Context, t *queue.Task, pct int)
}

// Progress milestones for one scan, roughly weighted by wall time.
const (
	progressCredentials     = 10
	progressInventoryListed = 20
	progressInventoryStored = 50
	progressSpendRecorded   = 70
	progressRecommendations = 85
	progressAlertsEvaluated = 95
)

// ScanProcessor runs one full scan per claimed task: decrypt
// credentials, collect inventory, record spend, regenerate
// recommendations and evaluate alerts. It owns the ScanJob row's
// lifecycle; the queue owns the retry budget.
type ScanProcessor struct {
	accounts        account.Repository
	jobs            scanjob.Repository
	resources       resource.Repository
	vault           *vault.Vault
	cloud           scanner.CloudAPI
	costs           *services.CostService
	recommendations *services.RecommendationEngine
	alerts          *services.AlertEvaluator
	reporter        ProgressReporter
	timeout         time.Duration
	log             *logger.Logger
}

// NewScanProcessor creates a new scan processor
func NewScanProcessor(
	accounts account.Repository,
	jobs scanjob.Repository,
	resources resource.Repository,
	v *vault.Vault,
	cloud scanner.CloudAPI,
	costs *services.CostService,
	recommendations *services.RecommendationEngine,
	alerts *services.AlertEvaluator,
	reporter ProgressReporter,
	timeout time.Duration,
	log *logger.Logger,
) *ScanProcessor {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &ScanProcessor{
		accounts:        accounts,
		jobs:            jobs,
		resources:       resources,
		vault:           v,
		cloud:           cloud,
		costs:           costs,
		recommendations: recommendations,
		alerts:          alerts,
		reporter:        reporter,
		timeout:         timeout,
		log:             log,
	}
}

// Handle processes one scan task. Errors propagate to the queue for
// retry scheduling; the ScanJob row is marked failed on every failed
// attempt and reopened when a retry claims it again.
func (p *ScanProcessor) Handle(ctx context.Context, t *queue.Task) error {
	var payload services.ScanTaskPayload
	if err := json.Unmarshal(t.Payload, &payload); err != nil {
		// A malformed payload never becomes valid; do not burn retries.
		return errors.ValidationError("malformed scan task payload", err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	log := p.log.WithFields(map[string]interface{}{
		"job_id":     payload.JobID,
		"account_id": payload.AccountID,
	})

	start := time.Now()
	count, err := p.scan(ctx, t, payload, log)
	if err != nil {
		// The task context may already be dead; the failure still has
		// to reach the row or the poller sees a running job forever.
		markCtx, markCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer markCancel()
		if markErr := p.jobs.MarkFailed(markCtx, payload.JobID, err.Error()); markErr != nil {
			log.ErrorWithErr(markErr, "failed to record scan failure")
		}
		metrics.RecordScan("failed", time.Since(start), count)
		log.ErrorWithErr(err, "scan failed")
		return err
	}

	metrics.RecordScan("completed", time.Since(start), count)
	log.WithFields(map[string]interface{}{
		"resource_count": count,
		"duration":       time.Since(start).String(),
	}).Info("scan completed")
	return nil
}

func (p *ScanProcessor) scan(ctx context.Context, t *queue.Task, payload services.ScanTaskPayload, log *logger.Logger) (int, error) {
	if err := p.jobs.MarkRunning(ctx, payload.JobID); err != nil {
		return 0, err
	}

	acct, err := p.accounts.GetByID(ctx, payload.AccountID)
	if err != nil {
		return 0, err
	}
	if !acct.IsActive {
		return 0, errors.ValidationError("account is deactivated", map[string]int64{"account_id": acct.ID})
	}

	creds, err := p.openCredentials(acct)
	if err != nil {
		return 0, err
	}
	p.reporter.Progress(ctx, t, progressCredentials)

	instances, err := p.cloud.ListInstances(ctx, creds)
	if err != nil {
		return 0, err
	}
	p.reporter.Progress(ctx, t, progressInventoryListed)

	count, err := p.storeInventory(ctx, payload.UserID, instances)
	if err != nil {
		return count, err
	}
	p.reporter.Progress(ctx, t, progressInventoryStored)

	// Billing access is an optional permission; a miss here degrades to
	// inventory-based estimates rather than failing the scan.
	if spend, err := p.cloud.MonthToDateSpend(ctx, creds); err != nil {
		log.WithError(err).Warn("billing API unavailable, keeping estimates")
	} else if err := p.costs.RecordActualSpend(ctx, payload.UserID, spend.Total, spend.ByService, spend.ByRegion); err != nil {
		log.ErrorWithErr(err, "failed to record actual spend")
	}
	p.reporter.Progress(ctx, t, progressSpendRecorded)

	if _, err := p.recommendations.Generate(ctx, payload.UserID); err != nil {
		return count, err
	}
	p.reporter.Progress(ctx, t, progressRecommendations)

	// Alerting failures are logged, not fatal: the inventory and cost
	// work is already durable and the next scan re-evaluates anyway.
	if err := p.alerts.Evaluate(ctx, payload.UserID, payload.AccountID); err != nil {
		log.ErrorWithErr(err, "alert evaluation failed")
	}
	p.reporter.Progress(ctx, t, progressAlertsEvaluated)

	if err := p.jobs.MarkCompleted(ctx, payload.JobID, count); err != nil {
		return count, err
	}
	return count, nil
}

// openCredentials decrypts both sealed keys. A failure here is a
// credential error and never retried.
func (p *ScanProcessor) openCredentials(acct *account.Account) (scanner.Credentials, error) {
	accessKey, err := p.vault.Open(acct.AccessKeySealed)
	if err != nil {
		return scanner.Credentials{}, err
	}
	secretKey, err := p.vault.Open(acct.SecretKeySealed)
	if err != nil {
		return scanner.Credentials{}, err
	}
	return scanner.Credentials{
		AccessKeyID:     accessKey,
		SecretAccessKey: secretKey,
		Region:          acct.Region,
	}, nil
}

// storeInventory prices each instance and upserts it. Returns the
// number of resources written so far, also on error.
func (p *ScanProcessor) storeInventory(ctx context.Context, userID int64, instances []scanner.Instance) (int, error) {
	now := time.Now().UTC()
	count := 0
	for _, inst := range instances {
		r := &resource.Resource{
			UserID:       userID,
			Type:         inst.Kind,
			ResourceID:   inst.ID,
			Name:         inst.Name,
			Region:       inst.Region,
			InstanceType: inst.InstanceType,
			State:        inst.State,
			MonthlyCost:  scanner.EstimateMonthlyCost(inst),
			Metadata:     instanceMetadata(inst),
			LastSeenAt:   now,
		}
		if err := p.resources.Upsert(ctx, r); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func instanceMetadata(inst scanner.Instance) json.RawMessage {
	if inst.Kind != resource.TypeDatabase {
		return nil
	}
	meta, err := json.Marshal(map[string]interface{}{
		"engine":     inst.Engine,
		"multi_az":   inst.MultiAZ,
		"storage_gb": inst.StorageGB,
	})
	if err != nil {
		return nil
	}
	return meta
}
