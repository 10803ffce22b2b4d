package services

import (
	"context"
	"fmt"
	"time"

	"github.com/hostmaster-io/hostmaster/internal/domain/account"
	"github.com/hostmaster-io/hostmaster/internal/domain/alert"
	"github.com/hostmaster-io/hostmaster/internal/domain/resource"
	"github.com/hostmaster-io/hostmaster/internal/pkg/logger"
	"github.com/hostmaster-io/hostmaster/internal/queue"
)

// Budget thresholds in percent over budget.
const (
	criticalOverBudgetPct = 30.0
	warningOverBudgetPct  = 10.0

	// warningCooldown suppresses repeat warnings so frequent scans do
	// not storm the channels. Criticals always fire.
	warningCooldown = 6 * time.Hour

	// maxExpensiveResourceAlerts caps per-resource criticals per run.
	maxExpensiveResourceAlerts = 5
)

// TierThresholds are per-resource monthly cost cutoffs for a pricing
// tier.
type TierThresholds struct {
	Critical float64
	Warning  float64
}

var tierThresholds = map[string]TierThresholds{
	account.TierFree:         {Critical: 100, Warning: 50},
	account.TierProfessional: {Critical: 500, Warning: 200},
	account.TierEnterprise:   {Critical: 2000, Warning: 1000},
}

// severityChannels is the fan-out policy per severity. The dashboard
// is implicit for every severity: persisting the alert row is the
// dashboard delivery.
var severityChannels = map[string][]string{
	alert.SeverityCritical: {alert.ChannelEmail, alert.ChannelSlack, alert.ChannelSMS},
	alert.SeverityWarning:  {alert.ChannelEmail, alert.ChannelSlack},
	alert.SeverityInfo:     {},
}

// AlertTaskPayload is the alert-delivery queue payload: one task per
// (alert, channel) so channels retry independently.
type AlertTaskPayload struct {
	AlertID   int64  `json:"alert_id"`
	UserID    int64  `json:"user_id"`
	AccountID int64  `json:"account_id"`
	Channel   string `json:"channel"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Severity  string `json:"severity"`
}

// Enqueuer is the slice of the queue the evaluator needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload interface{}) (*queue.Task, error)
}

// AlertEvaluator turns the post-scan cost picture into persisted
// alerts and delivery tasks.
type AlertEvaluator struct {
	accounts  account.Repository
	alerts    alert.Repository
	resources resource.Repository
	costs     *CostService
	delivery  Enqueuer
	log       *logger.Logger
}

// NewAlertEvaluator creates a new alert evaluator
func NewAlertEvaluator(
	accounts account.Repository,
	alerts alert.Repository,
	resources resource.Repository,
	costs *CostService,
	delivery Enqueuer,
	log *logger.Logger,
) *AlertEvaluator {
	return &AlertEvaluator{
		accounts:  accounts,
		alerts:    alerts,
		resources: resources,
		costs:     costs,
		delivery:  delivery,
		log:       log,
	}
}

// Evaluate runs after every successful scan: the budget rule against
// the current month total and the tier-dependent expensive-resource
// rule. Every alert is persisted first, then delivery tasks enqueued
// for the account's enabled channels.
func (e *AlertEvaluator) Evaluate(ctx context.Context, userID, accountID int64) error {
	acct, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}

	snapshot, err := e.costs.GetMonthlyCost(ctx, userID, "")
	if err != nil {
		return err
	}

	var intents []*alert.Alert

	if budgetAlert, err := e.budgetAlert(ctx, acct, snapshot.TotalCost); err != nil {
		return err
	} else if budgetAlert != nil {
		intents = append(intents, budgetAlert)
	}

	expensive, err := e.expensiveResourceAlerts(ctx, userID, acct.Tier)
	if err != nil {
		return err
	}
	intents = append(intents, expensive...)

	for _, intent := range intents {
		if err := e.emit(ctx, acct, intent); err != nil {
			return err
		}
	}

	return nil
}

// budgetAlert applies the percent-over-budget thresholds. Returns nil
// when no alert should fire.
func (e *AlertEvaluator) budgetAlert(ctx context.Context, acct *account.Account, total float64) (*alert.Alert, error) {
	if acct.Budget <= 0 {
		return nil, nil
	}

	percentOver := (total - acct.Budget) / acct.Budget * 100
	if percentOver < warningOverBudgetPct {
		return nil, nil
	}

	severity := alert.SeverityWarning
	if percentOver >= criticalOverBudgetPct {
		severity = alert.SeverityCritical
	} else {
		recent, err := e.alerts.HasRecent(ctx, acct.UserID, alert.SeverityWarning, warningCooldown)
		if err != nil {
			return nil, err
		}
		if recent {
			e.log.With("user_id", acct.UserID).Debug("budget warning suppressed by cool-down")
			return nil, nil
		}
	}

	return &alert.Alert{
		UserID:   acct.UserID,
		Type:     alert.TypeCost,
		Severity: severity,
		Title:    "Budget exceeded",
		Message: fmt.Sprintf("Your AWS spending is $%.2f, which is %.1f%% over your budget of $%.2f.",
			total, percentOver, acct.Budget),
	}, nil
}

// expensiveResourceAlerts emits one critical per resource whose
// monthly cost meets the tier's critical cutoff, top 5 by cost.
func (e *AlertEvaluator) expensiveResourceAlerts(ctx context.Context, userID int64, tier string) ([]*alert.Alert, error) {
	thresholds, ok := tierThresholds[tier]
	if !ok {
		thresholds = tierThresholds[account.TierFree]
	}

	expensive, err := e.resources.ListTopByCost(ctx, userID, thresholds.Critical, maxExpensiveResourceAlerts)
	if err != nil {
		return nil, err
	}

	var intents []*alert.Alert
	for _, r := range expensive {
		intents = append(intents, &alert.Alert{
			UserID:   userID,
			Type:     alert.TypeCost,
			Severity: alert.SeverityCritical,
			Title:    fmt.Sprintf("Expensive resource: %s", r.Name),
			Message: fmt.Sprintf("%s costs $%.2f/month, above the $%.0f threshold for your %s tier.",
				r.Name, r.MonthlyCost, thresholds.Critical, tier),
		})
	}
	return intents, nil
}

// emit persists the alert (the implicit dashboard delivery) and then
// enqueues one delivery task per enabled channel.
func (e *AlertEvaluator) emit(ctx context.Context, acct *account.Account, a *alert.Alert) error {
	if _, err := e.alerts.Create(ctx, a); err != nil {
		return err
	}

	for _, channel := range e.channelsFor(acct, a.Severity) {
		payload := AlertTaskPayload{
			AlertID:   a.ID,
			UserID:    a.UserID,
			AccountID: acct.ID,
			Channel:   channel,
			Title:     a.Title,
			Message:   a.Message,
			Severity:  a.Severity,
		}
		if _, err := e.delivery.Enqueue(ctx, payload); err != nil {
			return err
		}
	}

	e.log.WithFields(map[string]interface{}{
		"user_id":  a.UserID,
		"severity": a.Severity,
		"title":    a.Title,
	}).Info("alert emitted")

	return nil
}

// channelsFor intersects the severity policy with the account's
// notification preferences.
func (e *AlertEvaluator) channelsFor(acct *account.Account, severity string) []string {
	var out []string
	for _, channel := range severityChannels[severity] {
		switch channel {
		case alert.ChannelEmail:
			if acct.AlertEmail {
				out = append(out, channel)
			}
		case alert.ChannelSlack:
			if acct.AlertSlack {
				out = append(out, channel)
			}
		case alert.ChannelSMS:
			if acct.AlertSMS {
				out = append(out, channel)
			}
		}
	}
	return out
}
