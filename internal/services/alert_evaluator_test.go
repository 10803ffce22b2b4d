package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hostmaster-io/hostmaster/internal/domain/account"
	"github.com/hostmaster-io/hostmaster/internal/domain/alert"
	"github.com/hostmaster-io/hostmaster/internal/domain/cost"
	"github.com/hostmaster-io/hostmaster/internal/domain/resource"
	"github.com/hostmaster-io/hostmaster/internal/queue"
	"github.com/hostmaster-io/hostmaster/internal/testutil"
)

// captureEnqueuer records delivery payloads instead of queueing them.
type captureEnqueuer struct {
	payloads []AlertTaskPayload
	err      error
}

func (c *captureEnqueuer) Enqueue(ctx context.Context, payload interface{}) (*queue.Task, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.payloads = append(c.payloads, payload.(AlertTaskPayload))
	return &queue.Task{}, nil
}

func (c *captureEnqueuer) channels() []string {
	var out []string
	for _, p := range c.payloads {
		out = append(out, p.Channel)
	}
	return out
}

type evaluatorFixture struct {
	accounts  *testutil.MockAccountRepository
	alerts    *testutil.MockAlertRepository
	resources *testutil.MockResourceRepository
	costs     *testutil.MockCostRepository
	delivery  *captureEnqueuer
	evaluator *AlertEvaluator
}

func newEvaluatorFixture(t *testing.T, acct *account.Account, total float64) *evaluatorFixture {
	t.Helper()

	f := &evaluatorFixture{
		accounts:  testutil.NewMockAccountRepository(),
		alerts:    testutil.NewMockAlertRepository(),
		resources: testutil.NewMockResourceRepository(),
		costs:     testutil.NewMockCostRepository(),
		delivery:  &captureEnqueuer{},
	}

	if _, err := f.accounts.Create(context.Background(), acct); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	if total > 0 {
		err := f.costs.UpsertSnapshot(context.Background(), &cost.Snapshot{
			UserID: acct.UserID, Month: cost.CurrentMonth(), TotalCost: total,
		})
		if err != nil {
			t.Fatalf("seed snapshot: %v", err)
		}
	}

	costs := NewCostService(f.resources, f.costs, nil, testLogger())
	f.evaluator = NewAlertEvaluator(f.accounts, f.alerts, f.resources, costs, f.delivery, testLogger())
	return f
}

func allChannelsAccount() *account.Account {
	return &account.Account{
		UserID:     1,
		Budget:     100,
		Tier:       account.TierFree,
		AlertEmail: true,
		AlertSlack: true,
		AlertSMS:   true,
		Email:      "owner@example.com",
		IsActive:   true,
	}
}

func TestEvaluateBudgetCritical(t *testing.T) {
	f := newEvaluatorFixture(t, allChannelsAccount(), 135.00)

	if err := f.evaluator.Evaluate(context.Background(), 1, 1); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if len(f.alerts.Alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(f.alerts.Alerts))
	}
	a := f.alerts.Alerts[1]
	if a.Severity != alert.SeverityCritical {
		t.Errorf("severity = %s, want critical at 35%% over", a.Severity)
	}
	want := "Your AWS spending is $135.00, which is 35.0% over your budget of $100.00."
	if a.Message != want {
		t.Errorf("message = %q, want %q", a.Message, want)
	}

	got := f.delivery.channels()
	if len(got) != 3 {
		t.Fatalf("delivery tasks = %v, want email, slack and sms", got)
	}
}

func TestEvaluateBudgetWarning(t *testing.T) {
	f := newEvaluatorFixture(t, allChannelsAccount(), 115.00)

	if err := f.evaluator.Evaluate(context.Background(), 1, 1); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	a := f.alerts.Alerts[1]
	if a == nil || a.Severity != alert.SeverityWarning {
		t.Fatalf("expected a warning alert, got %+v", a)
	}

	// Warnings fan out to email and slack only.
	got := f.delivery.channels()
	if len(got) != 2 {
		t.Fatalf("delivery tasks = %v, want email and slack", got)
	}
	for _, ch := range got {
		if ch == alert.ChannelSMS {
			t.Errorf("sms delivery enqueued for a warning")
		}
	}
}

func TestEvaluateWarningCooldown(t *testing.T) {
	f := newEvaluatorFixture(t, allChannelsAccount(), 115.00)

	// A warning from two hours ago is inside the 6h window.
	if _, err := f.alerts.Create(context.Background(), &alert.Alert{
		UserID:    1,
		Type:      alert.TypeCost,
		Severity:  alert.SeverityWarning,
		CreatedAt: time.Now().UTC().Add(-2 * time.Hour),
	}); err != nil {
		t.Fatalf("seed alert: %v", err)
	}

	if err := f.evaluator.Evaluate(context.Background(), 1, 1); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if len(f.alerts.Alerts) != 1 {
		t.Errorf("expected the warning to be suppressed, got %d alerts", len(f.alerts.Alerts))
	}
	if len(f.delivery.payloads) != 0 {
		t.Errorf("expected no delivery tasks, got %v", f.delivery.channels())
	}
}

func TestEvaluateCriticalIgnoresCooldown(t *testing.T) {
	f := newEvaluatorFixture(t, allChannelsAccount(), 135.00)

	if _, err := f.alerts.Create(context.Background(), &alert.Alert{
		UserID:    1,
		Type:      alert.TypeCost,
		Severity:  alert.SeverityWarning,
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}); err != nil {
		t.Fatalf("seed alert: %v", err)
	}

	if err := f.evaluator.Evaluate(context.Background(), 1, 1); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if len(f.alerts.Alerts) != 2 {
		t.Errorf("critical must fire despite a recent warning, got %d alerts", len(f.alerts.Alerts))
	}
}

func TestEvaluateNoBudgetNoAlert(t *testing.T) {
	acct := allChannelsAccount()
	acct.Budget = 0
	f := newEvaluatorFixture(t, acct, 5000.00)

	if err := f.evaluator.Evaluate(context.Background(), 1, 1); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(f.alerts.Alerts) != 0 {
		t.Errorf("budget rule must not fire without a budget, got %d alerts", len(f.alerts.Alerts))
	}
}

func TestEvaluateUnderThresholdNoAlert(t *testing.T) {
	f := newEvaluatorFixture(t, allChannelsAccount(), 109.99)

	if err := f.evaluator.Evaluate(context.Background(), 1, 1); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(f.alerts.Alerts) != 0 {
		t.Errorf("9.99%% over budget must not alert, got %d alerts", len(f.alerts.Alerts))
	}
}

func TestEvaluateChannelPreferences(t *testing.T) {
	acct := allChannelsAccount()
	acct.AlertSlack = false
	acct.AlertSMS = false
	f := newEvaluatorFixture(t, acct, 135.00)

	if err := f.evaluator.Evaluate(context.Background(), 1, 1); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	got := f.delivery.channels()
	if len(got) != 1 || got[0] != alert.ChannelEmail {
		t.Errorf("channels = %v, want [email] per preferences", got)
	}
}

func TestEvaluateExpensiveResources(t *testing.T) {
	acct := allChannelsAccount()
	acct.Budget = 0 // isolate the per-resource rule
	f := newEvaluatorFixture(t, acct, 0)

	// Seven resources at or above the free-tier critical cutoff of
	// $100; only the top five may alert.
	for i := 0; i < 7; i++ {
		err := f.resources.Upsert(context.Background(), &resource.Resource{
			UserID:      1,
			Type:        resource.TypeCompute,
			ResourceID:  fmt.Sprintf("i-%02d", i),
			Name:        fmt.Sprintf("node-%02d", i),
			State:       resource.StateRunning,
			MonthlyCost: 100.0 + float64(i),
		})
		if err != nil {
			t.Fatalf("seed resource: %v", err)
		}
	}

	if err := f.evaluator.Evaluate(context.Background(), 1, 1); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if len(f.alerts.Alerts) != 5 {
		t.Fatalf("expected the top-5 cap, got %d alerts", len(f.alerts.Alerts))
	}
	for _, a := range f.alerts.Alerts {
		if a.Severity != alert.SeverityCritical {
			t.Errorf("expensive-resource alert severity = %s, want critical", a.Severity)
		}
	}
}

func TestEvaluateExpensiveResourcesTierCutoff(t *testing.T) {
	acct := allChannelsAccount()
	acct.Budget = 0
	acct.Tier = account.TierEnterprise
	f := newEvaluatorFixture(t, acct, 0)

	// $500 clears the professional cutoff but not enterprise's $2000.
	err := f.resources.Upsert(context.Background(), &resource.Resource{
		UserID:      1,
		Type:        resource.TypeDatabase,
		ResourceID:  "db-big",
		Name:        "db-big",
		State:       resource.StateAvailable,
		MonthlyCost: 500.00,
	})
	if err != nil {
		t.Fatalf("seed resource: %v", err)
	}

	if err := f.evaluator.Evaluate(context.Background(), 1, 1); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(f.alerts.Alerts) != 0 {
		t.Errorf("enterprise tier must not alert at $500, got %d alerts", len(f.alerts.Alerts))
	}
}
