package worker

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hostmaster-io/hostmaster/internal/domain/account"
	"github.com/hostmaster-io/hostmaster/internal/domain/resource"
	"github.com/hostmaster-io/hostmaster/internal/domain/scanjob"
	apperrors "github.com/hostmaster-io/hostmaster/internal/pkg/errors"
	"github.com/hostmaster-io/hostmaster/internal/pkg/logger"
	"github.com/hostmaster-io/hostmaster/internal/queue"
	"github.com/hostmaster-io/hostmaster/internal/scanner"
	"github.com/hostmaster-io/hostmaster/internal/services"
	"github.com/hostmaster-io/hostmaster/internal/testutil"
	"github.com/hostmaster-io/hostmaster/internal/vault"
)

const testMasterKey = "abababababababababababababababababababababababababababababababab"

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Format: "json"})
}

// fakeCloud is a scripted CloudAPI.
type fakeCloud struct {
	instances []scanner.Instance
	listErr   error
	spend     *scanner.Spend
	spendErr  error
}

func (f *fakeCloud) ListInstances(ctx context.Context, creds scanner.Credentials) ([]scanner.Instance, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.instances, nil
}

func (f *fakeCloud) MonthToDateSpend(ctx context.Context, creds scanner.Credentials) (*scanner.Spend, error) {
	if f.spendErr != nil {
		return nil, f.spendErr
	}
	return f.spend, nil
}

// fakeReporter records progress milestones.
type fakeReporter struct {
	milestones []int
}

func (f *fakeReporter) Progress(ctx context.Context, t *queue.Task, pct int) {
	f.milestones = append(f.milestones, pct)
}

type scanFixture struct {
	accounts  *testutil.MockAccountRepository
	jobs      *testutil.MockScanJobRepository
	resources *testutil.MockResourceRepository
	costs     *testutil.MockCostRepository
	recs      *testutil.MockRecommendationRepository
	alerts    *testutil.MockAlertRepository
	reporter  *fakeReporter
	processor *ScanProcessor
	jobID     string
	accountID int64
}

type captureEnqueuer struct {
	payloads []interface{}
}

func (c *captureEnqueuer) Enqueue(ctx context.Context, payload interface{}) (*queue.Task, error) {
	c.payloads = append(c.payloads, payload)
	return &queue.Task{}, nil
}

func newScanFixture(t *testing.T, cloud scanner.CloudAPI) *scanFixture {
	t.Helper()

	v, err := vault.New(testMasterKey)
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	accessSealed, err := v.Seal("AKIAEXAMPLE")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	secretSealed, err := v.Seal("secret")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	f := &scanFixture{
		accounts:  testutil.NewMockAccountRepository(),
		jobs:      testutil.NewMockScanJobRepository(),
		resources: testutil.NewMockResourceRepository(),
		costs:     testutil.NewMockCostRepository(),
		recs:      testutil.NewMockRecommendationRepository(),
		alerts:    testutil.NewMockAlertRepository(),
		reporter:  &fakeReporter{},
	}

	acct := &account.Account{
		UserID:          1,
		Region:          "us-east-1",
		AccessKeySealed: accessSealed,
		SecretKeySealed: secretSealed,
		Tier:            account.TierFree,
		IsActive:        true,
	}
	if f.accountID, err = f.accounts.Create(context.Background(), acct); err != nil {
		t.Fatalf("seed account: %v", err)
	}

	f.jobID = "job-1"
	err = f.jobs.Create(context.Background(), &scanjob.ScanJob{
		ID: f.jobID, UserID: 1, AccountID: f.accountID, Status: scanjob.StatusPending,
	})
	if err != nil {
		t.Fatalf("seed job: %v", err)
	}

	log := testLogger()
	costs := services.NewCostService(f.resources, f.costs, nil, log)
	engine := services.NewRecommendationEngine(f.resources, f.recs, costs, log)
	evaluator := services.NewAlertEvaluator(f.accounts, f.alerts, f.resources, costs, &captureEnqueuer{}, log)

	f.processor = NewScanProcessor(
		f.accounts, f.jobs, f.resources,
		v, cloud,
		costs, engine, evaluator,
		f.reporter, time.Minute, log,
	)
	return f
}

func (f *scanFixture) task(t *testing.T) *queue.Task {
	t.Helper()
	body, err := json.Marshal(services.ScanTaskPayload{
		JobID: f.jobID, UserID: 1, AccountID: f.accountID,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &queue.Task{ID: "task-1", Queue: services.ScanQueueName, Payload: body, Attempts: 1, MaxAttempts: 3}
}

func TestScanProcessorHappyPath(t *testing.T) {
	cloud := &fakeCloud{
		instances: []scanner.Instance{
			{ID: "i-1", Name: "web-1", Kind: resource.TypeCompute, InstanceType: "t3.large", Region: "us-east-1", State: resource.StateRunning},
			{ID: "i-2", Name: "old-batch", Kind: resource.TypeCompute, InstanceType: "t3.small", Region: "us-east-1", State: resource.StateStopped},
		},
		spend: &scanner.Spend{
			Total:     135.00,
			ByService: map[string]float64{"Amazon Elastic Compute Cloud - Compute": 135.00},
			ByRegion:  map[string]float64{"us-east-1": 135.00},
		},
	}
	f := newScanFixture(t, cloud)

	if err := f.processor.Handle(context.Background(), f.task(t)); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	job, _ := f.jobs.Get(context.Background(), f.jobID)
	if job.Status != scanjob.StatusCompleted {
		t.Fatalf("job status = %s, want completed", job.Status)
	}
	if job.ResourceCount != 2 {
		t.Errorf("resource count = %d, want 2", job.ResourceCount)
	}
	if job.CompletedAt == nil {
		t.Error("completed_at not set")
	}

	if len(f.resources.Resources) != 2 {
		t.Fatalf("resources stored = %d, want 2", len(f.resources.Resources))
	}
	for _, r := range f.resources.Resources {
		if r.State == resource.StateStopped && r.MonthlyCost != 5.00 {
			t.Errorf("stopped resource cost = %.2f, want flat 5.00", r.MonthlyCost)
		}
		if r.State == resource.StateRunning && r.MonthlyCost <= 0 {
			t.Errorf("running resource cost = %.2f, want > 0", r.MonthlyCost)
		}
	}

	if _, err := f.costs.GetSnapshot(context.Background(), 1, currentMonth()); err != nil {
		t.Errorf("billing snapshot not recorded: %v", err)
	}
	if len(f.recs.Recommendations) == 0 {
		t.Error("expected recommendations after the scan")
	}

	want := []int{progressCredentials, progressInventoryListed, progressInventoryStored,
		progressSpendRecorded, progressRecommendations, progressAlertsEvaluated}
	if len(f.reporter.milestones) != len(want) {
		t.Fatalf("milestones = %v, want %v", f.reporter.milestones, want)
	}
	for i, m := range want {
		if f.reporter.milestones[i] != m {
			t.Fatalf("milestones = %v, want %v", f.reporter.milestones, want)
		}
	}
}

func TestScanProcessorMalformedPayload(t *testing.T) {
	f := newScanFixture(t, &fakeCloud{})

	task := &queue.Task{ID: "task-1", Payload: json.RawMessage(`{broken`), Attempts: 1, MaxAttempts: 3}
	err := f.processor.Handle(context.Background(), task)
	if err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if apperrors.Retryable(err) {
		t.Error("malformed payload must not be retried")
	}
}

func TestScanProcessorProviderFailure(t *testing.T) {
	f := newScanFixture(t, &fakeCloud{
		listErr: apperrors.ProviderTransientError("aws", context.DeadlineExceeded),
	})

	err := f.processor.Handle(context.Background(), f.task(t))
	if err == nil {
		t.Fatal("expected the provider failure to propagate")
	}
	if !apperrors.Retryable(err) {
		t.Error("transient provider failure must be retryable")
	}

	job, _ := f.jobs.Get(context.Background(), f.jobID)
	if job.Status != scanjob.StatusFailed {
		t.Errorf("job status = %s, want failed", job.Status)
	}
	if len(job.Errors) == 0 {
		t.Error("failure message not recorded on the job")
	}
}

func TestScanProcessorRetryReopensFailedJob(t *testing.T) {
	cloud := &fakeCloud{listErr: apperrors.ProviderTransientError("aws", context.DeadlineExceeded)}
	f := newScanFixture(t, cloud)

	if err := f.processor.Handle(context.Background(), f.task(t)); err == nil {
		t.Fatal("expected first attempt to fail")
	}

	// The queue re-delivers; the failed row must reopen and complete.
	cloud.listErr = nil
	cloud.spendErr = apperrors.ProviderTransientError("aws", context.DeadlineExceeded)
	if err := f.processor.Handle(context.Background(), f.task(t)); err != nil {
		t.Fatalf("retry attempt: %v", err)
	}

	job, _ := f.jobs.Get(context.Background(), f.jobID)
	if job.Status != scanjob.StatusCompleted {
		t.Errorf("job status after retry = %s, want completed", job.Status)
	}
}

func TestScanProcessorTamperedCredentials(t *testing.T) {
	f := newScanFixture(t, &fakeCloud{})

	acct, _ := f.accounts.GetByID(context.Background(), f.accountID)
	acct.AccessKeySealed = strings.Replace(acct.AccessKeySealed, ":", ":AAAA", 1)

	err := f.processor.Handle(context.Background(), f.task(t))
	if err == nil {
		t.Fatal("expected tampered credentials to fail the scan")
	}
	if apperrors.Retryable(err) {
		t.Error("credential failure must not be retried")
	}

	job, _ := f.jobs.Get(context.Background(), f.jobID)
	if job.Status != scanjob.StatusFailed {
		t.Errorf("job status = %s, want failed", job.Status)
	}
}

func TestScanProcessorBillingFailureNotFatal(t *testing.T) {
	f := newScanFixture(t, &fakeCloud{
		instances: []scanner.Instance{
			{ID: "i-1", Name: "web-1", Kind: resource.TypeCompute, InstanceType: "t3.micro", Region: "us-east-1", State: resource.StateRunning},
		},
		spendErr: apperrors.ProviderTransientError("aws", context.DeadlineExceeded),
	})

	if err := f.processor.Handle(context.Background(), f.task(t)); err != nil {
		t.Fatalf("billing failure must not fail the scan: %v", err)
	}

	job, _ := f.jobs.Get(context.Background(), f.jobID)
	if job.Status != scanjob.StatusCompleted {
		t.Errorf("job status = %s, want completed", job.Status)
	}
}

func TestScanProcessorRescanUpsertsInventory(t *testing.T) {
	cloud := &fakeCloud{
		instances: []scanner.Instance{
			{ID: "i-1", Name: "web-1", Kind: resource.TypeCompute, InstanceType: "t3.large", Region: "us-east-1", State: resource.StateRunning},
			{ID: "i-2", Name: "old-batch", Kind: resource.TypeCompute, InstanceType: "t3.small", Region: "us-east-1", State: resource.StateStopped},
		},
		spend: &scanner.Spend{Total: 80.00},
	}
	f := newScanFixture(t, cloud)

	if err := f.processor.Handle(context.Background(), f.task(t)); err != nil {
		t.Fatalf("first scan: %v", err)
	}

	// A later scan of the same account sees i-2 back up. Rows update in
	// place keyed by (user, provider id, type) instead of duplicating.
	cloud.instances[1].State = resource.StateRunning
	err := f.jobs.Create(context.Background(), &scanjob.ScanJob{
		ID: "job-2", UserID: 1, AccountID: f.accountID, Status: scanjob.StatusPending,
	})
	if err != nil {
		t.Fatalf("seed second job: %v", err)
	}
	f.jobID = "job-2"

	if err := f.processor.Handle(context.Background(), f.task(t)); err != nil {
		t.Fatalf("second scan: %v", err)
	}

	if len(f.resources.Resources) != 2 {
		t.Fatalf("resources after rescan = %d, want 2", len(f.resources.Resources))
	}
	for _, r := range f.resources.Resources {
		if r.ResourceID == "i-2" && r.State != resource.StateRunning {
			t.Errorf("i-2 state = %s, want running after rescan", r.State)
		}
	}
}

func currentMonth() string {
	return time.Now().UTC().Format("2006-01")
}
