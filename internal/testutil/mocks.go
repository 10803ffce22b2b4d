package testutil

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hostmaster-io/hostmaster/internal/domain/account"
	"github.com/hostmaster-io/hostmaster/internal/domain/alert"
	"github.com/hostmaster-io/hostmaster/internal/domain/cost"
	"github.com/hostmaster-io/hostmaster/internal/domain/recommendation"
	"github.com/hostmaster-io/hostmaster/internal/domain/resource"
	"github.com/hostmaster-io/hostmaster/internal/domain/scanjob"
	"github.com/hostmaster-io/hostmaster/internal/pkg/errors"
)

// MockAccountRepository is a mock implementation of account.Repository
type MockAccountRepository struct {
	Accounts    map[int64]*account.Account
	NextID      int64
	CreateError error
	GetError    error
}

func NewMockAccountRepository() *MockAccountRepository {
	return &MockAccountRepository{
		Accounts: make(map[int64]*account.Account),
		NextID:   1,
	}
}

func (m *MockAccountRepository) Create(ctx context.Context, a *account.Account) (int64, error) {
	if m.CreateError != nil {
		return 0, m.CreateError
	}
	a.ID = m.NextID
	m.NextID++
	m.Accounts[a.ID] = a
	return a.ID, nil
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id int64) (*account.Account, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	a, ok := m.Accounts[id]
	if !ok {
		return nil, errors.NotFound("account")
	}
	return a, nil
}

func (m *MockAccountRepository) ListActive(ctx context.Context) ([]*account.Account, error) {
	var out []*account.Account
	for _, a := range m.Accounts {
		if a.IsActive {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockAccountRepository) UpdatePreferences(ctx context.Context, a *account.Account) error {
	if _, ok := m.Accounts[a.ID]; !ok {
		return errors.NotFound("account")
	}
	m.Accounts[a.ID] = a
	return nil
}

func (m *MockAccountRepository) Deactivate(ctx context.Context, id int64) error {
	a, ok := m.Accounts[id]
	if !ok {
		return errors.NotFound("account")
	}
	a.IsActive = false
	return nil
}

// MockResourceRepository is a mock implementation of resource.Repository
type MockResourceRepository struct {
	Resources   map[int64]*resource.Resource
	NextID      int64
	UpsertError error
}

func NewMockResourceRepository() *MockResourceRepository {
	return &MockResourceRepository{
		Resources: make(map[int64]*resource.Resource),
		NextID:    1,
	}
}

func (m *MockResourceRepository) Upsert(ctx context.Context, r *resource.Resource) error {
	if m.UpsertError != nil {
		return m.UpsertError
	}
	for _, existing := range m.Resources {
		if existing.UserID == r.UserID && existing.ResourceID == r.ResourceID && existing.Type == r.Type {
			r.ID = existing.ID
			r.CreatedAt = existing.CreatedAt
			m.Resources[existing.ID] = r
			return nil
		}
	}
	r.ID = m.NextID
	m.NextID++
	m.Resources[r.ID] = r
	return nil
}

func (m *MockResourceRepository) GetByID(ctx context.Context, userID int64, id int64) (*resource.Resource, error) {
	r, ok := m.Resources[id]
	if !ok || r.UserID != userID {
		return nil, errors.NotFound("resource")
	}
	return r, nil
}

func (m *MockResourceRepository) List(ctx context.Context, userID int64, filter resource.Filter) ([]*resource.Resource, error) {
	var out []*resource.Resource
	for _, r := range m.Resources {
		if r.UserID != userID {
			continue
		}
		if filter.Type != "" && r.Type != filter.Type {
			continue
		}
		if filter.Region != "" && r.Region != filter.Region {
			continue
		}
		if filter.State != "" && r.State != filter.State {
			continue
		}
		if filter.MinCost > 0 && r.MonthlyCost < filter.MinCost {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MonthlyCost > out[j].MonthlyCost })
	return out, nil
}

func (m *MockResourceRepository) ListTopByCost(ctx context.Context, userID int64, minCost float64, n int) ([]*resource.Resource, error) {
	out, _ := m.List(ctx, userID, resource.Filter{MinCost: minCost})
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *MockResourceRepository) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var count int64
	for _, r := range m.Resources {
		if r.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (m *MockResourceRepository) SumRunningCostByType(ctx context.Context, userID int64) (map[string]float64, error) {
	sums := make(map[string]float64)
	for _, r := range m.Resources {
		if r.UserID != userID {
			continue
		}
		if r.State != resource.StateRunning && r.State != resource.StateAvailable {
			continue
		}
		sums[r.Type] += r.MonthlyCost
	}
	return sums, nil
}

// MockRecommendationRepository is a mock implementation of recommendation.Repository
type MockRecommendationRepository struct {
	Recommendations map[int64]*recommendation.Recommendation
	NextID          int64
}

func NewMockRecommendationRepository() *MockRecommendationRepository {
	return &MockRecommendationRepository{
		Recommendations: make(map[int64]*recommendation.Recommendation),
		NextID:          1,
	}
}

func (m *MockRecommendationRepository) Upsert(ctx context.Context, r *recommendation.Recommendation) error {
	for _, existing := range m.Recommendations {
		if existing.UserID == r.UserID && existing.ResourceID == r.ResourceID && existing.Type == r.Type {
			if existing.Status != recommendation.StatusPending {
				return nil // frozen
			}
			r.ID = existing.ID
			r.Status = recommendation.StatusPending
			m.Recommendations[existing.ID] = r
			return nil
		}
	}
	r.ID = m.NextID
	r.Status = recommendation.StatusPending
	m.NextID++
	m.Recommendations[r.ID] = r
	return nil
}

func (m *MockRecommendationRepository) ListPending(ctx context.Context, userID int64) ([]*recommendation.Recommendation, error) {
	var out []*recommendation.Recommendation
	for _, r := range m.Recommendations {
		if r.UserID == userID && r.Status == recommendation.StatusPending {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Savings > out[j].Savings })
	return out, nil
}

func (m *MockRecommendationRepository) UpdateStatus(ctx context.Context, userID int64, id int64, status string) error {
	r, ok := m.Recommendations[id]
	if !ok || r.UserID != userID || r.Status != recommendation.StatusPending {
		return errors.NotFound("pending recommendation")
	}
	r.Status = status
	return nil
}

func (m *MockRecommendationRepository) TotalSavings(ctx context.Context, userID int64) (float64, error) {
	var total float64
	for _, r := range m.Recommendations {
		if r.UserID == userID && r.Status == recommendation.StatusPending {
			total += r.Savings
		}
	}
	return total, nil
}

// MockAlertRepository is a mock implementation of alert.Repository
type MockAlertRepository struct {
	Alerts      map[int64]*alert.Alert
	NextID      int64
	CreateError error
}

func NewMockAlertRepository() *MockAlertRepository {
	return &MockAlertRepository{
		Alerts: make(map[int64]*alert.Alert),
		NextID: 1,
	}
}

func (m *MockAlertRepository) Create(ctx context.Context, a *alert.Alert) (int64, error) {
	if m.CreateError != nil {
		return 0, m.CreateError
	}
	a.ID = m.NextID
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.NextID++
	m.Alerts[a.ID] = a
	return a.ID, nil
}

func (m *MockAlertRepository) HasRecent(ctx context.Context, userID int64, severity string, window time.Duration) (bool, error) {
	cutoff := time.Now().UTC().Add(-window)
	for _, a := range m.Alerts {
		if a.UserID == userID && a.Severity == severity && a.CreatedAt.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockAlertRepository) ListUnread(ctx context.Context, userID int64, limit int) ([]*alert.Alert, error) {
	var out []*alert.Alert
	for _, a := range m.Alerts {
		if a.UserID == userID && !a.IsRead {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockAlertRepository) MarkRead(ctx context.Context, userID int64, id int64) error {
	a, ok := m.Alerts[id]
	if !ok || a.UserID != userID {
		return errors.NotFound("alert")
	}
	a.IsRead = true
	return nil
}

// MockScanJobRepository is a mock implementation of scanjob.Repository
type MockScanJobRepository struct {
	Jobs map[string]*scanjob.ScanJob
}

func NewMockScanJobRepository() *MockScanJobRepository {
	return &MockScanJobRepository{Jobs: make(map[string]*scanjob.ScanJob)}
}

func (m *MockScanJobRepository) Create(ctx context.Context, j *scanjob.ScanJob) error {
	if j.Status == "" {
		j.Status = scanjob.StatusPending
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	m.Jobs[j.ID] = j
	return nil
}

func (m *MockScanJobRepository) Get(ctx context.Context, id string) (*scanjob.ScanJob, error) {
	j, ok := m.Jobs[id]
	if !ok {
		return nil, errors.NotFound("scan job")
	}
	return j, nil
}

func (m *MockScanJobRepository) MarkRunning(ctx context.Context, id string) error {
	j, ok := m.Jobs[id]
	if !ok || j.Status == scanjob.StatusCompleted {
		return errors.NotFound("scan job")
	}
	j.Status = scanjob.StatusRunning
	j.CompletedAt = nil
	return nil
}

func (m *MockScanJobRepository) MarkCompleted(ctx context.Context, id string, resourceCount int) error {
	j, ok := m.Jobs[id]
	if !ok || scanjob.IsTerminal(j.Status) {
		return errors.NotFound("active scan job")
	}
	now := time.Now().UTC()
	j.Status = scanjob.StatusCompleted
	j.ResourceCount = resourceCount
	j.CompletedAt = &now
	return nil
}

func (m *MockScanJobRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	j, ok := m.Jobs[id]
	if !ok || scanjob.IsTerminal(j.Status) {
		return errors.NotFound("active scan job")
	}
	now := time.Now().UTC()
	j.Status = scanjob.StatusFailed
	j.Errors = append(j.Errors, errMsg)
	j.CompletedAt = &now
	return nil
}

// MockCostRepository is a mock implementation of cost.Repository
type MockCostRepository struct {
	Snapshots map[string]*cost.Snapshot // userID/month
}

func NewMockCostRepository() *MockCostRepository {
	return &MockCostRepository{Snapshots: make(map[string]*cost.Snapshot)}
}

func costKey(userID int64, month string) string {
	return fmt.Sprintf("%d/%s", userID, month)
}

func (m *MockCostRepository) UpsertSnapshot(ctx context.Context, s *cost.Snapshot) error {
	s.UpdatedAt = time.Now().UTC()
	m.Snapshots[costKey(s.UserID, s.Month)] = s
	return nil
}

func (m *MockCostRepository) GetSnapshot(ctx context.Context, userID int64, month string) (*cost.Snapshot, error) {
	s, ok := m.Snapshots[costKey(userID, month)]
	if !ok {
		return nil, errors.NotFound("cost snapshot")
	}
	return s, nil
}
