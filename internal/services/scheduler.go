package services

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hostmaster-io/hostmaster/internal/domain/account"
	"github.com/hostmaster-io/hostmaster/internal/pkg/logger"
)

// Scheduler drives recurring scans. Every minute it walks the active
// accounts and enqueues a scan for each whose interval has elapsed;
// the dedup key keeps an account from stacking scans even across
// multiple scheduler processes.
type Scheduler struct {
	accounts account.Repository
	scans    *ScanService
	cron     *cron.Cron
	log      *logger.Logger

	mu      sync.Mutex
	lastRun map[int64]time.Time
}

// NewScheduler creates a new recurring-scan scheduler
func NewScheduler(accounts account.Repository, scans *ScanService, log *logger.Logger) *Scheduler {
	return &Scheduler{
		accounts: accounts,
		scans:    scans,
		cron:     cron.New(),
		log:      log,
		lastRun:  make(map[int64]time.Time),
	}
}

// Start begins the scheduling loop. Safe to call once.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc("@every 1m", func() {
		s.tick(context.Background())
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("recurring scan scheduler started")
	return nil
}

// Stop halts scheduling and waits for an in-flight tick.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) tick(ctx context.Context) {
	accounts, err := s.accounts.ListActive(ctx)
	if err != nil {
		s.log.ErrorWithErr(err, "scheduler could not list accounts")
		return
	}

	now := time.Now().UTC()
	for _, acct := range accounts {
		if acct.ScanIntervalMinutes <= 0 {
			continue
		}
		if !s.due(acct, now) {
			continue
		}

		if _, err := s.scans.EnqueueRecurring(ctx, acct); err != nil {
			s.log.With("account_id", acct.ID).ErrorWithErr(err, "failed to enqueue recurring scan")
			continue
		}
		s.markRun(acct.ID, now)
	}
}

func (s *Scheduler) due(acct *account.Account, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastRun[acct.ID]
	if !ok {
		return true
	}
	return now.Sub(last) >= time.Duration(acct.ScanIntervalMinutes)*time.Minute
}

func (s *Scheduler) markRun(accountID int64, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun[accountID] = now
}
