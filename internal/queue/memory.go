package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps tasks in process memory. It backs single-process
// deployments and tests; production uses the redis store.
type MemoryStore struct {
	mu    sync.Mutex
	tasks map[string]map[string]*Task // queue -> id -> task
	order map[string]map[string]int64 // queue -> id -> enqueue sequence
	done  map[string][]string         // queue -> completed ids, oldest first
	seq   int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[string]map[string]*Task),
		order: make(map[string]map[string]int64),
		done:  make(map[string][]string),
	}
}

func (s *MemoryStore) Enqueue(_ context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(t)
	return nil
}

func (s *MemoryStore) EnqueueUnique(_ context.Context, t *Task) (*Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.tasks[t.Queue] {
		if other.DedupKey == t.DedupKey &&
			(other.State == StatePending || other.State == StateActive) {
			cp := *other
			return &cp, false, nil
		}
	}

	s.put(t)
	return nil, true, nil
}

func (s *MemoryStore) Claim(_ context.Context, queue string, now time.Time) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*Task
	for _, t := range s.tasks[queue] {
		if t.State == StatePending && !t.AvailableAt.After(now) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil, nil
	}

	// FIFO among due tasks
	sort.Slice(due, func(i, j int) bool {
		return s.order[queue][due[i].ID] < s.order[queue][due[j].ID]
	})

	t := due[0]
	t.State = StateActive
	t.Attempts++

	cp := *t
	return &cp, nil
}

func (s *MemoryStore) Update(_ context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stored, ok := s.tasks[t.Queue][t.ID]; ok {
		stored.Progress = t.Progress
		stored.Error = t.Error
	}
	return nil
}

func (s *MemoryStore) Retry(_ context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tasks[t.Queue][t.ID] = &cp
	return nil
}

func (s *MemoryStore) Complete(_ context.Context, t *Task, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *t
	s.tasks[t.Queue][t.ID] = &cp
	s.done[t.Queue] = append(s.done[t.Queue], t.ID)

	if keep > 0 {
		for len(s.done[t.Queue]) > keep {
			oldest := s.done[t.Queue][0]
			s.done[t.Queue] = s.done[t.Queue][1:]
			delete(s.tasks[t.Queue], oldest)
			delete(s.order[t.Queue], oldest)
		}
	}
	return nil
}

func (s *MemoryStore) Fail(_ context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tasks[t.Queue][t.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, queue, id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[queue][id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) Counts(_ context.Context, queue string) (Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c Counts
	for _, t := range s.tasks[queue] {
		switch t.State {
		case StatePending:
			c.Pending++
		case StateActive:
			c.Active++
		case StateCompleted:
			c.Completed++
		case StateFailed:
			c.Failed++
		}
	}
	return c, nil
}

// put assumes the lock is held
func (s *MemoryStore) put(t *Task) {
	if s.tasks[t.Queue] == nil {
		s.tasks[t.Queue] = make(map[string]*Task)
		s.order[t.Queue] = make(map[string]int64)
	}
	s.seq++
	cp := *t
	s.tasks[t.Queue][t.ID] = &cp
	s.order[t.Queue][t.ID] = s.seq
}
