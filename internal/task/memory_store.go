package task

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/freshness/internal/store"
)

// MemoryStore implements TaskStore in process memory with the same
// semantics as the PostgreSQL store. The mutex stands in for row locks, so
// concurrent Claim calls never return the same task.
//
// The optional Fn fields replace the default behavior of a method when set,
// which lets tests inject failures.
type MemoryStore struct {
	mutex sync.Mutex
	tasks map[uuid.UUID]*Task
	now   func() time.Time

	ClaimFn    func(ctx context.Context, limit, maxAttempts int) ([]*Task, error)
	CompleteFn func(ctx context.Context, id uuid.UUID) error
	RequeueFn  func(ctx context.Context, id uuid.UUID) error
}

// NewMemoryStore creates an empty MemoryStore using the wall clock.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(func() time.Time { return time.Now().UTC() })
}

// NewMemoryStoreWithClock creates an empty MemoryStore with an injected clock.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		tasks: make(map[uuid.UUID]*Task),
		now:   now,
	}
}

// Enqueue implements TaskStore.
func (s *MemoryStore) Enqueue(ctx context.Context, locationID uuid.UUID) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, t := range s.tasks {
		if t.LocationID == locationID && !t.Status.IsTerminal() {
			return false, nil
		}
	}

	now := s.now()
	t := &Task{
		ID:         uuid.New(),
		Type:       TypeVerification,
		LocationID: locationID,
		Status:     TaskStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.tasks[t.ID] = t
	return true, nil
}

// Claim implements TaskStore.
func (s *MemoryStore) Claim(ctx context.Context, limit, maxAttempts int) ([]*Task, error) {
	if s.ClaimFn != nil {
		return s.ClaimFn(ctx, limit, maxAttempts)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	picked := s.claimableLocked(limit, maxAttempts)
	now := s.now()
	claimed := make([]*Task, 0, len(picked))
	for _, t := range picked {
		if !s.transitionLocked(t, TaskStatusProcessing) {
			continue
		}
		t.Attempts++
		attemptedAt := now
		t.LastAttemptedAt = &attemptedAt
		claimed = append(claimed, copyTask(t))
	}
	return claimed, nil
}

// Peek implements TaskStore.
func (s *MemoryStore) Peek(ctx context.Context, limit, maxAttempts int) ([]*Task, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	picked := s.claimableLocked(limit, maxAttempts)
	out := make([]*Task, 0, len(picked))
	for _, t := range picked {
		out = append(out, copyTask(t))
	}
	return out, nil
}

// claimableLocked returns up to limit claimable tasks, oldest first.
func (s *MemoryStore) claimableLocked(limit, maxAttempts int) []*Task {
	if limit <= 0 {
		return nil
	}
	var candidates []*Task
	for _, t := range s.tasks {
		if t.Claimable(maxAttempts) {
			candidates = append(candidates, t)
		}
	}
	sortByCreated(candidates)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// Complete implements TaskStore.
func (s *MemoryStore) Complete(ctx context.Context, id uuid.UUID) error {
	if s.CompleteFn != nil {
		return s.CompleteFn(ctx, id)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	t, ok := s.tasks[id]
	if !ok || !s.transitionLocked(t, TaskStatusCompleted) {
		return nil
	}
	success := true
	t.IsSuccess = &success
	return nil
}

// Fail implements TaskStore.
func (s *MemoryStore) Fail(ctx context.Context, id uuid.UUID, message string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if t, ok := s.tasks[id]; ok {
		s.failLocked(t, message)
	}
	return nil
}

func (s *MemoryStore) failLocked(t *Task, message string) bool {
	if !s.transitionLocked(t, TaskStatusFailed) {
		return false
	}
	success := false
	msg := SanitizeMessage(message)
	t.IsSuccess = &success
	t.ErrorMessage = &msg
	return true
}

// transitionLocked moves t to status when CanTransition allows it.
func (s *MemoryStore) transitionLocked(t *Task, to TaskStatus) bool {
	if !CanTransition(t.Status, to) {
		return false
	}
	t.Status = to
	t.UpdatedAt = s.now()
	return true
}

// Requeue implements TaskStore.
func (s *MemoryStore) Requeue(ctx context.Context, id uuid.UUID) error {
	if s.RequeueFn != nil {
		return s.RequeueFn(ctx, id)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	// PENDING -> PENDING is not a transition, so only PROCESSING tasks move.
	if t, ok := s.tasks[id]; ok && t.Status == TaskStatusProcessing {
		s.transitionLocked(t, TaskStatusPending)
	}
	return nil
}

// RecoverStale implements TaskStore.
func (s *MemoryStore) RecoverStale(
	ctx context.Context,
	olderThan time.Duration,
	maxAttempts int,
) (Recovery, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cutoff := s.now().Add(-olderThan)
	var recovery Recovery
	for _, t := range s.tasks {
		if t.Status != TaskStatusProcessing || t.LastAttemptedAt == nil || !t.LastAttemptedAt.Before(cutoff) {
			continue
		}
		if t.Attempts < maxAttempts {
			if s.transitionLocked(t, TaskStatusPending) {
				recovery.Requeued++
			}
			continue
		}
		if s.failLocked(t, AbandonedMessage) {
			recovery.Failed = append(recovery.Failed, copyTask(t))
		}
	}
	sortByCreated(recovery.Failed)
	return recovery, nil
}

// CountByStatus implements TaskStore.
func (s *MemoryStore) CountByStatus(ctx context.Context) (map[TaskStatus]int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	counts := make(map[TaskStatus]int)
	for _, t := range s.tasks {
		counts[t.Status]++
	}
	return counts, nil
}

// Get implements TaskStore.
func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Task, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return copyTask(t), nil
}

// WithTx implements TaskStore. The in-memory store has no transactions.
func (s *MemoryStore) WithTx(tx *sql.Tx) TaskStore {
	return s
}

// All returns a snapshot of every task, oldest first.
func (s *MemoryStore) All() []*Task {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	out := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, copyTask(t))
	}
	sortByCreated(out)
	return out
}

func sortByCreated(tasks []*Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID.String() < tasks[j].ID.String()
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}

func copyTask(t *Task) *Task {
	c := *t
	if t.LastAttemptedAt != nil {
		v := *t.LastAttemptedAt
		c.LastAttemptedAt = &v
	}
	if t.IsSuccess != nil {
		v := *t.IsSuccess
		c.IsSuccess = &v
	}
	if t.ErrorMessage != nil {
		v := *t.ErrorMessage
		c.ErrorMessage = &v
	}
	return &c
}
