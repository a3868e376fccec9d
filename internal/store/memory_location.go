package store

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/freshness/internal/domain"
)

// MemoryLocationStore implements LocationStore in process memory. Rows are
// cloned on the way in and out, so callers never share state with the store.
//
// The optional Fn fields replace the default behavior of a method when set,
// which lets tests inject failures.
type MemoryLocationStore struct {
	mu        sync.Mutex
	locations map[uuid.UUID]*domain.Location

	ListDueFn            func(ctx context.Context, states []domain.LocationState, now time.Time, limit int) ([]*domain.Location, error)
	SetNextCheckFn       func(ctx context.Context, id uuid.UUID, next *time.Time) error
	UpdateVerificationFn func(ctx context.Context, loc *domain.Location) error
}

// NewMemoryLocationStore creates a store holding copies of locs.
func NewMemoryLocationStore(locs ...*domain.Location) *MemoryLocationStore {
	s := &MemoryLocationStore{locations: make(map[uuid.UUID]*domain.Location)}
	for _, l := range locs {
		s.locations[l.ID] = l.Clone()
	}
	return s
}

var _ LocationStore = (*MemoryLocationStore)(nil)

// Create implements LocationStore.
func (s *MemoryLocationStore) Create(_ context.Context, loc *domain.Location) error {
	if err := loc.Validate(); err != nil {
		return ErrInvalidEntity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.locations[loc.ID]; ok {
		return ErrDuplicate
	}
	s.locations[loc.ID] = loc.Clone()
	return nil
}

// Get implements LocationStore.
func (s *MemoryLocationStore) Get(_ context.Context, id uuid.UUID) (*domain.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc, ok := s.locations[id]
	if !ok {
		return nil, ErrLocationNotFound
	}
	return loc.Clone(), nil
}

// GetForUpdate implements LocationStore. There are no row locks in memory.
func (s *MemoryLocationStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Location, error) {
	return s.Get(ctx, id)
}

// ListUnscheduled implements LocationStore.
func (s *MemoryLocationStore) ListUnscheduled(_ context.Context, limit int) ([]*domain.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Location
	for _, l := range s.locations {
		if l.NextCheckAt == nil && !l.IsTerminal() {
			out = append(out, l.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LastVerifiedAt, out[j].LastVerifiedAt
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return truncate(out, limit), nil
}

// ListDue implements LocationStore.
func (s *MemoryLocationStore) ListDue(
	ctx context.Context,
	states []domain.LocationState,
	now time.Time,
	limit int,
) ([]*domain.Location, error) {
	if s.ListDueFn != nil {
		return s.ListDueFn(ctx, states, now, limit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[domain.LocationState]bool, len(states))
	for _, st := range states {
		wanted[st] = true
	}

	var out []*domain.Location
	for _, l := range s.locations {
		if wanted[l.State] && l.NextCheckAt != nil && !l.NextCheckAt.After(now) {
			out = append(out, l.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].NextCheckAt.Equal(*out[j].NextCheckAt) {
			return out[i].NextCheckAt.Before(*out[j].NextCheckAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return truncate(out, limit), nil
}

// SetNextCheck implements LocationStore.
func (s *MemoryLocationStore) SetNextCheck(ctx context.Context, id uuid.UUID, next *time.Time) error {
	if s.SetNextCheckFn != nil {
		return s.SetNextCheckFn(ctx, id, next)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	loc, ok := s.locations[id]
	if !ok {
		return ErrLocationNotFound
	}
	if next == nil {
		loc.NextCheckAt = nil
	} else {
		v := *next
		loc.NextCheckAt = &v
	}
	return nil
}

// UpdateVerification implements LocationStore.
func (s *MemoryLocationStore) UpdateVerification(ctx context.Context, loc *domain.Location) error {
	if s.UpdateVerificationFn != nil {
		return s.UpdateVerificationFn(ctx, loc)
	}
	if err := loc.Validate(); err != nil {
		return ErrInvalidEntity
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.locations[loc.ID]
	if !ok {
		return ErrLocationNotFound
	}
	next := loc.Clone()
	cur.State = next.State
	cur.Category = next.Category
	cur.ConfidenceScore = next.ConfidenceScore
	cur.LastVerifiedAt = next.LastVerifiedAt
	cur.NextCheckAt = next.NextCheckAt
	return nil
}

// WithTx implements LocationStore. The in-memory store has no transactions.
func (s *MemoryLocationStore) WithTx(*sql.Tx) LocationStore {
	return s
}

func truncate(locs []*domain.Location, limit int) []*domain.Location {
	if limit <= 0 {
		return nil
	}
	if len(locs) > limit {
		return locs[:limit]
	}
	return locs
}
