package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/freshness/internal/domain"
)

// LocationStore defines the interface for location data persistence.
type LocationStore interface {
	// Create inserts a new location.
	// Returns ErrInvalidEntity if the location fails validation and
	// ErrDuplicate if the ID is taken.
	Create(ctx context.Context, loc *domain.Location) error

	// Get retrieves a location by ID without locking it.
	// Returns ErrLocationNotFound if the location does not exist.
	Get(ctx context.Context, id uuid.UUID) (*domain.Location, error)

	// GetForUpdate retrieves a location and locks its row until the enclosing
	// transaction ends. It must be called on a store bound with WithTx.
	// Returns ErrLocationNotFound if the location does not exist.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Location, error)

	// ListUnscheduled returns up to limit non-terminal locations whose
	// next_check_at is NULL, never-verified first, then by last_verified_at
	// ascending, ties broken by created_at.
	ListUnscheduled(ctx context.Context, limit int) ([]*domain.Location, error)

	// ListDue returns up to limit locations in one of states whose
	// next_check_at is at or before now, ordered by next_check_at ascending.
	ListDue(ctx context.Context, states []domain.LocationState, now time.Time, limit int) ([]*domain.Location, error)

	// SetNextCheck records the next verification instant. A nil next clears it.
	// Returns ErrLocationNotFound if the location does not exist.
	SetNextCheck(ctx context.Context, id uuid.UUID, next *time.Time) error

	// UpdateVerification persists the outcome of a verification: state,
	// category, confidence_score, last_verified_at and next_check_at.
	// Returns ErrLocationNotFound if the location does not exist.
	UpdateVerification(ctx context.Context, loc *domain.Location) error

	// WithTx returns a store bound to tx. All operations on the returned store
	// run inside that transaction.
	WithTx(tx *sql.Tx) LocationStore
}
