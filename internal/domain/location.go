package domain

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocationState represents where a location is in its verification lifecycle.
type LocationState string

// Possible location states
const (
	LocationStateCandidate           LocationState = "CANDIDATE"
	LocationStatePendingVerification LocationState = "PENDING_VERIFICATION"
	LocationStateVerified            LocationState = "VERIFIED"
	LocationStateRetired             LocationState = "RETIRED"
	LocationStateSuspended           LocationState = "SUSPENDED"
)

// IsValid reports whether s is one of the known states.
func (s LocationState) IsValid() bool {
	switch s {
	case LocationStateCandidate,
		LocationStatePendingVerification,
		LocationStateVerified,
		LocationStateRetired,
		LocationStateSuspended:
		return true
	}
	return false
}

// IsTerminal reports whether locations in this state are no longer scheduled.
func (s LocationState) IsTerminal() bool {
	return s == LocationStateRetired || s == LocationStateSuspended
}

// ParseLocationState converts a case-insensitive name into a LocationState.
func ParseLocationState(name string) (LocationState, error) {
	s := LocationState(strings.ToUpper(strings.TrimSpace(name)))
	if !s.IsValid() {
		return "", NewValidationError("state", "unknown state "+name, ErrInvalidLocationState)
	}
	return s, nil
}

// Location is a real-world place whose details are periodically re-verified.
type Location struct {
	ID                   uuid.UUID     `json:"id"`
	Name                 string        `json:"name"`
	Address              string        `json:"address"`
	Category             string        `json:"category"`
	State                LocationState `json:"state"`
	ConfidenceScore      *float64      `json:"confidence_score,omitempty"`
	BusinessStatus       string        `json:"business_status,omitempty"`
	UserRatingsTotal     int           `json:"user_ratings_total"`
	IsProbableNotOpenYet bool          `json:"is_probable_not_open_yet"`
	LastVerifiedAt       *time.Time    `json:"last_verified_at,omitempty"`
	NextCheckAt          *time.Time    `json:"next_check_at,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// NewLocation creates a CANDIDATE location with a fresh ID and a normalized
// category. Returns an error if validation fails.
func NewLocation(name, address, category string) (*Location, error) {
	now := time.Now().UTC()
	loc := &Location{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(name),
		Address:   strings.TrimSpace(address),
		Category:  NormalizeCategory(category),
		State:     LocationStateCandidate,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := loc.Validate(); err != nil {
		return nil, err
	}

	return loc, nil
}

// Validate checks if the Location has valid data.
func (l *Location) Validate() error {
	if l.ID == uuid.Nil {
		return NewValidationError("id", "must not be nil", ErrInvalidID)
	}
	if strings.TrimSpace(l.Name) == "" {
		return NewValidationError("name", "must not be empty", ErrEmptyName)
	}
	if !l.State.IsValid() {
		return NewValidationError("state", string(l.State), ErrInvalidLocationState)
	}
	if l.ConfidenceScore != nil && !ValidConfidence(*l.ConfidenceScore) {
		return NewValidationError("confidence_score", "out of range", ErrInvalidConfidence)
	}
	if l.UserRatingsTotal < 0 {
		return NewValidationError("user_ratings_total", "negative", ErrNegativeRatings)
	}
	return nil
}

// IsTerminal reports whether the location is no longer scheduled.
func (l *Location) IsTerminal() bool {
	return l.State.IsTerminal()
}

// Clone returns a deep copy so callers can mutate without aliasing the
// pointer fields of the original.
func (l *Location) Clone() *Location {
	if l == nil {
		return nil
	}
	c := *l
	if l.ConfidenceScore != nil {
		v := *l.ConfidenceScore
		c.ConfidenceScore = &v
	}
	if l.LastVerifiedAt != nil {
		v := *l.LastVerifiedAt
		c.LastVerifiedAt = &v
	}
	if l.NextCheckAt != nil {
		v := *l.NextCheckAt
		c.NextCheckAt = &v
	}
	return &c
}

// ValidConfidence reports whether v is a usable confidence score.
func ValidConfidence(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
