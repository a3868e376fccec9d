package domain

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLocation(t *testing.T) {
	t.Parallel()

	loc, err := NewLocation("  Blue Door Cafe ", "1 Main St", "Coffee Shop")

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, loc.ID)
	assert.Equal(t, "Blue Door Cafe", loc.Name)
	assert.Equal(t, "cafe", loc.Category)
	assert.Equal(t, LocationStateCandidate, loc.State)
	assert.Nil(t, loc.NextCheckAt)
	assert.Nil(t, loc.LastVerifiedAt)
	assert.False(t, loc.CreatedAt.IsZero())
}

func TestNewLocationRejectsEmptyName(t *testing.T) {
	t.Parallel()

	_, err := NewLocation("   ", "1 Main St", "cafe")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.True(t, errors.Is(err, ErrEmptyName))
}

func TestLocationValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Location {
		return &Location{ID: uuid.New(), Name: "x", State: LocationStateVerified}
	}
	conf := func(v float64) *float64 { return &v }

	tests := []struct {
		name    string
		mutate  func(l *Location)
		wantErr error
	}{
		{"valid", func(l *Location) {}, nil},
		{"nil id", func(l *Location) { l.ID = uuid.Nil }, ErrInvalidID},
		{"bad state", func(l *Location) { l.State = "ARCHIVED" }, ErrInvalidLocationState},
		{"confidence above one", func(l *Location) { l.ConfidenceScore = conf(1.2) }, ErrInvalidConfidence},
		{"confidence NaN", func(l *Location) { l.ConfidenceScore = conf(math.NaN()) }, ErrInvalidConfidence},
		{"negative ratings", func(l *Location) { l.UserRatingsTotal = -1 }, ErrNegativeRatings},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l := valid()
			tt.mutate(l)
			err := l.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestLocationStateTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, LocationStateRetired.IsTerminal())
	assert.True(t, LocationStateSuspended.IsTerminal())
	assert.False(t, LocationStateCandidate.IsTerminal())
	assert.False(t, LocationStatePendingVerification.IsTerminal())
	assert.False(t, LocationStateVerified.IsTerminal())
}

func TestParseLocationState(t *testing.T) {
	t.Parallel()

	s, err := ParseLocationState(" verified ")
	require.NoError(t, err)
	assert.Equal(t, LocationStateVerified, s)

	_, err = ParseLocationState("gone")
	assert.ErrorIs(t, err, ErrInvalidLocationState)
}

func TestLocationCloneIsDeep(t *testing.T) {
	t.Parallel()

	c := 0.5
	now := time.Now().UTC()
	orig := &Location{ID: uuid.New(), Name: "x", ConfidenceScore: &c, NextCheckAt: &now, LastVerifiedAt: &now}

	clone := orig.Clone()
	*clone.ConfidenceScore = 0.9
	*clone.NextCheckAt = now.Add(time.Hour)

	assert.InDelta(t, 0.5, *orig.ConfidenceScore, 1e-9)
	assert.Equal(t, now, *orig.NextCheckAt)
	assert.Nil(t, (*Location)(nil).Clone())
}

func TestNormalizeCategory(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"restaurant":   "restaurant",
		"Restaurant":   "restaurant",
		"coffee shop":  "cafe",
		"coffee-shop":  "cafe",
		"PUB":          "bar",
		" supermarket": "grocery",
		"hotel":        "lodging",
		"spaceport":    CategoryOther,
		"":             CategoryOther,
	}

	for in, want := range tests {
		assert.Equal(t, want, NormalizeCategory(in), "NormalizeCategory(%q)", in)
	}
}

func TestNormalizedCategoryIsAlwaysKnown(t *testing.T) {
	t.Parallel()

	for alias := range categoryAliases {
		assert.True(t, IsKnownCategory(NormalizeCategory(alias)), "alias %q", alias)
	}
}

func TestNewCategoryTable(t *testing.T) {
	t.Parallel()

	table, err := NewCategoryTable(map[string]string{
		"Boulangerie": "bakery",
		"pub":         "restaurant",
	})
	require.NoError(t, err)

	assert.Equal(t, "bakery", table.Normalize("boulangerie"))
	assert.Equal(t, "restaurant", table.Normalize("Pub"), "configured aliases override built-ins")
	assert.Equal(t, "cafe", table.Normalize("coffee shop"), "built-in aliases are kept")
	assert.Equal(t, "bar", NormalizeCategory("pub"), "the default table is unchanged")

	_, err = NewCategoryTable(map[string]string{"kiosk": "newsagent"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewCategoryTable(map[string]string{"  ": "cafe"})
	assert.ErrorIs(t, err, ErrValidation)

	var nilTable *CategoryTable
	assert.Equal(t, "grocery", nilTable.Normalize("supermarket"))
}
