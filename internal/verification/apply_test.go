package verification

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/freshness/internal/classifier"
	"github.com/phrazzld/freshness/internal/domain"
	"github.com/phrazzld/freshness/internal/domain/freshness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	day := 24 * time.Hour
	policy := freshness.NewDefaultService()

	newLoc := func(state domain.LocationState) *domain.Location {
		next := now.Add(-time.Hour)
		return &domain.Location{
			ID:          uuid.New(),
			Name:        "Corner Bakery",
			Category:    "cafe",
			State:       state,
			NextCheckAt: &next,
		}
	}

	tests := []struct {
		name        string
		state       domain.LocationState
		decision    classifier.Decision
		wantState   domain.LocationState
		wantOutcome Outcome
		wantNext    *time.Time
		wantCat     string
	}{
		{
			name:        "ignore retires and clears schedule",
			state:       domain.LocationStateCandidate,
			decision:    classifier.Decision{Action: classifier.ActionIgnore, Category: "bakery", Confidence: 0.9},
			wantState:   domain.LocationStateRetired,
			wantOutcome: OutcomeRetired,
			wantCat:     "cafe",
		},
		{
			name:        "keep above threshold promotes",
			state:       domain.LocationStateCandidate,
			decision:    classifier.Decision{Action: classifier.ActionKeep, Category: "bakery", Confidence: 0.95},
			wantState:   domain.LocationStateVerified,
			wantOutcome: OutcomePromoted,
			wantNext:    ptr(now.Add(30 * day)),
			wantCat:     "bakery",
		},
		{
			name:        "keep below threshold moves candidate to pending",
			state:       domain.LocationStateCandidate,
			decision:    classifier.Decision{Action: classifier.ActionKeep, Category: "bakery", Confidence: 0.6},
			wantState:   domain.LocationStatePendingVerification,
			wantOutcome: OutcomeKept,
			wantNext:    ptr(now.Add(7 * day)),
			wantCat:     "bakery",
		},
		{
			name:        "keep below threshold never demotes verified",
			state:       domain.LocationStateVerified,
			decision:    classifier.Decision{Action: classifier.ActionKeep, Category: "bakery", Confidence: 0.2},
			wantState:   domain.LocationStateVerified,
			wantOutcome: OutcomeKept,
			wantNext:    ptr(now.Add(30 * day)),
			wantCat:     "bakery",
		},
		{
			name:        "reverified location is kept, not promoted",
			state:       domain.LocationStateVerified,
			decision:    classifier.Decision{Action: classifier.ActionKeep, Category: "bakery", Confidence: 0.99},
			wantState:   domain.LocationStateVerified,
			wantOutcome: OutcomeKept,
			wantNext:    ptr(now.Add(30 * day)),
			wantCat:     "bakery",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			loc := newLoc(tt.state)
			got, outcome, err := Apply(policy, loc, tt.decision, now, 0.8)
			require.NoError(t, err)

			assert.Equal(t, tt.wantOutcome, outcome)
			assert.Equal(t, tt.wantState, got.State)
			assert.Equal(t, tt.wantCat, got.Category)
			require.NotNil(t, got.ConfidenceScore)
			assert.Equal(t, tt.decision.Confidence, *got.ConfidenceScore)
			require.NotNil(t, got.LastVerifiedAt)
			assert.True(t, now.Equal(*got.LastVerifiedAt))
			if tt.wantNext == nil {
				assert.Nil(t, got.NextCheckAt)
			} else {
				require.NotNil(t, got.NextCheckAt)
				assert.True(t, tt.wantNext.Equal(*got.NextCheckAt), "got %v want %v", got.NextCheckAt, tt.wantNext)
			}

			assert.Equal(t, tt.state, loc.State, "input location must not be modified")
			assert.Nil(t, loc.ConfidenceScore)
		})
	}
}

func TestApply_TerminalLocationUntouched(t *testing.T) {
	t.Parallel()

	loc := &domain.Location{ID: uuid.New(), Name: "Gone", Category: "bar", State: domain.LocationStateSuspended}
	got, outcome, err := Apply(freshness.NewDefaultService(), loc,
		classifier.Decision{Action: classifier.ActionKeep, Category: "cafe", Confidence: 1}, time.Now(), 0.8)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTerminal, outcome)
	assert.Equal(t, domain.LocationStateSuspended, got.State)
	assert.Equal(t, "bar", got.Category)
	assert.Nil(t, got.LastVerifiedAt)
}

func TestApply_UnknownAction(t *testing.T) {
	t.Parallel()

	loc := &domain.Location{ID: uuid.New(), Name: "X", Category: "bar", State: domain.LocationStateCandidate}
	_, _, err := Apply(freshness.NewDefaultService(), loc, classifier.Decision{Action: "maybe"}, time.Now(), 0.8)
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func ptr[T any](v T) *T { return &v }
