package freshness

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/freshness/internal/domain"
	"github.com/stretchr/testify/assert"
)

func floatPtr(v float64) *float64 { return &v }

func timePtr(v time.Time) *time.Time { return &v }

func newSnapshot(state domain.LocationState) *domain.Location {
	return &domain.Location{ID: uuid.New(), Name: "test", State: state}
}

func TestSelectBand(t *testing.T) {
	t.Parallel()
	params := NewDefaultParams()

	testCases := []struct {
		name     string
		mutate   func(l *domain.Location)
		state    domain.LocationState
		expected Band
	}{
		{
			name:     "temporarily closed wins over everything",
			state:    domain.LocationStateVerified,
			mutate:   func(l *domain.Location) { l.BusinessStatus = "Temporarily Closed"; l.IsProbableNotOpenYet = true },
			expected: BandTemporarilyClosed,
		},
		{
			name:     "closed marker in provider enum form",
			state:    domain.LocationStateCandidate,
			mutate:   func(l *domain.Location) { l.BusinessStatus = "CLOSED_TEMPORARILY" },
			expected: BandTemporarilyClosed,
		},
		{
			name:     "not open yet wins over state band",
			state:    domain.LocationStateVerified,
			mutate:   func(l *domain.Location) { l.IsProbableNotOpenYet = true; l.UserRatingsTotal = 1000 },
			expected: BandNotOpenYet,
		},
		{
			name:     "verified with few reviews",
			state:    domain.LocationStateVerified,
			mutate:   func(l *domain.Location) { l.UserRatingsTotal = 19 },
			expected: BandVerifiedFewReviews,
		},
		{
			name:     "verified at the medium threshold",
			state:    domain.LocationStateVerified,
			mutate:   func(l *domain.Location) { l.UserRatingsTotal = 20 },
			expected: BandVerifiedMediumReviews,
		},
		{
			name:     "verified at the many threshold",
			state:    domain.LocationStateVerified,
			mutate:   func(l *domain.Location) { l.UserRatingsTotal = 200 },
			expected: BandVerifiedManyReviews,
		},
		{
			name:     "negative ratings clamp to few reviews",
			state:    domain.LocationStateVerified,
			mutate:   func(l *domain.Location) { l.UserRatingsTotal = -5 },
			expected: BandVerifiedFewReviews,
		},
		{
			name:     "verified ignores confidence",
			state:    domain.LocationStateVerified,
			mutate:   func(l *domain.Location) { l.ConfidenceScore = floatPtr(0.1); l.UserRatingsTotal = 500 },
			expected: BandVerifiedManyReviews,
		},
		{
			name:     "candidate without confidence",
			state:    domain.LocationStateCandidate,
			mutate:   func(l *domain.Location) {},
			expected: BandLowConfidence,
		},
		{
			name:     "candidate with NaN confidence",
			state:    domain.LocationStateCandidate,
			mutate:   func(l *domain.Location) { l.ConfidenceScore = floatPtr(math.NaN()) },
			expected: BandLowConfidence,
		},
		{
			name:     "candidate with out of range confidence",
			state:    domain.LocationStateCandidate,
			mutate:   func(l *domain.Location) { l.ConfidenceScore = floatPtr(4.2) },
			expected: BandLowConfidence,
		},
		{
			name:     "pending at medium threshold",
			state:    domain.LocationStatePendingVerification,
			mutate:   func(l *domain.Location) { l.ConfidenceScore = floatPtr(0.5) },
			expected: BandMediumConfidence,
		},
		{
			name:     "candidate at high threshold",
			state:    domain.LocationStateCandidate,
			mutate:   func(l *domain.Location) { l.ConfidenceScore = floatPtr(0.8) },
			expected: BandHighConfidence,
		},
		{
			name:     "empty business status is not closed",
			state:    domain.LocationStateCandidate,
			mutate:   func(l *domain.Location) { l.BusinessStatus = ""; l.ConfidenceScore = floatPtr(0.9) },
			expected: BandHighConfidence,
		},
		{
			name:     "operational status is not closed",
			state:    domain.LocationStateCandidate,
			mutate:   func(l *domain.Location) { l.BusinessStatus = "OPERATIONAL"; l.ConfidenceScore = floatPtr(0.2) },
			expected: BandLowConfidence,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			loc := newSnapshot(tc.state)
			tc.mutate(loc)
			band, _ := selectBand(loc, params)
			assert.Equal(t, tc.expected, band)
		})
	}
}

func TestCalculateNextCheckBaseline(t *testing.T) {
	t.Parallel()
	params := NewDefaultParams()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("never verified uses now", func(t *testing.T) {
		t.Parallel()
		loc := newSnapshot(domain.LocationStateCandidate)
		got := calculateNextCheck(loc, now, params)
		assert.Equal(t, now.Add(time.Duration(params.LowConfidenceDays)*day), got)
	})

	t.Run("verified uses last verification", func(t *testing.T) {
		t.Parallel()
		last := now.Add(-10 * day)
		loc := newSnapshot(domain.LocationStateVerified)
		loc.LastVerifiedAt = timePtr(last)
		loc.UserRatingsTotal = 50
		got := calculateNextCheck(loc, now, params)
		assert.Equal(t, last.Add(time.Duration(params.VerifiedMediumReviewsDays)*day), got)
	})

	t.Run("zero last verification is treated as absent", func(t *testing.T) {
		t.Parallel()
		loc := newSnapshot(domain.LocationStateCandidate)
		loc.LastVerifiedAt = timePtr(time.Time{})
		got := calculateNextCheck(loc, now, params)
		assert.Equal(t, now.Add(time.Duration(params.LowConfidenceDays)*day), got)
	})
}

func TestCalculateNextCheckCeiling(t *testing.T) {
	t.Parallel()
	params := NewDefaultParams()
	params.VerifiedManyReviewsDays = 365
	params.AbsMaxDays = 120
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	loc := newSnapshot(domain.LocationStateVerified)
	loc.UserRatingsTotal = 10000

	got := calculateNextCheck(loc, now, params)
	assert.Equal(t, now.Add(120*day), got)
}

func TestClampDays(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, clampDays(0, 120))
	assert.Equal(t, 1, clampDays(-4, 120))
	assert.Equal(t, 30, clampDays(30, 120))
	assert.Equal(t, 120, clampDays(400, 120))
	assert.Equal(t, 400, clampDays(400, 0))
}

// randomValidParams builds Params that pass Validate.
func randomValidParams(r *rand.Rand) *Params {
	p := NewDefaultParams()
	p.LowConfidenceDays = 1 + r.Intn(10)
	p.MediumConfidenceDays = p.LowConfidenceDays + r.Intn(10)
	p.HighConfidenceDays = p.MediumConfidenceDays + r.Intn(30)
	p.VerifiedFewReviewsDays = 1 + r.Intn(60)
	p.VerifiedMediumReviewsDays = p.VerifiedFewReviewsDays + r.Intn(60)
	p.VerifiedManyReviewsDays = p.VerifiedMediumReviewsDays + r.Intn(120)
	p.NotOpenYetDays = 1 + r.Intn(60)
	p.TemporarilyClosedDays = 1 + r.Intn(p.shortestOpenCycle())
	p.FewReviewsBelow = r.Intn(100)
	p.ManyReviewsFrom = p.FewReviewsBelow + r.Intn(1000)
	p.MediumConfidenceFrom = r.Float64() * 0.5
	p.HighConfidenceFrom = p.MediumConfidenceFrom + r.Float64()*0.5
	p.AbsMaxDays = 1 + r.Intn(200)
	return p
}

func randomLocation(r *rand.Rand, now time.Time) *domain.Location {
	states := []domain.LocationState{
		domain.LocationStateCandidate,
		domain.LocationStatePendingVerification,
		domain.LocationStateVerified,
	}
	loc := newSnapshot(states[r.Intn(len(states))])
	loc.UserRatingsTotal = r.Intn(2000) - 100
	if r.Intn(4) > 0 {
		loc.ConfidenceScore = floatPtr(r.Float64()*1.4 - 0.2)
	}
	if r.Intn(2) == 0 {
		loc.LastVerifiedAt = timePtr(now.Add(-time.Duration(r.Intn(400)) * day))
	}
	loc.IsProbableNotOpenYet = r.Intn(8) == 0
	if r.Intn(8) == 0 {
		loc.BusinessStatus = "CLOSED_TEMPORARILY"
	}
	return loc
}

func TestNextCheckNeverExceedsCeiling(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewSource(42))
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 2000; i++ {
		params := randomValidParams(r)
		loc := randomLocation(r, now)

		baseline := now
		if loc.LastVerifiedAt != nil {
			baseline = *loc.LastVerifiedAt
		}

		next := calculateNextCheck(loc, now, params)
		assert.LessOrEqual(t, next.Sub(baseline), time.Duration(params.AbsMaxDays)*day)
		assert.True(t, next.After(baseline))
	}
}

func TestTemporarilyClosedNeverOutlastsVerifiedManyReviews(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewSource(7))
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 2000; i++ {
		params := randomValidParams(r)
		last := timePtr(now.Add(-time.Duration(r.Intn(30)) * day))

		closed := newSnapshot(domain.LocationStateVerified)
		closed.LastVerifiedAt = last
		closed.UserRatingsTotal = params.ManyReviewsFrom + r.Intn(1000)
		closed.BusinessStatus = "temporarily closed"

		open := closed.Clone()
		open.BusinessStatus = ""

		closedNext := calculateNextCheck(closed, now, params)
		openNext := calculateNextCheck(open, now, params)
		assert.False(t, closedNext.After(openNext), "closed %s after open %s", closedNext, openNext)
	}
}
