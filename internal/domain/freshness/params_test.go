package freshness

import (
	"testing"

	"github.com/phrazzld/freshness/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultParams(t *testing.T) {
	t.Parallel()

	params := NewDefaultParams()

	require.NoError(t, params.Validate())
	assert.LessOrEqual(t, params.TemporarilyClosedDays, params.LowConfidenceDays)
	assert.LessOrEqual(t, params.TemporarilyClosedDays, params.NotOpenYetDays)
	assert.LessOrEqual(t, params.TemporarilyClosedDays, params.VerifiedFewReviewsDays)
	assert.Positive(t, params.AbsMaxDays)
	assert.NotEmpty(t, params.ClosedMarkers)
}

func TestNewParams(t *testing.T) {
	t.Parallel()

	params := NewParams(ParamsConfig{
		TemporarilyClosedDays:   2,
		VerifiedManyReviewsDays: 100,
		HighConfidenceFrom:      0.9,
		AbsMaxDays:              90,
		ClosedMarkers:           []string{"closed for renovation"},
	})

	assert.Equal(t, 2, params.TemporarilyClosedDays)
	assert.Equal(t, 100, params.VerifiedManyReviewsDays)
	assert.InDelta(t, 0.9, params.HighConfidenceFrom, 1e-9)
	assert.Equal(t, 90, params.AbsMaxDays)
	assert.Equal(t, []string{"closed for renovation"}, params.ClosedMarkers)

	// Unset values keep their defaults
	defaults := NewDefaultParams()
	assert.Equal(t, defaults.NotOpenYetDays, params.NotOpenYetDays)
	assert.Equal(t, defaults.LowConfidenceDays, params.LowConfidenceDays)
	assert.InDelta(t, defaults.MediumConfidenceFrom, params.MediumConfidenceFrom, 1e-9)
}

func TestNewParamsIgnoresNonPositiveValues(t *testing.T) {
	t.Parallel()

	params := NewParams(ParamsConfig{
		TemporarilyClosedDays: -3,
		LowConfidenceDays:     0,
		MediumConfidenceFrom:  -0.1,
		HighConfidenceFrom:    1.7,
	})

	assert.Equal(t, *NewDefaultParams(), *params)
}

func TestParamsValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(p *Params)
	}{
		{"zero ceiling", func(p *Params) { p.AbsMaxDays = 0 }},
		{"confidence bands decreasing", func(p *Params) { p.LowConfidenceDays = 20 }},
		{"review bands decreasing", func(p *Params) { p.VerifiedFewReviewsDays = 100 }},
		{"review thresholds inverted", func(p *Params) { p.FewReviewsBelow = 500 }},
		{"confidence thresholds inverted", func(p *Params) { p.MediumConfidenceFrom = 0.95 }},
		{"closed cycle longer than verified", func(p *Params) { p.TemporarilyClosedDays = 91 }},
		{"closed cycle longer than low confidence", func(p *Params) { p.TemporarilyClosedDays = p.LowConfidenceDays + 1 }},
		{"closed cycle longer than not open yet", func(p *Params) {
			p.NotOpenYetDays = 2
			p.TemporarilyClosedDays = 3
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := NewDefaultParams()
			tt.mutate(p)
			assert.ErrorIs(t, p.Validate(), ErrInvalidParams)
		})
	}
}

// A temporarily closed location is never rechecked later than the same
// location would be without the closed signal.
func TestDefaultsCheckClosedLocationsFirst(t *testing.T) {
	t.Parallel()

	params := NewDefaultParams()
	for _, state := range []domain.LocationState{
		domain.LocationStateCandidate,
		domain.LocationStatePendingVerification,
		domain.LocationStateVerified,
	} {
		open := &domain.Location{State: state}
		closed := &domain.Location{State: state, BusinessStatus: "CLOSED_TEMPORARILY"}

		band, closedDays := selectBand(closed, params)
		require.Equal(t, BandTemporarilyClosed, band)
		_, openDays := selectBand(open, params)
		assert.LessOrEqual(t, closedDays, openDays, "state %s", state)
	}
}
