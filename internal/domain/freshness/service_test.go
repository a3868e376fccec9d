package freshness

import (
	"testing"
	"time"

	"github.com/phrazzld/freshness/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceNextCheck(t *testing.T) {
	t.Parallel()

	svc := NewDefaultService()
	now := time.Date(2024, 5, 1, 9, 30, 0, 0, time.FixedZone("EST", -5*3600))

	loc := newSnapshot(domain.LocationStateVerified)
	loc.UserRatingsTotal = 500

	next, err := svc.NextCheck(loc, now)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, next.Location())
	assert.Equal(t, now.UTC().Add(90*day), next)

	band, err := svc.Band(loc)
	require.NoError(t, err)
	assert.Equal(t, BandVerifiedManyReviews, band)
}

func TestServiceIsDeterministic(t *testing.T) {
	t.Parallel()

	svc := NewServiceWithParams(NewDefaultParams())
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	loc := newSnapshot(domain.LocationStateCandidate)
	loc.ConfidenceScore = floatPtr(0.6)

	first, err := svc.NextCheck(loc, now)
	require.NoError(t, err)
	second, err := svc.NextCheck(loc, now)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestServiceNilLocation(t *testing.T) {
	t.Parallel()

	svc := NewServiceWithParams(nil)

	_, err := svc.NextCheck(nil, time.Now())
	assert.ErrorIs(t, err, ErrNilLocation)

	_, err = svc.Band(nil)
	assert.ErrorIs(t, err, ErrNilLocation)
}
