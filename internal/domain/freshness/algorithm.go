package freshness

import (
	"strings"
	"time"

	"github.com/phrazzld/freshness/internal/domain"
)

// Band names the rule that selected a location's recheck interval.
type Band string

// Rules in precedence order.
const (
	BandTemporarilyClosed     Band = "temporarily_closed"
	BandNotOpenYet            Band = "not_open_yet"
	BandVerifiedFewReviews    Band = "verified_few_reviews"
	BandVerifiedMediumReviews Band = "verified_medium_reviews"
	BandVerifiedManyReviews   Band = "verified_many_reviews"
	BandLowConfidence         Band = "low_confidence"
	BandMediumConfidence      Band = "medium_confidence"
	BandHighConfidence        Band = "high_confidence"
)

const day = 24 * time.Hour

// selectBand applies the rules in order; the first match wins.
//
// Rule order:
//   - business status marks the location temporarily closed
//   - the location is flagged as probably not open yet
//   - VERIFIED locations are banded by review count
//   - everything else is banded by confidence score
//
// Malformed inputs never fail: negative review counts fall into the few-reviews
// band, and a missing, NaN or out-of-range confidence falls into the low band.
func selectBand(loc *domain.Location, params *Params) (Band, int) {
	if isTemporarilyClosed(loc.BusinessStatus, params.ClosedMarkers) {
		return BandTemporarilyClosed, params.TemporarilyClosedDays
	}

	if loc.IsProbableNotOpenYet {
		return BandNotOpenYet, params.NotOpenYetDays
	}

	if loc.State == domain.LocationStateVerified {
		reviews := loc.UserRatingsTotal
		switch {
		case reviews < params.FewReviewsBelow:
			return BandVerifiedFewReviews, params.VerifiedFewReviewsDays
		case reviews < params.ManyReviewsFrom:
			return BandVerifiedMediumReviews, params.VerifiedMediumReviewsDays
		default:
			return BandVerifiedManyReviews, params.VerifiedManyReviewsDays
		}
	}

	if loc.ConfidenceScore == nil || !domain.ValidConfidence(*loc.ConfidenceScore) {
		return BandLowConfidence, params.LowConfidenceDays
	}
	score := *loc.ConfidenceScore
	switch {
	case score < params.MediumConfidenceFrom:
		return BandLowConfidence, params.LowConfidenceDays
	case score < params.HighConfidenceFrom:
		return BandMediumConfidence, params.MediumConfidenceDays
	default:
		return BandHighConfidence, params.HighConfidenceDays
	}
}

// calculateNextCheck returns baseline + min(selected days, AbsMaxDays), where
// the baseline is the last verification instant or now when there is none.
func calculateNextCheck(loc *domain.Location, now time.Time, params *Params) time.Time {
	baseline := now
	if loc.LastVerifiedAt != nil && !loc.LastVerifiedAt.IsZero() {
		baseline = *loc.LastVerifiedAt
	}

	_, days := selectBand(loc, params)
	return baseline.Add(time.Duration(clampDays(days, params.AbsMaxDays)) * day)
}

// clampDays bounds days to [1, maxDays]. A non-positive ceiling is ignored.
func clampDays(days, maxDays int) int {
	if days < 1 {
		days = 1
	}
	if maxDays > 0 {
		days = min(days, maxDays)
	}
	return days
}

// isTemporarilyClosed reports whether status contains any of the markers,
// ignoring case.
func isTemporarilyClosed(status string, markers []string) bool {
	if status == "" {
		return false
	}
	s := strings.ToLower(status)
	for _, m := range markers {
		if m != "" && strings.Contains(s, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
