package verification

import (
	"fmt"
	"time"

	"github.com/phrazzld/freshness/internal/classifier"
	"github.com/phrazzld/freshness/internal/domain"
	"github.com/phrazzld/freshness/internal/domain/freshness"
)

// Outcome names the effect a verdict had on a location.
type Outcome string

// Possible outcomes
const (
	OutcomeKept     Outcome = "kept"
	OutcomePromoted Outcome = "promoted"
	OutcomeRetired  Outcome = "retired"
	// OutcomeTerminal means the location was already retired or suspended
	// and was left untouched.
	OutcomeTerminal Outcome = "terminal"
)

// Apply returns the location that results from applying d to loc at now.
// loc is not modified.
//
// ignore retires the location and clears its schedule. keep records the
// category and confidence; a confidence at or above threshold promotes to
// VERIFIED, otherwise a CANDIDATE becomes PENDING_VERIFICATION and any other
// state is kept. The next check is computed from the updated location.
func Apply(
	policy freshness.Service,
	loc *domain.Location,
	d classifier.Decision,
	now time.Time,
	threshold float64,
) (*domain.Location, Outcome, error) {
	if loc.IsTerminal() {
		return loc.Clone(), OutcomeTerminal, nil
	}

	next := loc.Clone()
	confidence := d.Confidence
	verifiedAt := now
	next.ConfidenceScore = &confidence
	next.LastVerifiedAt = &verifiedAt

	switch d.Action {
	case classifier.ActionIgnore:
		next.State = domain.LocationStateRetired
		next.NextCheckAt = nil
		return next, OutcomeRetired, nil

	case classifier.ActionKeep:
		outcome := OutcomeKept
		next.Category = domain.NormalizeCategory(d.Category)
		switch {
		case confidence >= threshold:
			if next.State != domain.LocationStateVerified {
				outcome = OutcomePromoted
			}
			next.State = domain.LocationStateVerified
		case next.State == domain.LocationStateCandidate:
			next.State = domain.LocationStatePendingVerification
		}

		at, err := policy.NextCheck(next, now)
		if err != nil {
			return nil, "", fmt.Errorf("failed to compute next check: %w", err)
		}
		next.NextCheckAt = &at
		return next, outcome, nil
	}

	return nil, "", fmt.Errorf("%w: %q", ErrUnknownAction, d.Action)
}

// snapshot is the audited view of a location.
type snapshot struct {
	State           domain.LocationState `json:"state"`
	Category        string               `json:"category"`
	ConfidenceScore *float64             `json:"confidence_score,omitempty"`
	LastVerifiedAt  *time.Time           `json:"last_verified_at,omitempty"`
	NextCheckAt     *time.Time           `json:"next_check_at,omitempty"`
}

func snapshotOf(loc *domain.Location) *snapshot {
	if loc == nil {
		return nil
	}
	return &snapshot{
		State:           loc.State,
		Category:        loc.Category,
		ConfidenceScore: loc.ConfidenceScore,
		LastVerifiedAt:  loc.LastVerifiedAt,
		NextCheckAt:     loc.NextCheckAt,
	}
}
