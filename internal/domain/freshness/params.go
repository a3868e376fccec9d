package freshness

import (
	"errors"
	"fmt"
)

// ErrInvalidParams is returned by Params.Validate when the bands are inconsistent.
var ErrInvalidParams = errors.New("invalid freshness params")

// Params defines every tunable of the freshness policy. Day counts are whole
// days added to the baseline instant.
type Params struct {
	// Status overrides, checked before any state-based band
	TemporarilyClosedDays int
	NotOpenYetDays        int

	// VERIFIED locations, banded by review count
	VerifiedFewReviewsDays    int
	VerifiedMediumReviewsDays int
	VerifiedManyReviewsDays   int
	FewReviewsBelow           int
	ManyReviewsFrom           int

	// Everything else, banded by confidence score
	LowConfidenceDays    int
	MediumConfidenceDays int
	HighConfidenceDays   int
	MediumConfidenceFrom float64
	HighConfidenceFrom   float64

	// Hard ceiling applied after band selection
	AbsMaxDays int

	// Case-insensitive substrings of business_status that mean "temporarily closed"
	ClosedMarkers []string
}

// ParamsConfig allows overriding the default parameters when creating a new
// Params instance. Zero values keep the default.
type ParamsConfig struct {
	TemporarilyClosedDays int
	NotOpenYetDays        int

	VerifiedFewReviewsDays    int
	VerifiedMediumReviewsDays int
	VerifiedManyReviewsDays   int
	FewReviewsBelow           int
	ManyReviewsFrom           int

	LowConfidenceDays    int
	MediumConfidenceDays int
	HighConfidenceDays   int
	MediumConfidenceFrom float64
	HighConfidenceFrom   float64

	AbsMaxDays int

	ClosedMarkers []string
}

// NewDefaultParams creates a new Params instance with default values
func NewDefaultParams() *Params {
	return &Params{
		TemporarilyClosedDays: 3,
		NotOpenYetDays:        14,

		VerifiedFewReviewsDays:    30,
		VerifiedMediumReviewsDays: 60,
		VerifiedManyReviewsDays:   90,
		FewReviewsBelow:           20,
		ManyReviewsFrom:           200,

		LowConfidenceDays:    3,
		MediumConfidenceDays: 7,
		HighConfidenceDays:   14,
		MediumConfidenceFrom: 0.5,
		HighConfidenceFrom:   0.8,

		AbsMaxDays: 120,

		ClosedMarkers: []string{"temporarily closed", "closed_temporarily"},
	}
}

// NewParams creates a new Params instance with custom configuration
func NewParams(config ParamsConfig) *Params {
	params := NewDefaultParams()

	overrideDays(&params.TemporarilyClosedDays, config.TemporarilyClosedDays)
	overrideDays(&params.NotOpenYetDays, config.NotOpenYetDays)

	overrideDays(&params.VerifiedFewReviewsDays, config.VerifiedFewReviewsDays)
	overrideDays(&params.VerifiedMediumReviewsDays, config.VerifiedMediumReviewsDays)
	overrideDays(&params.VerifiedManyReviewsDays, config.VerifiedManyReviewsDays)
	overrideDays(&params.FewReviewsBelow, config.FewReviewsBelow)
	overrideDays(&params.ManyReviewsFrom, config.ManyReviewsFrom)

	overrideDays(&params.LowConfidenceDays, config.LowConfidenceDays)
	overrideDays(&params.MediumConfidenceDays, config.MediumConfidenceDays)
	overrideDays(&params.HighConfidenceDays, config.HighConfidenceDays)
	if config.MediumConfidenceFrom > 0 && config.MediumConfidenceFrom <= 1 {
		params.MediumConfidenceFrom = config.MediumConfidenceFrom
	}
	if config.HighConfidenceFrom > 0 && config.HighConfidenceFrom <= 1 {
		params.HighConfidenceFrom = config.HighConfidenceFrom
	}

	overrideDays(&params.AbsMaxDays, config.AbsMaxDays)

	if len(config.ClosedMarkers) > 0 {
		params.ClosedMarkers = append([]string(nil), config.ClosedMarkers...)
	}

	return params
}

func overrideDays(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

// Validate checks that the bands are ordered so that more stable locations
// are never checked sooner than less stable ones.
func (p *Params) Validate() error {
	if p.AbsMaxDays <= 0 {
		return fmt.Errorf("%w: abs max days must be positive", ErrInvalidParams)
	}
	if p.LowConfidenceDays > p.MediumConfidenceDays || p.MediumConfidenceDays > p.HighConfidenceDays {
		return fmt.Errorf("%w: confidence bands must be non-decreasing (%d, %d, %d)",
			ErrInvalidParams, p.LowConfidenceDays, p.MediumConfidenceDays, p.HighConfidenceDays)
	}
	if p.VerifiedFewReviewsDays > p.VerifiedMediumReviewsDays ||
		p.VerifiedMediumReviewsDays > p.VerifiedManyReviewsDays {
		return fmt.Errorf("%w: review bands must be non-decreasing (%d, %d, %d)",
			ErrInvalidParams, p.VerifiedFewReviewsDays, p.VerifiedMediumReviewsDays, p.VerifiedManyReviewsDays)
	}
	if p.FewReviewsBelow > p.ManyReviewsFrom {
		return fmt.Errorf("%w: few reviews threshold %d exceeds many reviews threshold %d",
			ErrInvalidParams, p.FewReviewsBelow, p.ManyReviewsFrom)
	}
	if p.MediumConfidenceFrom > p.HighConfidenceFrom {
		return fmt.Errorf("%w: medium confidence threshold %.2f exceeds high threshold %.2f",
			ErrInvalidParams, p.MediumConfidenceFrom, p.HighConfidenceFrom)
	}
	if shortest := p.shortestOpenCycle(); p.TemporarilyClosedDays > shortest {
		return fmt.Errorf("%w: temporarily closed cycle %d exceeds shortest band %d",
			ErrInvalidParams, p.TemporarilyClosedDays, shortest)
	}
	return nil
}

// shortestOpenCycle is the smallest day count of every band other than
// temporarily closed.
func (p *Params) shortestOpenCycle() int {
	return min(
		p.NotOpenYetDays,
		p.VerifiedFewReviewsDays, p.VerifiedMediumReviewsDays, p.VerifiedManyReviewsDays,
		p.LowConfidenceDays, p.MediumConfidenceDays, p.HighConfidenceDays,
	)
}
