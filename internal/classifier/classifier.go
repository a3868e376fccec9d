package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/freshness/internal/domain"
)

// Classifier judges one location.
type Classifier interface {
	// Classify returns the raw model verdict for in. Implementations wrap
	// failures with ErrTransient, ErrInvalidResponse or ErrContentBlocked.
	Classify(ctx context.Context, in Input) (*Response, error)
}

// Func adapts a plain function to the Classifier interface.
type Func func(ctx context.Context, in Input) (*Response, error)

// Classify implements Classifier.
func (f Func) Classify(ctx context.Context, in Input) (*Response, error) {
	return f(ctx, in)
}

// Input is what the classifier sees about a location.
type Input struct {
	Name         string `json:"name"`
	Address      string `json:"address"`
	CategoryHint string `json:"category_hint"`
}

// Response is the raw, unvalidated classifier output.
type Response struct {
	Action          string   `json:"action"             validate:"required,oneof=keep ignore"`
	Category        *string  `json:"category,omitempty"`
	ConfidenceScore *float64 `json:"confidence_score"   validate:"required,gte=0,lte=1"`
	Reason          string   `json:"reason,omitempty"`
}

// Action is the closed set of verdicts.
type Action string

// Possible actions
const (
	ActionKeep   Action = "keep"
	ActionIgnore Action = "ignore"
)

// Decision is a validated classifier verdict.
type Decision struct {
	Action     Action
	Category   string
	Confidence float64
	Reason     string
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate converts resp into a Decision. fallbackCategory is used when the
// response carries no category; both are normalized through categories (nil
// uses the built-in table), so unknown values land in "other" instead of
// failing.
func Validate(resp *Response, fallbackCategory string, categories *domain.CategoryTable) (Decision, error) {
	if resp == nil {
		return Decision{}, fmt.Errorf("%w: empty response", ErrInvalidResponse)
	}

	normalized := *resp
	normalized.Action = strings.ToLower(strings.TrimSpace(resp.Action))
	if err := validate.Struct(normalized); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if !domain.ValidConfidence(*normalized.ConfidenceScore) {
		return Decision{}, fmt.Errorf("%w: confidence_score out of range", ErrInvalidResponse)
	}

	category := fallbackCategory
	if resp.Category != nil && strings.TrimSpace(*resp.Category) != "" {
		category = *resp.Category
	}

	return Decision{
		Action:     Action(normalized.Action),
		Category:   categories.Normalize(category),
		Confidence: *normalized.ConfidenceScore,
		Reason:     strings.TrimSpace(resp.Reason),
	}, nil
}
