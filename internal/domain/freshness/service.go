package freshness

import (
	"errors"
	"time"

	"github.com/phrazzld/freshness/internal/domain"
)

// ErrNilLocation is returned when the policy is asked about a nil location.
var ErrNilLocation = errors.New("location cannot be nil")

// Service defines the interface for freshness policy operations. It is pure:
// implementations perform no I/O and depend only on their arguments.
type Service interface {
	// NextCheck computes when loc should next be re-verified.
	NextCheck(loc *domain.Location, now time.Time) (time.Time, error)

	// Band reports which rule NextCheck would apply to loc.
	Band(loc *domain.Location) (Band, error)
}

// defaultService is the standard implementation of the Service interface
type defaultService struct {
	params *Params
}

// NewDefaultService creates a new policy service with default parameters
func NewDefaultService() Service {
	return &defaultService{
		params: NewDefaultParams(),
	}
}

// NewServiceWithParams creates a new policy service with custom parameters.
// A nil params value uses the defaults.
func NewServiceWithParams(params *Params) Service {
	if params == nil {
		params = NewDefaultParams()
	}
	return &defaultService{
		params: params,
	}
}

// NextCheck implements the Service interface
func (s *defaultService) NextCheck(loc *domain.Location, now time.Time) (time.Time, error) {
	if loc == nil {
		return time.Time{}, ErrNilLocation
	}
	return calculateNextCheck(loc, now.UTC(), s.params).UTC(), nil
}

// Band implements the Service interface
func (s *defaultService) Band(loc *domain.Location) (Band, error) {
	if loc == nil {
		return "", ErrNilLocation
	}
	band, _ := selectBand(loc, s.params)
	return band, nil
}
