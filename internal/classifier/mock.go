package classifier

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClassifier is a testify mock for Classifier.
type MockClassifier struct {
	mock.Mock
}

// Classify implements Classifier.
func (m *MockClassifier) Classify(ctx context.Context, in Input) (*Response, error) {
	args := m.Called(ctx, in)
	resp, _ := args.Get(0).(*Response)
	return resp, args.Error(1)
}
