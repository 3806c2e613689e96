package llm

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient is a mock implementation of Client using testify/mock.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Answer(ctx context.Context, orgID, question, contextText string) (string, float32, error) {
	args := m.Called(ctx, orgID, question, contextText)
	return args.String(0), args.Get(1).(float32), args.Error(2)
}
