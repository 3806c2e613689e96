package cache

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockCache is a mock implementation of Cache using testify/mock.
type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetQueryResult(ctx context.Context, orgID, key string) (*QueryResult, error) {
	args := m.Called(ctx, orgID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*QueryResult), args.Error(1)
}

func (m *MockCache) SetQueryResult(ctx context.Context, orgID, key string, result *QueryResult, ttl time.Duration) error {
	args := m.Called(ctx, orgID, key, result, ttl)
	return args.Error(0)
}

func (m *MockCache) InvalidateOrg(ctx context.Context, orgID string) error {
	args := m.Called(ctx, orgID)
	return args.Error(0)
}

func (m *MockCache) Close() error {
	args := m.Called()
	return args.Error(0)
}
