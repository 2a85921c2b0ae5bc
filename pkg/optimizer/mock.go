package optimizer

import (
	"context"

	"github.com/ergbridge/ergbridge/pkg/types"
	"github.com/stretchr/testify/mock"
)

// MockClient is a testify mock of Client for coordinator tests.
type MockClient struct {
	mock.Mock
}

var _ Client = (*MockClient)(nil)

func (m *MockClient) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockClient) Schedule(ctx context.Context, req types.ScheduleRequest) (*types.ScheduleResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*types.ScheduleResponse)
	return resp, args.Error(1)
}
