package storagemock

import (
	"context"
	"time"

	"github.com/ergbridge/ergbridge/pkg/storage"
	"github.com/ergbridge/ergbridge/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) ListJobs(ctx context.Context) ([]types.JobDefinition, error) {
	args := m.Called(ctx)
	jobs, _ := args.Get(0).([]types.JobDefinition)
	return jobs, args.Error(1)
}

func (m *MockDatabase) GetJob(ctx context.Context, entityID string) (types.JobDefinition, error) {
	args := m.Called(ctx, entityID)
	job, _ := args.Get(0).(types.JobDefinition)
	return job, args.Error(1)
}

func (m *MockDatabase) UpsertJob(ctx context.Context, job types.JobDefinition) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockDatabase) RemoveJob(ctx context.Context, entityID string) error {
	args := m.Called(ctx, entityID)
	return args.Error(0)
}

func (m *MockDatabase) ListTariffs(ctx context.Context) ([]types.TariffDefinition, error) {
	args := m.Called(ctx)
	tariffs, _ := args.Get(0).([]types.TariffDefinition)
	return tariffs, args.Error(1)
}

func (m *MockDatabase) UpsertTariff(ctx context.Context, tariff types.TariffDefinition) error {
	args := m.Called(ctx, tariff)
	return args.Error(0)
}

func (m *MockDatabase) RemoveTariff(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockDatabase) LoadElapsed(ctx context.Context) (time.Time, map[string]float64, error) {
	args := m.Called(ctx)
	day, _ := args.Get(0).(time.Time)
	elapsed, _ := args.Get(1).(map[string]float64)
	return day, elapsed, args.Error(2)
}

func (m *MockDatabase) SaveElapsed(ctx context.Context, day time.Time, elapsed map[string]float64) error {
	args := m.Called(ctx, day, elapsed)
	return args.Error(0)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
