package hass

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockBridge is a testify mock of StateSource and Commander for coordinator
// tests.
type MockBridge struct {
	mock.Mock
}

var (
	_ StateSource = (*MockBridge)(nil)
	_ Commander   = (*MockBridge)(nil)
)

func (m *MockBridge) IsOn(entityID string) bool {
	args := m.Called(entityID)
	return args.Bool(0)
}

func (m *MockBridge) Float(entityID string) (float64, error) {
	args := m.Called(entityID)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockBridge) SolarForecast() map[time.Time]float64 {
	args := m.Called()
	forecast, _ := args.Get(0).(map[time.Time]float64)
	return forecast
}

func (m *MockBridge) TurnOn(ctx context.Context, entityID string) error {
	args := m.Called(ctx, entityID)
	return args.Error(0)
}

func (m *MockBridge) TurnOff(ctx context.Context, entityID string) error {
	args := m.Called(ctx, entityID)
	return args.Error(0)
}
