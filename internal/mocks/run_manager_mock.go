package mocks

import (
	"context"

	"virkum-respond/internal/domain"
	"virkum-respond/internal/service"
	"virkum-respond/internal/worker"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockRunManager is a mock type for the RunManager type
type MockRunManager struct {
	mock.Mock
}

// StartRun provides a mock function with given fields: ctx, req
func (_m *MockRunManager) StartRun(ctx context.Context, req domain.RunRequest) (uuid.UUID, error) {
	ret := _m.Called(ctx, req)
	var r0 uuid.UUID
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(uuid.UUID)
	}
	return r0, ret.Error(1)
}

// GetRun provides a mock function with given fields: ctx, runID
func (_m *MockRunManager) GetRun(ctx context.Context, runID uuid.UUID) (service.RunStatus, error) {
	ret := _m.Called(ctx, runID)
	var r0 service.RunStatus
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(service.RunStatus)
	}
	return r0, ret.Error(1)
}

// CancelRun provides a mock function with given fields: runID
func (_m *MockRunManager) CancelRun(runID uuid.UUID) error {
	ret := _m.Called(runID)
	return ret.Error(0)
}

// Events provides a mock function with given fields: ctx, runID, offset
func (_m *MockRunManager) Events(ctx context.Context, runID uuid.UUID, offset int) ([]worker.Event, error) {
	ret := _m.Called(ctx, runID, offset)
	var r0 []worker.Event
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]worker.Event)
	}
	return r0, ret.Error(1)
}

// EventLog provides a mock function with given fields: runID
func (_m *MockRunManager) EventLog(runID uuid.UUID) (*worker.EventLog, bool) {
	ret := _m.Called(runID)
	var r0 *worker.EventLog
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*worker.EventLog)
	}
	return r0, ret.Bool(1)
}

// NewMockRunManager creates a new instance of MockRunManager.
func NewMockRunManager(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockRunManager {
	m := &MockRunManager{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}
