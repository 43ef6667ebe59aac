package mocks

import (
	"context"

	"virkum-respond/internal/domain"
	"virkum-respond/internal/messaging"

	"github.com/stretchr/testify/mock"
)

// MockRunEventPublisher is a mock type for the RunEventPublisher type
type MockRunEventPublisher struct {
	mock.Mock
}

// PublishRunCompleted provides a mock function with given fields: ctx, event
func (_m *MockRunEventPublisher) PublishRunCompleted(ctx context.Context, event domain.RunCompletedEvent) error {
	ret := _m.Called(ctx, event)
	return ret.Error(0)
}

// NewMockRunEventPublisher creates a new instance of MockRunEventPublisher.
func NewMockRunEventPublisher(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockRunEventPublisher {
	m := &MockRunEventPublisher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ messaging.RunEventPublisher = (*MockRunEventPublisher)(nil)
