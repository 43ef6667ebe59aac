package mocks

import (
	"context"

	"virkum-respond/internal/domain"
	"virkum-respond/internal/service"

	"github.com/stretchr/testify/mock"
)

// MockMailer is a mock type for the Mailer type
type MockMailer struct {
	mock.Mock
}

// Send provides a mock function with given fields: ctx, msg
func (_m *MockMailer) Send(ctx context.Context, msg domain.OutboundMessage) error {
	ret := _m.Called(ctx, msg)
	if rf, ok := ret.Get(0).(func(context.Context, domain.OutboundMessage) error); ok {
		return rf(ctx, msg)
	}
	return ret.Error(0)
}

// NewMockMailer creates a new instance of MockMailer with expectations asserted on cleanup.
func NewMockMailer(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockMailer {
	m := &MockMailer{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ service.Mailer = (*MockMailer)(nil)
