package mocks

import (
	"context"

	"virkum-respond/internal/domain"
	"virkum-respond/internal/repository"
	"virkum-respond/internal/worker"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockCompanyRepository is a mock type for the CompanyRepository type
type MockCompanyRepository struct {
	mock.Mock
}

// List provides a mock function with given fields: ctx
func (_m *MockCompanyRepository) List(ctx context.Context) ([]domain.Company, error) {
	ret := _m.Called(ctx)
	var r0 []domain.Company
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]domain.Company)
	}
	return r0, ret.Error(1)
}

// Get provides a mock function with given fields: ctx, id
func (_m *MockCompanyRepository) Get(ctx context.Context, id int64) (domain.Company, error) {
	ret := _m.Called(ctx, id)
	var r0 domain.Company
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(domain.Company)
	}
	return r0, ret.Error(1)
}

// Create provides a mock function with given fields: ctx, company
func (_m *MockCompanyRepository) Create(ctx context.Context, company domain.Company) (domain.Company, error) {
	ret := _m.Called(ctx, company)
	var r0 domain.Company
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(domain.Company)
	}
	return r0, ret.Error(1)
}

// Delete provides a mock function with given fields: ctx, id
func (_m *MockCompanyRepository) Delete(ctx context.Context, id int64) error {
	ret := _m.Called(ctx, id)
	return ret.Error(0)
}

// Import provides a mock function with given fields: ctx, companies
func (_m *MockCompanyRepository) Import(ctx context.Context, companies []domain.Company) (repository.ImportResult, error) {
	ret := _m.Called(ctx, companies)
	var r0 repository.ImportResult
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(repository.ImportResult)
	}
	return r0, ret.Error(1)
}

// NewMockCompanyRepository creates a new instance of MockCompanyRepository.
func NewMockCompanyRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockCompanyRepository {
	m := &MockCompanyRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// MockTestRepository is a mock type for the TestRepository type
type MockTestRepository struct {
	mock.Mock
}

// Save provides a mock function with given fields: ctx, report
func (_m *MockTestRepository) Save(ctx context.Context, report *domain.RunReport) (int64, error) {
	ret := _m.Called(ctx, report)
	var r0 int64
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(int64)
	}
	return r0, ret.Error(1)
}

// List provides a mock function with given fields: ctx, limit
func (_m *MockTestRepository) List(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	ret := _m.Called(ctx, limit)
	var r0 []domain.RunSummary
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]domain.RunSummary)
	}
	return r0, ret.Error(1)
}

// Get provides a mock function with given fields: ctx, testID
func (_m *MockTestRepository) Get(ctx context.Context, testID int64) (domain.RunSummary, error) {
	ret := _m.Called(ctx, testID)
	var r0 domain.RunSummary
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(domain.RunSummary)
	}
	return r0, ret.Error(1)
}

// ListTasks provides a mock function with given fields: ctx, testID
func (_m *MockTestRepository) ListTasks(ctx context.Context, testID int64) ([]repository.TaskRecord, error) {
	ret := _m.Called(ctx, testID)
	var r0 []repository.TaskRecord
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]repository.TaskRecord)
	}
	return r0, ret.Error(1)
}

// NewMockTestRepository creates a new instance of MockTestRepository.
func NewMockTestRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockTestRepository {
	m := &MockTestRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// MockEventStore is a mock type for the EventStore type
type MockEventStore struct {
	mock.Mock
}

// Append provides a mock function with given fields: ctx, runID, events
func (_m *MockEventStore) Append(ctx context.Context, runID uuid.UUID, events []worker.Event) error {
	ret := _m.Called(ctx, runID, events)
	return ret.Error(0)
}

// List provides a mock function with given fields: ctx, runID, offset
func (_m *MockEventStore) List(ctx context.Context, runID uuid.UUID, offset int) ([]worker.Event, error) {
	ret := _m.Called(ctx, runID, offset)
	var r0 []worker.Event
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]worker.Event)
	}
	return r0, ret.Error(1)
}

// SaveSummary provides a mock function with given fields: ctx, summary
func (_m *MockEventStore) SaveSummary(ctx context.Context, summary domain.RunSummary) error {
	ret := _m.Called(ctx, summary)
	return ret.Error(0)
}

// GetSummary provides a mock function with given fields: ctx, runID
func (_m *MockEventStore) GetSummary(ctx context.Context, runID uuid.UUID) (domain.RunSummary, error) {
	ret := _m.Called(ctx, runID)
	var r0 domain.RunSummary
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(domain.RunSummary)
	}
	return r0, ret.Error(1)
}

// NewMockEventStore creates a new instance of MockEventStore.
func NewMockEventStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockEventStore {
	m := &MockEventStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var (
	_ repository.CompanyRepository = (*MockCompanyRepository)(nil)
	_ repository.TestRepository    = (*MockTestRepository)(nil)
	_ repository.EventStore        = (*MockEventStore)(nil)
)
