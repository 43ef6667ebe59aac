package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"virkum-respond/internal/domain"
	"virkum-respond/internal/mocks"
	"virkum-respond/internal/service"
	"virkum-respond/internal/worker"
	"virkum-respond/pkg/taskmanager"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubGenerator struct {
	release chan struct{} // nil = не блокировать
}

func (g *stubGenerator) Generate(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error) {
	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return domain.GenerationResult{}, domain.NewGenerationFailure(domain.ReasonTimeout, ctx.Err())
		}
	}
	grade := 0.9
	return domain.GenerationResult{Subject: "Hi", Body: "Hello from " + req.Company.Name, Grade: &grade}, nil
}

type runServiceDeps struct {
	companies *mocks.MockCompanyRepository
	tests     *mocks.MockTestRepository
	archive   *mocks.MockEventStore
	publisher *mocks.MockRunEventPublisher
	tasks     *taskmanager.Manager
}

func newRunService(t *testing.T, gen worker.Generator, maxActive int) (*service.RunService, runServiceDeps) {
	t.Helper()
	deps := runServiceDeps{
		companies: mocks.NewMockCompanyRepository(t),
		tests:     mocks.NewMockTestRepository(t),
		archive:   mocks.NewMockEventStore(t),
		publisher: mocks.NewMockRunEventPublisher(t),
		tasks:     taskmanager.New(taskmanager.Config{MaxActive: maxActive}),
	}
	dispatcher := worker.NewDispatcher(gen, nil, worker.DispatcherConfig{}, nil, zap.NewNop())
	svc := service.NewRunService(dispatcher, deps.companies, deps.tests, deps.archive, deps.publisher, deps.tasks,
		service.RunServiceConfig{MaxEmailsPerRun: 100, MaxConcurrencyLevel: 10, RunRetention: time.Hour}, zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc, deps
}

func TestRunService_StartRun_Validation(t *testing.T) {
	companyID := int64(1)
	tests := []struct {
		name  string
		req   domain.RunRequest
		field string
	}{
		{"Zero emails", domain.RunRequest{CompanyID: &companyID, NumEmails: 0, ConcurrencyLevel: 1}, "num_emails"},
		{"Too many emails", domain.RunRequest{CompanyID: &companyID, NumEmails: 101, ConcurrencyLevel: 1}, "num_emails"},
		{"Zero concurrency", domain.RunRequest{CompanyID: &companyID, NumEmails: 1, ConcurrencyLevel: 0}, "concurrency_level"},
		{"Concurrency above limit", domain.RunRequest{CompanyID: &companyID, NumEmails: 1, ConcurrencyLevel: 11}, "concurrency_level"},
		{"No company source", domain.RunRequest{NumEmails: 1, ConcurrencyLevel: 1}, "company_id"},
		{"Both company sources", domain.RunRequest{CompanyID: &companyID, RandomCompany: true, NumEmails: 1, ConcurrencyLevel: 1}, "company_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newRunService(t, &stubGenerator{}, 2)
			_, err := svc.StartRun(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrValidation)
			var vErr *domain.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}

	t.Run("Auto-send without mail relay", func(t *testing.T) {
		svc, deps := newRunService(t, &stubGenerator{}, 2)
		deps.companies.On("Get", mock.Anything, companyID).Return(testCompany, nil).Once()
		_, err := svc.StartRun(context.Background(), domain.RunRequest{
			CompanyID: &companyID, NumEmails: 1, ConcurrencyLevel: 1, AutoSend: true, Recipient: "qa@example.com",
		})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestRunService_StartRun_UnknownCompany(t *testing.T) {
	svc, deps := newRunService(t, &stubGenerator{}, 2)
	companyID := int64(404)
	deps.companies.On("Get", mock.Anything, companyID).Return(domain.Company{}, domain.ErrNotFound).Once()

	_, err := svc.StartRun(context.Background(), domain.RunRequest{CompanyID: &companyID, NumEmails: 1, ConcurrencyLevel: 1})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunService_StartRun_RecordsAndPublishes(t *testing.T) {
	svc, deps := newRunService(t, &stubGenerator{}, 2)
	ctx := context.Background()

	deps.companies.On("List", mock.Anything).Return([]domain.Company{
		testCompany,
		{ID: 2, Name: " acme corp "},
		{ID: 3, Name: "Globex"},
	}, nil).Once()
	deps.tests.On("Save", mock.Anything, mock.MatchedBy(func(r *domain.RunReport) bool {
		return len(r.Tasks) == 4 && r.Summary.SuccessCount == 4
	})).Return(int64(42), nil).Once()
	deps.archive.On("Append", mock.Anything, mock.Anything, mock.MatchedBy(func(events []worker.Event) bool {
		return len(events) > 0 && events[len(events)-1].Kind == worker.EventRunFinished
	})).Return(nil).Once()
	deps.archive.On("SaveSummary", mock.Anything, mock.MatchedBy(func(s domain.RunSummary) bool {
		return s.TestID == 42
	})).Return(nil).Once()
	deps.publisher.On("PublishRunCompleted", mock.Anything, mock.MatchedBy(func(e domain.RunCompletedEvent) bool {
		return e.Status == "completed" && e.Summary.TestID == 42
	})).Return(nil).Once()

	seed := uint64(7)
	runID, err := svc.StartRun(ctx, domain.RunRequest{RandomCompany: true, NumEmails: 4, ConcurrencyLevel: 2, Seed: &seed})
	require.NoError(t, err)

	task, err := deps.tasks.Wait(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, taskmanager.StatusCompleted, task.Status)

	status, err := svc.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, "completed", status.Status)
	require.NotNil(t, status.Summary)
	assert.Equal(t, int64(42), status.Summary.TestID)
	assert.Equal(t, 4, status.Summary.TotalRequests)
	require.NotNil(t, status.Summary.AvgReplyGrade)
	assert.InDelta(t, 0.9, *status.Summary.AvgReplyGrade, 1e-9)

	events, ok := svc.EventLog(runID)
	require.True(t, ok)
	assert.True(t, events.Closed())
	assert.Equal(t, worker.EventRunStarted, events.Since(0)[0].Kind)
}

func TestRunService_FinishFailuresAreLogged(t *testing.T) {
	svc, deps := newRunService(t, &stubGenerator{}, 2)
	ctx := context.Background()
	companyID := int64(1)

	deps.companies.On("Get", mock.Anything, companyID).Return(testCompany, nil).Once()
	deps.tests.On("Save", mock.Anything, mock.Anything).Return(int64(0), errors.New("db down")).Once()
	deps.archive.On("Append", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down")).Once()
	deps.archive.On("SaveSummary", mock.Anything, mock.Anything).Return(errors.New("redis down")).Once()
	deps.publisher.On("PublishRunCompleted", mock.Anything, mock.Anything).Return(errors.New("amqp down")).Once()

	runID, err := svc.StartRun(ctx, domain.RunRequest{CompanyID: &companyID, NumEmails: 2, ConcurrencyLevel: 1})
	require.NoError(t, err)

	task, err := deps.tasks.Wait(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, taskmanager.StatusCompleted, task.Status)
	report, ok := task.Result.(*domain.RunReport)
	require.True(t, ok)
	assert.Zero(t, report.Summary.TestID)
	assert.Equal(t, 2, report.Summary.SuccessCount)
}

func TestRunService_TooManyRunsAndCancel(t *testing.T) {
	gen := &stubGenerator{release: make(chan struct{})}
	svc, deps := newRunService(t, gen, 1)
	ctx := context.Background()
	companyID := int64(1)

	deps.companies.On("Get", mock.Anything, companyID).Return(testCompany, nil)
	deps.tests.On("Save", mock.Anything, mock.Anything).Return(int64(7), nil).Once()
	deps.archive.On("Append", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	deps.archive.On("SaveSummary", mock.Anything, mock.Anything).Return(nil).Once()
	deps.publisher.On("PublishRunCompleted", mock.Anything, mock.MatchedBy(func(e domain.RunCompletedEvent) bool {
		return e.Status == "cancelled" && e.Summary.Cancelled
	})).Return(nil).Once()

	req := domain.RunRequest{CompanyID: &companyID, NumEmails: 5, ConcurrencyLevel: 1}
	runID, err := svc.StartRun(ctx, req)
	require.NoError(t, err)

	_, err = svc.StartRun(ctx, req)
	assert.ErrorIs(t, err, domain.ErrTooManyRuns)

	require.NoError(t, svc.CancelRun(runID))
	close(gen.release)

	task, err := deps.tasks.Wait(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, taskmanager.StatusCancelled, task.Status)
	report, ok := task.Result.(*domain.RunReport)
	require.True(t, ok)
	assert.True(t, report.Summary.Cancelled)
	assert.Less(t, report.Summary.TotalRequests, 5)

	assert.ErrorIs(t, svc.CancelRun(runID), domain.ErrRunNotActive)
	assert.ErrorIs(t, svc.CancelRun(uuid.New()), domain.ErrNotFound)
}

func TestRunService_GetRun_FallsBackToArchive(t *testing.T) {
	svc, deps := newRunService(t, &stubGenerator{}, 1)
	ctx := context.Background()

	archived := uuid.New()
	deps.archive.On("GetSummary", mock.Anything, archived).
		Return(domain.RunSummary{RunID: archived, NumEmails: 3, TotalRequests: 2, Cancelled: true}, nil).Once()
	missing := uuid.New()
	deps.archive.On("GetSummary", mock.Anything, missing).Return(domain.RunSummary{}, domain.ErrNotFound).Once()

	status, err := svc.GetRun(ctx, archived)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", status.Status)
	require.NotNil(t, status.Summary)
	assert.Equal(t, 2, status.Summary.TotalRequests)

	_, err = svc.GetRun(ctx, missing)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunService_Events_FromArchive(t *testing.T) {
	svc, deps := newRunService(t, &stubGenerator{}, 1)
	ctx := context.Background()
	runID := uuid.New()

	deps.archive.On("List", mock.Anything, runID, 1).
		Return([]worker.Event{{Seq: 1, Kind: worker.EventTaskStarted, RunID: runID}}, nil).Once()
	deps.archive.On("List", mock.Anything, runID, 0).Return([]worker.Event(nil), nil).Once()

	events, err := svc.Events(ctx, runID, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, worker.EventTaskStarted, events[0].Kind)

	_, err = svc.Events(ctx, runID, 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunService_RunSync(t *testing.T) {
	dispatcher := worker.NewDispatcher(&stubGenerator{}, nil, worker.DispatcherConfig{}, nil, zap.NewNop())
	companies := mocks.NewMockCompanyRepository(t)
	companyID := int64(1)
	companies.On("Get", mock.Anything, companyID).Return(testCompany, nil).Once()

	svc := service.NewRunService(dispatcher, companies, nil, nil, nil, taskmanager.New(taskmanager.Config{}),
		service.RunServiceConfig{}, zap.NewNop())

	events := worker.NewEventLog()
	report, err := svc.RunSync(context.Background(), domain.RunRequest{
		CompanyID: &companyID, NumEmails: 3, ConcurrencyLevel: 3, UseScenarios: true,
	}, events)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Summary.TotalRequests)
	assert.Equal(t, []string{"Acme Corp"}, report.Summary.Companies)
	assert.True(t, events.Closed())

	_, err = svc.History(context.Background(), 10)
	assert.Error(t, err)
}
