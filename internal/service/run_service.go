package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"virkum-respond/internal/domain"
	"virkum-respond/internal/messaging"
	"virkum-respond/internal/repository"
	"virkum-respond/internal/worker"
	"virkum-respond/pkg/taskmanager"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Таймаут побочных действий после прогона: запись, архив, уведомление.
const finishTimeout = 30 * time.Second

// RunServiceConfig ограничения прогонов
type RunServiceConfig struct {
	MaxEmailsPerRun     int
	MaxConcurrencyLevel int
	RunRetention        time.Duration
	// Сценарии для UseScenarios. Пусто = domain.DefaultScenarios.
	Scenarios []string
}

// RunStatus состояние прогона для API
type RunStatus struct {
	RunID      uuid.UUID          `json:"run_id"`
	Status     string             `json:"status"`
	Summary    *domain.RunSummary `json:"summary,omitempty"`
	Error      string             `json:"error,omitempty"`
	EventCount int                `json:"event_count"`
	CreatedAt  time.Time          `json:"created_at,omitempty"`
	UpdatedAt  time.Time          `json:"updated_at,omitempty"`
}

// RunService принимает запросы на прогон, запускает их и сохраняет итоги.
type RunService struct {
	dispatcher *worker.Dispatcher
	companies  repository.CompanyRepository
	// tests, archive и publisher могут быть nil
	tests     repository.TestRepository
	archive   repository.EventStore
	publisher messaging.RunEventPublisher
	tasks     *taskmanager.Manager
	cfg        RunServiceConfig
	logger     *zap.Logger

	mu   sync.RWMutex
	logs map[uuid.UUID]*worker.EventLog
}

// NewRunService создает RunService.
func NewRunService(
	dispatcher *worker.Dispatcher,
	companies repository.CompanyRepository,
	tests repository.TestRepository,
	archive repository.EventStore,
	publisher messaging.RunEventPublisher,
	tasks *taskmanager.Manager,
	cfg RunServiceConfig,
	logger *zap.Logger,
) *RunService {
	return &RunService{
		dispatcher: dispatcher,
		companies:  companies,
		tests:      tests,
		archive:    archive,
		publisher:  publisher,
		tasks:      tasks,
		cfg:        cfg,
		logger:     logger.Named("run_service"),
		logs:       make(map[uuid.UUID]*worker.EventLog),
	}
}

// Prepare проверяет запрос и собирает параметры прогона и политику выбора.
func (s *RunService) Prepare(ctx context.Context, req domain.RunRequest) (domain.RunParams, *worker.SelectionPolicy, error) {
	if req.NumEmails < 1 {
		return domain.RunParams{}, nil, domain.NewValidationError("num_emails", "must be at least 1")
	}
	if s.cfg.MaxEmailsPerRun > 0 && req.NumEmails > s.cfg.MaxEmailsPerRun {
		return domain.RunParams{}, nil, domain.NewValidationError("num_emails", fmt.Sprintf("must be at most %d", s.cfg.MaxEmailsPerRun))
	}
	if req.ConcurrencyLevel < 1 {
		return domain.RunParams{}, nil, domain.NewValidationError("concurrency_level", "must be at least 1")
	}
	if s.cfg.MaxConcurrencyLevel > 0 && req.ConcurrencyLevel > s.cfg.MaxConcurrencyLevel {
		return domain.RunParams{}, nil, domain.NewValidationError("concurrency_level", fmt.Sprintf("must be at most %d", s.cfg.MaxConcurrencyLevel))
	}

	companies, err := s.resolveCompanies(ctx, req)
	if err != nil {
		return domain.RunParams{}, nil, err
	}

	seed := rand.Uint64()
	if req.Seed != nil {
		seed = *req.Seed
	}
	policyCfg := worker.PolicyConfig{
		Companies:  companies,
		Random:     req.RandomCompany,
		InputEmail: req.InputEmail,
		Seed:       seed,
	}
	if req.UseScenarios {
		policyCfg.Scenarios = s.cfg.Scenarios
		if len(policyCfg.Scenarios) == 0 {
			policyCfg.Scenarios = domain.DefaultScenarios
		}
	}
	policy := worker.NewSelectionPolicy(policyCfg)

	params := domain.RunParams{
		RunID:            uuid.New(),
		TotalRequests:    req.NumEmails,
		ConcurrencyLevel: req.ConcurrencyLevel,
		Recipient:        req.Recipient,
		AutoSend:         req.AutoSend,
	}
	if err := s.dispatcher.Validate(params, policy); err != nil {
		return domain.RunParams{}, nil, err
	}
	return params, policy, nil
}

func (s *RunService) resolveCompanies(ctx context.Context, req domain.RunRequest) ([]domain.Company, error) {
	switch {
	case req.CompanyID != nil && req.RandomCompany:
		return nil, domain.NewValidationError("company_id", "cannot be combined with random_company")
	case req.CompanyID != nil:
		company, err := s.companies.Get(ctx, *req.CompanyID)
		if err != nil {
			return nil, err
		}
		return []domain.Company{company}, nil
	case req.RandomCompany:
		companies, err := s.companies.List(ctx)
		if err != nil {
			return nil, err
		}
		return domain.DedupeCompanies(companies), nil
	default:
		return nil, domain.NewValidationError("company_id", "company_id or random_company is required")
	}
}

// StartRun запускает прогон в фоне и возвращает его ID.
func (s *RunService) StartRun(ctx context.Context, req domain.RunRequest) (uuid.UUID, error) {
	params, policy, err := s.Prepare(ctx, req)
	if err != nil {
		return uuid.Nil, err
	}

	events := worker.NewEventLog()
	s.mu.Lock()
	s.logs[params.RunID] = events
	s.mu.Unlock()

	err = s.tasks.Submit(ctx, params.RunID, func(taskCtx context.Context) (any, error) {
		report, runErr := s.dispatcher.Run(taskCtx, params, policy, events)
		if runErr != nil {
			s.finishFailed(params.RunID, runErr, events)
			return nil, runErr
		}
		return s.finish(report, events), nil
	})
	if err != nil {
		s.mu.Lock()
		delete(s.logs, params.RunID)
		s.mu.Unlock()
		if errors.Is(err, taskmanager.ErrTooManyTasks) {
			return uuid.Nil, fmt.Errorf("%w: %v", domain.ErrTooManyRuns, err)
		}
		return uuid.Nil, fmt.Errorf("submit run: %w", err)
	}

	s.logger.Info("Run submitted",
		zap.String("runID", params.RunID.String()),
		zap.Int("numEmails", params.TotalRequests),
		zap.Int("concurrency", params.ConcurrencyLevel),
	)
	return params.RunID, nil
}

// RunSync выполняет прогон в текущей горутине. Отмена ctx дает частичный итог.
func (s *RunService) RunSync(ctx context.Context, req domain.RunRequest, events *worker.EventLog) (*domain.RunReport, error) {
	params, policy, err := s.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = worker.NewEventLog()
	}
	report, err := s.dispatcher.Run(ctx, params, policy, events)
	if err != nil {
		events.Close()
		return nil, err
	}
	return s.finish(report, events), nil
}

// finish записывает итог, архивирует события и публикует событие завершения.
// Ошибки этих шагов только логируются и не меняют итог.
func (s *RunService) finish(report *domain.RunReport, events *worker.EventLog) *domain.RunReport {
	defer events.Close()
	ctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
	defer cancel()
	log := s.logger.With(zap.String("runID", report.Summary.RunID.String()))

	if s.tests != nil {
		testID, err := s.tests.Save(ctx, report)
		if err != nil {
			log.Error("Failed to record run", zap.Error(err))
		} else {
			report.Summary = report.Summary.WithTestID(testID)
		}
	}

	if s.archive != nil {
		if err := s.archive.Append(ctx, report.Summary.RunID, events.Since(0)); err != nil {
			log.Error("Failed to archive run events", zap.Error(err))
		}
		if err := s.archive.SaveSummary(ctx, report.Summary); err != nil {
			log.Error("Failed to archive run summary", zap.Error(err))
		}
	}

	status := string(taskmanager.StatusCompleted)
	if report.Summary.Cancelled {
		status = string(taskmanager.StatusCancelled)
	}
	s.publish(ctx, domain.RunCompletedEvent{
		RunID:     report.Summary.RunID,
		Status:    status,
		Summary:   report.Summary,
		Timestamp: time.Now().UTC(),
	})
	return report
}

func (s *RunService) finishFailed(runID uuid.UUID, runErr error, events *worker.EventLog) {
	defer events.Close()
	ctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
	defer cancel()
	s.publish(ctx, domain.RunCompletedEvent{
		RunID:     runID,
		Status:    string(taskmanager.StatusFailed),
		Summary:   domain.RunSummary{RunID: runID},
		Error:     runErr.Error(),
		Timestamp: time.Now().UTC(),
	})
}

func (s *RunService) publish(ctx context.Context, event domain.RunCompletedEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishRunCompleted(ctx, event); err != nil {
		s.logger.Error("Failed to publish run completed event", zap.String("runID", event.RunID.String()), zap.Error(err))
	}
}

// CancelRun отменяет активный прогон. Начатые задачи завершаются.
func (s *RunService) CancelRun(runID uuid.UUID) error {
	if err := s.tasks.Cancel(runID); err != nil {
		switch {
		case errors.Is(err, taskmanager.ErrTaskNotFound):
			return fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
		case errors.Is(err, taskmanager.ErrTaskNotActive):
			return fmt.Errorf("run %s: %w", runID, domain.ErrRunNotActive)
		default:
			return err
		}
	}
	s.logger.Info("Run cancellation requested", zap.String("runID", runID.String()))
	return nil
}

// GetRun возвращает состояние прогона. Для удаленных из памяти прогонов итог берется из архива.
func (s *RunService) GetRun(ctx context.Context, runID uuid.UUID) (RunStatus, error) {
	task, err := s.tasks.Get(runID)
	if err != nil {
		if !errors.Is(err, taskmanager.ErrTaskNotFound) {
			return RunStatus{}, err
		}
		if s.archive == nil {
			return RunStatus{}, fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
		}
		summary, archErr := s.archive.GetSummary(ctx, runID)
		if archErr != nil {
			return RunStatus{}, archErr
		}
		status := string(taskmanager.StatusCompleted)
		if summary.Cancelled {
			status = string(taskmanager.StatusCancelled)
		}
		return RunStatus{RunID: runID, Status: status, Summary: &summary, UpdatedAt: summary.FinishedAt}, nil
	}

	out := RunStatus{
		RunID:     runID,
		Status:    string(task.Status),
		CreatedAt: task.CreatedAt,
		UpdatedAt: task.UpdatedAt,
	}
	if report, ok := task.Result.(*domain.RunReport); ok && report != nil {
		summary := report.Summary
		out.Summary = &summary
	}
	if task.Err != nil {
		out.Error = task.Err.Error()
	}
	if events, ok := s.EventLog(runID); ok {
		out.EventCount = events.Len()
	}
	return out, nil
}

// EventLog живой журнал прогона, если он еще в памяти.
func (s *RunService) EventLog(runID uuid.UUID) (*worker.EventLog, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events, ok := s.logs[runID]
	return events, ok
}

// Events возвращает события начиная с offset из памяти или из архива.
func (s *RunService) Events(ctx context.Context, runID uuid.UUID, offset int) ([]worker.Event, error) {
	if events, ok := s.EventLog(runID); ok {
		return events.Since(offset), nil
	}
	if s.archive == nil {
		return nil, fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
	}
	events, err := s.archive.List(ctx, runID, offset)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 && offset == 0 {
		return nil, fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
	}
	return events, nil
}

// History последние записанные прогоны.
func (s *RunService) History(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if s.tests == nil {
		return nil, errors.New("run history is not available without a database")
	}
	return s.tests.List(ctx, limit)
}

// Cleanup удаляет из памяти завершенные прогоны старше RunRetention.
func (s *RunService) Cleanup() int {
	removed := s.tasks.Cleanup(s.cfg.RunRetention)
	if removed == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.logs {
		if _, err := s.tasks.Get(id); errors.Is(err, taskmanager.ErrTaskNotFound) {
			delete(s.logs, id)
		}
	}
	s.logger.Info("Finished runs cleaned up", zap.Int("removed", removed))
	return removed
}

// CleanupLoop периодически вызывает Cleanup до отмены ctx.
func (s *RunService) CleanupLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Cleanup()
		}
	}
}

// Shutdown ждет завершения активных прогонов.
func (s *RunService) Shutdown(ctx context.Context) error {
	return s.tasks.Shutdown(ctx)
}
