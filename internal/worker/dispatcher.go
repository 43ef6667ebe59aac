// Package worker выполняет прогон: пул воркеров, журнал событий и сводка.
package worker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"virkum-respond/internal/classifier"
	"virkum-respond/internal/domain"
	"virkum-respond/internal/prompt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Generator генерирует и оценивает письмо. Ошибка приводится к *domain.GenerationFailure.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error)
}

// Sender делает одну попытку отправки.
type Sender interface {
	Send(ctx context.Context, msg domain.OutboundMessage) domain.SendOutcome
}

// DispatcherConfig таймауты внешних вызовов одной задачи. 0 = без таймаута.
// GenerateTimeout ограничивает весь вызов генератора, включая повторы RetryingGenerator.
type DispatcherConfig struct {
	GenerateTimeout time.Duration
	SendTimeout     time.Duration
}

// Dispatcher выполняет прогон фиксированным пулом воркеров.
type Dispatcher struct {
	generator Generator
	sender    Sender
	cfg       DispatcherConfig
	metrics   *Metrics
	logger    *zap.Logger
}

// NewDispatcher создает диспетчер. sender может быть nil, если автоотправка не используется.
func NewDispatcher(generator Generator, sender Sender, cfg DispatcherConfig, metrics *Metrics, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		generator: generator,
		sender:    sender,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger.Named("dispatcher"),
	}
}

type task struct {
	index  int
	assign Assignment
}

// runState общее состояние прогона, защищенное одним мьютексом.
type runState struct {
	mu           sync.Mutex
	results      []domain.TaskResult
	gradeSum     float64
	gradeCount   int
	successCount int
	failureCount int
	sentCount    int
	sendFailures int
}

func (s *runState) record(r domain.TaskResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	if r.Failure != nil {
		s.failureCount++
		return
	}
	s.successCount++
	if g := r.Grade(); g != nil {
		s.gradeSum += *g
		s.gradeCount++
	}
	if r.Send != nil && r.Send.Attempted {
		if r.Send.Success {
			s.sentCount++
		} else {
			s.sendFailures++
		}
	}
}

// Validate проверяет параметры прогона до запуска задач.
func (d *Dispatcher) Validate(params domain.RunParams, policy *SelectionPolicy) error {
	switch {
	case params.TotalRequests <= 0:
		return domain.NewValidationError("total_requests", "must be at least 1")
	case params.ConcurrencyLevel <= 0:
		return domain.NewValidationError("concurrency_level", "must be at least 1")
	case policy == nil || len(policy.Candidates()) == 0:
		return domain.NewValidationError("company", "no company to generate for")
	case params.AutoSend && strings.TrimSpace(params.Recipient) == "":
		return domain.NewValidationError("recipient", "auto-send requires a recipient")
	case params.AutoSend && d.sender == nil:
		return domain.NewValidationError("auto_send", "mail relay is not configured")
	}
	return nil
}

// Run выполняет ровно params.TotalRequests задач (меньше, если ctx отменен)
// не более чем в params.ConcurrencyLevel воркерах и возвращает отчет.
// Ошибка возвращается только при неверных параметрах, до запуска задач.
func (d *Dispatcher) Run(ctx context.Context, params domain.RunParams, policy *SelectionPolicy, events *EventLog) (*domain.RunReport, error) {
	if err := d.Validate(params, policy); err != nil {
		d.metrics.runFinished("invalid")
		return nil, err
	}
	if params.RunID == uuid.Nil {
		params.RunID = uuid.New()
	}
	if events == nil {
		events = NewEventLog()
	}
	log := d.logger.With(zap.String("runID", params.RunID.String()))

	startedAt := time.Now().UTC()
	events.Append(Event{
		Kind:    EventRunStarted,
		RunID:   params.RunID,
		Message: fmt.Sprintf("%d emails, concurrency %d", params.TotalRequests, params.ConcurrencyLevel),
	})
	log.Info("Run started",
		zap.Int("totalRequests", params.TotalRequests),
		zap.Int("concurrency", params.ConcurrencyLevel),
		zap.Bool("autoSend", params.AutoSend),
	)

	state := &runState{results: make([]domain.TaskResult, 0, params.TotalRequests)}
	queue := make(chan task)

	var g errgroup.Group
	g.Go(func() error {
		defer close(queue)
		for i := 0; i < params.TotalRequests; i++ {
			t := task{index: i, assign: policy.Next()}
			select {
			case <-ctx.Done():
				return nil
			case queue <- t:
			}
		}
		return nil
	})

	// Начатые задачи доводятся до конца даже после отмены, их ограничивают таймауты вызовов.
	taskCtx := context.WithoutCancel(ctx)
	for w := 0; w < params.ConcurrencyLevel; w++ {
		g.Go(func() error {
			for t := range queue {
				if ctx.Err() != nil {
					d.metrics.taskDropped()
					idx := t.index
					events.Append(Event{Kind: EventTaskDropped, RunID: params.RunID, TaskIndex: &idx})
					continue
				}
				state.record(d.execute(taskCtx, params, t, events))
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := buildSummary(params, state, startedAt, time.Now().UTC())
	report := &domain.RunReport{Summary: summary, Tasks: state.results}

	status := "completed"
	kind := EventRunFinished
	if summary.Cancelled {
		status = "cancelled"
		kind = EventRunCancelled
	}
	d.metrics.runFinished(status)
	events.Append(Event{
		Kind:    kind,
		RunID:   params.RunID,
		Grade:   summary.AvgReplyGrade,
		Message: fmt.Sprintf("%d/%d settled, %d succeeded, %d failed", summary.TotalRequests, summary.NumEmails, summary.SuccessCount, summary.FailureCount),
	})
	log.Info("Run finished",
		zap.String("status", status),
		zap.Int("settled", summary.TotalRequests),
		zap.Int("succeeded", summary.SuccessCount),
		zap.Int("failed", summary.FailureCount),
		zap.Duration("duration", summary.Duration()),
	)
	return report, nil
}

// execute выполняет одну задачу: классификация, выбор режима, генерация и отправка.
func (d *Dispatcher) execute(ctx context.Context, params domain.RunParams, t task, events *EventLog) domain.TaskResult {
	d.metrics.taskStarted()
	defer d.metrics.taskDone()

	idx := t.index
	company := t.assign.Company
	misdirected := classifier.IsMisdirected(t.assign.InputEmail, company.Name)
	mode := prompt.SelectMode(t.assign.InputEmail != "", misdirected)

	result := domain.TaskResult{
		Index:       idx,
		Company:     company,
		Mode:        mode,
		Scenario:    t.assign.Scenario,
		InputEmail:  t.assign.InputEmail,
		Misdirected: misdirected,
		StartedAt:   time.Now().UTC(),
	}
	events.Append(Event{
		Kind:        EventTaskStarted,
		RunID:       params.RunID,
		TaskIndex:   &idx,
		Company:     company.Name,
		Mode:        mode,
		Misdirected: misdirected,
	})

	genCtx, cancel := withOptionalTimeout(ctx, d.cfg.GenerateTimeout)
	generation, err := d.generator.Generate(genCtx, domain.GenerationRequest{
		Company:    company,
		Mode:       mode,
		InputEmail: t.assign.InputEmail,
	})
	if err != nil {
		err = classifyFailure(genCtx, err)
	}
	cancel()

	if err != nil {
		failure := domain.AsGenerationFailure(err)
		result.Failure = failure
		result.FinishedAt = time.Now().UTC()
		d.metrics.taskSettled(true, result.FinishedAt.Sub(result.StartedAt))
		events.Append(Event{
			Kind:      EventTaskFailed,
			RunID:     params.RunID,
			TaskIndex: &idx,
			Company:   company.Name,
			Mode:      mode,
			Reason:    failure.Reason,
			Message:   failure.Error(),
		})
		return result
	}
	result.Generation = &generation

	outcome := domain.NotAttempted()
	if params.AutoSend {
		sendCtx, cancelSend := withOptionalTimeout(ctx, d.cfg.SendTimeout)
		outcome = d.sender.Send(sendCtx, domain.OutboundMessage{
			To:          params.Recipient,
			Subject:     generation.Subject,
			Body:        generation.Body,
			CompanyName: company.Name,
		})
		cancelSend()
		if outcome.Attempted {
			d.metrics.sendAttempted(outcome.Success)
		}
	}
	result.Send = &outcome
	result.FinishedAt = time.Now().UTC()
	d.metrics.taskSettled(false, result.FinishedAt.Sub(result.StartedAt))

	sent := outcome.Success
	events.Append(Event{
		Kind:        EventTaskCompleted,
		RunID:       params.RunID,
		TaskIndex:   &idx,
		Company:     company.Name,
		Mode:        mode,
		Misdirected: misdirected,
		Grade:       generation.Grade,
		Sent:        &sent,
		Message:     outcome.Error,
	})
	return result
}

func buildSummary(params domain.RunParams, state *runState, startedAt, finishedAt time.Time) domain.RunSummary {
	state.mu.Lock()
	defer state.mu.Unlock()

	slices.SortFunc(state.results, func(a, b domain.TaskResult) int { return a.Index - b.Index })

	companies := make([]string, 0, 1)
	seen := make(map[string]struct{})
	for _, r := range state.results {
		key := domain.NormalizedName(r.Company.Name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		companies = append(companies, r.Company.Name)
	}

	var avg *float64
	if state.gradeCount > 0 {
		v := state.gradeSum / float64(state.gradeCount)
		avg = &v
	}

	return domain.RunSummary{
		RunID:            params.RunID,
		Companies:        companies,
		StartedAt:        startedAt,
		FinishedAt:       finishedAt,
		NumEmails:        params.TotalRequests,
		TotalRequests:    len(state.results),
		ConcurrencyLevel: params.ConcurrencyLevel,
		AvgReplyGrade:    avg,
		SuccessCount:     state.successCount,
		FailureCount:     state.failureCount,
		SentCount:        state.sentCount,
		SendFailureCount: state.sendFailures,
		Cancelled:        len(state.results) < params.TotalRequests,
	}
}

// classifyFailure приводит ошибку генерации к GenerationFailure.
// Ошибка провайдера после истечения дедлайна ctx считается таймаутом.
func classifyFailure(ctx context.Context, err error) *domain.GenerationFailure {
	failure := domain.AsGenerationFailure(err)
	if failure.Reason == domain.ReasonProviderError && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.NewGenerationFailure(domain.ReasonTimeout, err)
	}
	return failure
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
