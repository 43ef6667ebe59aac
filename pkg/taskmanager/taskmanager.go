// Package taskmanager запускает фоновые задачи с ограничением числа активных,
// отменой, подписками на завершение и очисткой старых записей.
package taskmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrTaskExists    = errors.New("task already exists")
	ErrTooManyTasks  = errors.New("too many active tasks")
	ErrTaskNotActive = errors.New("task is not active")
	ErrClosed        = errors.New("task manager is shut down")
)

// Status статус задачи
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal сообщает, завершена ли задача.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Func функция задачи. Результат сохраняется и при отмене.
type Func func(ctx context.Context) (any, error)

// Callback вызывается один раз после завершения задачи.
type Callback func(task Task)

// Task снимок состояния задачи
type Task struct {
	ID        uuid.UUID
	Status    Status
	Message   string
	Result    any
	Err       error
	CreatedAt time.Time
	UpdatedAt time.Time
}

type entry struct {
	task      Task
	cancel    context.CancelFunc
	callbacks []Callback
	done      chan struct{}
}

// Config настройки менеджера
type Config struct {
	MaxActive int
}

// Manager управляет фоновыми задачами
type Manager struct {
	mu        sync.RWMutex
	tasks     map[uuid.UUID]*entry
	maxActive int
	closed    bool
	wg        sync.WaitGroup
}

// New создает менеджер. MaxActive <= 0 заменяется на 10.
func New(cfg Config) *Manager {
	maxActive := cfg.MaxActive
	if maxActive <= 0 {
		maxActive = 10
	}
	return &Manager{
		tasks:     make(map[uuid.UUID]*entry),
		maxActive: maxActive,
	}
}

// Submit запускает задачу с заданным ID.
// Контекст задачи не зависит от ctx, из ctx берется только логгер zerolog.
func (m *Manager) Submit(ctx context.Context, id uuid.UUID, fn Func) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if _, ok := m.tasks[id]; ok {
		return fmt.Errorf("%w: %s", ErrTaskExists, id)
	}
	if m.activeLocked() >= m.maxActive {
		return fmt.Errorf("%w: limit %d", ErrTooManyTasks, m.maxActive)
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	taskCtx := log.Ctx(ctx).WithContext(baseCtx)

	now := time.Now()
	e := &entry{
		task: Task{
			ID:        id,
			Status:    StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.tasks[id] = e

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.run(taskCtx, e, fn)
	}()
	return nil
}

func (m *Manager) run(ctx context.Context, e *entry, fn Func) {
	m.setStatus(ctx, e, StatusRunning, "task started", nil, nil)

	result, err := fn(ctx)

	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		m.setStatus(ctx, e, StatusCancelled, "task cancelled", result, err)
	case err != nil:
		log.Ctx(ctx).Error().Err(err).Str("taskID", e.task.ID.String()).Msg("task failed")
		m.setStatus(ctx, e, StatusFailed, err.Error(), result, err)
	default:
		m.setStatus(ctx, e, StatusCompleted, "task completed", result, nil)
	}
}

func (m *Manager) setStatus(ctx context.Context, e *entry, status Status, message string, result any, err error) {
	m.mu.Lock()
	e.task.Status = status
	e.task.Message = message
	e.task.UpdatedAt = time.Now()
	if status.Terminal() {
		e.task.Result = result
		e.task.Err = err
	}
	snapshot := e.task
	var callbacks []Callback
	if status.Terminal() {
		callbacks = e.callbacks
		e.callbacks = nil
		close(e.done)
	}
	m.mu.Unlock()

	log.Ctx(ctx).Info().
		Str("taskID", snapshot.ID.String()).
		Str("status", string(status)).
		Msg("task status updated")

	for _, cb := range callbacks {
		cb(snapshot)
	}
}

// Get возвращает снимок задачи.
func (m *Manager) Get(id uuid.UUID) (Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return e.task, nil
}

// Wait ждет завершения задачи или отмены ctx.
func (m *Manager) Wait(ctx context.Context, id uuid.UUID) (Task, error) {
	m.mu.RLock()
	e, ok := m.tasks[id]
	m.mu.RUnlock()
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	select {
	case <-e.done:
		return m.Get(id)
	case <-ctx.Done():
		return Task{}, ctx.Err()
	}
}

// Cancel отменяет контекст активной задачи. Статус меняется, когда функция задачи вернется.
func (m *Manager) Cancel(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if e.task.Status.Terminal() {
		return fmt.Errorf("%w: status %s", ErrTaskNotActive, e.task.Status)
	}
	e.cancel()
	return nil
}

// OnFinish регистрирует callback на завершение. Для уже завершенной задачи вызывается сразу.
func (m *Manager) OnFinish(id uuid.UUID, cb Callback) error {
	m.mu.Lock()
	e, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if !e.task.Status.Terminal() {
		e.callbacks = append(e.callbacks, cb)
		m.mu.Unlock()
		return nil
	}
	snapshot := e.task
	m.mu.Unlock()

	cb(snapshot)
	return nil
}

// Active количество незавершенных задач.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeLocked()
}

func (m *Manager) activeLocked() int {
	active := 0
	for _, e := range m.tasks {
		if !e.task.Status.Terminal() {
			active++
		}
	}
	return active
}

// Cleanup удаляет завершенные задачи старше age. Возвращает число удаленных.
func (m *Manager) Cleanup(age time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	now := time.Now()
	for id, e := range m.tasks {
		if e.task.Status.Terminal() && now.Sub(e.task.UpdatedAt) > age {
			delete(m.tasks, id)
			removed++
		}
	}
	return removed
}

// Shutdown запрещает новые задачи и ждет завершения активных.
// Если ctx истек раньше, активные задачи отменяются.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		for _, e := range m.tasks {
			if !e.task.Status.Terminal() {
				e.cancel()
			}
		}
		m.mu.Unlock()
		<-done
		return fmt.Errorf("task manager shutdown: %w", ctx.Err())
	}
}
