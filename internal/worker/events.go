package worker

import (
	"context"
	"iter"
	"slices"
	"sync"
	"time"

	"virkum-respond/internal/domain"

	"github.com/google/uuid"
)

// EventKind тип события журнала прогона.
type EventKind string

const (
	EventRunStarted    EventKind = "run_started"
	EventTaskStarted   EventKind = "task_started"
	EventTaskCompleted EventKind = "task_completed"
	EventTaskFailed    EventKind = "task_failed"
	EventTaskDropped   EventKind = "task_dropped"
	EventRunCancelled  EventKind = "run_cancelled"
	EventRunFinished   EventKind = "run_finished"
)

// Event запись журнала прогона.
type Event struct {
	Seq         int                  `json:"seq"`
	Kind        EventKind            `json:"kind"`
	Time        time.Time            `json:"time"`
	RunID       uuid.UUID            `json:"run_id"`
	TaskIndex   *int                 `json:"task_index,omitempty"`
	Company     string               `json:"company,omitempty"`
	Mode        domain.Mode          `json:"mode,omitempty"`
	Misdirected bool                 `json:"misdirected,omitempty"`
	Grade       *float64             `json:"grade,omitempty"`
	Reason      domain.FailureReason `json:"reason,omitempty"`
	Sent        *bool                `json:"sent,omitempty"`
	Message     string               `json:"message,omitempty"`
}

// EventLog журнал прогона только на добавление.
// Читатели получают снимок через All или ждут новых записей через Follow.
type EventLog struct {
	mu     sync.Mutex
	events []Event
	closed bool
	wake   chan struct{}
}

// NewEventLog создает пустой журнал.
func NewEventLog() *EventLog {
	return &EventLog{wake: make(chan struct{})}
}

// Append добавляет событие, проставляя Seq и время.
// После Close события не добавляются.
func (l *EventLog) Append(e Event) Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return e
	}
	e.Seq = len(l.events)
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	l.events = append(l.events, e)
	close(l.wake)
	l.wake = make(chan struct{})
	return e
}

// Close помечает журнал завершенным и будит всех ожидающих читателей.
func (l *EventLog) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.wake)
}

// Closed сообщает, закрыт ли журнал.
func (l *EventLog) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Len количество событий.
func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Since возвращает копию событий начиная с offset.
func (l *EventLog) Since(offset int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	offset = min(max(offset, 0), len(l.events))
	return slices.Clone(l.events[offset:])
}

// All снимок журнала на момент вызова.
func (l *EventLog) All() iter.Seq[Event] {
	snapshot := l.Since(0)
	return slices.Values(snapshot)
}

// Follow отдает события начиная с offset и ждет новых, пока журнал не закрыт
// и ctx не отменен.
func (l *EventLog) Follow(ctx context.Context, offset int) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		offset = max(offset, 0)
		for {
			l.mu.Lock()
			var batch []Event
			if offset < len(l.events) {
				batch = slices.Clone(l.events[offset:])
			}
			closed := l.closed
			wake := l.wake
			l.mu.Unlock()

			for _, e := range batch {
				if !yield(e) {
					return
				}
				offset++
			}
			if closed {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-wake:
			}
		}
	}
}
