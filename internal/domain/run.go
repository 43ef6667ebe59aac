package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunParams параметры одного прогона для диспетчера.
type RunParams struct {
	RunID            uuid.UUID
	TotalRequests    int
	ConcurrencyLevel int
	Recipient        string
	AutoSend         bool
}

// RunSummary итог прогона. Создается диспетчером один раз и больше не меняется.
type RunSummary struct {
	TestID           int64     `json:"test_id,omitempty"`
	RunID            uuid.UUID `json:"run_id"`
	Companies        []string  `json:"companies"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	NumEmails        int       `json:"num_emails"`
	TotalRequests    int       `json:"total_requests"`
	ConcurrencyLevel int       `json:"concurrency_level"`
	AvgReplyGrade    *float64  `json:"avg_reply_grade"` // [0,1], nil если оценок не было
	SuccessCount     int       `json:"success_count"`
	FailureCount     int       `json:"failure_count"`
	SentCount        int       `json:"sent_count"`
	SendFailureCount int       `json:"send_failure_count"`
	Cancelled        bool      `json:"cancelled"`
}

// WithTestID возвращает копию итога с идентификатором из хранилища.
func (s RunSummary) WithTestID(id int64) RunSummary {
	s.TestID = id
	s.Companies = append([]string(nil), s.Companies...)
	return s
}

// Duration длительность прогона.
func (s RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// RunReport итог прогона вместе с результатами задач, упорядоченными по Index.
type RunReport struct {
	Summary RunSummary   `json:"summary"`
	Tasks   []TaskResult `json:"tasks"`
}

// RunRequest запрос оператора на прогон (HTTP, RabbitMQ, CLI).
type RunRequest struct {
	CompanyID        *int64  `json:"company_id,omitempty"`
	RandomCompany    bool    `json:"random_company"`
	NumEmails        int     `json:"num_emails"`
	ConcurrencyLevel int     `json:"concurrency_level"`
	Recipient        string  `json:"recipient,omitempty"`
	AutoSend         bool    `json:"auto_send"`
	InputEmail       string  `json:"input_email,omitempty"`
	UseScenarios     bool    `json:"use_scenarios"`
	Seed             *uint64 `json:"seed,omitempty"`
}

// RunCompletedEvent сообщение о завершении прогона.
type RunCompletedEvent struct {
	RunID     uuid.UUID  `json:"run_id"`
	Status    string     `json:"status"`
	Summary   RunSummary `json:"summary"`
	Error     string     `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}
