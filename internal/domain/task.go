package domain

import "time"

// TaskResult итог одной задачи прогона. Неизменяем после завершения задачи.
// Ровно одно из Generation и Failure заполнено. Send == nil, если генерация упала.
type TaskResult struct {
	Index       int                `json:"index"`
	Company     Company            `json:"company"`
	Mode        Mode               `json:"mode"`
	Scenario    string             `json:"scenario,omitempty"`
	InputEmail  string             `json:"input_email,omitempty"`
	Misdirected bool               `json:"misdirected"`
	Generation  *GenerationResult  `json:"generation,omitempty"`
	Failure     *GenerationFailure `json:"failure,omitempty"`
	Send        *SendOutcome       `json:"send"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
}

// Succeeded сообщает, завершилась ли генерация успешно.
func (r TaskResult) Succeeded() bool {
	return r.Generation != nil
}

// Grade возвращает оценку задачи или nil.
func (r TaskResult) Grade() *float64 {
	if r.Generation == nil {
		return nil
	}
	return r.Generation.Grade
}
