package domain

import "time"

// Mode режим генерации письма.
type Mode string

const (
	ModeColdOutreach    Mode = "cold_outreach"
	ModeDirectReply     Mode = "direct_reply"
	ModeClarifyingReply Mode = "clarifying_reply"
)

// Valid сообщает, известен ли режим.
func (m Mode) Valid() bool {
	switch m {
	case ModeColdOutreach, ModeDirectReply, ModeClarifyingReply:
		return true
	}
	return false
}

// GenerationRequest создается один раз на задачу и не меняется.
type GenerationRequest struct {
	Company    Company
	Mode       Mode
	InputEmail string // пусто = входного письма нет
}

// HasInputEmail сообщает, есть ли входное письмо.
func (r GenerationRequest) HasInputEmail() bool {
	return r.InputEmail != ""
}

// GenerationResult результат генерации.
// Grade == nil: провайдер не смог оценить ответ, это все равно успешная генерация.
type GenerationResult struct {
	Subject string        `json:"subject"`
	Body    string        `json:"body"`
	Grade   *float64      `json:"grade"` // [0,1]
	Model   string        `json:"model"`
	Latency time.Duration `json:"latency_ns"`
}

// Graded сообщает, есть ли оценка.
func (r GenerationResult) Graded() bool {
	return r.Grade != nil
}

// OutboundMessage письмо для почтового релея.
type OutboundMessage struct {
	To          string
	Subject     string
	Body        string
	CompanyName string
}

// SendOutcome итог отправки.
// Attempted == false (автоотправка выключена или нет получателя) не является ошибкой.
type SendOutcome struct {
	Attempted bool   `json:"attempted"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// NotAttempted итог для случая, когда отправка не выполнялась.
func NotAttempted() SendOutcome {
	return SendOutcome{}
}
