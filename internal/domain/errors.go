package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")
	ErrValidation    = errors.New("validation failed")
	ErrRunNotActive  = errors.New("run is not active")
	ErrTooManyRuns   = errors.New("too many active runs")
)

// ValidationError неверные параметры прогона. Возвращается до запуска задач.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// Is позволяет errors.Is(err, ErrValidation).
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError создает ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// FailureReason причина неудачной генерации.
type FailureReason string

const (
	ReasonCredentials      FailureReason = "credentials"
	ReasonProviderError    FailureReason = "provider_error"
	ReasonMalformedPayload FailureReason = "malformed_payload"
	ReasonTimeout          FailureReason = "timeout"
)

// GenerationFailure типизированная ошибка клиента генерации.
type GenerationFailure struct {
	Reason FailureReason `json:"reason"`
	Err    error         `json:"-"`
}

func (f *GenerationFailure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("generation failed: %s", f.Reason)
	}
	return fmt.Sprintf("generation failed: %s: %v", f.Reason, f.Err)
}

func (f *GenerationFailure) Unwrap() error {
	return f.Err
}

// MarshalJSON сериализует причину вместе с текстом ошибки.
func (f *GenerationFailure) MarshalJSON() ([]byte, error) {
	out := struct {
		Reason  FailureReason `json:"reason"`
		Message string        `json:"message"`
	}{Reason: f.Reason}
	if f.Err != nil {
		out.Message = f.Err.Error()
	}
	return json.Marshal(out)
}

// UnmarshalJSON восстанавливает ошибку из архива событий.
func (f *GenerationFailure) UnmarshalJSON(data []byte) error {
	var in struct {
		Reason  FailureReason `json:"reason"`
		Message string        `json:"message"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	f.Reason = in.Reason
	f.Err = nil
	if in.Message != "" {
		f.Err = errors.New(in.Message)
	}
	return nil
}

// NewGenerationFailure создает GenerationFailure.
func NewGenerationFailure(reason FailureReason, err error) *GenerationFailure {
	return &GenerationFailure{Reason: reason, Err: err}
}

// AsGenerationFailure приводит ошибку к GenerationFailure.
// Ошибки другого типа считаются ошибкой провайдера.
func AsGenerationFailure(err error) *GenerationFailure {
	var f *GenerationFailure
	if errors.As(err, &f) {
		return f
	}
	return NewGenerationFailure(ReasonProviderError, err)
}
