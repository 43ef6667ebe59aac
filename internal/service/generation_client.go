package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"virkum-respond/internal/domain"
	"virkum-respond/internal/prompt"

	"go.uber.org/zap"
)

// Температура оценщика фиксирована, чтобы оценки были сопоставимы между прогонами.
const graderTemperature = 0.0

// Оценщик отвечает одним числом, длинный ответ не нужен.
const graderMaxTokens = 10

var gradeNumberRe = regexp.MustCompile(`(\d+(\.\d+)?)`)

// GenerationClientConfig параметры клиента генерации.
type GenerationClientConfig struct {
	Model          string
	GraderModel    string
	Temperature    float64
	MaxTokens      int
	DisableGrading bool
}

// GenerationClient генерирует письмо и оценивает его.
// Внутренних повторов нет: один вызов генерации и один вызов оценки.
type GenerationClient struct {
	ai     AIClient
	cfg    GenerationClientConfig
	logger *zap.Logger
}

// NewGenerationClient создает GenerationClient.
func NewGenerationClient(ai AIClient, cfg GenerationClientConfig, logger *zap.Logger) *GenerationClient {
	if cfg.GraderModel == "" {
		cfg.GraderModel = cfg.Model
	}
	return &GenerationClient{ai: ai, cfg: cfg, logger: logger.Named("generation_client")}
}

type generatedEmail struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Generate выполняет генерацию. Ошибка всегда *domain.GenerationFailure.
func (c *GenerationClient) Generate(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error) {
	log := c.logger.With(zap.String("company", req.Company.Name), zap.String("mode", string(req.Mode)))

	systemPrompt, userInput, err := prompt.Build(req)
	if err != nil {
		return domain.GenerationResult{}, domain.NewGenerationFailure(domain.ReasonProviderError, err)
	}

	temperature := c.cfg.Temperature
	maxTokens := c.cfg.MaxTokens
	startTime := time.Now()
	raw, _, err := c.ai.GenerateText(ctx, systemPrompt, userInput, GenerationParams{
		Model:        c.cfg.Model,
		Temperature:  &temperature,
		MaxTokens:    &maxTokens,
		JSONResponse: true,
	})
	latency := time.Since(startTime)
	if err != nil {
		failure := classifyGenerationError(ctx, err)
		log.Warn("Generation failed", zap.String("reason", string(failure.Reason)), zap.Error(err))
		return domain.GenerationResult{}, failure
	}

	var email generatedEmail
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &email); err != nil {
		log.Warn("Generation returned invalid JSON", zap.Error(err), zap.Int("responseLength", len(raw)))
		return domain.GenerationResult{}, domain.NewGenerationFailure(domain.ReasonMalformedPayload, err)
	}
	if strings.TrimSpace(email.Body) == "" {
		log.Warn("Generation returned JSON without body")
		return domain.GenerationResult{}, domain.NewGenerationFailure(domain.ReasonMalformedPayload, errors.New(`missing "body" field`))
	}

	result := domain.GenerationResult{
		Subject: scrubPlaceholders(strings.TrimSpace(email.Subject), req.Company.Name),
		Body:    scrubPlaceholders(strings.TrimSpace(email.Body), req.Company.Name),
		Model:   c.cfg.Model,
		Latency: latency,
	}

	if !c.cfg.DisableGrading {
		result.Grade = c.grade(ctx, req, result.Body, log)
	}
	return result, nil
}

// grade запрашивает оценку 1–10 и нормирует ее в [0,1]. Любая ошибка дает nil.
func (c *GenerationClient) grade(ctx context.Context, req domain.GenerationRequest, body string, log *zap.Logger) *float64 {
	gradingPrompt := prompt.BuildGrading(req.Company.Name, domain.ScenarioTitle(req.InputEmail), req.InputEmail, body)
	temperature := graderTemperature
	maxTokens := graderMaxTokens
	raw, _, err := c.ai.GenerateText(ctx, gradingPrompt, "", GenerationParams{
		Model:       c.cfg.GraderModel,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		log.Warn("Grading failed, result left ungraded", zap.Error(err))
		return nil
	}
	grade, ok := parseGrade(raw)
	if !ok {
		log.Warn("Grader response has no number", zap.String("response", raw))
		return nil
	}
	return &grade
}

// parseGrade берет первое число из ответа, ограничивает [1,10] и делит на 10.
func parseGrade(raw string) (float64, bool) {
	match := gradeNumberRe.FindString(raw)
	if match == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	v = min(max(v, 1), 10)
	return v / 10, true
}

func classifyGenerationError(ctx context.Context, err error) *domain.GenerationFailure {
	var netErr net.Error
	switch {
	case errors.Is(err, ErrAICredentials):
		return domain.NewGenerationFailure(domain.ReasonCredentials, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return domain.NewGenerationFailure(domain.ReasonTimeout, err)
	case errors.Is(err, ErrAIEmptyResponse):
		return domain.NewGenerationFailure(domain.ReasonMalformedPayload, err)
	default:
		return domain.NewGenerationFailure(domain.ReasonProviderError, fmt.Errorf("provider call: %w", err))
	}
}
