package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"virkum-respond/internal/config"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var (
	// ErrAIGenerationFailed - ошибка при генерации текста AI
	ErrAIGenerationFailed = errors.New("ai generation failed")
	// ErrAICredentials - ключ API не задан или отклонен провайдером
	ErrAICredentials = errors.New("ai credentials missing or rejected")
	// ErrAIEmptyResponse - провайдер вернул ответ без содержимого
	ErrAIEmptyResponse = errors.New("ai returned empty response")
)

var (
	aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loadtest_ai_requests_total",
			Help: "Total number of requests to the AI API.",
		},
		[]string{"model", "status"},
	)
	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loadtest_ai_request_duration_seconds",
			Help:    "Histogram of AI API request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)
	aiPromptTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loadtest_ai_prompt_tokens",
			Help:    "Histogram of prompt token counts.",
			Buckets: prometheus.LinearBuckets(250, 250, 20),
		},
		[]string{"model", "source"}, // source: provider | estimated
	)
	aiCompletionTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loadtest_ai_completion_tokens",
			Help:    "Histogram of completion token counts.",
			Buckets: prometheus.LinearBuckets(50, 50, 20),
		},
		[]string{"model"},
	)
)

// GenerationParams параметры генерации. Указатели отличают 0 от отсутствия значения.
type GenerationParams struct {
	Model        string // пусто = модель клиента
	Temperature  *float64
	MaxTokens    *int
	JSONResponse bool
}

// UsageInfo информация об использовании токенов
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Estimated        bool
}

// AIClient интерфейс для взаимодействия с AI API
type AIClient interface {
	// GenerateText генерирует текст по системному промту и вводу пользователя.
	GenerateText(ctx context.Context, systemPrompt string, userInput string, params GenerationParams) (string, UsageInfo, error)
}

// --- OpenAI ---

// openAIClient реализует AIClient с использованием go-openai
type openAIClient struct {
	client *openaigo.Client
	apiKey string
	model  string
	logger *zap.Logger
}

func (c *openAIClient) GenerateText(ctx context.Context, systemPrompt string, userInput string, params GenerationParams) (string, UsageInfo, error) {
	usage := UsageInfo{}
	model := modelOrDefault(params.Model, c.model)

	if c.apiKey == "" {
		aiRequestsTotal.With(prometheus.Labels{"model": model, "status": "error_credentials"}).Inc()
		return "", usage, fmt.Errorf("%w: %w: api key is not set", ErrAIGenerationFailed, ErrAICredentials)
	}
	if strings.TrimSpace(systemPrompt) == "" {
		aiRequestsTotal.With(prometheus.Labels{"model": model, "status": "error"}).Inc()
		return "", usage, fmt.Errorf("%w: системный промт пуст", ErrAIGenerationFailed)
	}

	messages := []openaigo.ChatCompletionMessage{
		{Role: openaigo.ChatMessageRoleSystem, Content: systemPrompt},
	}
	if userInput != "" {
		messages = append(messages, openaigo.ChatCompletionMessage{Role: openaigo.ChatMessageRoleUser, Content: userInput})
	}

	req := openaigo.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32Val(params.Temperature),
		MaxTokens:   intVal(params.MaxTokens),
	}
	if params.JSONResponse {
		req.ResponseFormat = &openaigo.ChatCompletionResponseFormat{Type: openaigo.ChatCompletionResponseFormatTypeJSONObject}
	}

	startTime := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	duration := time.Since(startTime)

	if err != nil {
		if isCredentialsError(err) {
			c.logger.Warn("AI API rejected credentials", zap.String("model", model), zap.Error(err))
			aiRequestsTotal.With(prometheus.Labels{"model": model, "status": "error_credentials"}).Inc()
			return "", usage, fmt.Errorf("%w: %w: %v", ErrAIGenerationFailed, ErrAICredentials, err)
		}
		c.logger.Warn("AI API request failed", zap.String("model", model), zap.Duration("duration", duration), zap.Error(err))
		aiRequestsTotal.With(prometheus.Labels{"model": model, "status": "error"}).Inc()
		return "", usage, fmt.Errorf("%w: %w", ErrAIGenerationFailed, err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		c.logger.Warn("AI API returned empty response", zap.String("model", model), zap.Duration("duration", duration))
		aiRequestsTotal.With(prometheus.Labels{"model": model, "status": "error_empty_response"}).Inc()
		return "", usage, fmt.Errorf("%w: %w", ErrAIGenerationFailed, ErrAIEmptyResponse)
	}

	aiRequestsTotal.With(prometheus.Labels{"model": model, "status": "success"}).Inc()
	aiRequestDuration.With(prometheus.Labels{"model": model}).Observe(duration.Seconds())

	text := resp.Choices[0].Message.Content
	if resp.Usage.TotalTokens > 0 {
		usage = UsageInfo{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	} else {
		// OpenAI-совместимые прокси иногда не возвращают usage
		usage = estimateUsage(model, systemPrompt+userInput, text)
	}
	observeUsage(model, usage)

	c.logger.Debug("AI response received",
		zap.String("model", model),
		zap.Duration("duration", duration),
		zap.Int("responseLength", len(text)),
		zap.Int("totalTokens", usage.TotalTokens),
	)
	return text, usage, nil
}

func isCredentialsError(err error) bool {
	var apiErr *openaigo.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden
	}
	var reqErr *openaigo.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusUnauthorized || reqErr.HTTPStatusCode == http.StatusForbidden
	}
	return false
}

// --- Ollama ---

// ollamaClient реализует AIClient с использованием ollama/api
type ollamaClient struct {
	client *api.Client
	model  string
	logger *zap.Logger
}

func newOllamaClient(cfg *config.Config, logger *zap.Logger) (AIClient, error) {
	// api.NewClient требует URL без суффикса /v1
	ollamaBaseURL := strings.TrimSuffix(strings.TrimSuffix(cfg.AIBaseURL, "/"), "/v1")

	parsedURL, err := url.Parse(ollamaBaseURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга Ollama Base URL '%s': %w", ollamaBaseURL, err)
	}

	client := api.NewClient(parsedURL, &http.Client{Timeout: cfg.AITimeout})
	logger.Info("Ollama client created", zap.String("baseURL", ollamaBaseURL), zap.String("model", cfg.AIModel))

	return &ollamaClient{client: client, model: cfg.AIModel, logger: logger}, nil
}

func (c *ollamaClient) GenerateText(ctx context.Context, systemPrompt string, userInput string, params GenerationParams) (string, UsageInfo, error) {
	usage := UsageInfo{}
	model := modelOrDefault(params.Model, c.model)

	if strings.TrimSpace(systemPrompt) == "" {
		aiRequestsTotal.With(prometheus.Labels{"model": model, "status": "error"}).Inc()
		return "", usage, fmt.Errorf("%w: системный промт пуст", ErrAIGenerationFailed)
	}

	messages := []api.Message{{Role: "system", Content: systemPrompt}}
	if userInput != "" {
		messages = append(messages, api.Message{Role: "user", Content: userInput})
	}

	stream := false
	options := map[string]interface{}{}
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	}
	req := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}
	if params.JSONResponse {
		req.Format = json.RawMessage(`"json"`)
	}

	startTime := time.Now()
	var resp api.ChatResponse
	err := c.client.Chat(ctx, req, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Warn("Ollama request failed", zap.String("model", model), zap.Duration("duration", duration), zap.Error(err))
		aiRequestsTotal.With(prometheus.Labels{"model": model, "status": "error"}).Inc()
		return "", usage, fmt.Errorf("%w: %w", ErrAIGenerationFailed, err)
	}
	if resp.Message.Content == "" {
		aiRequestsTotal.With(prometheus.Labels{"model": model, "status": "error_empty_response"}).Inc()
		return "", usage, fmt.Errorf("%w: %w", ErrAIGenerationFailed, ErrAIEmptyResponse)
	}

	aiRequestsTotal.With(prometheus.Labels{"model": model, "status": "success"}).Inc()
	aiRequestDuration.With(prometheus.Labels{"model": model}).Observe(duration.Seconds())

	usage = UsageInfo{
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
		TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
	}
	observeUsage(model, usage)

	return resp.Message.Content, usage, nil
}

// --- Общие функции ---

// NewAIClient создает клиента AI в зависимости от конфигурации
func NewAIClient(cfg *config.Config, logger *zap.Logger) (AIClient, error) {
	logger = logger.Named("ai_client")
	switch strings.ToLower(cfg.AIClientType) {
	case "openai":
		openaiConfig := openaigo.DefaultConfig(cfg.AIAPIKey)
		openaiConfig.BaseURL = cfg.AIBaseURL
		openaiConfig.HTTPClient = &http.Client{Timeout: cfg.AITimeout}
		logger.Info("OpenAI client created", zap.String("baseURL", cfg.AIBaseURL), zap.String("model", cfg.AIModel), zap.Duration("timeout", cfg.AITimeout))
		return &openAIClient{
			client: openaigo.NewClientWithConfig(openaiConfig),
			apiKey: cfg.AIAPIKey,
			model:  cfg.AIModel,
			logger: logger,
		}, nil
	case "ollama":
		return newOllamaClient(cfg, logger)
	default:
		return nil, fmt.Errorf("неизвестный тип AI клиента: '%s'", cfg.AIClientType)
	}
}

func modelOrDefault(model, def string) string {
	if model != "" {
		return model
	}
	return def
}

// estimateUsage оценивает количество токенов через tiktoken, если провайдер их не вернул
func estimateUsage(model, prompt, completion string) UsageInfo {
	tke, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tke, err = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err != nil {
			return UsageInfo{}
		}
	}
	p := len(tke.Encode(prompt, nil, nil))
	c := len(tke.Encode(completion, nil, nil))
	return UsageInfo{PromptTokens: p, CompletionTokens: c, TotalTokens: p + c, Estimated: true}
}

func observeUsage(model string, usage UsageInfo) {
	if usage.TotalTokens == 0 {
		return
	}
	source := "provider"
	if usage.Estimated {
		source = "estimated"
	}
	aiPromptTokens.With(prometheus.Labels{"model": model, "source": source}).Observe(float64(usage.PromptTokens))
	aiCompletionTokens.With(prometheus.Labels{"model": model}).Observe(float64(usage.CompletionTokens))
}

func float32Val(f64 *float64) float32 {
	if f64 == nil {
		return 0 // 0 опускается в запросе, API подставит значение по умолчанию
	}
	return float32(*f64)
}

func intVal(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
