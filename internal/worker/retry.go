package worker

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"virkum-respond/internal/domain"

	"go.uber.org/zap"
)

// RetryingGenerator повторяет генерацию при ошибке провайдера или таймауте
// с экспоненциальной задержкой и джиттером ±10%.
// attemptTimeout ограничивает каждую попытку отдельно, ctx вызывающего только отменяет повторы.
type RetryingGenerator struct {
	next           Generator
	maxAttempts    int
	baseDelay      time.Duration
	attemptTimeout time.Duration
	logger         *zap.Logger
}

// NewRetryingGenerator оборачивает next. При maxAttempts <= 1 возвращает next без обертки.
// attemptTimeout 0 означает попытки без собственного таймаута.
func NewRetryingGenerator(next Generator, maxAttempts int, baseDelay, attemptTimeout time.Duration, logger *zap.Logger) Generator {
	if maxAttempts <= 1 {
		return next
	}
	return &RetryingGenerator{
		next:           next,
		maxAttempts:    maxAttempts,
		baseDelay:      baseDelay,
		attemptTimeout: attemptTimeout,
		logger:         logger.Named("retrying_generator"),
	}
}

func (g *RetryingGenerator) Generate(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error) {
	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		res, err := g.attempt(ctx, req)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !retryable(err) || attempt == g.maxAttempts || ctx.Err() != nil {
			break
		}

		wait := backoffDelay(g.baseDelay, attempt)
		g.logger.Debug("Retrying generation",
			zap.String("company", req.Company.Name),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.GenerationResult{}, lastErr
		case <-timer.C:
		}
	}
	return domain.GenerationResult{}, lastErr
}

func (g *RetryingGenerator) attempt(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error) {
	attemptCtx, cancel := withOptionalTimeout(ctx, g.attemptTimeout)
	defer cancel()
	res, err := g.next.Generate(attemptCtx, req)
	if err != nil {
		return domain.GenerationResult{}, classifyFailure(attemptCtx, err)
	}
	return res, nil
}

func retryable(err error) bool {
	var f *domain.GenerationFailure
	if !errors.As(err, &f) {
		return true
	}
	return f.Reason == domain.ReasonProviderError || f.Reason == domain.ReasonTimeout
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := float64(base) * math.Pow(2, float64(attempt-1))
	jitter := delay * 0.1
	delay += jitter * (rand.Float64()*2 - 1)
	wait := time.Duration(delay)
	if wait < base {
		wait = base
	}
	return wait
}
