package worker_test

import (
	"context"
	"testing"
	"time"

	"virkum-respond/internal/domain"
	"virkum-respond/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRetryingGenerator(t *testing.T) {
	t.Run("Single attempt returns the wrapped generator", func(t *testing.T) {
		gen := &fakeGenerator{fn: gradedResult(nil)}
		assert.Same(t, gen, worker.NewRetryingGenerator(gen, 1, time.Millisecond, 0, zap.NewNop()))
	})

	t.Run("Retries provider errors until success", func(t *testing.T) {
		gen := &fakeGenerator{}
		gen.fn = func(context.Context, domain.GenerationRequest) (domain.GenerationResult, error) {
			if gen.calls.Load() < 3 {
				return domain.GenerationResult{}, domain.NewGenerationFailure(domain.ReasonProviderError, nil)
			}
			return domain.GenerationResult{Body: "ok"}, nil
		}
		res, err := worker.NewRetryingGenerator(gen, 3, time.Millisecond, 0, zap.NewNop()).Generate(context.Background(), domain.GenerationRequest{})
		require.NoError(t, err)
		assert.Equal(t, "ok", res.Body)
		assert.Equal(t, int32(3), gen.calls.Load())
	})

	t.Run("Does not retry credentials failures", func(t *testing.T) {
		gen := &fakeGenerator{fn: func(context.Context, domain.GenerationRequest) (domain.GenerationResult, error) {
			return domain.GenerationResult{}, domain.NewGenerationFailure(domain.ReasonCredentials, nil)
		}}
		_, err := worker.NewRetryingGenerator(gen, 5, time.Millisecond, 0, zap.NewNop()).Generate(context.Background(), domain.GenerationRequest{})
		require.Error(t, err)
		assert.Equal(t, int32(1), gen.calls.Load())
	})

	t.Run("Stops waiting when context is done", func(t *testing.T) {
		gen := &fakeGenerator{fn: func(context.Context, domain.GenerationRequest) (domain.GenerationResult, error) {
			return domain.GenerationResult{}, domain.NewGenerationFailure(domain.ReasonTimeout, nil)
		}}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := worker.NewRetryingGenerator(gen, 5, time.Hour, 0, zap.NewNop()).Generate(ctx, domain.GenerationRequest{})
		require.Error(t, err)
		assert.Equal(t, int32(1), gen.calls.Load())
	})

	t.Run("Timed out attempt is retried with a fresh deadline", func(t *testing.T) {
		gen := &fakeGenerator{}
		gen.fn = func(ctx context.Context, _ domain.GenerationRequest) (domain.GenerationResult, error) {
			if gen.calls.Load() == 1 {
				<-ctx.Done()
				return domain.GenerationResult{}, ctx.Err()
			}
			return domain.GenerationResult{Body: "ok"}, nil
		}
		res, err := worker.NewRetryingGenerator(gen, 3, time.Millisecond, 20*time.Millisecond, zap.NewNop()).
			Generate(context.Background(), domain.GenerationRequest{})
		require.NoError(t, err)
		assert.Equal(t, "ok", res.Body)
		assert.Equal(t, int32(2), gen.calls.Load())
	})

	t.Run("Last timed out attempt is reported as timeout", func(t *testing.T) {
		gen := &fakeGenerator{fn: func(ctx context.Context, _ domain.GenerationRequest) (domain.GenerationResult, error) {
			<-ctx.Done()
			return domain.GenerationResult{}, ctx.Err()
		}}
		_, err := worker.NewRetryingGenerator(gen, 2, time.Millisecond, 10*time.Millisecond, zap.NewNop()).
			Generate(context.Background(), domain.GenerationRequest{})
		failure := domain.AsGenerationFailure(err)
		assert.Equal(t, domain.ReasonTimeout, failure.Reason)
		assert.Equal(t, int32(2), gen.calls.Load())
	})
}

func TestDispatcher_RetriesTimedOutGeneration(t *testing.T) {
	gen := &fakeGenerator{}
	gen.fn = func(ctx context.Context, _ domain.GenerationRequest) (domain.GenerationResult, error) {
		if gen.calls.Load() == 1 {
			<-ctx.Done()
			return domain.GenerationResult{}, ctx.Err()
		}
		return domain.GenerationResult{Subject: "s", Body: "b"}, nil
	}
	retrying := worker.NewRetryingGenerator(gen, 3, time.Millisecond, 30*time.Millisecond, zap.NewNop())
	d := worker.NewDispatcher(retrying, nil, worker.DispatcherConfig{}, nil, zap.NewNop())

	report, err := d.Run(context.Background(), domain.RunParams{TotalRequests: 1, ConcurrencyLevel: 1}, fixedPolicy(""), nil)
	require.NoError(t, err)
	require.Len(t, report.Tasks, 1)
	assert.Nil(t, report.Tasks[0].Failure)
	assert.Equal(t, 1, report.Summary.SuccessCount)
	assert.Equal(t, int32(2), gen.calls.Load())
}
