//go:build integration

package messaging_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"virkum-respond/internal/domain"
	"virkum-respond/internal/messaging"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"go.uber.org/zap"
)

type recordingStarter struct {
	requests chan domain.RunRequest
}

func (s *recordingStarter) StartRun(_ context.Context, req domain.RunRequest) (uuid.UUID, error) {
	if req.NumEmails <= 0 {
		return uuid.Nil, domain.NewValidationError("num_emails", "must be at least 1")
	}
	s.requests <- req
	return uuid.New(), nil
}

func TestRabbitMQRoundTrip(t *testing.T) {
	ctx := context.Background()
	container, err := rabbitmq.Run(ctx, "rabbitmq:3.13-management-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	url, err := container.AmqpURL(ctx)
	require.NoError(t, err)
	conn, err := amqp.Dial(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	logger := zap.NewNop()
	const requests, events = "loadtest_run_requests", "loadtest_run_events"

	starter := &recordingStarter{requests: make(chan domain.RunRequest, 1)}
	consumer := messaging.NewRunRequestConsumer(conn, requests, starter, logger)
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- consumer.Run(runCtx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	reqPublisher, err := messaging.NewRunRequestPublisher(conn, requests, logger)
	require.NoError(t, err)

	t.Run("Valid request reaches the starter", func(t *testing.T) {
		require.NoError(t, reqPublisher.PublishRunRequest(ctx, domain.RunRequest{NumEmails: 2, ConcurrencyLevel: 1, RandomCompany: true}))
		select {
		case got := <-starter.requests:
			assert.Equal(t, 2, got.NumEmails)
		case <-time.After(10 * time.Second):
			t.Fatal("run request was not consumed")
		}
	})

	t.Run("Invalid request goes to DLQ", func(t *testing.T) {
		require.NoError(t, reqPublisher.PublishRunRequest(ctx, domain.RunRequest{NumEmails: 0}))

		ch, err := conn.Channel()
		require.NoError(t, err)
		defer ch.Close()
		require.Eventually(t, func() bool {
			_, ok, err := ch.Get(requests+"_dlq", true)
			return err == nil && ok
		}, 10*time.Second, 100*time.Millisecond)
	})

	t.Run("Completion event is published", func(t *testing.T) {
		publisher, err := messaging.NewRunEventPublisher(conn, events, logger)
		require.NoError(t, err)
		runID := uuid.New()
		require.NoError(t, publisher.PublishRunCompleted(ctx, domain.RunCompletedEvent{RunID: runID, Status: "completed"}))

		ch, err := conn.Channel()
		require.NoError(t, err)
		defer ch.Close()
		var msg amqp.Delivery
		require.Eventually(t, func() bool {
			var ok bool
			msg, ok, err = ch.Get(events, true)
			return err == nil && ok
		}, 10*time.Second, 100*time.Millisecond)

		var event domain.RunCompletedEvent
		require.NoError(t, json.Unmarshal(msg.Body, &event))
		assert.Equal(t, runID, event.RunID)
	})
}
