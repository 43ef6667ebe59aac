package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"virkum-respond/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	publishTimeout  = 10 * time.Second
	publishAttempts = 3
	appID           = "virkum-respond"
)

// RunEventPublisher публикует события завершения прогонов
type RunEventPublisher interface {
	PublishRunCompleted(ctx context.Context, event domain.RunCompletedEvent) error
}

// RunRequestPublisher ставит запросы на прогон в очередь
type RunRequestPublisher interface {
	PublishRunRequest(ctx context.Context, req domain.RunRequest) error
}

type rabbitMQPublisher struct {
	channel   *amqp.Channel
	queueName string
	logger    *zap.Logger
}

// NewRunEventPublisher открывает канал и объявляет очередь событий.
func NewRunEventPublisher(conn *amqp.Connection, queueName string, logger *zap.Logger) (RunEventPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("run event publisher: open channel: %w", err)
	}
	if _, err := DeclareEventsQueue(ch, queueName); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("run event publisher: %w", err)
	}
	return &rabbitMQPublisher{channel: ch, queueName: queueName, logger: logger.Named("run_event_publisher")}, nil
}

// NewRunRequestPublisher открывает канал и объявляет очередь запросов с теми же аргументами, что и консьюмер.
func NewRunRequestPublisher(conn *amqp.Connection, queueName string, logger *zap.Logger) (RunRequestPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("run request publisher: open channel: %w", err)
	}
	if _, err := DeclareRunRequestQueue(ch, queueName); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("run request publisher: %w", err)
	}
	return &rabbitMQPublisher{channel: ch, queueName: queueName, logger: logger.Named("run_request_publisher")}, nil
}

func (p *rabbitMQPublisher) PublishRunCompleted(ctx context.Context, event domain.RunCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal run completed event %s: %w", event.RunID, err)
	}
	if err := p.publish(ctx, body); err != nil {
		return fmt.Errorf("publish run completed event %s: %w", event.RunID, err)
	}
	return nil
}

func (p *rabbitMQPublisher) PublishRunRequest(ctx context.Context, req domain.RunRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal run request: %w", err)
	}
	if err := p.publish(ctx, body); err != nil {
		return fmt.Errorf("publish run request: %w", err)
	}
	return nil
}

func (p *rabbitMQPublisher) publish(ctx context.Context, body []byte) error {
	if p.channel == nil {
		return errors.New("rabbitmq channel is not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	var err error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		err = p.channel.PublishWithContext(ctx, "", p.queueName, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
			AppId:        appID,
		})
		if err == nil {
			p.logger.Debug("Message published", zap.String("queue", p.queueName), zap.Int("attempt", attempt))
			return nil
		}
		p.logger.Warn("Publish failed", zap.String("queue", p.queueName), zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	return err
}
