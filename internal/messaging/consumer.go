package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"virkum-respond/internal/domain"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Пауза перед возвратом сообщения в очередь, когда все слоты прогонов заняты.
const requeueDelay = 2 * time.Second

// RunStarter запускает прогон по запросу
type RunStarter interface {
	StartRun(ctx context.Context, req domain.RunRequest) (uuid.UUID, error)
}

type deliveryAction int

const (
	actionAck deliveryAction = iota
	actionReject
	actionRequeue
)

// RunRequestConsumer читает запросы на прогон из RabbitMQ.
type RunRequestConsumer struct {
	conn      *amqp.Connection
	queueName string
	starter   RunStarter
	logger    *zap.Logger
}

// NewRunRequestConsumer создает консьюмер.
func NewRunRequestConsumer(conn *amqp.Connection, queueName string, starter RunStarter, logger *zap.Logger) *RunRequestConsumer {
	return &RunRequestConsumer{conn: conn, queueName: queueName, starter: starter, logger: logger.Named("run_request_consumer")}
}

// Run объявляет очередь и обрабатывает сообщения по одному до отмены ctx.
func (c *RunRequestConsumer) Run(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if _, err := DeclareRunRequestQueue(ch, c.queueName); err != nil {
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.Consume(c.queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queueName, err)
	}
	c.logger.Info("Waiting for run requests", zap.String("queue", c.queueName))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Run request consumer stopped")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			c.settle(ctx, d, c.handle(ctx, d.Body))
		}
	}
}

func (c *RunRequestConsumer) settle(ctx context.Context, d amqp.Delivery, action deliveryAction) {
	var err error
	switch action {
	case actionAck:
		err = d.Ack(false)
	case actionReject:
		err = d.Nack(false, false)
	case actionRequeue:
		select {
		case <-ctx.Done():
		case <-time.After(requeueDelay):
		}
		err = d.Nack(false, true)
	}
	if err != nil {
		c.logger.Error("Failed to settle delivery", zap.Uint64("deliveryTag", d.DeliveryTag), zap.Error(err))
	}
}

// handle разбирает запрос и запускает прогон.
// Неверные запросы уходят в DLQ, при нехватке слотов сообщение возвращается в очередь.
func (c *RunRequestConsumer) handle(ctx context.Context, body []byte) deliveryAction {
	var req domain.RunRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.logger.Warn("Invalid run request payload, sending to DLQ", zap.Error(err))
		return actionReject
	}

	runID, err := c.starter.StartRun(ctx, req)
	switch {
	case err == nil:
		c.logger.Info("Run started from queue", zap.String("runID", runID.String()), zap.Int("numEmails", req.NumEmails))
		return actionAck
	case errors.Is(err, domain.ErrTooManyRuns):
		c.logger.Info("Run slots busy, requeueing request")
		return actionRequeue
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrNotFound):
		c.logger.Warn("Run request rejected, sending to DLQ", zap.Error(err))
		return actionReject
	default:
		c.logger.Error("Failed to start run, sending to DLQ", zap.Error(err))
		return actionReject
	}
}
