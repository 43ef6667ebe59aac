// Package messaging связывает прогоны с RabbitMQ: запросы на прогон и события завершения.
package messaging

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const dlqRoutingKey = "dlq"

// DeclareRunRequestQueue объявляет очередь запросов с DLX и DLQ.
// Отклоненные без повтора сообщения попадают в <queue>_dlq.
func DeclareRunRequestQueue(ch *amqp.Channel, queueName string) (amqp.Queue, error) {
	dlxName := queueName + "_dlx"
	dlqName := queueName + "_dlq"

	if err := ch.ExchangeDeclare(dlxName, "direct", true, false, false, false, nil); err != nil {
		return amqp.Queue{}, fmt.Errorf("declare exchange %s: %w", dlxName, err)
	}
	if _, err := ch.QueueDeclare(dlqName, true, false, false, false, nil); err != nil {
		return amqp.Queue{}, fmt.Errorf("declare queue %s: %w", dlqName, err)
	}
	if err := ch.QueueBind(dlqName, dlqRoutingKey, dlxName, false, nil); err != nil {
		return amqp.Queue{}, fmt.Errorf("bind %s to %s: %w", dlqName, dlxName, err)
	}

	args := amqp.Table{
		"x-queue-mode":              "lazy",
		"x-dead-letter-exchange":    dlxName,
		"x-dead-letter-routing-key": dlqRoutingKey,
	}
	q, err := ch.QueueDeclare(queueName, true, false, false, false, args)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("declare queue %s: %w", queueName, err)
	}
	return q, nil
}

// DeclareEventsQueue объявляет очередь событий завершения прогонов.
func DeclareEventsQueue(ch *amqp.Channel, queueName string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("declare queue %s: %w", queueName, err)
	}
	return q, nil
}
