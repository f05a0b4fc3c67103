// internal/queue/amqp.go
package queue

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

const retryCountHeader = "x-retry-count"

// AMQPQueue is the RabbitMQ-backed Queue. Queues are declared durable and
// messages published persistent, so the broker is the durable step runner:
// at-least-once delivery with redelivery on worker crash.
type AMQPQueue struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger zerolog.Logger
}

func NewAMQPQueue(url string, logger zerolog.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &AMQPQueue{conn: conn, ch: ch, logger: logger}, nil
}

func (q *AMQPQueue) Close() {
	q.ch.Close()
	q.conn.Close()
}

func (q *AMQPQueue) declare(queueName string) (amqp.Queue, error) {
	return q.ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
}

func (q *AMQPQueue) Publish(ctx context.Context, queueName string, payload any) error {
	return q.publishWithRetryCount(queueName, payload, 0)
}

func (q *AMQPQueue) publishWithRetryCount(queueName string, payload any, retryCount int) error {
	declared, err := q.declare(queueName)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return q.ch.Publish(
		"",
		declared.Name,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Headers:      amqp.Table{retryCountHeader: int32(retryCount)},
			Body:         body,
		},
	)
}

// Consume processes deliveries with a bounded retry budget. A failing job is
// republished with an incremented retry header and acked (a plain nack would
// redeliver immediately and lose the count). Once the budget is exhausted the
// exhausted callback runs so the caller can record the damage, then the job
// is dropped.
func (q *AMQPQueue) Consume(queueName string, maxRetries int, handler func(payload []byte) error, exhausted func(payload []byte)) error {
	declared, err := q.declare(queueName)
	if err != nil {
		return err
	}

	msgs, err := q.ch.Consume(
		declared.Name,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	for d := range msgs {
		retryCount := 0
		if v, ok := d.Headers[retryCountHeader].(int32); ok {
			retryCount = int(v)
		}

		if err := handler(d.Body); err != nil {
			if retryCount < maxRetries {
				q.logger.Warn().Err(err).Int("retry", retryCount+1).Msg("step failed, requeueing")
				if pubErr := q.publishWithRetryCount(queueName, json.RawMessage(d.Body), retryCount+1); pubErr != nil {
					q.logger.Error().Err(pubErr).Msg("requeue failed, nacking for redelivery")
					d.Nack(false, true)
					continue
				}
			} else {
				q.logger.Error().Err(err).Int("retries", retryCount).Msg("step dropped after exhausting retries")
				if exhausted != nil {
					exhausted(d.Body)
				}
			}
		}
		d.Ack(false)
	}
	return nil
}

var _ Queue = (*AMQPQueue)(nil)
