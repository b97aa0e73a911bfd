package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rabbitmq/amqp091-go"

	"webstore/internal/bus"
)

// RabbitQueue is a durable queue bound to the notification exchange.
// The broker enforces the dead-letter policy: a quorum queue with a
// delivery limit dead-letters messages into <queue>.dlq after
// MaxReceive failed attempts; both queues carry retention TTLs.
type RabbitQueue struct {
	conn   *amqp091.Connection
	queue  string
	policy Policy
	logger *slog.Logger
}

func NewRabbitQueue(url, exchange, queue string, filter bus.Filter, policy Policy, logger *slog.Logger) (*RabbitQueue, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	dlx := queue + ".dlx"
	if err := ch.ExchangeDeclare(dlx, "fanout", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare dead-letter exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(queue+".dlq", true, false, false, false, dlqArgs(policy)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare dead-letter queue: %w", err)
	}
	if err := ch.QueueBind(queue+".dlq", "", dlx, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("bind dead-letter queue: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, primaryArgs(dlx, policy)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := bus.BindFiltered(ch, queue, exchange, filter); err != nil {
		conn.Close()
		return nil, err
	}

	return &RabbitQueue{
		conn:   conn,
		queue:  queue,
		policy: policy,
		logger: logger,
	}, nil
}

// primaryArgs builds the main queue's declaration table. The broker's
// x-delivery-limit counts redeliveries, not receive attempts: a message
// is dead-lettered once x-delivery-count exceeds the limit. Declaring
// MaxReceive-1 therefore dead-letters on the MaxReceive'th failed
// attempt instead of surfacing one extra delivery.
func primaryArgs(dlx string, policy Policy) amqp091.Table {
	return amqp091.Table{
		"x-queue-type":           "quorum",
		"x-delivery-limit":       int32(policy.MaxReceive - 1),
		"x-message-ttl":          policy.Retention.Milliseconds(),
		"x-dead-letter-exchange": dlx,
	}
}

func dlqArgs(policy Policy) amqp091.Table {
	return amqp091.Table{
		"x-message-ttl": policy.DLQRetention.Milliseconds(),
	}
}

// Start blocks consuming batches until ctx is done. A batch is handed to
// handler once BatchSize messages accumulated or BatchWindow elapsed
// since the batch's first message. Acknowledgment is all-or-nothing: a
// handler error nacks the whole batch for redelivery.
func (q *RabbitQueue) Start(ctx context.Context, handler BatchHandler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	if err := ch.Qos(q.policy.BatchSize*2, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("consume queue: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = ch.Cancel("", false)
		ch.Close()
	}()

	for {
		batch, ok := collect(ctx, msgs, q.policy.BatchSize, q.policy.BatchWindow)
		if !ok {
			return nil
		}
		if len(batch) == 0 {
			continue
		}
		q.handleBatch(ctx, batch, handler)
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (q *RabbitQueue) handleBatch(ctx context.Context, batch []amqp091.Delivery, handler BatchHandler) {
	messages := make([]Message, 0, len(batch))
	for _, d := range batch {
		messages = append(messages, Message{
			ID:           d.MessageId,
			Body:         d.Body,
			EventType:    headerString(d.Headers, "eventType"),
			ReceiveCount: deliveryCount(d.Headers),
		})
	}

	if err := handler(ctx, messages); err != nil {
		q.logger.Error("batch failed, requeueing", "queue", q.queue, "size", len(batch), "err", err)
		for _, d := range batch {
			_ = d.Nack(false, true)
		}
		return
	}

	for _, d := range batch {
		_ = d.Ack(false)
	}
}

func headerString(headers amqp091.Table, key string) string {
	if v, ok := headers[key].(string); ok {
		return v
	}
	return ""
}

// deliveryCount reads the quorum queue's x-delivery-count header, which
// counts prior unsuccessful deliveries; the current attempt is one more.
func deliveryCount(headers amqp091.Table) int {
	switch v := headers["x-delivery-count"].(type) {
	case int32:
		return int(v) + 1
	case int64:
		return int(v) + 1
	default:
		return 1
	}
}

func (q *RabbitQueue) Close() error {
	return q.conn.Close()
}
