package bus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"webstore/internal/event"
)

const eventTypeHeader = "eventType"

// RabbitPublisher publishes envelopes to a durable topic exchange. The
// routing key and an AMQP header both carry the event type, so consumers
// can filter without decoding the body.
type RabbitPublisher struct {
	conn     *amqp091.Connection
	exchange string
}

func NewRabbitPublisher(url, exchange string) (*RabbitPublisher, error) {
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

	if err := declareExchange(ch, exchange); err != nil {
		conn.Close()
		return nil, err
	}

	return &RabbitPublisher{conn: conn, exchange: exchange}, nil
}

func declareExchange(ch *amqp091.Channel, exchange string) error {
	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	return nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, env event.Envelope) (string, error) {
	if err := env.Validate(); err != nil {
		return "", err
	}
	body, err := env.Encode()
	if err != nil {
		return "", err
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return "", fmt.Errorf("open channel: %w: %w", ErrBusUnavailable, err)
	}
	defer ch.Close()

	messageID := uuid.NewString()
	err = ch.PublishWithContext(ctx, p.exchange, string(env.Type), false, false, amqp091.Publishing{
		ContentType: "application/json",
		MessageId:   messageID,
		Headers:     amqp091.Table{eventTypeHeader: string(env.Type)},
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("publish event: %w: %w", ErrBusUnavailable, err)
	}
	return messageID, nil
}

func (p *RabbitPublisher) Close() error {
	return p.conn.Close()
}

// RabbitSubscription consumes one queue bound to the notification
// exchange. The filter is applied broker-side: one binding per allowed
// event type, or a catch-all binding when the filter is empty.
type RabbitSubscription struct {
	conn   *amqp091.Connection
	queue  string
	logger *slog.Logger
}

func NewRabbitSubscription(url, exchange, queue string, filter Filter, logger *slog.Logger) (*RabbitSubscription, error) {
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

	if err := declareExchange(ch, exchange); err != nil {
		conn.Close()
		return nil, err
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := BindFiltered(ch, queue, exchange, filter); err != nil {
		conn.Close()
		return nil, err
	}

	return &RabbitSubscription{
		conn:   conn,
		queue:  queue,
		logger: logger,
	}, nil
}

// BindFiltered binds queue to exchange once per allowed event type, or
// with a catch-all key when the filter admits everything.
func BindFiltered(ch *amqp091.Channel, queue, exchange string, filter Filter) error {
	keys := []string{"#"}
	if len(filter.Types) > 0 {
		keys = keys[:0]
		for _, t := range filter.Types {
			keys = append(keys, string(t))
		}
	}
	for _, key := range keys {
		if err := ch.QueueBind(queue, key, exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue: %w", err)
		}
	}
	return nil
}

// Start blocks consuming the subscription's queue until ctx is done.
// Handler errors nack with requeue; undecodable envelopes are dropped.
func (s *RabbitSubscription) Start(ctx context.Context, handler Handler) error {
	ch, err := s.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	if err := ch.Qos(32, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.Consume(s.queue, "", false, false, false, false, nil)
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
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				s.logger.Info("subscription channel closed", "queue", s.queue)
				return nil
			}
			s.handle(ctx, msg, handler)
		}
	}
}

func (s *RabbitSubscription) handle(ctx context.Context, msg amqp091.Delivery, handler Handler) {
	env, err := event.Decode(msg.Body)
	if err != nil {
		s.logger.Error("invalid envelope", "queue", s.queue, "err", err)
		_ = msg.Nack(false, false)
		return
	}

	d := Delivery{
		Envelope:    env,
		MessageID:   msg.MessageId,
		Redelivered: msg.Redelivered,
	}
	if err := handler(ctx, d); err != nil {
		s.logger.Error("handle delivery failed", "queue", s.queue, "event_type", env.Type, "err", err)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

func (s *RabbitSubscription) Close() error {
	return s.conn.Close()
}
