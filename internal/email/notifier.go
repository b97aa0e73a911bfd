// Package email sends order confirmation emails for queued ORDER_CREATED
// events.
package email

import (
	"context"
	"fmt"
	"log/slog"

	"webstore/internal/bus"
	"webstore/internal/event"
	"webstore/internal/queue"
)

// Filter restricts the email queue's subscription to new orders.
func Filter() bus.Filter {
	return bus.Filter{Types: []event.Type{event.OrderCreated}}
}

// Sender delivers one email. The production implementation is an
// external mail relay; LogSender stands in where none is configured.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogSender writes the email to the log instead of sending it.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(_ context.Context, to, subject, body string) error {
	s.Logger.Info("email sent", "to", to, "subject", subject, "body", body)
	return nil
}

// Notifier consumes batches from the durable order-events queue and
// sends one confirmation per message. A single failing message fails
// the whole batch so the queue redelivers everything.
type Notifier struct {
	sender Sender
	logger *slog.Logger
}

func NewNotifier(sender Sender, logger *slog.Logger) *Notifier {
	return &Notifier{sender: sender, logger: logger}
}

func (n *Notifier) HandleBatch(ctx context.Context, batch []queue.Message) error {
	for _, msg := range batch {
		env, err := event.Decode(msg.Body)
		if err != nil {
			return fmt.Errorf("message %s: %w", msg.ID, err)
		}
		if err := n.send(ctx, env); err != nil {
			return fmt.Errorf("message %s: %w", msg.ID, err)
		}
	}
	n.logger.Info("order confirmations sent", "count", len(batch))
	return nil
}

func (n *Notifier) send(ctx context.Context, env event.Envelope) error {
	subject := fmt.Sprintf("Order Confirmation - %s", env.Data.OrderID)
	body := fmt.Sprintf("Your order with ID %s has been received and is being processed.", env.Data.OrderID)
	return n.sender.Send(ctx, env.Data.Email, subject, body)
}
