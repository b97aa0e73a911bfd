// Package payments hosts the payment-side listener for new orders.
package payments

import (
	"context"
	"log/slog"

	"webstore/internal/bus"
	"webstore/internal/event"
)

// Listener receives ORDER_CREATED envelopes directly from the bus and
// hands them to the payment backend. The current backend is a log-only
// pass-through.
type Listener struct {
	logger *slog.Logger
}

func NewListener(logger *slog.Logger) *Listener {
	return &Listener{logger: logger}
}

// Filter restricts the listener's subscription to new orders.
func Filter() bus.Filter {
	return bus.Filter{Types: []event.Type{event.OrderCreated}}
}

func (l *Listener) HandleDelivery(_ context.Context, d bus.Delivery) error {
	l.logger.Info("payment event received",
		"event_type", d.Envelope.Type,
		"order_id", d.Envelope.Data.OrderID,
		"total", d.Envelope.Data.Billing.Total,
		"message_id", d.MessageID,
		"request_id", d.Envelope.Data.RequestID,
	)
	return nil
}
