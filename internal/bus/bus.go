// Package bus is the order-notification fan-out: one published envelope
// reaches every subscribed consumer whose filter admits its event type.
// Delivery is at-least-once with no cross-consumer ordering guarantee.
package bus

import (
	"context"
	"errors"
	"slices"

	"webstore/internal/event"
)

var ErrBusUnavailable = errors.New("notification bus unavailable")

// Delivery is one copy of a published envelope handed to a consumer.
// MessageID identifies this publication, not this delivery attempt.
type Delivery struct {
	Envelope    event.Envelope
	MessageID   string
	Redelivered bool
}

// Handler processes one delivery. A non-nil error triggers redelivery
// per the subscription's policy.
type Handler func(ctx context.Context, d Delivery) error

// Filter is a declarative allow-list over event types. The zero value
// admits every envelope.
type Filter struct {
	Types []event.Type
}

func (f Filter) Matches(t event.Type) bool {
	if len(f.Types) == 0 {
		return true
	}
	return slices.Contains(f.Types, t)
}

// Publisher accepts envelopes for fan-out. A nil error means the bus has
// durably accepted the envelope, not that any consumer processed it; the
// returned message id correlates the publication in logs and records.
type Publisher interface {
	Publish(ctx context.Context, env event.Envelope) (string, error)
	Close() error
}
