// Package queue provides the durable, batching delivery channel used by
// consumers that must not lose messages. Failed messages are redelivered
// up to a receive limit, then moved to a dead-letter queue for operator
// inspection.
package queue

import (
	"context"
	"errors"
	"time"
)

// Delivery policies, matching the notification pipeline defaults.
const (
	DefaultBatchSize    = 10
	DefaultBatchWindow  = 300 * time.Second
	DefaultMaxReceive   = 3
	DefaultRetention    = 4 * 24 * time.Hour
	DefaultDLQRetention = 10 * 24 * time.Hour
)

// ErrDeliveryExhausted marks a message that failed its final receive
// attempt and was dead-lettered. It is surfaced to operators, never to
// the request that originated the message.
var ErrDeliveryExhausted = errors.New("delivery attempts exhausted")

// Message is one queued envelope. EventType mirrors the envelope's type
// as a filterable attribute; ReceiveCount counts delivery attempts.
type Message struct {
	ID           string
	Body         []byte
	EventType    string
	ReceiveCount int
}

// BatchHandler processes one received batch. Acknowledgment is
// all-or-nothing: a non-nil error fails every message in the batch.
type BatchHandler func(ctx context.Context, batch []Message) error

// Policy configures a durable queue and its dead-letter queue.
type Policy struct {
	BatchSize    int
	BatchWindow  time.Duration
	MaxReceive   int
	Retention    time.Duration
	DLQRetention time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		BatchSize:    DefaultBatchSize,
		BatchWindow:  DefaultBatchWindow,
		MaxReceive:   DefaultMaxReceive,
		Retention:    DefaultRetention,
		DLQRetention: DefaultDLQRetention,
	}
}

// collect gathers messages from in until size is reached or window has
// elapsed since the first message, whichever comes first. It blocks for
// the first message and returns false only when ctx ends or in closes
// before anything arrives.
func collect[T any](ctx context.Context, in <-chan T, size int, window time.Duration) ([]T, bool) {
	var batch []T

	select {
	case <-ctx.Done():
		return nil, false
	case first, ok := <-in:
		if !ok {
			return nil, false
		}
		batch = append(batch, first)
	}

	timer := time.NewTimer(window)
	defer timer.Stop()

	for len(batch) < size {
		select {
		case <-ctx.Done():
			return batch, true
		case <-timer.C:
			return batch, true
		case msg, ok := <-in:
			if !ok {
				return batch, true
			}
			batch = append(batch, msg)
		}
	}
	return batch, true
}
