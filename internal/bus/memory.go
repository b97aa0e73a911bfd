package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"webstore/internal/event"
)

// MemoryBus is an in-process bus for tests and local wiring. Publish
// delivers inline; as with the real bus, a nil error means accepted, and
// consumer failures never reach the publisher (they are only logged).
type MemoryBus struct {
	mu     sync.RWMutex
	subs   []memorySubscription
	logger *slog.Logger
}

type memorySubscription struct {
	name    string
	filter  Filter
	handler Handler
}

func NewMemoryBus(logger *slog.Logger) *MemoryBus {
	return &MemoryBus{logger: logger}
}

func (b *MemoryBus) Subscribe(name string, filter Filter, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, memorySubscription{name: name, filter: filter, handler: handler})
}

func (b *MemoryBus) Publish(ctx context.Context, env event.Envelope) (string, error) {
	if err := env.Validate(); err != nil {
		return "", err
	}

	b.mu.RLock()
	subs := make([]memorySubscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	messageID := uuid.NewString()
	for _, sub := range subs {
		if !sub.filter.Matches(env.Type) {
			continue
		}
		d := Delivery{Envelope: env, MessageID: messageID}
		if err := sub.handler(ctx, d); err != nil {
			b.logger.Error("handle delivery failed", "subscription", sub.name, "event_type", env.Type, "err", err)
		}
	}
	return messageID, nil
}

func (b *MemoryBus) Close() error { return nil }
