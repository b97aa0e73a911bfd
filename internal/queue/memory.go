package queue

import (
	"context"
	"log/slog"
	"sync"

	"webstore/internal/bus"

	"github.com/google/uuid"
)

// MemoryQueue implements the queue's visibility and dead-letter
// semantics in process, for tests and local wiring. Receive makes
// messages invisible until acknowledged; a nack past the receive limit
// moves a message to the dead-letter buffer.
type MemoryQueue struct {
	mu         sync.Mutex
	ready      []Message
	inFlight   map[string]Message
	deadLetter []Message
	maxReceive int
	logger     *slog.Logger
}

func NewMemoryQueue(maxReceive int, logger *slog.Logger) *MemoryQueue {
	return &MemoryQueue{
		inFlight:   make(map[string]Message),
		maxReceive: maxReceive,
		logger:     logger,
	}
}

// Enqueue adds one message to the queue.
func (q *MemoryQueue) Enqueue(msg Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	q.ready = append(q.ready, msg)
}

// HandleDelivery adapts the queue as a bus subscriber, mirroring a
// queue subscription on the notification topic.
func (q *MemoryQueue) HandleDelivery(_ context.Context, d bus.Delivery) error {
	body, err := d.Envelope.Encode()
	if err != nil {
		return err
	}
	q.Enqueue(Message{
		ID:        d.MessageID,
		Body:      body,
		EventType: string(d.Envelope.Type),
	})
	return nil
}

// Receive returns up to max visible messages, incrementing their
// receive counts and holding them in flight until Ack or Nack.
func (q *MemoryQueue) Receive(max int) []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := min(max, len(q.ready))
	if n == 0 {
		return nil
	}

	batch := make([]Message, n)
	copy(batch, q.ready[:n])
	q.ready = q.ready[n:]

	for i := range batch {
		batch[i].ReceiveCount++
		q.inFlight[batch[i].ID] = batch[i]
	}
	return batch
}

// Ack removes the batch from the queue permanently.
func (q *MemoryQueue) Ack(batch []Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, msg := range batch {
		delete(q.inFlight, msg.ID)
	}
}

// Nack fails the whole batch: each message becomes visible again unless
// it has exhausted its receive attempts, in which case it is
// dead-lettered and the primary queue no longer surfaces it.
func (q *MemoryQueue) Nack(batch []Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, msg := range batch {
		held, ok := q.inFlight[msg.ID]
		if !ok {
			continue
		}
		delete(q.inFlight, msg.ID)
		if held.ReceiveCount >= q.maxReceive {
			q.logger.Error("message dead-lettered",
				"message_id", held.ID, "event_type", held.EventType,
				"receive_count", held.ReceiveCount, "err", ErrDeliveryExhausted)
			q.deadLetter = append(q.deadLetter, held)
			continue
		}
		q.ready = append(q.ready, held)
	}
}

// DeadLetters returns the dead-lettered messages, oldest first.
func (q *MemoryQueue) DeadLetters() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Message, len(q.deadLetter))
	copy(out, q.deadLetter)
	return out
}

// Len reports the number of visible messages.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready)
}

// ProcessOnce receives one batch of up to size messages and runs handler
// over it with all-or-nothing acknowledgment. It reports whether any
// messages were received.
func (q *MemoryQueue) ProcessOnce(ctx context.Context, size int, handler BatchHandler) bool {
	batch := q.Receive(size)
	if len(batch) == 0 {
		return false
	}
	if err := handler(ctx, batch); err != nil {
		q.Nack(batch)
		return true
	}
	q.Ack(batch)
	return true
}
