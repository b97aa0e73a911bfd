// Package recorder turns delivered envelopes into event-store history
// records.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"webstore/internal/bus"
	"webstore/internal/event"
	"webstore/internal/eventstore"
	"webstore/internal/queue"
)

const DefaultRecordTTL = 300 * time.Second

type Recorder struct {
	store  eventstore.Store
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func New(store eventstore.Store, ttl time.Duration, logger *slog.Logger) *Recorder {
	if ttl <= 0 {
		ttl = DefaultRecordTTL
	}
	return &Recorder{
		store:  store,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the recorder's clock. Test use only.
func (r *Recorder) SetClock(now func() time.Time) {
	r.now = now
}

// Record appends one history record for a delivered envelope. The record
// is keyed by the recorder's arrival time, not the envelope's occurrence
// time, so a redelivery arriving at a different millisecond creates a
// distinct row; a verbatim same-key retry overwrites harmlessly. Append
// failures are returned so the delivering queue or bus can redeliver.
func (r *Recorder) Record(ctx context.Context, env event.Envelope, messageID string) (eventstore.Record, error) {
	arrival := r.now()
	createdAt := arrival.UnixMilli()

	rec := eventstore.Record{
		PK:        eventstore.PartitionKey(env.EntityKind(), env.SubjectID()),
		SK:        eventstore.SortKey(string(env.Type), createdAt),
		TTL:       arrival.Add(r.ttl).Unix(),
		Email:     env.Data.Email,
		CreatedAt: createdAt,
		RequestID: env.Data.RequestID,
		EventType: string(env.Type),
		Info:      recordInfo(env, messageID),
	}

	stored, err := r.store.Append(ctx, rec)
	if err != nil {
		return eventstore.Record{}, fmt.Errorf("record %s event: %w", env.Type, err)
	}

	r.logger.Info("event recorded",
		"event_type", env.Type, "pk", stored.PK, "message_id", messageID, "request_id", env.Data.RequestID)
	return stored, nil
}

func recordInfo(env event.Envelope, messageID string) eventstore.Info {
	switch env.Type {
	case event.OrderCreated, event.OrderDeleted:
		return eventstore.Info{
			OrderID:      env.Data.OrderID,
			ProductCodes: env.Data.ProductCodes,
			MessageID:    messageID,
		}
	default:
		return eventstore.Info{
			ProductID:    env.Data.ProductID,
			ProductPrice: env.Data.ProductPrice,
		}
	}
}

// HandleDelivery adapts the recorder as a direct bus subscriber.
func (r *Recorder) HandleDelivery(ctx context.Context, d bus.Delivery) error {
	_, err := r.Record(ctx, d.Envelope, d.MessageID)
	return err
}

// HandleBatch adapts the recorder as a durable-queue consumer. Any
// failing message fails the whole batch so the queue's redelivery and
// dead-letter policy applies.
func (r *Recorder) HandleBatch(ctx context.Context, batch []queue.Message) error {
	for _, msg := range batch {
		env, err := event.Decode(msg.Body)
		if err != nil {
			return err
		}
		if _, err := r.Record(ctx, env, msg.ID); err != nil {
			return err
		}
	}
	return nil
}
