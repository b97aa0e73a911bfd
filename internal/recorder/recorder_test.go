package recorder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webstore/internal/bus"
	"webstore/internal/event"
	"webstore/internal/eventstore"
	"webstore/internal/queue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func orderCreatedEnvelope() event.Envelope {
	return event.Envelope{
		Type: event.OrderCreated,
		Data: event.Data{
			Email:        "a@b.com",
			OrderID:      "o1",
			Shipping:     event.Shipping{Type: "ECONOMIC", Carrier: "CORREIOS"},
			Billing:      event.Billing{Payment: "CASH", Total: 10},
			ProductCodes: []string{"P1"},
			RequestID:    "r1",
		},
	}
}

func TestRecordOrderEvent(t *testing.T) {
	store := eventstore.NewMemoryStore()
	rec := New(store, DefaultRecordTTL, testLogger())

	arrival := time.UnixMilli(1700000000000)
	rec.SetClock(func() time.Time { return arrival })
	store.SetClock(func() time.Time { return arrival })

	stored, err := rec.Record(context.Background(), orderCreatedEnvelope(), "m1")
	require.NoError(t, err)

	assert.Equal(t, "#order_o1", stored.PK)
	assert.Equal(t, "ORDER_CREATED#1700000000000", stored.SK)
	assert.Equal(t, arrival.Unix()+300, stored.TTL)
	assert.Equal(t, "a@b.com", stored.Email)
	assert.Equal(t, "r1", stored.RequestID)
	assert.Equal(t, "o1", stored.Info.OrderID)
	assert.Equal(t, []string{"P1"}, stored.Info.ProductCodes)
	assert.Equal(t, "m1", stored.Info.MessageID)
}

func TestRecordProductEvent(t *testing.T) {
	store := eventstore.NewMemoryStore()
	rec := New(store, DefaultRecordTTL, testLogger())

	env := event.Envelope{
		Type: event.ProductUpdated,
		Data: event.Data{ProductID: "p1", ProductCode: "CODE-1", ProductPrice: 25.5, Email: "admin@b.com", RequestID: "r2"},
	}
	stored, err := rec.Record(context.Background(), env, "m2")
	require.NoError(t, err)

	assert.Equal(t, "#product_CODE-1", stored.PK)
	assert.Equal(t, "p1", stored.Info.ProductID)
	assert.Equal(t, 25.5, stored.Info.ProductPrice)
	assert.Empty(t, stored.Info.OrderID)
}

// Redelivery at a different arrival time produces a distinct history row;
// a verbatim retry at the same arrival time overwrites in place.
func TestRedeliveryRows(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	rec := New(store, DefaultRecordTTL, testLogger())

	arrival := time.UnixMilli(1700000000000)
	rec.SetClock(func() time.Time { return arrival })
	store.SetClock(func() time.Time { return arrival })

	_, err := rec.Record(ctx, orderCreatedEnvelope(), "m1")
	require.NoError(t, err)
	_, err = rec.Record(ctx, orderCreatedEnvelope(), "m1")
	require.NoError(t, err)

	records, err := store.QueryByEntity(ctx, "order", "o1")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	arrival = arrival.Add(5 * time.Millisecond)
	_, err = rec.Record(ctx, orderCreatedEnvelope(), "m1")
	require.NoError(t, err)

	records, err = store.QueryByEntity(ctx, "order", "o1")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestAppendFailurePropagates(t *testing.T) {
	rec := New(failingStore{}, DefaultRecordTTL, testLogger())

	_, err := rec.Record(context.Background(), orderCreatedEnvelope(), "m1")
	require.ErrorIs(t, err, eventstore.ErrStoreUnavailable)

	err = rec.HandleDelivery(context.Background(), bus.Delivery{Envelope: orderCreatedEnvelope(), MessageID: "m1"})
	require.ErrorIs(t, err, eventstore.ErrStoreUnavailable)
}

func TestHandleBatchAllOrNothing(t *testing.T) {
	store := eventstore.NewMemoryStore()
	rec := New(store, DefaultRecordTTL, testLogger())

	good, err := orderCreatedEnvelope().Encode()
	require.NoError(t, err)

	batch := []queue.Message{
		{ID: "m1", Body: good, EventType: "ORDER_CREATED"},
		{ID: "m2", Body: []byte("garbage"), EventType: "ORDER_CREATED"},
	}
	require.Error(t, rec.HandleBatch(context.Background(), batch))

	batch = []queue.Message{{ID: "m1", Body: good, EventType: "ORDER_CREATED"}}
	require.NoError(t, rec.HandleBatch(context.Background(), batch))
}

// End-to-end: publish through the bus, record, query the store.
func TestBusToStoreScenario(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	rec := New(store, DefaultRecordTTL, testLogger())

	b := bus.NewMemoryBus(testLogger())
	b.Subscribe("event-recorder", bus.Filter{}, rec.HandleDelivery)

	_, err := b.Publish(ctx, orderCreatedEnvelope())
	require.NoError(t, err)

	records, err := store.QueryByEntity(ctx, "order", "o1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "o1", records[0].Info.OrderID)
	assert.Equal(t, []string{"P1"}, records[0].Info.ProductCodes)
}

type failingStore struct{}

func (failingStore) Append(context.Context, eventstore.Record) (eventstore.Record, error) {
	return eventstore.Record{}, errors.Join(eventstore.ErrStoreUnavailable, errors.New("connection refused"))
}

func (failingStore) QueryByEntity(context.Context, string, string) ([]eventstore.Record, error) {
	return nil, eventstore.ErrStoreUnavailable
}

func (failingStore) QueryByCustomer(context.Context, string, string) ([]eventstore.Record, error) {
	return nil, eventstore.ErrStoreUnavailable
}
