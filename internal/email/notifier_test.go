package email

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webstore/internal/event"
	"webstore/internal/queue"
)

type fakeSender struct {
	sent   []string
	failTo string
}

func (s *fakeSender) Send(_ context.Context, to, subject, _ string) error {
	if to == s.failTo {
		return errors.New("smtp unavailable")
	}
	s.sent = append(s.sent, to+": "+subject)
	return nil
}

func queuedOrderCreated(t *testing.T, id, email, orderID string) queue.Message {
	t.Helper()
	body, err := event.Envelope{
		Type: event.OrderCreated,
		Data: event.Data{
			Email:        email,
			OrderID:      orderID,
			Shipping:     event.Shipping{Type: "ECONOMIC", Carrier: "CORREIOS"},
			Billing:      event.Billing{Payment: "CASH", Total: 10},
			ProductCodes: []string{"P1"},
			RequestID:    "r1",
		},
	}.Encode()
	require.NoError(t, err)
	return queue.Message{ID: id, Body: body, EventType: "ORDER_CREATED"}
}

func TestHandleBatch(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, slog.New(slog.NewTextHandler(io.Discard, nil)))

	batch := []queue.Message{
		queuedOrderCreated(t, "m1", "a@b.com", "o1"),
		queuedOrderCreated(t, "m2", "c@d.com", "o2"),
	}
	require.NoError(t, n.HandleBatch(context.Background(), batch))
	assert.Equal(t, []string{
		"a@b.com: Order Confirmation - o1",
		"c@d.com: Order Confirmation - o2",
	}, sender.sent)
}

func TestHandleBatchFailsWhole(t *testing.T) {
	sender := &fakeSender{failTo: "c@d.com"}
	n := NewNotifier(sender, slog.New(slog.NewTextHandler(io.Discard, nil)))

	batch := []queue.Message{
		queuedOrderCreated(t, "m1", "a@b.com", "o1"),
		queuedOrderCreated(t, "m2", "c@d.com", "o2"),
	}
	require.Error(t, n.HandleBatch(context.Background(), batch))
}

func TestHandleBatchRejectsGarbage(t *testing.T) {
	n := NewNotifier(&fakeSender{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	batch := []queue.Message{{ID: "m1", Body: []byte("garbage")}}
	require.Error(t, n.HandleBatch(context.Background(), batch))
}
