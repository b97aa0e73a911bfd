package websocket

import (
	"context"
	"encoding/json"

	"webstore/internal/bus"
	"webstore/internal/event"
)

// OrderFeedItem is what connected clients receive for each order event.
type OrderFeedItem struct {
	OrderID   string  `json:"order_id"`
	EventType string  `json:"event_type"`
	Total     float64 `json:"total,omitempty"`
	RequestID string  `json:"request_id,omitempty"`
}

type Client struct {
	hub     *Hub
	conn    *Conn
	send    chan []byte
	orderID string
}

// Hub fans order events out to clients watching a specific order.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan OrderFeedItem
	done       chan struct{}
	clients    map[string]map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan OrderFeedItem),
		done:       make(chan struct{}),
		clients:    make(map[string]map[*Client]bool),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			set, ok := h.clients[c.orderID]
			if !ok {
				set = make(map[*Client]bool)
				h.clients[c.orderID] = set
			}
			set[c] = true
		case c := <-h.unregister:
			if set, ok := h.clients[c.orderID]; ok {
				if _, exists := set[c]; exists {
					delete(set, c)
					close(c.send)
				}
				if len(set) == 0 {
					delete(h.clients, c.orderID)
				}
			}
		case item := <-h.broadcast:
			msg, _ := json.Marshal(item)
			if set, ok := h.clients[item.OrderID]; ok {
				for c := range set {
					select {
					case c.send <- msg:
					default:
						delete(set, c)
						close(c.send)
					}
				}
			}
		case <-ctx.Done():
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
				}
			}
			return
		}
	}
}

// Broadcast hands the item to the hub loop. Items arriving after the
// hub stopped are dropped rather than blocking the caller.
func (h *Hub) Broadcast(item OrderFeedItem) {
	select {
	case h.broadcast <- item:
	case <-h.done:
	}
}

// HandleDelivery adapts the hub as a bus subscriber: every order event
// is pushed to the clients watching that order. Product events carry no
// order id and are skipped.
func (h *Hub) HandleDelivery(_ context.Context, d bus.Delivery) error {
	if d.Envelope.EntityKind() != event.KindOrder {
		return nil
	}
	h.Broadcast(OrderFeedItem{
		OrderID:   d.Envelope.Data.OrderID,
		EventType: string(d.Envelope.Type),
		Total:     d.Envelope.Data.Billing.Total,
		RequestID: d.Envelope.Data.RequestID,
	})
	return nil
}
