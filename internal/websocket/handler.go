package websocket

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	gw "github.com/gorilla/websocket"

	"webstore/internal/orders"
)

type Conn = gw.Conn

var upgrader = gw.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Handler struct {
	hub      *Hub
	orderSvc *orders.Service
	logger   *slog.Logger
}

func NewHandler(hub *Hub, orderSvc *orders.Service, logger *slog.Logger) *Handler {
	return &Handler{hub: hub, orderSvc: orderSvc, logger: logger}
}

// ServeWS upgrades GET /orders/{orderID}/ws?email=... and streams that
// order's events. The order must exist for the given customer when the
// client connects.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	orderID := r.PathValue("orderID")
	email := r.URL.Query().Get("email")
	if orderID == "" || email == "" {
		_ = conn.Close()
		return
	}

	o, err := h.orderSvc.Get(r.Context(), email, orderID)
	if err != nil {
		if !errors.Is(err, orders.ErrOrderNotFound) {
			h.logger.Error("ws order lookup failed", "order_id", orderID, "err", err)
		}
		_ = conn.Close()
		return
	}

	client := &Client{
		hub:     h.hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		orderID: orderID,
	}

	client.hub.register <- client
	go client.writePump()
	go client.readPump()

	// Snapshot so the client does not rely on a later event arriving.
	snapshot := OrderFeedItem{OrderID: o.ID, EventType: "SNAPSHOT", Total: o.Billing.TotalPrice}
	if b, err := json.Marshal(snapshot); err == nil {
		select {
		case client.send <- b:
		case <-time.After(1 * time.Second):
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	defer func() { _ = c.conn.Close() }()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(gw.TextMessage, msg); err != nil {
			return
		}
	}
}
