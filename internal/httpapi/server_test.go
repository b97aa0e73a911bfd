package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webstore/internal/bus"
	"webstore/internal/eventstore"
	"webstore/internal/orders"
	"webstore/internal/products"
	"webstore/internal/recorder"
)

type fixture struct {
	server  *Server
	catalog *products.MemoryCatalog
	store   *eventstore.MemoryStore
}

// newFixture wires the full pipeline in memory: orchestrator -> bus ->
// recorder -> event store.
func newFixture(t *testing.T) fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := eventstore.NewMemoryStore()
	rec := recorder.New(store, recorder.DefaultRecordTTL, logger)

	b := bus.NewMemoryBus(logger)
	b.Subscribe("event-recorder", bus.Filter{}, rec.HandleDelivery)

	catalog := products.NewMemoryCatalog()
	orderSvc := orders.NewService(orders.NewMemoryRepository(), catalog, b, logger)
	productSvc := products.NewAdminService(catalog, rec, logger)

	return fixture{
		server:  NewServer(orderSvc, productSvc, store, 5*time.Second, logger),
		catalog: catalog,
		store:   store,
	}
}

func (f fixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("X-Request-ID", "r-test")
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func seedProduct(t *testing.T, f fixture, code string, price float64) products.Product {
	t.Helper()
	p, err := f.catalog.Create(context.Background(), products.Product{Name: "Product " + code, Code: code, Price: price})
	require.NoError(t, err)
	return p
}

func createOrderBody(productIDs ...string) map[string]any {
	return map[string]any{
		"email":       "a@b.com",
		"productsIds": productIDs,
		"payment":     "CASH",
		"shipping":    map[string]string{"type": "ECONOMIC", "carrier": "CORREIOS"},
	}
}

func TestCreateOrderEndpoint(t *testing.T) {
	f := newFixture(t)
	p1 := seedProduct(t, f, "P1", 10)
	p2 := seedProduct(t, f, "P2", 5)

	w := f.do(t, http.MethodPost, "/orders", createOrderBody(p1.ID, p2.ID))
	require.Equal(t, http.StatusCreated, w.Code)

	created := decodeBody[orders.Order](t, w)
	assert.Equal(t, "a@b.com", created.Email)
	assert.Equal(t, 15.0, created.Billing.TotalPrice)
	require.NotEmpty(t, created.ID)

	// The event side channel eventually lands in the store.
	require.Eventually(t, func() bool {
		records, err := f.store.QueryByEntity(context.Background(), "order", created.ID)
		return err == nil && len(records) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCreateOrderMissingProduct(t *testing.T) {
	f := newFixture(t)
	p1 := seedProduct(t, f, "P1", 10)

	w := f.do(t, http.MethodPost, "/orders", createOrderBody(p1.ID, "missing"))
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody[map[string]string](t, w)
	assert.Equal(t, "One or more products not found", body["message"])
}

func TestCreateOrderBadJSON(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader([]byte("{")))
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetOrders(t *testing.T) {
	f := newFixture(t)
	p1 := seedProduct(t, f, "P1", 10)

	w := f.do(t, http.MethodPost, "/orders", createOrderBody(p1.ID))
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeBody[orders.Order](t, w)

	t.Run("by email and id", func(t *testing.T) {
		w := f.do(t, http.MethodGet, fmt.Sprintf("/orders?email=a@b.com&orderId=%s", created.ID), nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, created, decodeBody[orders.Order](t, w))
	})

	t.Run("by email", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/orders?email=a@b.com", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decodeBody[[]orders.Order](t, w), 1)
	})

	t.Run("all", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/orders", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decodeBody[[]orders.Order](t, w), 1)
	})

	t.Run("unknown id", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/orders?email=a@b.com&orderId=missing", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestDeleteOrderEndpoint(t *testing.T) {
	f := newFixture(t)
	p1 := seedProduct(t, f, "P1", 10)

	w := f.do(t, http.MethodPost, "/orders", createOrderBody(p1.ID))
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeBody[orders.Order](t, w)

	w = f.do(t, http.MethodDelete, fmt.Sprintf("/orders?email=a@b.com&orderId=%s", created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created, decodeBody[orders.Order](t, w))

	w = f.do(t, http.MethodDelete, fmt.Sprintf("/orders?email=a@b.com&orderId=%s", created.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodDelete, "/orders?email=a@b.com", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrderEventsEndpoint(t *testing.T) {
	f := newFixture(t)
	p1 := seedProduct(t, f, "P1", 10)

	w := f.do(t, http.MethodPost, "/orders", createOrderBody(p1.ID))
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeBody[orders.Order](t, w)

	w = f.do(t, http.MethodDelete, fmt.Sprintf("/orders?email=a@b.com&orderId=%s", created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	require.Eventually(t, func() bool {
		records, err := f.store.QueryByCustomer(context.Background(), "a@b.com", "ORDER_")
		return err == nil && len(records) == 2
	}, time.Second, 5*time.Millisecond)

	t.Run("order family", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/orders/events?email=a@b.com", nil)
		require.Equal(t, http.StatusOK, w.Code)
		events := decodeBody[[]orderEventResponse](t, w)
		require.Len(t, events, 2)
		assert.Equal(t, "ORDER_CREATED", events[0].EventType)
		assert.Equal(t, "ORDER_DELETED", events[1].EventType)
		assert.Equal(t, created.ID, events[0].OrderID)
		assert.Equal(t, []string{"P1"}, events[0].ProductCodes)
		assert.Equal(t, "r-test", events[0].RequestID)
	})

	t.Run("single type", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/orders/events?email=a@b.com&eventType=ORDER_DELETED", nil)
		require.Equal(t, http.StatusOK, w.Code)
		events := decodeBody[[]orderEventResponse](t, w)
		require.Len(t, events, 1)
		assert.Equal(t, "ORDER_DELETED", events[0].EventType)
	})

	t.Run("missing email", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/orders/events", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestProductEndpoints(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/products", map[string]any{
		"productName": "Keyboard", "code": "P1", "price": 10.0, "model": "K1", "productUrl": "http://x/p1",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeBody[products.Product](t, w)
	require.NotEmpty(t, created.ID)

	w = f.do(t, http.MethodGet, "/products/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created, decodeBody[products.Product](t, w))

	w = f.do(t, http.MethodGet, "/products", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]products.Product](t, w), 1)

	w = f.do(t, http.MethodPut, "/products/"+created.ID, map[string]any{
		"productName": "Keyboard v2", "code": "P1", "price": 12.0,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 12.0, decodeBody[products.Product](t, w).Price)

	// Product history accumulates via the recorder's direct path.
	require.Eventually(t, func() bool {
		records, err := f.store.QueryByEntity(context.Background(), "product", "P1")
		return err == nil && len(records) == 2
	}, time.Second, 5*time.Millisecond)

	w = f.do(t, http.MethodDelete, "/products/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/products/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPut, "/products/"+created.ID, map[string]any{
		"productName": "Keyboard", "code": "P1", "price": 10.0,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/products", map[string]any{"productName": "NoCode", "price": 1.0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
