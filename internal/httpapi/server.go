// Package httpapi exposes the order and product HTTP surface.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"webstore/internal/event"
	"webstore/internal/eventstore"
	"webstore/internal/orders"
	"webstore/internal/products"
)

type Server struct {
	orderSvc       *orders.Service
	productSvc     *products.AdminService
	events         eventstore.Store
	logger         *slog.Logger
	mux            *http.ServeMux
	requestTimeout time.Duration
}

func NewServer(orderSvc *orders.Service, productSvc *products.AdminService, events eventstore.Store, requestTimeout time.Duration, logger *slog.Logger) *Server {
	s := &Server{
		orderSvc:       orderSvc,
		productSvc:     productSvc,
		events:         events,
		logger:         logger,
		mux:            http.NewServeMux(),
		requestTimeout: requestTimeout,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /orders", s.createOrder)
	s.mux.HandleFunc("GET /orders", s.getOrders)
	s.mux.HandleFunc("DELETE /orders", s.deleteOrder)
	s.mux.HandleFunc("GET /orders/events", s.getOrderEvents)

	s.mux.HandleFunc("GET /products", s.listProducts)
	s.mux.HandleFunc("GET /products/{id}", s.getProduct)
	s.mux.HandleFunc("POST /products", s.createProduct)
	s.mux.HandleFunc("PUT /products/{id}", s.updateProduct)
	s.mux.HandleFunc("DELETE /products/{id}", s.deleteProduct)
}

// HandleFunc registers an extra route on the server's mux.
func (s *Server) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.mux.HandleFunc(pattern, handler)
}

// ServeHTTP bounds every request by the server's execution budget;
// exceeding it cancels downstream work and fails the request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()
	s.mux.ServeHTTP(w, r.WithContext(ctx))
}

// requestID returns the caller's correlation id, or mints one.
func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	o, err := s.orderSvc.Create(r.Context(), req, requestID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) getOrders(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	orderID := r.URL.Query().Get("orderId")

	switch {
	case email != "" && orderID != "":
		o, err := s.orderSvc.Get(r.Context(), email, orderID)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	case email != "":
		list, err := s.orderSvc.ListByEmail(r.Context(), email)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	default:
		list, err := s.orderSvc.ListAll(r.Context())
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func (s *Server) deleteOrder(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	orderID := r.URL.Query().Get("orderId")
	if email == "" || orderID == "" {
		writeError(w, http.StatusBadRequest, "email and orderId are required")
		return
	}

	o, err := s.orderSvc.Delete(r.Context(), email, orderID, requestID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, o)
}

// orderEventResponse is the flattened event-history row returned to
// clients.
type orderEventResponse struct {
	Email        string   `json:"email"`
	CreatedAt    int64    `json:"createdAt"`
	EventType    string   `json:"eventType"`
	RequestID    string   `json:"requestId"`
	OrderID      string   `json:"orderId"`
	ProductCodes []string `json:"productCodes,omitempty"`
}

func (s *Server) getOrderEvents(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	// Without an explicit eventType the query covers the ORDER_* family.
	prefix := r.URL.Query().Get("eventType")
	if prefix == "" {
		prefix = "ORDER_"
	}

	records, err := s.events.QueryByCustomer(r.Context(), email, prefix)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	response := make([]orderEventResponse, 0, len(records))
	for _, rec := range records {
		response = append(response, orderEventResponse{
			Email:        rec.Email,
			CreatedAt:    rec.CreatedAt,
			EventType:    rec.EventType,
			RequestID:    rec.RequestID,
			OrderID:      rec.Info.OrderID,
			ProductCodes: rec.Info.ProductCodes,
		})
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	list, err := s.productSvc.Catalog().GetAll(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.productSvc.Catalog().GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// adminEmail identifies the operator in PRODUCT_* event history.
func adminEmail(r *http.Request) string {
	return r.Header.Get("X-User-Email")
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var p products.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	created, err := s.productSvc.Create(r.Context(), p, adminEmail(r), requestID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	var p products.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	updated, err := s.productSvc.Update(r.Context(), r.PathValue("id"), p, adminEmail(r), requestID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.productSvc.Delete(r.Context(), r.PathValue("id"), adminEmail(r), requestID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted)
}

// writeDomainError maps domain errors onto HTTP statuses: caller faults
// to 4xx, infrastructure trouble to 5xx.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var malformed *event.MalformedEventError
	switch {
	case errors.Is(err, orders.ErrProductsNotFound):
		writeError(w, http.StatusBadRequest, "One or more products not found")
	case errors.Is(err, orders.ErrInvalidRequest), errors.Is(err, products.ErrInvalidProduct), errors.As(err, &malformed):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, orders.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, products.ErrProductNotFound):
		writeError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, eventstore.ErrStoreUnavailable):
		s.logger.Error("store unavailable", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Error("request timed out", "path", r.URL.Path)
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
