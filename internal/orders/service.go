package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"webstore/internal/bus"
	"webstore/internal/event"
	"webstore/internal/products"
)

var (
	ErrProductsNotFound = errors.New("one or more products not found")
	ErrInvalidRequest   = errors.New("invalid order request")
)

type CreateRequest struct {
	Email      string      `json:"email"`
	ProductIDs []string    `json:"productsIds"`
	Payment    PaymentType `json:"payment"`
	Shipping   Shipping    `json:"shipping"`
}

func (req CreateRequest) validate() error {
	if req.Email == "" {
		return fmt.Errorf("%w: missing email", ErrInvalidRequest)
	}
	if len(req.ProductIDs) == 0 {
		return fmt.Errorf("%w: missing productsIds", ErrInvalidRequest)
	}
	if !req.Payment.Valid() {
		return fmt.Errorf("%w: unknown payment %q", ErrInvalidRequest, req.Payment)
	}
	if !req.Shipping.Type.Valid() {
		return fmt.Errorf("%w: unknown shipping type %q", ErrInvalidRequest, req.Shipping.Type)
	}
	if !req.Shipping.Carrier.Valid() {
		return fmt.Errorf("%w: unknown carrier %q", ErrInvalidRequest, req.Shipping.Carrier)
	}
	return nil
}

// Service is the order lifecycle orchestrator: it performs the storage
// operation, then publishes the resulting event without tying the
// request's outcome to downstream delivery.
type Service struct {
	repo           Repository
	catalog        products.Catalog
	publisher      bus.Publisher
	logger         *slog.Logger
	now            func() time.Time
	publishTimeout time.Duration
}

func NewService(repo Repository, catalog products.Catalog, publisher bus.Publisher, logger *slog.Logger) *Service {
	return &Service{
		repo:           repo,
		catalog:        catalog,
		publisher:      publisher,
		logger:         logger,
		now:            time.Now,
		publishTimeout: 5 * time.Second,
	}
}

// Create validates every referenced product before any write, prices the
// order as the sum of its products, persists it and publishes
// ORDER_CREATED. Publish failure does not roll back the create.
func (s *Service) Create(ctx context.Context, req CreateRequest, requestID string) (Order, error) {
	if err := req.validate(); err != nil {
		return Order{}, err
	}

	prods, err := s.catalog.GetByIDs(ctx, req.ProductIDs)
	if err != nil {
		return Order{}, fmt.Errorf("lookup products: %w", err)
	}
	byID := make(map[string]products.Product, len(prods))
	for _, p := range prods {
		byID[p.ID] = p
	}

	// Each requested id resolves against the batch lookup, so a
	// duplicated id counts twice toward the order and its total.
	orderProducts := make([]OrderProduct, len(req.ProductIDs))
	var total float64
	for i, id := range req.ProductIDs {
		p, ok := byID[id]
		if !ok {
			return Order{}, ErrProductsNotFound
		}
		orderProducts[i] = OrderProduct{Code: p.Code, Price: p.Price}
		total += p.Price
	}

	o := Order{
		Email:     req.Email,
		ID:        uuid.NewString(),
		CreatedAt: s.now().UnixMilli(),
		Shipping:  req.Shipping,
		Billing:   Billing{Payment: req.Payment, TotalPrice: total},
		Products:  orderProducts,
	}

	if err := s.repo.Put(ctx, o); err != nil {
		return Order{}, fmt.Errorf("persist order: %w", err)
	}

	s.publishEvent(ctx, event.OrderCreated, o, requestID)
	return o, nil
}

// Delete removes the order and publishes ORDER_DELETED with the removed
// order's data. Publish failure does not undo the delete.
func (s *Service) Delete(ctx context.Context, email, orderID, requestID string) (Order, error) {
	removed, err := s.repo.Delete(ctx, email, orderID)
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, event.OrderDeleted, removed, requestID)
	return removed, nil
}

func (s *Service) Get(ctx context.Context, email, orderID string) (Order, error) {
	return s.repo.Get(ctx, email, orderID)
}

func (s *Service) ListByEmail(ctx context.Context, email string) ([]Order, error) {
	return s.repo.QueryByEmail(ctx, email)
}

func (s *Service) ListAll(ctx context.Context) ([]Order, error) {
	return s.repo.ScanAll(ctx)
}

// publishEvent hands the envelope to the bus from a separate goroutine.
// The caller's success path never waits on it; failures go to the log.
func (s *Service) publishEvent(ctx context.Context, t event.Type, o Order, requestID string) {
	env := event.Envelope{
		Type: t,
		Data: event.Data{
			Email:        o.Email,
			OrderID:      o.ID,
			Shipping:     event.Shipping{Type: string(o.Shipping.Type), Carrier: string(o.Shipping.Carrier)},
			Billing:      event.Billing{Payment: string(o.Billing.Payment), Total: o.Billing.TotalPrice},
			ProductCodes: o.ProductCodes(),
			RequestID:    requestID,
		},
	}

	go func() {
		publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
		defer cancel()

		messageID, err := s.publisher.Publish(publishCtx, env)
		if err != nil {
			s.logger.Error("publish order event failed",
				"event_type", t, "order_id", o.ID, "request_id", requestID, "err", err)
			return
		}
		s.logger.Info("order event published",
			"event_type", t, "order_id", o.ID, "message_id", messageID, "request_id", requestID)
	}()
}
