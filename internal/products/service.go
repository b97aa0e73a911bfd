package products

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"webstore/internal/event"
	"webstore/internal/recorder"
)

var ErrInvalidProduct = errors.New("invalid product")

// AdminService performs catalog writes and records the matching
// PRODUCT_* event. Recording is a side channel: its failure is logged
// and never fails the catalog operation.
type AdminService struct {
	catalog       Catalog
	recorder      *recorder.Recorder
	logger        *slog.Logger
	recordTimeout time.Duration
}

func NewAdminService(catalog Catalog, rec *recorder.Recorder, logger *slog.Logger) *AdminService {
	return &AdminService{
		catalog:       catalog,
		recorder:      rec,
		logger:        logger,
		recordTimeout: 5 * time.Second,
	}
}

func (s *AdminService) Catalog() Catalog {
	return s.catalog
}

func validateProduct(p Product) error {
	if p.Code == "" {
		return fmt.Errorf("%w: missing code", ErrInvalidProduct)
	}
	if p.Name == "" {
		return fmt.Errorf("%w: missing productName", ErrInvalidProduct)
	}
	if p.Price < 0 {
		return fmt.Errorf("%w: negative price", ErrInvalidProduct)
	}
	return nil
}

func (s *AdminService) Create(ctx context.Context, p Product, email, requestID string) (Product, error) {
	if err := validateProduct(p); err != nil {
		return Product{}, err
	}
	created, err := s.catalog.Create(ctx, p)
	if err != nil {
		return Product{}, err
	}
	s.recordEvent(ctx, event.ProductCreated, created, email, requestID)
	return created, nil
}

func (s *AdminService) Update(ctx context.Context, id string, p Product, email, requestID string) (Product, error) {
	if err := validateProduct(p); err != nil {
		return Product{}, err
	}
	updated, err := s.catalog.Update(ctx, id, p)
	if err != nil {
		return Product{}, err
	}
	s.recordEvent(ctx, event.ProductUpdated, updated, email, requestID)
	return updated, nil
}

func (s *AdminService) Delete(ctx context.Context, id, email, requestID string) (Product, error) {
	deleted, err := s.catalog.Delete(ctx, id)
	if err != nil {
		return Product{}, err
	}
	s.recordEvent(ctx, event.ProductDeleted, deleted, email, requestID)
	return deleted, nil
}

func (s *AdminService) recordEvent(ctx context.Context, t event.Type, p Product, email, requestID string) {
	env := event.Envelope{
		Type: t,
		Data: event.Data{
			Email:        email,
			ProductID:    p.ID,
			ProductCode:  p.Code,
			ProductPrice: p.Price,
			RequestID:    requestID,
		},
	}

	go func() {
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.recordTimeout)
		defer cancel()
		if _, err := s.recorder.Record(recordCtx, env, ""); err != nil {
			s.logger.Error("record product event failed",
				"event_type", t, "product_id", p.ID, "request_id", requestID, "err", err)
		}
	}()
}
