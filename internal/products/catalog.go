// Package products owns the product catalog and the PRODUCT_* event flow.
package products

import (
	"context"
	"errors"
)

var ErrProductNotFound = errors.New("product not found")

type Product struct {
	ID    string  `json:"id"`
	Name  string  `json:"productName"`
	Code  string  `json:"code"`
	Price float64 `json:"price"`
	Model string  `json:"model"`
	URL   string  `json:"productUrl"`
}

// Catalog is the product storage contract. GetByIDs is a batch lookup
// returning one row per distinct id found; callers map their requested
// ids against the result to detect missing ones.
type Catalog interface {
	GetAll(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Create(ctx context.Context, p Product) (Product, error)
	Update(ctx context.Context, id string, p Product) (Product, error)
	Delete(ctx context.Context, id string) (Product, error)
}
