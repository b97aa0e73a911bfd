package products

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryCatalog is an in-process Catalog for tests.
type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[string]Product
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{products: make(map[string]Product)}
}

func (c *MemoryCatalog) GetAll(_ context.Context) ([]Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

func (c *MemoryCatalog) GetByID(_ context.Context, id string) (Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (c *MemoryCatalog) GetByIDs(_ context.Context, ids []string) ([]Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []Product
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if p, ok := c.products[id]; ok {
			result = append(result, p)
		}
	}
	return result, nil
}

func (c *MemoryCatalog) Create(_ context.Context, p Product) (Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p.ID = uuid.NewString()
	c.products[p.ID] = p
	return p, nil
}

func (c *MemoryCatalog) Update(_ context.Context, id string, p Product) (Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.products[id]; !ok {
		return Product{}, ErrProductNotFound
	}
	p.ID = id
	c.products[id] = p
	return p, nil
}

func (c *MemoryCatalog) Delete(_ context.Context, id string) (Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	delete(c.products, id)
	return p, nil
}
