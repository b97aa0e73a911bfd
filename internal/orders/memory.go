package orders

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository is an in-process Repository for tests.
type MemoryRepository struct {
	mu     sync.RWMutex
	orders map[string]map[string]Order
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orders: make(map[string]map[string]Order)}
}

func (r *MemoryRepository) Put(_ context.Context, o Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byID, ok := r.orders[o.Email]
	if !ok {
		byID = make(map[string]Order)
		r.orders[o.Email] = byID
	}
	byID[o.ID] = o
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, email, orderID string) (Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[email][orderID]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (r *MemoryRepository) Delete(_ context.Context, email, orderID string) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[email][orderID]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	delete(r.orders[email], orderID)
	return o, nil
}

func (r *MemoryRepository) QueryByEmail(_ context.Context, email string) ([]Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Order
	for _, o := range r.orders[email] {
		result = append(result, o)
	}
	sortByCreation(result)
	return result, nil
}

func (r *MemoryRepository) ScanAll(_ context.Context) ([]Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Order
	for _, byID := range r.orders {
		for _, o := range byID {
			result = append(result, o)
		}
	}
	sortByCreation(result)
	return result, nil
}

func sortByCreation(list []Order) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Email != list[j].Email {
			return list[i].Email < list[j].Email
		}
		return list[i].CreatedAt < list[j].CreatedAt
	})
}
