package infrastructure

import (
	"context"
	"sync"

	"github.com/draftea/order-system/order-service/domain"
	"github.com/draftea/order-system/shared/models"
	"github.com/pkg/errors"
)

// MemoryOrderRepository keeps orders in process memory.
// Callers never share a pointer with the store.
type MemoryOrderRepository struct {
	mu     sync.RWMutex
	orders map[models.ID]domain.Order
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: make(map[models.ID]domain.Order)}
}

func (r *MemoryOrderRepository) Create(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.ID]; ok {
		return errors.Errorf("order %s already exists", order.ID)
	}
	r.orders[order.ID] = *order
	return nil
}

func (r *MemoryOrderRepository) Update(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.ID]; !ok {
		return errors.Wrapf(domain.ErrOrderNotFound, "order %s", order.ID)
	}
	order.Timestamps = order.Timestamps.Touch()
	r.orders[order.ID] = *order
	return nil
}

func (r *MemoryOrderRepository) UpdateFrom(_ context.Context, order *domain.Order, from domain.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[order.ID]
	if !ok {
		return errors.Wrapf(domain.ErrOrderNotFound, "order %s", order.ID)
	}
	if stored.Status != from {
		return errors.Wrapf(domain.ErrOrderStatusChanged, "order %s is %s", order.ID, stored.Status)
	}
	order.Timestamps = order.Timestamps.Touch()
	r.orders[order.ID] = *order
	return nil
}

func (r *MemoryOrderRepository) FindByID(_ context.Context, id models.ID) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrOrderNotFound, "order %s", id)
	}
	return &o, nil
}
