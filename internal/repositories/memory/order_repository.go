package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/repositories"
)

// OrderRepository is a mutex-guarded in-memory order store.
type OrderRepository struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

// NewOrderRepository constructs an empty in-memory order store.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[string]domain.Order)}
}

func (r *OrderRepository) Insert(_ context.Context, order domain.Order) error {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[id]; exists {
		return conflictError("order", id)
	}
	r.orders[id] = order
	return nil
}

func (r *OrderRepository) Update(_ context.Context, order domain.Order) error {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[id]; !exists {
		return notFoundError("order", id)
	}
	r.orders[id] = order
	return nil
}

// Transition applies mutate to the stored order under the repository lock, so
// concurrent transitions observe each other's writes. An error from mutate
// leaves the stored order untouched.
func (r *OrderRepository) Transition(_ context.Context, orderID string, mutate func(*domain.Order) error) (domain.Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	if mutate == nil {
		return domain.Order{}, errors.New("order repository: mutate func is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return domain.Order{}, notFoundError("order", id)
	}
	if err := mutate(&order); err != nil {
		return domain.Order{}, err
	}
	r.orders[id] = order
	return order, nil
}

func (r *OrderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[strings.TrimSpace(orderID)]
	if !ok {
		return domain.Order{}, notFoundError("order", orderID)
	}
	return order, nil
}

func (r *OrderRepository) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Order
	for _, order := range r.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if len(filter.Status) > 0 && !containsStatus(filter.Status, string(order.Status)) {
			continue
		}
		if filter.DateRange.From != nil && order.CreatedAt.Before(*filter.DateRange.From) {
			continue
		}
		if filter.DateRange.To != nil && order.CreatedAt.After(*filter.DateRange.To) {
			continue
		}
		out = append(out, order)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	pageSize := filter.Pagination.PageSize
	if pageSize > 0 && len(out) > pageSize {
		out = out[:pageSize]
	}
	return domain.CursorPage[domain.Order]{Items: out}, nil
}

func containsStatus(statuses []string, status string) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
