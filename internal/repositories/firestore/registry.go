package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/inkwell-books/api/internal/platform/firestore"
	"github.com/inkwell-books/api/internal/repositories"
)

// Registry wires the Firestore-backed repositories behind the
// repositories.Registry contract.
type Registry struct {
	provider *pfirestore.Provider

	books    *BookRepository
	stock    *StockRepository
	orders   *OrderRepository
	carts    *CartRepository
	audit    *AuditLogRepository
	counters *CounterRepository
	health   repositories.HealthRepository
}

// NewRegistry constructs all Firestore repositories on top of the shared provider.
// The health repository is optional; readiness checks are disabled when absent.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry: provider is required")
	}

	books, err := NewBookRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: %w", err)
	}
	stock, err := NewStockRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: %w", err)
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: %w", err)
	}
	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: %w", err)
	}
	audit, err := NewAuditLogRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: %w", err)
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: %w", err)
	}

	return &Registry{
		provider: provider,
		books:    books,
		stock:    stock,
		orders:   orders,
		carts:    carts,
		audit:    audit,
		counters: counters,
		health:   health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Books() repositories.BookRepository         { return r.books }
func (r *Registry) Stock() repositories.StockRepository        { return r.stock }
func (r *Registry) Orders() repositories.OrderRepository       { return r.orders }
func (r *Registry) Carts() repositories.CartRepository         { return r.carts }
func (r *Registry) AuditLogs() repositories.AuditLogRepository { return r.audit }
func (r *Registry) Counters() repositories.CounterRepository   { return r.counters }
func (r *Registry) Health() repositories.HealthRepository      { return r.health }

var _ repositories.Registry = (*Registry)(nil)
