package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/repositories"
)

// Registry wires the in-memory repositories behind the repositories.Registry
// contract. Useful for tests and local development without an emulator.
type Registry struct {
	books    *BookRepository
	stock    *StockRepository
	orders   *OrderRepository
	carts    *CartRepository
	audit    *AuditLogRepository
	counters *CounterRepository
	health   repositories.HealthRepository
}

// NewRegistry constructs a registry with empty stores.
func NewRegistry() *Registry {
	return &Registry{
		books:    NewBookRepository(),
		stock:    NewStockRepository(),
		orders:   NewOrderRepository(),
		carts:    NewCartRepository(),
		audit:    NewAuditLogRepository(),
		counters: NewCounterRepository(),
	}
}

func (r *Registry) Close(context.Context) error { return nil }

func (r *Registry) Books() repositories.BookRepository        { return r.books }
func (r *Registry) Stock() repositories.StockRepository       { return r.stock }
func (r *Registry) Orders() repositories.OrderRepository      { return r.orders }
func (r *Registry) Carts() repositories.CartRepository        { return r.carts }
func (r *Registry) AuditLogs() repositories.AuditLogRepository { return r.audit }
func (r *Registry) Counters() repositories.CounterRepository  { return r.counters }
func (r *Registry) Health() repositories.HealthRepository     { return r.health }

// StockStore exposes the concrete ledger for test seeding.
func (r *Registry) StockStore() *StockRepository { return r.stock }

var _ repositories.Registry = (*Registry)(nil)

// BookRepository is a mutex-guarded in-memory catalog.
type BookRepository struct {
	mu    sync.Mutex
	books map[string]domain.Book
}

// NewBookRepository constructs an empty in-memory catalog.
func NewBookRepository() *BookRepository {
	return &BookRepository{books: make(map[string]domain.Book)}
}

func (r *BookRepository) Upsert(_ context.Context, book domain.Book) (domain.Book, error) {
	id := strings.TrimSpace(book.ID)
	if id == "" {
		return domain.Book{}, errors.New("book repository: book id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := r.books[id]; ok && book.CreatedAt.IsZero() {
		book.CreatedAt = existing.CreatedAt
	} else if book.CreatedAt.IsZero() {
		book.CreatedAt = now
	}
	book.UpdatedAt = now
	r.books[id] = book
	return book, nil
}

func (r *BookRepository) Delete(_ context.Context, bookID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.books, strings.TrimSpace(bookID))
	return nil
}

func (r *BookRepository) FindByID(_ context.Context, bookID string) (domain.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	book, ok := r.books[strings.TrimSpace(bookID)]
	if !ok {
		return domain.Book{}, notFoundError("book", bookID)
	}
	return book, nil
}

func (r *BookRepository) List(_ context.Context, filter repositories.BookListFilter) (domain.CursorPage[domain.Book], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Book
	for _, book := range r.books {
		if filter.Author != "" && book.Author != filter.Author {
			continue
		}
		if filter.Tag != "" && !containsTag(book.Tags, filter.Tag) {
			continue
		}
		if filter.ActiveOnly && !book.Active {
			continue
		}
		out = append(out, book)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })

	pageSize := filter.Pagination.PageSize
	if pageSize > 0 && len(out) > pageSize {
		out = out[:pageSize]
	}
	return domain.CursorPage[domain.Book]{Items: out}, nil
}

func containsTag(tags []string, tag string) bool {
	for _, candidate := range tags {
		if candidate == tag {
			return true
		}
	}
	return false
}

var _ repositories.BookRepository = (*BookRepository)(nil)

// CartRepository is a mutex-guarded in-memory cart store keyed by user ID.
type CartRepository struct {
	mu    sync.Mutex
	carts map[string]domain.Cart
}

// NewCartRepository constructs an empty in-memory cart store.
func NewCartRepository() *CartRepository {
	return &CartRepository{carts: make(map[string]domain.Cart)}
}

func (r *CartRepository) UpsertCart(_ context.Context, cart domain.Cart, expectedUpdate *time.Time) (domain.Cart, error) {
	id := strings.TrimSpace(cart.UserID)
	if id == "" {
		id = strings.TrimSpace(cart.ID)
	}
	if id == "" {
		return domain.Cart{}, errors.New("cart repository: cart id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if expectedUpdate != nil && !expectedUpdate.IsZero() {
		existing, ok := r.carts[id]
		if ok && !existing.UpdatedAt.Equal(expectedUpdate.UTC()) {
			return domain.Cart{}, conflictError("cart", id)
		}
	}
	cart.ID = id
	cart.UserID = id
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = time.Now().UTC()
	}
	cart.UpdatedAt = time.Now().UTC()
	r.carts[id] = cart
	return cart, nil
}

func (r *CartRepository) GetCart(_ context.Context, userID string) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cart, ok := r.carts[strings.TrimSpace(userID)]
	if !ok {
		return domain.Cart{}, notFoundError("cart", userID)
	}
	return cart, nil
}

func (r *CartRepository) ClearCart(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cart, ok := r.carts[strings.TrimSpace(userID)]
	if !ok {
		return nil
	}
	cart.Items = nil
	cart.UpdatedAt = time.Now().UTC()
	r.carts[strings.TrimSpace(userID)] = cart
	return nil
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// CounterRepository is a mutex-guarded in-memory sequence source.
type CounterRepository struct {
	mu       sync.Mutex
	counters map[string]int64
	configs  map[string]repositories.CounterConfig
}

// NewCounterRepository constructs an empty in-memory counter store.
func NewCounterRepository() *CounterRepository {
	return &CounterRepository{
		counters: make(map[string]int64),
		configs:  make(map[string]repositories.CounterConfig),
	}
}

func (r *CounterRepository) Next(_ context.Context, counterID string, step int64) (int64, error) {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}
	if step <= 0 {
		step = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.counters[id] + step
	if cfg, ok := r.configs[id]; ok && cfg.MaxValue != nil && next > *cfg.MaxValue {
		return 0, repositories.NewCounterError(repositories.CounterErrorExhausted, "counter exhausted", nil)
	}
	r.counters[id] = next
	return next, nil
}

func (r *CounterRepository) Configure(_ context.Context, counterID string, cfg repositories.CounterConfig) error {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[id] = cfg
	if cfg.InitialValue != nil {
		r.counters[id] = *cfg.InitialValue
	}
	return nil
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

// AuditLogRepository is a mutex-guarded in-memory audit trail.
type AuditLogRepository struct {
	mu      sync.Mutex
	entries []domain.AuditLogEntry
}

// NewAuditLogRepository constructs an empty in-memory audit trail.
func NewAuditLogRepository() *AuditLogRepository {
	return &AuditLogRepository{}
}

func (r *AuditLogRepository) Append(_ context.Context, entry domain.AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *AuditLogRepository) List(_ context.Context, filter repositories.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.AuditLogEntry
	for _, entry := range r.entries {
		if filter.TargetRef != "" && entry.TargetRef != filter.TargetRef {
			continue
		}
		if filter.Actor != "" && entry.Actor != filter.Actor {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	pageSize := filter.Pagination.PageSize
	if pageSize > 0 && len(out) > pageSize {
		out = out[:pageSize]
	}
	return domain.CursorPage[domain.AuditLogEntry]{Items: out}, nil
}

var _ repositories.AuditLogRepository = (*AuditLogRepository)(nil)
