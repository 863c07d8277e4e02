package repositories

import (
	"context"
	"time"

	domain "github.com/inkwell-books/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Books() BookRepository
	Stock() StockRepository
	Orders() OrderRepository
	Carts() CartRepository
	AuditLogs() AuditLogRepository
	Counters() CounterRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// BookRepository persists catalog entries.
type BookRepository interface {
	Upsert(ctx context.Context, book domain.Book) (domain.Book, error)
	Delete(ctx context.Context, bookID string) error
	FindByID(ctx context.Context, bookID string) (domain.Book, error)
	List(ctx context.Context, filter BookListFilter) (domain.CursorPage[domain.Book], error)
}

// BookListFilter narrows catalog listings.
type BookListFilter struct {
	Author     string
	Tag        string
	ActiveOnly bool
	Pagination domain.Pagination
}

// StockRepository owns per-book quantities and the mutation ledger. Every
// quantity change and its ledger entry commit in the same transaction.
type StockRepository interface {
	// Decrement removes stock for every line or for none of them. A line that
	// cannot be satisfied fails the whole request with an insufficient-stock
	// error carrying the offending book.
	Decrement(ctx context.Context, req StockDecrementRequest) (StockMutationResult, error)
	// Restore adds previously decremented stock back, recording restore entries.
	Restore(ctx context.Context, req StockRestoreRequest) (StockMutationResult, error)
	// Adjust applies a manual correction. The resulting quantity must not be
	// negative; violations are rejected as conflicts.
	Adjust(ctx context.Context, req StockAdjustRequest) (StockMutationResult, error)
	Get(ctx context.Context, bookID string) (domain.BookStock, error)
	ListMutations(ctx context.Context, filter StockMutationFilter) (domain.CursorPage[domain.StockMutation], error)
}

// StockLine pairs a book with a quantity for batch stock operations.
type StockLine struct {
	BookID   string
	Quantity int
}

// StockDecrementRequest describes an all-or-nothing multi-line decrement.
type StockDecrementRequest struct {
	Lines    []StockLine
	OrderRef string
	ActorID  string
	Reason   string
	Now      time.Time
}

// StockRestoreRequest returns stock for the given lines.
type StockRestoreRequest struct {
	Lines    []StockLine
	OrderRef string
	ActorID  string
	Reason   string
	Now      time.Time
}

// StockAdjustRequest applies a signed delta to a single book.
type StockAdjustRequest struct {
	BookID  string
	Delta   int
	Reason  string
	ActorID string
	Now     time.Time
}

// StockMutationResult reports the updated quantities and the ledger entries written.
type StockMutationResult struct {
	Stocks    map[string]domain.BookStock
	Mutations []domain.StockMutation
}

// StockMutationFilter narrows ledger history listings.
type StockMutationFilter struct {
	BookID     string
	Types      []domain.StockMutationType
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// CartRepository owns cart persistence with optimistic locking guarantees.
type CartRepository interface {
	UpsertCart(ctx context.Context, cart domain.Cart, expectedUpdate *time.Time) (domain.Cart, error)
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// OrderRepository persists order documents and provides query helpers for users and admins.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	// Transition atomically reads the order, applies mutate, and persists the
	// result. An error from mutate aborts without writing; guards evaluated
	// inside mutate therefore hold against concurrent transitions.
	Transition(ctx context.Context, orderID string, mutate func(*domain.Order) error) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// OrderListFilter scopes order listings by owner, status, and creation window.
type OrderListFilter struct {
	UserID     string
	Status     []string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// AuditLogRepository persists immutable audit trail entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error)
}

// AuditLogFilter selects audit entries by subject, actor, and time range.
type AuditLogFilter struct {
	TargetRef  string
	Actor      string
	ActorType  string
	Action     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// HealthRepository aggregates dependency probes for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
