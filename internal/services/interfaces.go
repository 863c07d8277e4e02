package services

import (
	"context"
	"time"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	SortOrder          = domain.SortOrder
	Book               = domain.Book
	BookStock          = domain.BookStock
	StockMutation      = domain.StockMutation
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	Order              = domain.Order
	OrderStatus        = domain.OrderStatus
	OrderTotals        = domain.OrderTotals
	OrderLineItem      = domain.OrderLineItem
	Address            = domain.Address
	SystemHealthReport = domain.SystemHealthReport
	AuditLogEntry      = domain.AuditLogEntry
)

// CatalogService manages the book catalog for public listings and admin curation.
type CatalogService interface {
	GetBook(ctx context.Context, bookID string) (Book, error)
	ListBooks(ctx context.Context, filter BookListFilter) (domain.CursorPage[Book], error)
	UpsertBook(ctx context.Context, cmd UpsertBookCommand) (Book, error)
	DeleteBook(ctx context.Context, cmd DeleteBookCommand) error
}

// CartService manages mutable cart state keyed by user.
type CartService interface {
	GetOrCreateCart(ctx context.Context, userID string) (Cart, error)
	AddOrUpdateItem(ctx context.Context, cmd UpsertCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// OrderService encapsulates checkout, cancellation, and fulfillment status flows.
type OrderService interface {
	CreateFromCart(ctx context.Context, cmd CreateOrderFromCartCommand) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	AdvanceStatus(ctx context.Context, cmd AdvanceOrderStatusCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
}

// StockEventPublisher accepts stock change notifications for downstream processing.
type StockEventPublisher interface {
	PublishStockEvent(ctx context.Context, event StockEvent) error
}

// StockEvent captures metadata for emitted stock mutation events.
type StockEvent struct {
	Type       string
	BookID     string
	Delta      int
	After      int
	ActorID    string
	OccurredAt time.Time
}

// StockService centralizes stock reads and admin adjustments. Order-driven
// decrements and restores flow through the OrderService, which calls the
// stock repository under the same flow boundaries.
type StockService interface {
	GetStock(ctx context.Context, bookID string) (BookStock, error)
	AdjustStock(ctx context.Context, cmd StockAdjustCommand) (BookStock, error)
	ListMutations(ctx context.Context, filter StockMutationFilter) (domain.CursorPage[StockMutation], error)
}

// SystemService aggregates utility endpoints (health checks, counters).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
	NextCounterValue(ctx context.Context, cmd CounterCommand) (int64, error)
}

// AuditLogService centralizes immutable audit log persistence and retrieval.
type AuditLogService interface {
	Record(ctx context.Context, record AuditLogRecord)
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
}

// ErrorTranslator converts repository or platform errors into domain-aware sentinel errors.
type ErrorTranslator interface {
	Translate(err error) error
}

// Command and DTO definitions ------------------------------------------------

type BookListFilter = repositories.BookListFilter

type UpsertBookCommand struct {
	Book    Book
	ActorID string
}

type DeleteBookCommand struct {
	BookID  string
	ActorID string
}

type UpsertCartItemCommand struct {
	UserID   string
	BookID   string
	Quantity int
}

type RemoveCartItemCommand struct {
	UserID string
	BookID string
}

type OrderListFilter = repositories.OrderListFilter

type CreateOrderFromCartCommand struct {
	UserID          string
	ActorID         string
	ShippingAddress *Address
	Metadata        map[string]any
}

type AdvanceOrderStatusCommand struct {
	OrderID      string
	TargetStatus OrderStatus
	ActorID      string
	Reason       string
	Metadata     map[string]any
}

type CancelOrderCommand struct {
	OrderID     string
	RequestedBy string
	AsAdmin     bool
	Reason      string
	Metadata    map[string]any
}

type StockAdjustCommand struct {
	BookID  string
	Delta   int
	Reason  string
	ActorID string
}

type StockMutationFilter = repositories.StockMutationFilter

// AuditLogRecord defines the payload accepted by the audit writer service.
type AuditLogRecord struct {
	Actor      string
	ActorType  string
	Action     string
	TargetRef  string
	Severity   string
	RequestID  string
	OccurredAt time.Time
	Metadata   map[string]any
	UserAgent  string
}

type AuditLogFilter = repositories.AuditLogFilter

type CounterCommand struct {
	CounterID string
	Step      int64
}
