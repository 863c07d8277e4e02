package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Book is the catalog entry orders denormalise from.
type Book struct {
	ID          string
	ISBN        string
	Title       string
	Author      string
	Description string
	Language    string
	Tags        []string
	UnitPrice   int64
	Currency    string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BookStock is the authoritative on-hand quantity for a single book.
type BookStock struct {
	BookID    string
	OnHand    int
	UpdatedAt time.Time
}

// StockMutationType enumerates the ledger entry categories.
type StockMutationType string

const (
	// StockMutationInbound records received stock (initial load, restock deliveries).
	StockMutationInbound StockMutationType = "inbound"
	// StockMutationOutbound records stock committed to an order.
	StockMutationOutbound StockMutationType = "outbound"
	// StockMutationAdjustment records a manual correction by staff.
	StockMutationAdjustment StockMutationType = "adjustment"
	// StockMutationRestore records stock returned by a cancelled order.
	StockMutationRestore StockMutationType = "restore"
)

// StockMutation is one append-only ledger entry, committed atomically with the
// quantity change it describes.
type StockMutation struct {
	ID         string
	BookID     string
	Type       StockMutationType
	Delta      int
	Before     int
	After      int
	Reason     string
	OrderRef   string
	ActorID    string
	OccurredAt time.Time
}

// Cart holds a user's pending items prior to checkout.
type Cart struct {
	ID        string
	UserID    string
	Currency  string
	Items     []CartItem
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem is a single cart line. UnitPrice is captured from the catalog when
// the line is added so the checkout total matches what the user saw.
type CartItem struct {
	BookID    string
	Quantity  int
	UnitPrice int64
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was created and awaits confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates the order has been accepted for fulfilment.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing indicates the order is being picked and packed.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order has left the warehouse.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled before shipment.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is the persisted checkout result. Line items carry denormalised book
// details so later catalog edits never rewrite order history.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	Status          OrderStatus
	Currency        string
	Items           []OrderLineItem
	Totals          OrderTotals
	ShippingAddress *Address
	CancelReason    *string
	StockRestored   bool
	ConfirmedAt     *time.Time
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
	Metadata        map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderLineItem is one purchased book with its snapshot of catalog details.
type OrderLineItem struct {
	BookID    string
	ISBN      string
	Title     string
	Author    string
	Quantity  int
	UnitPrice int64
	Subtotal  int64
}

// OrderTotals captures the priced breakdown in minor currency units.
type OrderTotals struct {
	Subtotal int64
	Tax      int64
	Shipping int64
	Total    int64
}

// Address represents postal address structures shared by user and order layers.
type Address struct {
	Recipient  string
	Line1      string
	Line2      *string
	City       string
	State      *string
	PostalCode string
	Country    string
	Phone      *string
}

// Health statuses reported by dependency probes.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// AuditLogEntry captures a staff or system mutation for compliance review.
type AuditLogEntry struct {
	ID        string
	Actor     string
	ActorType string
	Action    string
	TargetRef string
	Metadata  map[string]any
	Severity  string
	RequestID string
	UserAgent string
	CreatedAt time.Time
}
