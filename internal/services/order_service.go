package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"
	orderEventCancelled     = "order.cancelled"

	orderIDPrefix       = "ord_"
	orderNumberCounter  = "orders"
	orderNumberDateForm = "20060102"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderEmptyCart indicates checkout was attempted with no cart items.
	ErrOrderEmptyCart = errors.New("order: cart is empty")
	// ErrOrderForbidden indicates the caller does not own the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderNotCancellable indicates the order is past the cancellable states.
	ErrOrderNotCancellable = errors.New("order: not cancellable")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
)

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	UserID         string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Books       repositories.BookRepository
	Carts       repositories.CartRepository
	Stock       repositories.StockRepository
	Counters    repositories.CounterRepository
	Pricing     PricingPolicy
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	carts      repositories.CartRepository
	stock      repositories.StockRepository
	counters   repositories.CounterRepository
	assembler  *orderAssembler
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Books == nil {
		return nil, errors.New("order service: book repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("order service: cart repository is required")
	}
	if deps.Stock == nil {
		return nil, errors.New("order service: stock repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}

	pricing := deps.Pricing
	if pricing == nil {
		pricing = FlatRatePricing{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		carts:      deps.Carts,
		stock:      deps.Stock,
		counters:   deps.Counters,
		assembler:  &orderAssembler{books: deps.Books, pricing: pricing},
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) CreateFromCart(ctx context.Context, cmd CreateOrderFromCartCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Order{}, fmt.Errorf("%w: no cart for user", ErrOrderEmptyCart)
		}
		return Order{}, s.mapRepositoryError(err)
	}

	assembled, err := s.assembler.assemble(ctx, cart)
	if err != nil {
		return Order{}, err
	}

	now := s.now()
	number, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		return Order{}, err
	}

	order := Order{
		ID:              s.nextOrderID(),
		OrderNumber:     number,
		UserID:          userID,
		Status:          domain.OrderStatusPending,
		Currency:        assembled.Currency,
		Items:           assembled.Items,
		Totals:          assembled.Totals,
		ShippingAddress: cloneAddress(cmd.ShippingAddress),
		Metadata:        cloneMap(cmd.Metadata),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	lines := stockLinesFromItems(order.Items)

	// Reserve stock for every line before the order exists. The repository
	// either decrements all lines or none of them.
	if _, err := s.stock.Decrement(ctx, repositories.StockDecrementRequest{
		Lines:    lines,
		OrderRef: order.ID,
		ActorID:  strings.TrimSpace(cmd.ActorID),
		Reason:   "checkout",
		Now:      now,
	}); err != nil {
		return Order{}, err
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		s.compensateStock(ctx, lines, order.ID, cmd.ActorID, "checkout rollback")
		return Order{}, s.mapRepositoryError(err)
	}

	if err := s.carts.ClearCart(ctx, userID); err != nil {
		s.logger(ctx, "order.cart.clear.failed", map[string]any{
			"order": order.ID,
			"user":  userID,
			"error": err.Error(),
		})
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		CurrentStatus: string(order.Status),
		ActorID:       cmd.ActorID,
		OccurredAt:    now,
		Metadata:      maps.Clone(order.Metadata),
	})

	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) AdvanceStatus(ctx context.Context, cmd AdvanceOrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	target := domain.OrderStatus(strings.TrimSpace(string(cmd.TargetStatus)))

	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if target == "" {
		return Order{}, fmt.Errorf("%w: target status is required", ErrOrderInvalidInput)
	}
	if !isKnownOrderStatus(target) {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, target)
	}

	now := s.now()
	actor := strings.TrimSpace(cmd.ActorID)

	var prevStatus domain.OrderStatus
	var ownsRestore bool
	order, err := s.orders.Transition(ctx, orderID, func(o *domain.Order) error {
		if !canTransition(o.Status, target) {
			return fmt.Errorf("%w: %w", ErrOrderInvalidState, &InvalidTransitionError{
				From:    o.Status,
				To:      target,
				Allowed: allowedTransitions(o.Status),
			})
		}

		prevStatus = o.Status
		o.Status = target
		o.UpdatedAt = now
		applyStatusTimestamps(o, target, now)

		if target == domain.OrderStatusCancelled {
			o.CancelReason = optionalString(strings.TrimSpace(cmd.Reason))
			// Flipping the flag in the same commit as the status write makes
			// the winning transition the sole owner of the restore.
			ownsRestore = !o.StockRestored
			o.StockRestored = true
		}
		return nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if target == domain.OrderStatusCancelled && ownsRestore {
		if err := s.restoreReservedStock(ctx, order, actor, now); err != nil {
			return Order{}, err
		}
	}

	metadata := cloneMap(cmd.Metadata)
	if reason := strings.TrimSpace(cmd.Reason); reason != "" {
		metadata = ensureMap(metadata)
		metadata["reason"] = reason
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(order.Status),
		ActorID:        actor,
		OccurredAt:     now,
		Metadata:       metadata,
	})

	return order, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	now := s.now()
	actor := strings.TrimSpace(cmd.RequestedBy)
	reason := strings.TrimSpace(cmd.Reason)

	var prevStatus domain.OrderStatus
	var ownsRestore bool
	order, err := s.orders.Transition(ctx, orderID, func(o *domain.Order) error {
		if !cmd.AsAdmin && o.UserID != actor {
			return fmt.Errorf("%w: order belongs to another user", ErrOrderForbidden)
		}
		if !isCancellable(o.Status) {
			return fmt.Errorf("%w: status %q", ErrOrderNotCancellable, o.Status)
		}

		prevStatus = o.Status
		o.Status = domain.OrderStatusCancelled
		o.CancelReason = optionalString(reason)
		o.CancelledAt = &now
		o.UpdatedAt = now
		// Concurrent cancels race to this commit; only the winner observes the
		// flag unset and performs the restore.
		ownsRestore = !o.StockRestored
		o.StockRestored = true
		return nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if ownsRestore {
		if err := s.restoreReservedStock(ctx, order, actor, now); err != nil {
			return Order{}, err
		}
	}

	metadata := cloneMap(cmd.Metadata)
	if reason != "" {
		metadata = ensureMap(metadata)
		metadata["reason"] = reason
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventCancelled,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(order.Status),
		ActorID:        actor,
		OccurredAt:     now,
		Metadata:       metadata,
	})

	return order, nil
}

// restoreReservedStock returns reserved stock after a cancellation commit has
// claimed the StockRestored flag. A failure here leaves the reservation held
// with the flag set, so it is logged at the highest severity for a manual
// adjustment rather than retried against an already cancelled order.
func (s *orderService) restoreReservedStock(ctx context.Context, order Order, actor string, now time.Time) error {
	if _, err := s.stock.Restore(ctx, repositories.StockRestoreRequest{
		Lines:    stockLinesFromItems(order.Items),
		OrderRef: order.ID,
		ActorID:  actor,
		Reason:   "order cancelled",
		Now:      now,
	}); err != nil {
		s.logger(ctx, "order.stock.restore.failed", map[string]any{
			"severity": "critical",
			"order":    order.ID,
			"error":    err.Error(),
		})
		return err
	}
	return nil
}

// compensateStock undoes a reservation after a failed order insert. A failure
// here leaves phantom reservations that need a manual adjustment, so it is
// logged at the highest severity rather than swallowed.
func (s *orderService) compensateStock(ctx context.Context, lines []repositories.StockLine, orderRef, actor, reason string) {
	if _, err := s.stock.Restore(ctx, repositories.StockRestoreRequest{
		Lines:    lines,
		OrderRef: orderRef,
		ActorID:  strings.TrimSpace(actor),
		Reason:   reason,
		Now:      s.now(),
	}); err != nil {
		s.logger(ctx, "order.stock.compensation.failed", map[string]any{
			"severity": "critical",
			"order":    orderRef,
			"error":    err.Error(),
		})
	}
}

func applyStatusTimestamps(order *Order, status domain.OrderStatus, now time.Time) {
	switch status {
	case domain.OrderStatusConfirmed:
		order.ConfirmedAt = &now
	case domain.OrderStatusShipped:
		order.ShippedAt = &now
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &now
	case domain.OrderStatusCancelled:
		if order.CancelledAt == nil {
			order.CancelledAt = &now
		}
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, orderNumberCounter, 1)
	if err != nil {
		return "", err
	}
	return formatOrderNumber(now.Format(orderNumberDateForm), seq), nil
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

func stockLinesFromItems(items []OrderLineItem) []repositories.StockLine {
	lines := make([]repositories.StockLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, repositories.StockLine{BookID: item.BookID, Quantity: item.Quantity})
	}
	return lines
}

func cloneAddress(addr *Address) *Address {
	if addr == nil {
		return nil
	}
	cloned := *addr
	return &cloned
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	return maps.Clone(src)
}

func ensureMap(src map[string]any) map[string]any {
	if src == nil {
		return map[string]any{}
	}
	return src
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	ref := v
	return &ref
}
