package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/repositories"
)

type stubOrderRepo struct {
	insertFn     func(context.Context, domain.Order) error
	updateFn     func(context.Context, domain.Order) error
	findFn       func(context.Context, string) (domain.Order, error)
	listFn       func(context.Context, repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	transitionFn func(context.Context, string, func(*domain.Order) error) (domain.Order, error)
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) Update(ctx context.Context, order domain.Order) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

// Transition defaults to a read-mutate-update composition over the other
// stub hooks so tests only wiring findFn and updateFn keep working.
func (s *stubOrderRepo) Transition(ctx context.Context, orderID string, mutate func(*domain.Order) error) (domain.Order, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, orderID, mutate)
	}
	order, err := s.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := mutate(&order); err != nil {
		return domain.Order{}, err
	}
	if err := s.Update(ctx, order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

type stubBookRepo struct {
	findFn func(context.Context, string) (domain.Book, error)
}

func (s *stubBookRepo) Upsert(ctx context.Context, book domain.Book) (domain.Book, error) {
	return book, nil
}

func (s *stubBookRepo) Delete(context.Context, string) error { return nil }

func (s *stubBookRepo) FindByID(ctx context.Context, bookID string) (domain.Book, error) {
	if s.findFn != nil {
		return s.findFn(ctx, bookID)
	}
	return domain.Book{}, errors.New("not implemented")
}

func (s *stubBookRepo) List(context.Context, repositories.BookListFilter) (domain.CursorPage[domain.Book], error) {
	return domain.CursorPage[domain.Book]{}, nil
}

type stubCartRepo struct {
	getFn   func(context.Context, string) (domain.Cart, error)
	clearFn func(context.Context, string) error
}

func (s *stubCartRepo) UpsertCart(ctx context.Context, cart domain.Cart, _ *time.Time) (domain.Cart, error) {
	return cart, nil
}

func (s *stubCartRepo) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID)
	}
	return domain.Cart{}, errors.New("not implemented")
}

func (s *stubCartRepo) ClearCart(ctx context.Context, userID string) error {
	if s.clearFn != nil {
		return s.clearFn(ctx, userID)
	}
	return nil
}

type stubStockRepo struct {
	decrementFn func(context.Context, repositories.StockDecrementRequest) (repositories.StockMutationResult, error)
	restoreFn   func(context.Context, repositories.StockRestoreRequest) (repositories.StockMutationResult, error)
	adjustFn    func(context.Context, repositories.StockAdjustRequest) (repositories.StockMutationResult, error)
	getFn       func(context.Context, string) (domain.BookStock, error)
}

func (s *stubStockRepo) Decrement(ctx context.Context, req repositories.StockDecrementRequest) (repositories.StockMutationResult, error) {
	if s.decrementFn != nil {
		return s.decrementFn(ctx, req)
	}
	return repositories.StockMutationResult{}, nil
}

func (s *stubStockRepo) Restore(ctx context.Context, req repositories.StockRestoreRequest) (repositories.StockMutationResult, error) {
	if s.restoreFn != nil {
		return s.restoreFn(ctx, req)
	}
	return repositories.StockMutationResult{}, nil
}

func (s *stubStockRepo) Adjust(ctx context.Context, req repositories.StockAdjustRequest) (repositories.StockMutationResult, error) {
	if s.adjustFn != nil {
		return s.adjustFn(ctx, req)
	}
	return repositories.StockMutationResult{}, nil
}

func (s *stubStockRepo) Get(ctx context.Context, bookID string) (domain.BookStock, error) {
	if s.getFn != nil {
		return s.getFn(ctx, bookID)
	}
	return domain.BookStock{}, errors.New("not implemented")
}

func (s *stubStockRepo) ListMutations(context.Context, repositories.StockMutationFilter) (domain.CursorPage[domain.StockMutation], error) {
	return domain.CursorPage[domain.StockMutation]{}, nil
}

type stubCounterRepo struct {
	nextFn func(context.Context, string, int64) (int64, error)
}

func (s *stubCounterRepo) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if s.nextFn != nil {
		return s.nextFn(ctx, counterID, step)
	}
	return 0, nil
}

func (s *stubCounterRepo) Configure(context.Context, string, repositories.CounterConfig) error {
	return nil
}

type captureOrderEvents struct {
	events []OrderEvent
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.events = append(c.events, event)
	return nil
}

func catalogBooks() map[string]domain.Book {
	return map[string]domain.Book{
		"book-1": {ID: "book-1", ISBN: "9780000000001", Title: "The Go Workshop", Author: "A. Writer", UnitPrice: 1500, Currency: "USD", Active: true},
		"book-2": {ID: "book-2", ISBN: "9780000000002", Title: "Patterns of Prose", Author: "B. Author", UnitPrice: 2000, Currency: "USD", Active: true},
	}
}

func newTestOrderService(t *testing.T, deps OrderServiceDeps) OrderService {
	t.Helper()
	if deps.Orders == nil {
		deps.Orders = &stubOrderRepo{}
	}
	if deps.Books == nil {
		books := catalogBooks()
		deps.Books = &stubBookRepo{findFn: func(_ context.Context, id string) (domain.Book, error) {
			book, ok := books[id]
			if !ok {
				return domain.Book{}, errors.New("unknown book")
			}
			return book, nil
		}}
	}
	if deps.Carts == nil {
		deps.Carts = &stubCartRepo{}
	}
	if deps.Stock == nil {
		deps.Stock = &stubStockRepo{}
	}
	if deps.Counters == nil {
		deps.Counters = &stubCounterRepo{nextFn: func(context.Context, string, int64) (int64, error) { return 1, nil }}
	}
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return svc
}

func TestOrderServiceCreateFromCart(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	inserted := make([]domain.Order, 0, 1)
	var decremented repositories.StockDecrementRequest
	cleared := ""
	events := &captureOrderEvents{}

	orderRepo := &stubOrderRepo{
		insertFn: func(_ context.Context, order domain.Order) error {
			inserted = append(inserted, order)
			return nil
		},
	}

	stock := &stubStockRepo{
		decrementFn: func(_ context.Context, req repositories.StockDecrementRequest) (repositories.StockMutationResult, error) {
			decremented = req
			return repositories.StockMutationResult{}, nil
		},
	}

	carts := &stubCartRepo{
		getFn: func(_ context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{
				ID:       userID,
				UserID:   userID,
				Currency: "USD",
				Items: []domain.CartItem{
					{BookID: "book-1", Quantity: 2, UnitPrice: 1500},
					{BookID: "book-2", Quantity: 1, UnitPrice: 2000},
				},
			}, nil
		},
		clearFn: func(_ context.Context, userID string) error {
			cleared = userID
			return nil
		},
	}

	counters := &stubCounterRepo{
		nextFn: func(_ context.Context, counterID string, step int64) (int64, error) {
			if counterID != "orders" {
				t.Fatalf("unexpected counter id %s", counterID)
			}
			if step != 1 {
				t.Fatalf("unexpected step %d", step)
			}
			return 42, nil
		},
	}

	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:   orderRepo,
		Carts:    carts,
		Stock:    stock,
		Counters: counters,
		Pricing:  FlatRatePricing{TaxRateBasisPoints: 1000, ShippingFee: 500, FreeShippingThreshold: 10000},
		Clock:    func() time.Time { return now },
		IDGenerator: func() string {
			return "000TEST"
		},
		Events: events,
	})

	order, err := svc.CreateFromCart(ctx, CreateOrderFromCartCommand{
		UserID:  "user-1",
		ActorID: "user-1",
	})
	if err != nil {
		t.Fatalf("create from cart: %v", err)
	}

	if order.ID != "ord_000TEST" {
		t.Fatalf("unexpected order id %s", order.ID)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected status pending got %s", order.Status)
	}
	if order.OrderNumber != "ORD-20250501-000042" {
		t.Fatalf("unexpected order number %s", order.OrderNumber)
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected 2 line items got %d", len(order.Items))
	}
	if order.Items[0].Title != "The Go Workshop" || order.Items[0].Author != "A. Writer" || order.Items[0].ISBN != "9780000000001" {
		t.Fatalf("expected catalog data denormalized, got %+v", order.Items[0])
	}
	// subtotal 5000, tax 10% = 500, shipping 500 below free threshold
	if order.Totals.Subtotal != 5000 || order.Totals.Tax != 500 || order.Totals.Shipping != 500 || order.Totals.Total != 6000 {
		t.Fatalf("unexpected totals %+v", order.Totals)
	}
	if len(decremented.Lines) != 2 || decremented.OrderRef != order.ID {
		t.Fatalf("unexpected decrement request %+v", decremented)
	}
	if len(inserted) != 1 {
		t.Fatalf("expected 1 inserted order got %d", len(inserted))
	}
	if cleared != "user-1" {
		t.Fatalf("expected cart cleared for user-1, got %q", cleared)
	}
	if len(events.events) != 1 || events.events[0].Type != orderEventCreated {
		t.Fatalf("expected order.created event, got %+v", events.events)
	}
}

func TestOrderServiceCreateFromCartEmptyCart(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{
		Carts: &stubCartRepo{
			getFn: func(_ context.Context, userID string) (domain.Cart, error) {
				return domain.Cart{ID: userID, UserID: userID, Currency: "USD"}, nil
			},
		},
	})

	_, err := svc.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-1"})
	if !errors.Is(err, ErrOrderEmptyCart) {
		t.Fatalf("expected ErrOrderEmptyCart, got %v", err)
	}
}

func TestOrderServiceCreateFromCartInsufficientStock(t *testing.T) {
	insufficient := repositories.NewStockError(repositories.StockErrorInsufficient, "insufficient stock",
		&repositories.InsufficientStockDetail{BookID: "book-1", Requested: 2, Available: 1})

	inserts := 0
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepo{insertFn: func(context.Context, domain.Order) error {
			inserts++
			return nil
		}},
		Carts: &stubCartRepo{
			getFn: func(_ context.Context, userID string) (domain.Cart, error) {
				return domain.Cart{ID: userID, UserID: userID, Currency: "USD", Items: []domain.CartItem{{BookID: "book-1", Quantity: 2, UnitPrice: 1500}}}, nil
			},
		},
		Stock: &stubStockRepo{
			decrementFn: func(context.Context, repositories.StockDecrementRequest) (repositories.StockMutationResult, error) {
				return repositories.StockMutationResult{}, insufficient
			},
		},
	})

	_, err := svc.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-1"})

	var detail *repositories.InsufficientStockDetail
	if !errors.As(err, &detail) {
		t.Fatalf("expected insufficient stock detail, got %v", err)
	}
	if detail.BookID != "book-1" || detail.Requested != 2 || detail.Available != 1 {
		t.Fatalf("unexpected detail %+v", detail)
	}
	if inserts != 0 {
		t.Fatalf("order must not be inserted when stock reservation fails")
	}
}

func TestOrderServiceCreateFromCartCompensatesOnInsertFailure(t *testing.T) {
	var restored repositories.StockRestoreRequest
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepo{insertFn: func(context.Context, domain.Order) error {
			return errors.New("write failed")
		}},
		Carts: &stubCartRepo{
			getFn: func(_ context.Context, userID string) (domain.Cart, error) {
				return domain.Cart{ID: userID, UserID: userID, Currency: "USD", Items: []domain.CartItem{{BookID: "book-1", Quantity: 3, UnitPrice: 1500}}}, nil
			},
		},
		Stock: &stubStockRepo{
			restoreFn: func(_ context.Context, req repositories.StockRestoreRequest) (repositories.StockMutationResult, error) {
				restored = req
				return repositories.StockMutationResult{}, nil
			},
		},
	})

	if _, err := svc.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-1"}); err == nil {
		t.Fatalf("expected insert failure to propagate")
	}
	if len(restored.Lines) != 1 || restored.Lines[0].BookID != "book-1" || restored.Lines[0].Quantity != 3 {
		t.Fatalf("expected compensating restore for reserved lines, got %+v", restored)
	}
}

func TestOrderServiceAdvanceStatus(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	orderRepo := &stubOrderRepo{}
	orderRepo.findFn = func(_ context.Context, id string) (domain.Order, error) {
		return domain.Order{ID: id, Status: domain.OrderStatusPending, OrderNumber: "ORD-20250601-000001", Currency: "USD"}, nil
	}
	var updated domain.Order
	orderRepo.updateFn = func(_ context.Context, order domain.Order) error {
		updated = order
		return nil
	}

	svc := newTestOrderService(t, OrderServiceDeps{
		Orders: orderRepo,
		Clock:  func() time.Time { return now },
	})

	order, err := svc.AdvanceStatus(ctx, AdvanceOrderStatusCommand{
		OrderID:      "order-1",
		TargetStatus: domain.OrderStatusConfirmed,
		ActorID:      "admin-1",
	})
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if order.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected status confirmed got %s", order.Status)
	}
	if updated.Status != domain.OrderStatusConfirmed {
		t.Fatalf("repository update not invoked with confirmed status")
	}
	if updated.ConfirmedAt == nil || !updated.ConfirmedAt.Equal(now) {
		t.Fatalf("expected confirmedAt to be set")
	}

	_, err = svc.AdvanceStatus(ctx, AdvanceOrderStatusCommand{
		OrderID:      "order-1",
		TargetStatus: domain.OrderStatusShipped,
		ActorID:      "admin-1",
	})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid transition error, got %v", err)
	}
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError in chain, got %v", err)
	}
	if invalid.From != domain.OrderStatusPending || invalid.To != domain.OrderStatusShipped {
		t.Fatalf("unexpected transition detail %+v", invalid)
	}
}

func TestOrderServiceAdvanceStatusTimestamps(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC)

	cases := []struct {
		from   domain.OrderStatus
		to     domain.OrderStatus
		assert func(t *testing.T, order domain.Order)
	}{
		{domain.OrderStatusProcessing, domain.OrderStatusShipped, func(t *testing.T, order domain.Order) {
			if order.ShippedAt == nil || !order.ShippedAt.Equal(now) {
				t.Fatalf("expected shippedAt set")
			}
		}},
		{domain.OrderStatusShipped, domain.OrderStatusDelivered, func(t *testing.T, order domain.Order) {
			if order.DeliveredAt == nil || !order.DeliveredAt.Equal(now) {
				t.Fatalf("expected deliveredAt set")
			}
		}},
	}

	for _, tc := range cases {
		var updated domain.Order
		svc := newTestOrderService(t, OrderServiceDeps{
			Orders: &stubOrderRepo{
				findFn: func(_ context.Context, id string) (domain.Order, error) {
					return domain.Order{ID: id, Status: tc.from, Currency: "USD"}, nil
				},
				updateFn: func(_ context.Context, order domain.Order) error {
					updated = order
					return nil
				},
			},
			Clock: func() time.Time { return now },
		})

		if _, err := svc.AdvanceStatus(ctx, AdvanceOrderStatusCommand{OrderID: "order-1", TargetStatus: tc.to}); err != nil {
			t.Fatalf("advance %s -> %s: %v", tc.from, tc.to, err)
		}
		tc.assert(t, updated)
	}
}

func TestOrderServiceAdvanceStatusCancelRestoresStock(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC)
	restores := 0
	var updated domain.Order

	svc := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepo{
			findFn: func(_ context.Context, id string) (domain.Order, error) {
				return domain.Order{
					ID:     id,
					Status: domain.OrderStatusConfirmed,
					Items:  []domain.OrderLineItem{{BookID: "book-1", Quantity: 2}},
				}, nil
			},
			updateFn: func(_ context.Context, order domain.Order) error {
				updated = order
				return nil
			},
		},
		Stock: &stubStockRepo{
			restoreFn: func(_ context.Context, req repositories.StockRestoreRequest) (repositories.StockMutationResult, error) {
				restores++
				return repositories.StockMutationResult{}, nil
			},
		},
		Clock: func() time.Time { return now },
	})

	order, err := svc.AdvanceStatus(ctx, AdvanceOrderStatusCommand{
		OrderID:      "order-1",
		TargetStatus: domain.OrderStatusCancelled,
		ActorID:      "admin-1",
		Reason:       "fraud review",
	})
	if err != nil {
		t.Fatalf("advance to cancelled: %v", err)
	}
	if restores != 1 {
		t.Fatalf("expected one stock restore, got %d", restores)
	}
	if !order.StockRestored || !updated.StockRestored {
		t.Fatalf("expected stockRestored flag persisted")
	}
	if updated.CancelReason == nil || *updated.CancelReason != "fraud review" {
		t.Fatalf("expected cancel reason persisted")
	}
}

func TestOrderServiceCancel(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	orderRepo := &stubOrderRepo{}
	orderRepo.findFn = func(_ context.Context, id string) (domain.Order, error) {
		return domain.Order{
			ID:          id,
			UserID:      "user-1",
			Status:      domain.OrderStatusPending,
			OrderNumber: "ORD-20250701-000010",
			Currency:    "USD",
			Items:       []domain.OrderLineItem{{BookID: "book-1", Quantity: 1}},
		}, nil
	}
	var updated domain.Order
	orderRepo.updateFn = func(_ context.Context, order domain.Order) error {
		updated = order
		return nil
	}

	var restored repositories.StockRestoreRequest
	stock := &stubStockRepo{
		restoreFn: func(_ context.Context, req repositories.StockRestoreRequest) (repositories.StockMutationResult, error) {
			restored = req
			return repositories.StockMutationResult{}, nil
		},
	}

	events := &captureOrderEvents{}

	svc := newTestOrderService(t, OrderServiceDeps{
		Orders: orderRepo,
		Stock:  stock,
		Clock:  func() time.Time { return now },
		Events: events,
	})

	order, err := svc.Cancel(ctx, CancelOrderCommand{
		OrderID:     "order-1",
		RequestedBy: "user-1",
		Reason:      "changed mind",
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled status got %s", order.Status)
	}
	if updated.CancelReason == nil || *updated.CancelReason != "changed mind" {
		t.Fatalf("expected cancel reason propagated")
	}
	if updated.CancelledAt == nil || !updated.CancelledAt.Equal(now) {
		t.Fatalf("expected cancelledAt set")
	}
	if len(restored.Lines) != 1 || restored.Lines[0].BookID != "book-1" {
		t.Fatalf("expected stock restore for order lines, got %+v", restored)
	}
	if len(events.events) != 1 || events.events[0].Type != orderEventCancelled {
		t.Fatalf("expected order.cancelled event")
	}
}

func TestOrderServiceCancelForbiddenForOtherUser(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepo{
			findFn: func(_ context.Context, id string) (domain.Order, error) {
				return domain.Order{ID: id, UserID: "user-1", Status: domain.OrderStatusPending}, nil
			},
		},
	})

	_, err := svc.Cancel(context.Background(), CancelOrderCommand{OrderID: "order-1", RequestedBy: "user-2"})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden, got %v", err)
	}
}

func TestOrderServiceCancelAdminBypassesOwnership(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepo{
			findFn: func(_ context.Context, id string) (domain.Order, error) {
				return domain.Order{ID: id, UserID: "user-1", Status: domain.OrderStatusConfirmed}, nil
			},
		},
	})

	if _, err := svc.Cancel(context.Background(), CancelOrderCommand{OrderID: "order-1", RequestedBy: "admin-9", AsAdmin: true}); err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
}

func TestOrderServiceCancelNotCancellable(t *testing.T) {
	for _, status := range []domain.OrderStatus{
		domain.OrderStatusProcessing,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
	} {
		svc := newTestOrderService(t, OrderServiceDeps{
			Orders: &stubOrderRepo{
				findFn: func(_ context.Context, id string) (domain.Order, error) {
					return domain.Order{ID: id, UserID: "user-1", Status: status}, nil
				},
			},
		})

		_, err := svc.Cancel(context.Background(), CancelOrderCommand{OrderID: "order-1", RequestedBy: "user-1"})
		if !errors.Is(err, ErrOrderNotCancellable) {
			t.Fatalf("status %s: expected ErrOrderNotCancellable, got %v", status, err)
		}
	}
}

func TestOrderServiceCancelSkipsRestoreWhenAlreadyRestored(t *testing.T) {
	restores := 0
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepo{
			findFn: func(_ context.Context, id string) (domain.Order, error) {
				return domain.Order{
					ID:            id,
					UserID:        "user-1",
					Status:        domain.OrderStatusPending,
					StockRestored: true,
					Items:         []domain.OrderLineItem{{BookID: "book-1", Quantity: 1}},
				}, nil
			},
		},
		Stock: &stubStockRepo{
			restoreFn: func(context.Context, repositories.StockRestoreRequest) (repositories.StockMutationResult, error) {
				restores++
				return repositories.StockMutationResult{}, nil
			},
		},
	})

	if _, err := svc.Cancel(context.Background(), CancelOrderCommand{OrderID: "order-1", RequestedBy: "user-1"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if restores != 0 {
		t.Fatalf("expected no restore for already compensated order, got %d", restores)
	}
}
