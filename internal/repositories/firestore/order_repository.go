package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/inkwell-books/api/internal/domain"
	pfirestore "github.com/inkwell-books/api/internal/platform/firestore"
	"github.com/inkwell-books/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists order documents within Firestore.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{base: base, provider: provider}, nil
}

// Insert creates the order document; an existing ID is a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}

	ref, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, newOrderDocument(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update overwrites the order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}

	if _, err := r.base.Set(ctx, orderID, newOrderDocument(order)); err != nil {
		return err
	}
	return nil
}

// Transition atomically reads the order, applies mutate, and writes the result
// back inside one transaction. An error from mutate aborts without writing, so
// status guards evaluated inside it hold against concurrent transitions.
func (r *OrderRepository) Transition(ctx context.Context, orderID string, mutate func(*domain.Order) error) (domain.Order, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	if mutate == nil {
		return domain.Order{}, errors.New("order repository: mutate func is required")
	}

	ref, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	var updated domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError("orders.transition", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}

		order := doc.toDomain(orderID)
		if err := mutate(&order); err != nil {
			return err
		}
		if err := tx.Set(ref, newOrderDocument(order)); err != nil {
			return pfirestore.WrapError("orders.transition", err)
		}
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

// FindByID loads one order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns orders matching the filter, newest first, cursor paginated.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
	}

	query := client.Collection(ordersCollection).Query
	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		query = query.Where("userId", "==", userID)
	}
	if len(filter.Status) > 0 {
		query = query.Where("status", "in", filter.Status)
	}
	if filter.DateRange.From != nil {
		query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		query = query.Where("createdAt", "<=", filter.DateRange.To.UTC())
	}
	query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc).Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		createdAt, id, err := decodeTimeCursor(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		query = query.StartAfter(createdAt, id)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(orders) > pageSize
	if hasMore {
		orders = orders[:pageSize]
	}
	var nextToken string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		encoded, err := encodeTimeCursor(last.CreatedAt, last.ID)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Order]{
		Items:         orders,
		NextPageToken: nextToken,
	}, nil
}

// Helper structures ---------------------------------------------------------

type orderDocument struct {
	OrderNumber     string              `firestore:"orderNumber"`
	UserID          string              `firestore:"userId"`
	Status          string              `firestore:"status"`
	Currency        string              `firestore:"currency"`
	Items           []orderItemDocument `firestore:"items"`
	Totals          orderTotalsDocument `firestore:"totals"`
	ShippingAddress map[string]any      `firestore:"shippingAddress,omitempty"`
	CancelReason    *string             `firestore:"cancelReason,omitempty"`
	StockRestored   bool                `firestore:"stockRestored"`
	ConfirmedAt     *time.Time          `firestore:"confirmedAt,omitempty"`
	ShippedAt       *time.Time          `firestore:"shippedAt,omitempty"`
	DeliveredAt     *time.Time          `firestore:"deliveredAt,omitempty"`
	CancelledAt     *time.Time          `firestore:"cancelledAt,omitempty"`
	Metadata        map[string]any      `firestore:"metadata,omitempty"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
}

type orderItemDocument struct {
	BookID    string `firestore:"bookId"`
	ISBN      string `firestore:"isbn"`
	Title     string `firestore:"title"`
	Author    string `firestore:"author"`
	Quantity  int    `firestore:"qty"`
	UnitPrice int64  `firestore:"unitPrice"`
	Subtotal  int64  `firestore:"subtotal"`
}

type orderTotalsDocument struct {
	Subtotal int64 `firestore:"subtotal"`
	Tax      int64 `firestore:"tax"`
	Shipping int64 `firestore:"shipping"`
	Total    int64 `firestore:"total"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, len(order.Items))
	for i, item := range order.Items {
		items[i] = orderItemDocument{
			BookID:    item.BookID,
			ISBN:      item.ISBN,
			Title:     item.Title,
			Author:    item.Author,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal,
		}
	}

	doc := orderDocument{
		OrderNumber: strings.TrimSpace(order.OrderNumber),
		UserID:      strings.TrimSpace(order.UserID),
		Status:      string(order.Status),
		Currency:    strings.ToUpper(strings.TrimSpace(order.Currency)),
		Items:       items,
		Totals: orderTotalsDocument{
			Subtotal: order.Totals.Subtotal,
			Tax:      order.Totals.Tax,
			Shipping: order.Totals.Shipping,
			Total:    order.Totals.Total,
		},
		CancelReason:  order.CancelReason,
		StockRestored: order.StockRestored,
		ConfirmedAt:   order.ConfirmedAt,
		ShippedAt:     order.ShippedAt,
		DeliveredAt:   order.DeliveredAt,
		CancelledAt:   order.CancelledAt,
		Metadata:      order.Metadata,
		CreatedAt:     order.CreatedAt.UTC(),
		UpdatedAt:     order.UpdatedAt.UTC(),
	}
	if order.ShippingAddress != nil {
		doc.ShippingAddress = addressToMap(*order.ShippingAddress)
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderLineItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.OrderLineItem{
			BookID:    item.BookID,
			ISBN:      item.ISBN,
			Title:     item.Title,
			Author:    item.Author,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal,
		}
	}

	order := domain.Order{
		ID:          id,
		OrderNumber: d.OrderNumber,
		UserID:      d.UserID,
		Status:      domain.OrderStatus(d.Status),
		Currency:    d.Currency,
		Items:       items,
		Totals: domain.OrderTotals{
			Subtotal: d.Totals.Subtotal,
			Tax:      d.Totals.Tax,
			Shipping: d.Totals.Shipping,
			Total:    d.Totals.Total,
		},
		CancelReason:  d.CancelReason,
		StockRestored: d.StockRestored,
		ConfirmedAt:   d.ConfirmedAt,
		ShippedAt:     d.ShippedAt,
		DeliveredAt:   d.DeliveredAt,
		CancelledAt:   d.CancelledAt,
		Metadata:      d.Metadata,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if len(d.ShippingAddress) > 0 {
		addr := addressFromMap(d.ShippingAddress)
		order.ShippingAddress = &addr
	}
	return order
}

func addressToMap(addr domain.Address) map[string]any {
	out := map[string]any{
		"recipient":  addr.Recipient,
		"line1":      addr.Line1,
		"city":       addr.City,
		"postalCode": addr.PostalCode,
		"country":    addr.Country,
	}
	if addr.Line2 != nil {
		out["line2"] = *addr.Line2
	}
	if addr.State != nil {
		out["state"] = *addr.State
	}
	if addr.Phone != nil {
		out["phone"] = *addr.Phone
	}
	return out
}

func addressFromMap(values map[string]any) domain.Address {
	str := func(key string) string {
		if v, ok := values[key].(string); ok {
			return v
		}
		return ""
	}
	optional := func(key string) *string {
		if v, ok := values[key].(string); ok && v != "" {
			return &v
		}
		return nil
	}
	return domain.Address{
		Recipient:  str("recipient"),
		Line1:      str("line1"),
		Line2:      optional("line2"),
		City:       str("city"),
		State:      optional("state"),
		PostalCode: str("postalCode"),
		Country:    str("country"),
		Phone:      optional("phone"),
	}
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
