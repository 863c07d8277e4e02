package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/inkwell-books/api/internal/domain"
	pfirestore "github.com/inkwell-books/api/internal/platform/firestore"
	"github.com/inkwell-books/api/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists carts within Firestore, keyed by user ID. Items ride
// on the cart document so a snapshot is one read.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil)
	return &CartRepository{
		base:     base,
		provider: provider,
	}, nil
}

// UpsertCart persists the cart using the user ID as document identifier. When
// expectedUpdate is supplied the write fails on concurrent modification.
func (r *CartRepository) UpsertCart(ctx context.Context, cart domain.Cart, expectedUpdate *time.Time) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}

	cartID := strings.TrimSpace(firstCartID(cart))
	if cartID == "" {
		return domain.Cart{}, errors.New("cart repository: cart id is required")
	}

	now := time.Now().UTC()
	if !cart.UpdatedAt.IsZero() {
		now = cart.UpdatedAt.UTC()
	}
	createdAt := cart.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}

	doc := cartDocument{
		Currency:  strings.ToUpper(strings.TrimSpace(cart.Currency)),
		Items:     newCartItemDocuments(cart.Items),
		Metadata:  cloneCartMetadata(cart.Metadata),
		CreatedAt: createdAt,
		UpdatedAt: now,
	}

	if expectedUpdate != nil && !expectedUpdate.IsZero() {
		existing, err := r.base.Get(ctx, cartID)
		if err != nil {
			return domain.Cart{}, err
		}
		if !existing.Data.UpdatedAt.Equal(expectedUpdate.UTC()) {
			return domain.Cart{}, pfirestore.NewConflictError("carts.upsert", cartID)
		}
	}

	result, err := r.base.Set(ctx, cartID, doc)
	if err != nil {
		return domain.Cart{}, err
	}
	saved := doc.toDomain(cartID)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// GetCart loads the cart for a user. A missing document is a not-found error;
// services decide whether to lazily create one.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ClearCart removes every item while keeping the cart document and its metadata.
func (r *CartRepository) ClearCart(ctx context.Context, userID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("cart repository: user id is required")
	}

	cart, err := r.GetCart(ctx, userID)
	if err != nil {
		if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
			return nil
		}
		return err
	}

	cart.Items = nil
	cart.UpdatedAt = time.Now().UTC()
	_, err = r.UpsertCart(ctx, cart, nil)
	return err
}

func firstCartID(cart domain.Cart) string {
	if id := strings.TrimSpace(cart.ID); id != "" {
		return id
	}
	return strings.TrimSpace(cart.UserID)
}

func cloneCartMetadata(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

// Helper structures ---------------------------------------------------------

type cartDocument struct {
	Currency  string             `firestore:"currency"`
	Items     []cartItemDocument `firestore:"items"`
	Metadata  map[string]any     `firestore:"metadata,omitempty"`
	CreatedAt time.Time          `firestore:"createdAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	BookID    string `firestore:"bookId"`
	Quantity  int    `firestore:"qty"`
	UnitPrice int64  `firestore:"unitPrice"`
}

func newCartItemDocuments(items []domain.CartItem) []cartItemDocument {
	if len(items) == 0 {
		return nil
	}
	out := make([]cartItemDocument, len(items))
	for i, item := range items {
		out[i] = cartItemDocument{
			BookID:    strings.TrimSpace(item.BookID),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}
	return out
}

func (d cartDocument) toDomain(id string) domain.Cart {
	items := make([]domain.CartItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.CartItem{
			BookID:    item.BookID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}
	return domain.Cart{
		ID:        id,
		UserID:    id,
		Currency:  d.Currency,
		Items:     items,
		Metadata:  cloneCartMetadata(d.Metadata),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

var _ repositories.CartRepository = (*CartRepository)(nil)
