package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartCatalogRequired    = errors.New("cart service: book repository is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

const maxCartItemQuantity = 99

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart service cannot fulfil the request due to missing dependencies or backend issues.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartNotFound indicates the requested cart or item does not exist.
var ErrCartNotFound = errors.New("cart service: not found")

// ErrCartConflict indicates the cart could not be updated due to concurrent modifications.
var ErrCartConflict = errors.New("cart service: conflict")

// CartServiceDeps wires the repository and catalog dependencies for cart operations.
type CartServiceDeps struct {
	Repository      repositories.CartRepository
	Books           repositories.BookRepository
	Clock           func() time.Time
	DefaultCurrency string
	Logger          func(context.Context, string, map[string]any)
}

type cartService struct {
	repo     repositories.CartRepository
	books    repositories.BookRepository
	now      func() time.Time
	currency string
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Books == nil {
		return nil, errCartCatalogRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	defaultCurrency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartService{
		repo:     deps.Repository,
		books:    deps.Books,
		now:      func() time.Time { return deps.Clock().UTC() },
		currency: defaultCurrency,
		logger:   logger,
	}, nil
}

// GetOrCreateCart loads the active cart for the user, creating a new cart when absent.
func (s *cartService) GetOrCreateCart(ctx context.Context, userID string) (Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, ErrCartInvalidInput
	}

	cart, err := s.repo.GetCart(ctx, uid)
	if err != nil {
		if !isRepoNotFound(err) {
			return Cart{}, s.translateRepoError(err)
		}
		saved, err := s.repo.UpsertCart(ctx, s.newCart(uid), nil)
		if err != nil {
			return Cart{}, s.translateRepoError(err)
		}
		cart = saved
	}

	return s.normaliseCart(cart, uid), nil
}

// AddOrUpdateItem sets the quantity for a book line, pricing it from the
// current catalog entry. A quantity on an existing line replaces the stored
// quantity rather than accumulating.
func (s *cartService) AddOrUpdateItem(ctx context.Context, cmd UpsertCartItemCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Cart{}, ErrCartInvalidInput
	}

	bookID := strings.TrimSpace(cmd.BookID)
	if bookID == "" {
		return Cart{}, fmt.Errorf("%w: book_id is required", ErrCartInvalidInput)
	}

	if cmd.Quantity <= 0 {
		return Cart{}, fmt.Errorf("%w: quantity must be greater than zero", ErrCartInvalidInput)
	}
	if cmd.Quantity > maxCartItemQuantity {
		return Cart{}, fmt.Errorf("%w: quantity must not exceed %d", ErrCartInvalidInput, maxCartItemQuantity)
	}

	book, err := s.books.FindByID(ctx, bookID)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, fmt.Errorf("%w: book not found", ErrCartInvalidInput)
		}
		return Cart{}, ErrCartUnavailable
	}
	if !book.Active {
		return Cart{}, fmt.Errorf("%w: book is not available for sale", ErrCartInvalidInput)
	}

	cart, err := s.repo.GetCart(ctx, userID)
	if err != nil {
		if !isRepoNotFound(err) {
			return Cart{}, s.translateRepoError(err)
		}
		cart = s.newCart(userID)
	}
	cart = s.normaliseCart(cart, userID)

	if !strings.EqualFold(cart.Currency, book.Currency) {
		return Cart{}, fmt.Errorf("%w: book currency must match cart currency", ErrCartInvalidInput)
	}

	now := s.now()
	items := cloneCartItems(cart.Items)
	if idx := indexOfCartItem(items, bookID); idx >= 0 {
		items[idx].Quantity = cmd.Quantity
		items[idx].UnitPrice = book.UnitPrice
	} else {
		items = append(items, domain.CartItem{
			BookID:    book.ID,
			Quantity:  cmd.Quantity,
			UnitPrice: book.UnitPrice,
		})
	}

	cart.Items = items
	previous := cart.UpdatedAt
	cart.UpdatedAt = now

	saved, err := s.repo.UpsertCart(ctx, cart, expectedTimestamp(previous))
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}

	return s.normaliseCart(saved, userID), nil
}

// RemoveItem drops a book line from the cart.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Cart{}, ErrCartInvalidInput
	}

	bookID := strings.TrimSpace(cmd.BookID)
	if bookID == "" {
		return Cart{}, ErrCartInvalidInput
	}

	cart, err := s.repo.GetCart(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, ErrCartNotFound
		}
		return Cart{}, s.translateRepoError(err)
	}
	cart = s.normaliseCart(cart, userID)

	items := cloneCartItems(cart.Items)
	idx := indexOfCartItem(items, bookID)
	if idx < 0 {
		return Cart{}, ErrCartNotFound
	}

	previous := cart.UpdatedAt
	cart.Items = append(items[:idx], items[idx+1:]...)
	cart.UpdatedAt = s.now()

	saved, err := s.repo.UpsertCart(ctx, cart, expectedTimestamp(previous))
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}

	return s.normaliseCart(saved, userID), nil
}

// ClearCart removes every item from the user's cart. Clearing an absent cart
// is a no-op.
func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return ErrCartInvalidInput
	}
	if err := s.repo.ClearCart(ctx, uid); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

func (s *cartService) newCart(userID string) domain.Cart {
	now := s.now()
	return domain.Cart{
		ID:        userID,
		UserID:    userID,
		Currency:  s.currency,
		Items:     []domain.CartItem{},
		Metadata:  map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *cartService) normaliseCart(cart domain.Cart, userID string) domain.Cart {
	if cart.ID = strings.TrimSpace(cart.ID); cart.ID == "" {
		cart.ID = userID
	}
	cart.UserID = strings.TrimSpace(firstNonEmpty(cart.UserID, userID))
	cart.Currency = strings.ToUpper(strings.TrimSpace(firstNonEmpty(cart.Currency, s.currency)))
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	if cart.Metadata == nil {
		cart.Metadata = map[string]any{}
	}
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = s.now()
	}
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = s.now()
	}
	return cart
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCartNotFound
		case repoErr.IsConflict():
			return ErrCartConflict
		}
	}
	return ErrCartUnavailable
}

func expectedTimestamp(ts time.Time) *time.Time {
	if ts.IsZero() {
		return nil
	}
	utc := ts.UTC()
	return &utc
}

func cloneCartItems(items []domain.CartItem) []domain.CartItem {
	if len(items) == 0 {
		return []domain.CartItem{}
	}
	dup := make([]domain.CartItem, len(items))
	copy(dup, items)
	return dup
}

func indexOfCartItem(items []domain.CartItem, bookID string) int {
	target := strings.TrimSpace(bookID)
	if target == "" {
		return -1
	}
	for i, item := range items {
		if strings.EqualFold(strings.TrimSpace(item.BookID), target) {
			return i
		}
	}
	return -1
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
