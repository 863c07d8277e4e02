package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/inkwell-books/api/internal/platform/httpx"
	"github.com/inkwell-books/api/internal/services"
)

const (
	defaultBookPageSize = 20
	maxBookPageSize     = 100

	defaultBookRateLimit  = 120
	defaultBookRateWindow = time.Minute
)

// BookHandlers serves the public, unauthenticated catalog endpoints.
type BookHandlers struct {
	catalog services.CatalogService
	stock   services.StockService
	limiter rateLimiter
}

// BookHandlersOption customises book handler construction.
type BookHandlersOption func(*BookHandlers)

// NewBookHandlers constructs public catalog handlers with a per-client rate limit.
func NewBookHandlers(catalog services.CatalogService, stock services.StockService, opts ...BookHandlersOption) *BookHandlers {
	h := &BookHandlers{
		catalog: catalog,
		stock:   stock,
		limiter: newSimpleRateLimiter(defaultBookRateLimit, defaultBookRateWindow, time.Now),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// WithBookRateLimiter overrides the per-client limiter. Passing nil disables limiting.
func WithBookRateLimiter(limiter rateLimiter) BookHandlersOption {
	return func(h *BookHandlers) {
		h.limiter = limiter
	}
}

// WithBookRateLimit rebuilds the limiter with the given requests-per-window
// allowance. A non-positive limit disables limiting.
func WithBookRateLimit(limit int, window time.Duration) BookHandlersOption {
	return func(h *BookHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, time.Now)
	}
}

// Routes wires the /books endpoints onto the provided router.
func (h *BookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(h.rateLimit)
	r.Get("/", h.listBooks)
	r.Get("/{bookID}", h.getBook)
	r.Get("/{bookID}/stock", h.getBookStock)
}

func (h *BookHandlers) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter != nil && !h.limiter.Allow(clientKey(r)) {
			httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many requests; slow down", http.StatusTooManyRequests))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *BookHandlers) listBooks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"), defaultBookPageSize, maxBookPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
		return
	}

	filter := services.BookListFilter{
		Author:     strings.TrimSpace(query.Get("author")),
		Tag:        strings.ToLower(strings.TrimSpace(query.Get("tag"))),
		ActiveOnly: true,
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}

	page, err := h.catalog.ListBooks(ctx, filter)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]bookPayload, 0, len(page.Items))
	for _, book := range page.Items {
		items = append(items, buildBookPayload(book))
	}
	writeJSONResponse(w, http.StatusOK, bookListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *BookHandlers) getBook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	bookID := strings.TrimSpace(chi.URLParam(r, "bookID"))
	if bookID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "book id is required", http.StatusBadRequest))
		return
	}

	book, err := h.catalog.GetBook(ctx, bookID)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	if !book.Active {
		httpx.WriteError(ctx, w, httpx.NewError("book_not_found", "book not found", http.StatusNotFound))
		return
	}

	writeJSONResponse(w, http.StatusOK, bookResponse{Book: buildBookPayload(book)})
}

func (h *BookHandlers) getBookStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stock == nil {
		httpx.WriteError(ctx, w, httpx.NewError("stock_service_unavailable", "stock service is unavailable", http.StatusServiceUnavailable))
		return
	}

	bookID := strings.TrimSpace(chi.URLParam(r, "bookID"))
	if bookID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "book id is required", http.StatusBadRequest))
		return
	}

	stock, err := h.stock.GetStock(ctx, bookID)
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}

	// The public surface only answers "can I buy this", never the exact count.
	writeJSONResponse(w, http.StatusOK, bookAvailabilityResponse{
		BookID:  stock.BookID,
		InStock: stock.OnHand > 0,
	})
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("book_not_found", "book not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to read catalog", http.StatusInternalServerError))
	}
}

func writeStockError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrStockInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrStockNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("stock_not_found", "stock record not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("stock_error", "failed to read stock", http.StatusInternalServerError))
	}
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return host
}

func buildBookPayload(book services.Book) bookPayload {
	return bookPayload{
		ID:          book.ID,
		ISBN:        book.ISBN,
		Title:       book.Title,
		Author:      book.Author,
		Description: book.Description,
		Language:    book.Language,
		Tags:        book.Tags,
		UnitPrice:   book.UnitPrice,
		Currency:    book.Currency,
		Active:      book.Active,
		CreatedAt:   formatTime(book.CreatedAt),
		UpdatedAt:   formatTime(book.UpdatedAt),
	}
}

type bookListResponse struct {
	Items         []bookPayload `json:"items"`
	NextPageToken string        `json:"next_page_token,omitempty"`
}

type bookResponse struct {
	Book bookPayload `json:"book"`
}

type bookPayload struct {
	ID          string   `json:"id"`
	ISBN        string   `json:"isbn"`
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Description string   `json:"description,omitempty"`
	Language    string   `json:"language,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	UnitPrice   int64    `json:"unit_price"`
	Currency    string   `json:"currency"`
	Active      bool     `json:"active"`
	CreatedAt   string   `json:"created_at,omitempty"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
}

type bookAvailabilityResponse struct {
	BookID  string `json:"book_id"`
	InStock bool   `json:"in_stock"`
}
