package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/platform/auth"
	"github.com/inkwell-books/api/internal/platform/httpx"
	"github.com/inkwell-books/api/internal/services"
)

const (
	maxAdminBookBodySize  = 256 * 1024
	maxAdminStockBodySize = 4 * 1024

	defaultAdminPageSize = 50
	maxAdminPageSize     = 200
)

// AdminHandlers exposes staff-only catalog, stock, order, and audit endpoints.
type AdminHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
	stock   services.StockService
	orders  services.OrderService
	audit   services.AuditLogService
}

// AdminHandlersDeps bundles the services the admin surface fronts.
type AdminHandlersDeps struct {
	Authenticator *auth.Authenticator
	Catalog       services.CatalogService
	Stock         services.StockService
	Orders        services.OrderService
	Audit         services.AuditLogService
}

// NewAdminHandlers constructs the admin handler set.
func NewAdminHandlers(deps AdminHandlersDeps) *AdminHandlers {
	return &AdminHandlers{
		authn:   deps.Authenticator,
		catalog: deps.Catalog,
		stock:   deps.Stock,
		orders:  deps.Orders,
		audit:   deps.Audit,
	}
}

// Routes registers the /admin endpoints. Every route requires the admin role.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}

	r.Route("/books", func(rt chi.Router) {
		rt.Get("/", h.listBooks)
		rt.Post("/", h.createBook)
		rt.Get("/{bookID}", h.getBook)
		rt.Put("/{bookID}", h.updateBook)
		rt.Delete("/{bookID}", h.deleteBook)
		rt.Get("/{bookID}/stock", h.getStock)
		rt.Patch("/{bookID}/stock", h.adjustStock)
		rt.Get("/{bookID}/stock/mutations", h.listStockMutations)
	})

	r.Route("/orders", func(rt chi.Router) {
		rt.Get("/", h.listOrders)
		rt.Get("/{orderID}", h.getOrder)
		rt.Post("/{orderID}/status", h.advanceOrderStatus)
		rt.Post("/{orderID}/cancel", h.cancelOrder)
	})

	r.Get("/audit-logs", h.listAuditLogs)
}

// Catalog --------------------------------------------------------------------

type adminBookRequest struct {
	ISBN        string   `json:"isbn"`
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Description string   `json:"description"`
	Language    string   `json:"language"`
	Tags        []string `json:"tags"`
	UnitPrice   int64    `json:"unit_price"`
	Currency    string   `json:"currency"`
	Active      *bool    `json:"active"`
}

func (h *AdminHandlers) createBook(w http.ResponseWriter, r *http.Request) {
	h.saveBook(w, r, "")
}

func (h *AdminHandlers) updateBook(w http.ResponseWriter, r *http.Request) {
	h.saveBook(w, r, chi.URLParam(r, "bookID"))
}

func (h *AdminHandlers) saveBook(w http.ResponseWriter, r *http.Request, bookID string) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireAdminIdentity(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxAdminBookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req adminBookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	book := services.Book{
		ID:          strings.TrimSpace(bookID),
		ISBN:        req.ISBN,
		Title:       req.Title,
		Author:      req.Author,
		Description: req.Description,
		Language:    req.Language,
		Tags:        req.Tags,
		UnitPrice:   req.UnitPrice,
		Currency:    req.Currency,
		Active:      true,
	}
	if req.Active != nil {
		book.Active = *req.Active
	}

	saved, err := h.catalog.UpsertBook(ctx, services.UpsertBookCommand{
		Book:    book,
		ActorID: identity.UID,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, bookResponse{Book: buildBookPayload(saved)})
}

func (h *AdminHandlers) getBook(w http.ResponseWriter, r *http.Request) {
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
	writeJSONResponse(w, http.StatusOK, bookResponse{Book: buildBookPayload(book)})
}

func (h *AdminHandlers) listBooks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"), defaultAdminPageSize, maxAdminPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
		return
	}

	page, err := h.catalog.ListBooks(ctx, services.BookListFilter{
		Author:     strings.TrimSpace(query.Get("author")),
		Tag:        strings.ToLower(strings.TrimSpace(query.Get("tag"))),
		ActiveOnly: query.Get("active_only") == "true",
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
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

func (h *AdminHandlers) deleteBook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireAdminIdentity(w, r)
	if !ok {
		return
	}
	bookID := strings.TrimSpace(chi.URLParam(r, "bookID"))
	if bookID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "book id is required", http.StatusBadRequest))
		return
	}

	if err := h.catalog.DeleteBook(ctx, services.DeleteBookCommand{
		BookID:  bookID,
		ActorID: identity.UID,
	}); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stock ----------------------------------------------------------------------

type adminStockAdjustRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

type stockPayload struct {
	BookID    string `json:"book_id"`
	OnHand    int    `json:"on_hand"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func (h *AdminHandlers) getStock(w http.ResponseWriter, r *http.Request) {
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
	writeJSONResponse(w, http.StatusOK, buildStockPayload(stock))
}

func (h *AdminHandlers) adjustStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stock == nil {
		httpx.WriteError(ctx, w, httpx.NewError("stock_service_unavailable", "stock service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireAdminIdentity(w, r)
	if !ok {
		return
	}
	bookID := strings.TrimSpace(chi.URLParam(r, "bookID"))
	if bookID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "book id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxAdminStockBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req adminStockAdjustRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	stock, err := h.stock.AdjustStock(ctx, services.StockAdjustCommand{
		BookID:  bookID,
		Delta:   req.Delta,
		Reason:  strings.TrimSpace(req.Reason),
		ActorID: identity.UID,
	})
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildStockPayload(stock))
}

func (h *AdminHandlers) listStockMutations(w http.ResponseWriter, r *http.Request) {
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

	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"), defaultAdminPageSize, maxAdminPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
		return
	}

	filter := services.StockMutationFilter{
		BookID: bookID,
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}
	for _, raw := range parseFilterValues(query["type"]) {
		filter.Types = append(filter.Types, domain.StockMutationType(raw))
	}

	page, err := h.stock.ListMutations(ctx, filter)
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}

	items := make([]stockMutationPayload, 0, len(page.Items))
	for _, mutation := range page.Items {
		items = append(items, buildStockMutationPayload(mutation))
	}
	writeJSONResponse(w, http.StatusOK, stockMutationListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

// Orders ---------------------------------------------------------------------

type advanceOrderStatusRequest struct {
	TargetStatus string         `json:"target_status"`
	Reason       string         `json:"reason"`
	Metadata     map[string]any `json:"metadata"`
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	filter, err := orderFilterFromQuery(r, defaultAdminPageSize, maxAdminPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	filter.UserID = strings.TrimSpace(r.URL.Query().Get("user_id"))

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) advanceOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireAdminIdentity(w, r)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxAdminStockBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req advanceOrderStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}
	target := strings.ToLower(strings.TrimSpace(req.TargetStatus))
	if target == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "target_status is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.AdvanceStatus(ctx, services.AdvanceOrderStatusCommand{
		OrderID:      orderID,
		TargetStatus: services.OrderStatus(target),
		ActorID:      identity.UID,
		Reason:       strings.TrimSpace(req.Reason),
		Metadata:     cloneMap(req.Metadata),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireAdminIdentity(w, r)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req cancelOrderRequest
	body, err := readLimitedBody(r, maxOrderCancelBodySize)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	cancelled, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID:     orderID,
		RequestedBy: identity.UID,
		AsAdmin:     true,
		Reason:      strings.TrimSpace(req.Reason),
		Metadata:    cloneMap(req.Metadata),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(cancelled)})
}

// Audit logs -----------------------------------------------------------------

func (h *AdminHandlers) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.audit == nil {
		httpx.WriteError(ctx, w, httpx.NewError("audit_service_unavailable", "audit log service is unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"), defaultAdminPageSize, maxAdminPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
		return
	}

	filter := services.AuditLogFilter{
		TargetRef: strings.TrimSpace(query.Get("target_ref")),
		Actor:     strings.TrimSpace(query.Get("actor")),
		ActorType: strings.TrimSpace(query.Get("actor_type")),
		Action:    strings.TrimSpace(query.Get("action")),
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}
	if raw := strings.TrimSpace(query.Get("occurred_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "occurred_after must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.DateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("occurred_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "occurred_before must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.DateRange.To = &ts
	}

	page, err := h.audit.List(ctx, filter)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("audit_error", "failed to list audit logs", http.StatusInternalServerError))
		return
	}

	items := make([]auditLogPayload, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, buildAuditLogPayload(entry))
	}
	writeJSONResponse(w, http.StatusOK, auditLogListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func requireAdminIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func buildStockPayload(stock services.BookStock) stockPayload {
	return stockPayload{
		BookID:    stock.BookID,
		OnHand:    stock.OnHand,
		UpdatedAt: formatTime(stock.UpdatedAt),
	}
}

func buildStockMutationPayload(mutation services.StockMutation) stockMutationPayload {
	return stockMutationPayload{
		ID:         mutation.ID,
		BookID:     mutation.BookID,
		Type:       string(mutation.Type),
		Delta:      mutation.Delta,
		Before:     mutation.Before,
		After:      mutation.After,
		Reason:     mutation.Reason,
		OrderRef:   mutation.OrderRef,
		ActorID:    mutation.ActorID,
		OccurredAt: formatTime(mutation.OccurredAt),
	}
}

func buildAuditLogPayload(entry services.AuditLogEntry) auditLogPayload {
	return auditLogPayload{
		ID:        entry.ID,
		Actor:     entry.Actor,
		ActorType: entry.ActorType,
		Action:    entry.Action,
		TargetRef: entry.TargetRef,
		Severity:  entry.Severity,
		RequestID: entry.RequestID,
		Metadata:  cloneMap(entry.Metadata),
		CreatedAt: formatTime(entry.CreatedAt),
	}
}

type stockMutationListResponse struct {
	Items         []stockMutationPayload `json:"items"`
	NextPageToken string                 `json:"next_page_token,omitempty"`
}

type stockMutationPayload struct {
	ID         string `json:"id"`
	BookID     string `json:"book_id"`
	Type       string `json:"type"`
	Delta      int    `json:"delta"`
	Before     int    `json:"before"`
	After      int    `json:"after"`
	Reason     string `json:"reason,omitempty"`
	OrderRef   string `json:"order_ref,omitempty"`
	ActorID    string `json:"actor_id,omitempty"`
	OccurredAt string `json:"occurred_at"`
}

type auditLogListResponse struct {
	Items         []auditLogPayload `json:"items"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type auditLogPayload struct {
	ID        string         `json:"id"`
	Actor     string         `json:"actor"`
	ActorType string         `json:"actor_type"`
	Action    string         `json:"action"`
	TargetRef string         `json:"target_ref"`
	Severity  string         `json:"severity"`
	RequestID string         `json:"request_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt string         `json:"created_at"`
}
