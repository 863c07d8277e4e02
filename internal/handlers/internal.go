package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/inkwell-books/api/internal/platform/httpx"
	"github.com/inkwell-books/api/internal/services"
)

// InternalHandlers serves operator-facing utility endpoints. The /internal
// group is expected to sit behind network-level access control.
type InternalHandlers struct {
	system services.SystemService
}

// NewInternalHandlers constructs the internal handler set.
func NewInternalHandlers(system services.SystemService) *InternalHandlers {
	return &InternalHandlers{system: system}
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/counters/{counterID}/next", h.nextCounterValue)
}

type nextCounterRequest struct {
	Step int64 `json:"step"`
}

type nextCounterResponse struct {
	CounterID string `json:"counter_id"`
	Value     int64  `json:"value"`
}

func (h *InternalHandlers) nextCounterValue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		httpx.WriteError(ctx, w, httpx.NewError("system_service_unavailable", "system service is unavailable", http.StatusServiceUnavailable))
		return
	}

	counterID := strings.TrimSpace(chi.URLParam(r, "counterID"))
	if counterID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "counter id is required", http.StatusBadRequest))
		return
	}

	var req nextCounterRequest
	body, err := readLimitedBody(r, maxAdminStockBodySize)
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

	value, err := h.system.NextCounterValue(ctx, services.CounterCommand{
		CounterID: counterID,
		Step:      req.Step,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrCounterInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		case errors.Is(err, services.ErrCounterExhausted):
			httpx.WriteError(ctx, w, httpx.NewError("counter_exhausted", err.Error(), http.StatusConflict))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("counter_error", "failed to advance counter", http.StatusInternalServerError))
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, nextCounterResponse{
		CounterID: counterID,
		Value:     value,
	})
}
