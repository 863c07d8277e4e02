package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/inkwell-books/api/internal/services"
)

type countingSystemService struct {
	stubSystemService
	lastCmd services.CounterCommand
	value   int64
	err     error
}

func (s *countingSystemService) NextCounterValue(_ context.Context, cmd services.CounterCommand) (int64, error) {
	s.lastCmd = cmd
	return s.value, s.err
}

func TestInternalHandlersNextCounterValue(t *testing.T) {
	svc := &countingSystemService{value: 43}
	r := chi.NewRouter()
	NewInternalHandlers(svc).Routes(r)

	req := httptest.NewRequest(http.MethodPost, "/counters/orders:daily/next", strings.NewReader(`{"step":2}`))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if svc.lastCmd.CounterID != "orders:daily" || svc.lastCmd.Step != 2 {
		t.Fatalf("unexpected command: %+v", svc.lastCmd)
	}

	var body nextCounterResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Value != 43 {
		t.Fatalf("expected value 43, got %d", body.Value)
	}
}

func TestInternalHandlersNextCounterValueInvalid(t *testing.T) {
	svc := &countingSystemService{err: services.ErrCounterInvalidInput}
	r := chi.NewRouter()
	NewInternalHandlers(svc).Routes(r)

	req := httptest.NewRequest(http.MethodPost, "/counters/bogus/next", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}
