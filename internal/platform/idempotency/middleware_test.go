package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var testClock = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func postCheckout(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/me/orders", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req
}

func TestMiddlewareMissingHeader(t *testing.T) {
	store := NewMemoryStore()
	mw := Middleware(store, WithClock(func() time.Time { return testClock }))

	handlerCalled := false
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		handlerCalled = true
	})

	rr := httptest.NewRecorder()
	mw(next).ServeHTTP(rr, postCheckout("", `{"note":"gift"}`))

	if handlerCalled {
		t.Fatal("handler must not run without an idempotency key")
	}
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_key_required")
}

func TestMiddlewareReplaysStoredResponse(t *testing.T) {
	store := NewMemoryStore()
	var calls int
	mw := Middleware(store, WithClock(func() time.Time { return testClock }))

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ord_0001"}`))
	}))

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, postCheckout("checkout-1", `{"note":"gift"}`))

	if calls != 1 {
		t.Fatalf("expected one handler call, got %d", calls)
	}
	if rr1.Code != http.StatusCreated {
		t.Fatalf("unexpected first response status %d", rr1.Code)
	}

	// The retry must replay the stored order without running checkout again.
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, postCheckout("checkout-1", `{"note":"gift"}`))

	if calls != 1 {
		t.Fatalf("expected handler not to run on replay, got %d calls", calls)
	}
	if rr2.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d", rr2.Code)
	}
	if rr2.Header().Get(replayHeaderName) != "true" {
		t.Fatalf("expected replay marker header")
	}
	if got := rr2.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected content-type preserved, got %s", got)
	}
	if rr2.Body.String() != rr1.Body.String() {
		t.Fatalf("expected body %s replayed, got %s", rr1.Body.String(), rr2.Body.String())
	}
}

func TestMiddlewareKeyReuseWithDifferentBodyConflicts(t *testing.T) {
	store := NewMemoryStore()
	mw := Middleware(store, WithClock(func() time.Time { return testClock }))

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, postCheckout("reused-key", `{"note":"gift"}`))
	if rr1.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, postCheckout("reused-key", `{"note":"rush delivery"}`))

	if rr2.Code != http.StatusConflict {
		t.Fatalf("expected 409 for reused key, got %d", rr2.Code)
	}
	assertErrorCode(t, rr2.Body.Bytes(), "idempotency_key_conflict")
}

func TestMiddlewarePendingReservationConflicts(t *testing.T) {
	store := NewMemoryStore()
	mw := Middleware(store, WithClock(func() time.Time { return testClock }))
	handler := mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run while the key is held")
	}))

	req := postCheckout("held-key", `{"note":"gift"}`)
	body, err := bufferBody(req)
	if err != nil {
		t.Fatalf("buffer body: %v", err)
	}
	requester := requesterID(req.Context())
	fingerprint := requestFingerprint(req, body, requester)
	if _, err := store.Reserve(req.Context(), scopedKey("held-key", requester), fingerprint, testClock, time.Hour); err != nil {
		t.Fatalf("seed reservation: %v", err)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 while pending, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_in_progress")
}

func TestMiddlewareSaveFailureReleasesKey(t *testing.T) {
	store := &failingStore{failSave: true}
	mw := Middleware(store, WithClock(func() time.Time { return testClock }))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	mw(next).ServeHTTP(rr, postCheckout("doomed-key", `{"note":"gift"}`))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_store_error")
	if !store.released {
		t.Fatalf("expected key released after save failure")
	}
}

type failingStore struct {
	failSave bool
	released bool
}

func (s *failingStore) Reserve(context.Context, string, string, time.Time, time.Duration) (Reservation, error) {
	return Reservation{State: ReservationStateNew}, nil
}

func (s *failingStore) SaveResponse(context.Context, string, string, Response, time.Time, time.Duration) error {
	if s.failSave {
		return errors.New("save failed")
	}
	return nil
}

func (s *failingStore) Release(context.Context, string, string) error {
	s.released = true
	return nil
}

func (s *failingStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func assertErrorCode(t *testing.T, payload []byte, expected string) {
	t.Helper()

	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if body.Error != expected {
		t.Fatalf("expected error code %s, got %s", expected, body.Error)
	}
}
