package firestore

import (
	"errors"
	"testing"
	"time"

	"github.com/inkwell-books/api/internal/platform/pagination"
)

func TestStringCursorRoundTrip(t *testing.T) {
	token, err := encodeStringCursor("The Go Workshop", "book-1")
	if err != nil {
		t.Fatalf("encodeStringCursor: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	value, id, err := decodeStringCursor(token)
	if err != nil {
		t.Fatalf("decodeStringCursor: %v", err)
	}
	if value != "The Go Workshop" || id != "book-1" {
		t.Fatalf("unexpected cursor values %q / %q", value, id)
	}
}

func TestTimeCursorRoundTrip(t *testing.T) {
	occurredAt := time.Date(2025, 5, 6, 9, 30, 0, 123456789, time.UTC)

	token, err := encodeTimeCursor(occurredAt, "sm_0001")
	if err != nil {
		t.Fatalf("encodeTimeCursor: %v", err)
	}

	value, id, err := decodeTimeCursor(token)
	if err != nil {
		t.Fatalf("decodeTimeCursor: %v", err)
	}
	if !value.Equal(occurredAt) {
		t.Fatalf("expected %s, got %s", occurredAt, value)
	}
	if id != "sm_0001" {
		t.Fatalf("unexpected id %q", id)
	}
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	if _, _, err := decodeStringCursor("!!not-base64!!"); !errors.Is(err, pagination.ErrInvalidPageToken) {
		t.Fatalf("expected invalid page token error, got %v", err)
	}

	token, err := encodeStringCursor("not-a-timestamp", "id-1")
	if err != nil {
		t.Fatalf("encodeStringCursor: %v", err)
	}
	if _, _, err := decodeTimeCursor(token); !errors.Is(err, pagination.ErrInvalidPageToken) {
		t.Fatalf("expected invalid page token error, got %v", err)
	}
}
