package pagination

import (
	"errors"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize defines the fallback number of items returned when the client omits page_size.
	DefaultPageSize = 50
	// DefaultMaxPageSize caps the supported page_size to prevent unbounded queries.
	DefaultMaxPageSize = 100
)

// Cursor represents the Firestore pagination cursor payload.
type Cursor struct {
	StartAfter []any `json:"startAfter,omitempty"`
	StartAt    []any `json:"startAt,omitempty"`
}

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid page size")
	ErrInvalidPageToken = errors.New("pagination: invalid page token")
)

// ClampPageSize parses a raw page_size query value. Empty and non-positive
// values fall back to def; values above max are clamped rather than rejected.
func ClampPageSize(raw string, def, max int) (int, error) {
	if def <= 0 {
		def = DefaultPageSize
	}
	if max <= 0 {
		max = DefaultMaxPageSize
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	size, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ErrInvalidPageSize
	}
	switch {
	case size <= 0:
		return def, nil
	case size > max:
		return max, nil
	default:
		return size, nil
	}
}
