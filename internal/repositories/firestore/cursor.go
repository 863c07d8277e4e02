package firestore

import (
	"fmt"
	"time"

	"github.com/inkwell-books/api/internal/platform/pagination"
)

// Cursor helpers shared by the list queries. Tokens carry the order-by values
// of the last returned document; time values travel as RFC 3339 strings
// because the generic cursor payload round-trips through JSON.

func encodeStringCursor(value, id string) (string, error) {
	return pagination.EncodeToken(pagination.Cursor{StartAfter: []any{value, id}})
}

func decodeStringCursor(token string) (string, string, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return "", "", err
	}
	if len(cursor.StartAfter) != 2 {
		return "", "", fmt.Errorf("%w: unexpected cursor shape", pagination.ErrInvalidPageToken)
	}
	value, ok := cursor.StartAfter[0].(string)
	if !ok {
		return "", "", fmt.Errorf("%w: unexpected cursor value", pagination.ErrInvalidPageToken)
	}
	id, ok := cursor.StartAfter[1].(string)
	if !ok {
		return "", "", fmt.Errorf("%w: unexpected cursor id", pagination.ErrInvalidPageToken)
	}
	return value, id, nil
}

func encodeTimeCursor(value time.Time, id string) (string, error) {
	return encodeStringCursor(value.UTC().Format(time.RFC3339Nano), id)
}

func decodeTimeCursor(token string) (time.Time, string, error) {
	raw, id, err := decodeStringCursor(token)
	if err != nil {
		return time.Time{}, "", err
	}
	value, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
	}
	return value, id, nil
}
