package pagination

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"
)

// ErrInvalidCursor is returned when a cursor token cannot be decoded.
var ErrInvalidCursor = errors.New("invalid cursor format")

// Cursor is the decoded position of a keyset-paginated listing. Listings
// order by (updated_at, id) descending, so the pair pins the page boundary
// even when many rows share a timestamp.
type Cursor struct {
	LastID    string
	Timestamp time.Time
}

// PageResult is one page of a cursor-paginated listing.
type PageResult[T any] struct {
	Items   []T    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

// EncodeCursor packs a page boundary into an opaque token.
func EncodeCursor(lastID string, timestamp time.Time) string {
	if lastID == "" {
		return ""
	}
	return base64.StdEncoding.EncodeToString(
		[]byte(lastID + "|" + timestamp.UTC().Format(time.RFC3339Nano)))
}

// DecodeCursor unpacks a token produced by EncodeCursor. An empty token
// decodes to nil, meaning the first page.
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}

	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	id, stamp, found := strings.Cut(string(raw), "|")
	if !found || id == "" {
		return nil, ErrInvalidCursor
	}

	ts, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	return &Cursor{LastID: id, Timestamp: ts}, nil
}

// CreateNextCursor derives the token for the page after items. A short page
// means the listing is exhausted and the token is empty.
func CreateNextCursor[T any](items []T, limit int, getID func(T) string, getTimestamp func(T) time.Time) string {
	if len(items) == 0 || len(items) < limit {
		return ""
	}
	last := items[len(items)-1]
	return EncodeCursor(getID(last), getTimestamp(last))
}
