package pagination

import (
	"encoding/base64"
	"errors"
	"sort"
	"strings"
	"time"
)

// Cursor identifies the last item of the previous page.
type Cursor struct {
	LastID    string
	Timestamp time.Time
}

// PageResult is one page of items plus the cursor for the next page.
type PageResult[T any] struct {
	Items   []T    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

var (
	ErrInvalidCursor = errors.New("invalid cursor format")
)

// EncodeCursor creates a base64-encoded cursor from the last item ID and timestamp
func EncodeCursor(lastID string, timestamp time.Time) string {
	if lastID == "" {
		return ""
	}
	raw := lastID + "|" + timestamp.UTC().Format(time.RFC3339Nano)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor decodes a cursor made by EncodeCursor. An empty cursor
// decodes to nil.
func DecodeCursor(cursor string) (*Cursor, error) {
	if cursor == "" {
		return nil, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[0] == "" {
		return nil, ErrInvalidCursor
	}

	timestamp, err := time.Parse(time.RFC3339Nano, parts[1])
	if err != nil {
		return nil, ErrInvalidCursor
	}

	return &Cursor{
		LastID:    parts[0],
		Timestamp: timestamp,
	}, nil
}

// Page returns up to limit items following cursor. items must be sorted by
// ascending ID; the page resumes at the first ID greater than the cursor's, so
// removing the cursor's item between requests skips nothing. A limit <= 0
// returns everything after the cursor.
func Page[T any](items []T, cursor string, limit int, getID func(T) string, getTimestamp func(T) time.Time) (PageResult[T], error) {
	c, err := DecodeCursor(cursor)
	if err != nil {
		return PageResult[T]{}, err
	}

	start := 0
	if c != nil {
		start = sort.Search(len(items), func(i int) bool { return getID(items[i]) > c.LastID })
	}

	rest := items[start:]
	if limit <= 0 || limit >= len(rest) {
		return PageResult[T]{Items: rest}, nil
	}

	page := rest[:limit]
	last := page[len(page)-1]
	return PageResult[T]{
		Items:   page,
		Cursor:  EncodeCursor(getID(last), getTimestamp(last)),
		HasMore: true,
	}, nil
}
