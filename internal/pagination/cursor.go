// Package pagination pages through ordered result sets with opaque cursors.
package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidCursor is returned for cursors that were not produced by Encode.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor marks the position just after the last item of a page.
type Cursor struct {
	Offset int
	ID     string
}

// Encode returns an opaque cursor string from an offset and the id of the
// item before it.
func Encode(offset int, id string) string {
	raw := strconv.Itoa(offset) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode parses an opaque cursor string. Returns nil for empty input.
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, ErrInvalidCursor
	}
	offset, err := strconv.Atoi(parts[0])
	if err != nil || offset <= 0 {
		return nil, ErrInvalidCursor
	}
	return &Cursor{Offset: offset, ID: parts[1]}, nil
}

// Page returns up to limit items following cur, the cursor of the next page
// and whether more items remain. key extracts an item's stable id.
//
// If the item at the cursor's position no longer has the cursor's id, the
// set changed between requests and the position is found again by id. A
// cursor whose id is gone resumes at its offset. A non-positive limit
// returns every remaining item.
func Page[T any](items []T, cur *Cursor, limit int, key func(T) string) ([]T, string, bool) {
	start := 0
	if cur != nil {
		start = resume(items, cur, key)
	}
	rest := items[start:]
	if limit <= 0 || len(rest) <= limit {
		return rest, "", false
	}
	page := rest[:limit]
	end := start + limit
	return page, Encode(end, key(page[len(page)-1])), true
}

func resume[T any](items []T, cur *Cursor, key func(T) string) int {
	if cur.Offset > 0 && cur.Offset <= len(items) && key(items[cur.Offset-1]) == cur.ID {
		return cur.Offset
	}
	for i, item := range items {
		if key(item) == cur.ID {
			return i + 1
		}
	}
	return min(max(cur.Offset, 0), len(items))
}
