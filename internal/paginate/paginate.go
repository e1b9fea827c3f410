// Package paginate slices text into bounded chunks addressed by opaque
// offset cursors. Offsets count runes, so a chunk never splits a UTF-8
// sequence. Pagination is stateless: replaying a cursor against the same
// text always yields the same chunk.
package paginate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidCursor is returned for cursors that do not decode to a valid offset.
var ErrInvalidCursor = errors.New("invalid cursor")

// Bounds clamps caller-supplied page sizes.
type Bounds struct {
	Min     int
	Max     int
	Default int
}

// DefaultBounds is used when no configuration is supplied.
var DefaultBounds = Bounds{Min: 100, Max: 100_000, Default: 10_000}

// Clamp applies b to limit. Non-positive limits use Default.
func (b Bounds) Clamp(limit int) int {
	if limit <= 0 {
		limit = b.Default
	}
	if b.Max > 0 && limit > b.Max {
		limit = b.Max
	}
	if limit < b.Min {
		limit = b.Min
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// Page is one chunk of a paginated text.
type Page struct {
	Chunk       string
	NextCursor  string // empty unless IsTruncated
	IsTruncated bool
	TotalLength int
	StartOffset int
	EndOffset   int
}

// EncodeCursor returns the wire form of offset.
func EncodeCursor(offset int) string {
	return strconv.Itoa(offset)
}

// DecodeCursor parses a cursor and checks it against total.
func DecodeCursor(cursor string, total int) (int, error) {
	off, err := strconv.Atoi(strings.TrimSpace(cursor))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer offset", ErrInvalidCursor, cursor)
	}
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrInvalidCursor, off)
	}
	if off > total {
		return 0, fmt.Errorf("%w: offset %d exceeds length %d", ErrInvalidCursor, off, total)
	}
	return off, nil
}

// Paginate returns the chunk of text starting at cursor (or 0 when cursor is
// empty) holding at most the clamped limit characters.
func Paginate(text string, limit int, cursor string, b Bounds) (Page, error) {
	runes := []rune(text)
	total := len(runes)

	start := 0
	if cursor != "" {
		off, err := DecodeCursor(cursor, total)
		if err != nil {
			return Page{}, err
		}
		start = off
	}

	end := min(start+b.Clamp(limit), total)
	p := Page{
		Chunk:       string(runes[start:end]),
		IsTruncated: end < total,
		TotalLength: total,
		StartOffset: start,
		EndOffset:   end,
	}
	if p.IsTruncated {
		p.NextCursor = EncodeCursor(end)
	}
	return p, nil
}
