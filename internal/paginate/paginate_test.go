package paginate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tiny = Bounds{Min: 1, Max: 100, Default: 4}

func TestPaginateWalk(t *testing.T) {
	text := "0123456789"

	p1, err := Paginate(text, 4, "", tiny)
	require.NoError(t, err)
	assert.Equal(t, "0123", p1.Chunk)
	assert.Equal(t, 0, p1.StartOffset)
	assert.Equal(t, 4, p1.EndOffset)
	assert.True(t, p1.IsTruncated)
	assert.Equal(t, "4", p1.NextCursor)
	assert.Equal(t, 10, p1.TotalLength)

	p2, err := Paginate(text, 4, p1.NextCursor, tiny)
	require.NoError(t, err)
	assert.Equal(t, "4567", p2.Chunk)
	assert.Equal(t, 4, p2.StartOffset)
	assert.Equal(t, 8, p2.EndOffset)
	assert.Equal(t, "8", p2.NextCursor)

	p3, err := Paginate(text, 4, p2.NextCursor, tiny)
	require.NoError(t, err)
	assert.Equal(t, "89", p3.Chunk)
	assert.False(t, p3.IsTruncated)
	assert.Empty(t, p3.NextCursor)
}

func TestPaginateIdempotent(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog"
	a, err := Paginate(text, 7, "14", tiny)
	require.NoError(t, err)
	b, err := Paginate(text, 7, "14", tiny)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPaginateCursorAtEnd(t *testing.T) {
	p, err := Paginate("0123456789", 4, "10", tiny)
	require.NoError(t, err)
	assert.Equal(t, "", p.Chunk)
	assert.False(t, p.IsTruncated)
	assert.Equal(t, 10, p.StartOffset)
	assert.Equal(t, 10, p.EndOffset)
}

func TestPaginateRejectsBadCursor(t *testing.T) {
	for _, c := range []string{"999", "-1", "abc", "4.5", "0x4"} {
		_, err := Paginate("0123456789", 4, c, tiny)
		if !errors.Is(err, ErrInvalidCursor) {
			t.Errorf("cursor %q: error = %v, want ErrInvalidCursor", c, err)
		}
	}
}

func TestPaginateRunes(t *testing.T) {
	text := "привет мир"
	p, err := Paginate(text, 3, "", tiny)
	require.NoError(t, err)
	assert.Equal(t, "при", p.Chunk)
	assert.Equal(t, 10, p.TotalLength)

	p, err = Paginate(text, 3, p.NextCursor, tiny)
	require.NoError(t, err)
	assert.Equal(t, "вет", p.Chunk)
}

func TestBoundsClamp(t *testing.T) {
	b := Bounds{Min: 10, Max: 50, Default: 20}
	tests := []struct {
		in, want int
	}{
		{0, 20},
		{-5, 20},
		{5, 10},
		{30, 30},
		{500, 50},
	}
	for _, tt := range tests {
		if got := b.Clamp(tt.in); got != tt.want {
			t.Errorf("Clamp(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
