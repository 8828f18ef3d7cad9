package textutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		maxChars int
		want     string
	}{
		{"plain text unchanged", "hello world", 100, "hello world"},
		{"control chars become spaces", "a\x00b\x01c", 100, "a b c"},
		{"whitespace collapsed", "a \t\n  b", 100, "a b"},
		{"leading and trailing trimmed", "  padded  ", 100, "padded"},
		{"empty input", "", 100, ""},
		{"only control chars", "\x00\x01\x02", 100, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Normalize(tt.input, tt.maxChars))
		})
	}
}

func TestNormalize_Truncation(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 50)
	got := Normalize(long, 20)
	assert.Len(t, got, 20)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, strings.Repeat("a", 17)+"...", got)

	// Exactly at the cap: no truncation marker.
	exact := strings.Repeat("b", 20)
	assert.Equal(t, exact, Normalize(exact, 20))

	// A space at the cut point is trimmed before the marker.
	spaced := strings.Repeat("c", 16) + " " + strings.Repeat("d", 10)
	got = Normalize(spaced, 20)
	assert.Equal(t, strings.Repeat("c", 16)+"...", got)
}

func TestNormalize_TinyCaps(t *testing.T) {
	t.Parallel()

	// Caps smaller than the ellipsis marker hard-cut without it.
	assert.Equal(t, "he", Normalize("hello world", 2))
	assert.Equal(t, "hel", Normalize("hello world", 3))
	assert.Equal(t, "h", Normalize("hello world", 1))
	assert.Equal(t, "", Normalize("hello world", 0))
	assert.Equal(t, "", Normalize("hello world", -1))
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"lowercases and splits", "Go Projects 2024", []string{"go", "projects", "2024"}},
		{"stopwords removed", "what is the best project", []string{"best", "project"}},
		{"punctuation splits tokens", "back-end/front-end", []string{"back", "end", "front", "end"}},
		{"all stopwords", "the of and a", nil},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Tokenize(tt.input))
		})
	}
}

func TestNormalizePagePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"absolute url", "https://example.com/projects", "/projects"},
		{"absolute url root", "https://example.com/", "/"},
		{"bare path", "/projects", "/projects"},
		{"missing leading slash", "projects", "/projects"},
		{"trailing slash stripped", "/projects/", "/projects"},
		{"root keeps slash", "/", "/"},
		{"empty", "", ""},
		{"url with query", "https://example.com/blog?x=1", "/blog"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NormalizePagePath(tt.input))
		})
	}
}
