// Package textutil provides the pure text utilities shared by the
// knowledge store, the exporter and the request pipeline: input
// normalization with truncation, lexical tokenization and URL path
// canonicalization.
//
// Everything here is deterministic and allocation-light; retrieval
// scoring depends on these functions producing identical output for
// identical input.
package textutil

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	controlCharsRe = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
	tokenRe        = regexp.MustCompile(`[a-z0-9]+`)
)

// stopwords are excluded from lexical tokens. Keeping the set small and
// fixed is intentional: retrieval scores must be reproducible across
// releases, so the list is part of the index contract.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "how": {}, "i": {},
	"in": {}, "is": {}, "it": {}, "of": {}, "on": {}, "or": {},
	"that": {}, "the": {}, "this": {}, "to": {}, "was": {}, "what": {},
	"when": {}, "where": {}, "which": {}, "who": {}, "why": {},
	"with": {}, "you": {}, "your": {},
}

// Normalize strips control characters, collapses whitespace and caps
// the result at maxChars characters. Oversized input is cut and marked
// with a trailing ellipsis; the cut happens on the character boundary,
// not the byte boundary, so multi-byte text stays valid.
func Normalize(value string, maxChars int) string {
	clean := controlCharsRe.ReplaceAllString(value, " ")
	clean = strings.TrimSpace(whitespaceRe.ReplaceAllString(clean, " "))

	runes := []rune(clean)
	if len(runes) <= maxChars {
		return clean
	}
	// Caps too small to hold the marker hard-cut instead.
	if maxChars <= 3 {
		if maxChars < 0 {
			maxChars = 0
		}
		return strings.TrimRight(string(runes[:maxChars]), " ")
	}
	cut := strings.TrimRight(string(runes[:maxChars-3]), " ")
	return cut + "..."
}

// Tokenize lowercases the text and extracts alphanumeric runs,
// dropping stopwords. Returns nil for text with no usable tokens.
func Tokenize(text string) []string {
	var tokens []string
	for _, tok := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		if _, skip := stopwords[tok]; skip {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// NormalizePagePath reduces a URL or bare path to a canonical site
// path: scheme and host stripped, a guaranteed leading slash, and no
// trailing slash except for the root. An empty input yields "".
func NormalizePagePath(value string) string {
	if value == "" {
		return ""
	}

	path := value
	if parsed, err := url.Parse(value); err == nil && (parsed.Scheme != "" || parsed.Host != "") {
		path = parsed.Path
	}

	path = strings.TrimSpace(path)
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}
