// Package nlp turns free text into a catalog template plus typed parameters.
package nlp

import (
	"strings"
	"unicode"
)

// Normalize lowercases, strips punctuation except periods, and collapses
// whitespace. Placeholder braces survive so de-parameterized text still
// matches catalog patterns. Normalize is idempotent.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r):
			b.WriteRune(r)
		case r == '.' || r == '{' || r == '}' || r == '_':
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
