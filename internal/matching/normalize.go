package matching

import (
	"strings"
	"unicode"
)

// Normalize canonicalizes a free-text product name into the matching key:
// lowercase, punctuation treated as a word separator, single-spaced,
// trimmed. Total and idempotent, so "Nutella  Family-Pack!" and
// "nutella family pack" produce the same key.
func Normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}
