package usecases

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/width"
)

// AddressesMatch reports whether two addresses plausibly name the same place.
// Comparison ignores width, case, spacing and punctuation, and accepts one
// address containing the other since geocoders add or drop admin levels.
func AddressesMatch(a, b string) bool {
	na, nb := normalizeAddress(a), normalizeAddress(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb || strings.Contains(na, nb) || strings.Contains(nb, na)
}

func normalizeAddress(s string) string {
	s = cases.Fold().String(width.Fold.String(s))
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
