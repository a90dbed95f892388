package entity

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CanonicalCertificate keeps only the digits of a registry number as typed
// by a user ("123.456.789-0" -> "1234567890").
func CanonicalCertificate(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// StripDiacritics decomposes s (NFD) and drops the combining marks, so
// "José" becomes "Jose".
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeName folds a person name for comparison: no diacritics, single
// spaces, trimmed, lower case.
func NormalizeName(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	return strings.ToLower(strings.Join(strings.Fields(StripDiacritics(s)), " "))
}

// NamesMatch compares two person names after NormalizeName.
func NamesMatch(a, b string) bool {
	return NormalizeName(a) == NormalizeName(b)
}
