package util

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"stockcount/internal"
)

var reSpaces = regexp.MustCompile(`\s+`)

// NormalizeKey returns the canonical form of a product code or barcode.
func NormalizeKey(input string) string {
	return strings.ToUpper(strings.TrimSpace(input))
}

func NormalizeDescription(input string) string {
	return Truncate(strings.ToUpper(strings.TrimSpace(input)), internal.MaxDescriptionLen)
}

// NormalizeQuery is the cache key for a search term.
func NormalizeQuery(input string) string {
	return strings.ToUpper(strings.TrimSpace(input))
}

// Truncate keeps at most max characters of s.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

func NormalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

// ResolveKey picks the barcode unless it is the no-barcode sentinel.
func ResolveKey(internalCode, barcode string) string {
	barcode = strings.TrimSpace(barcode)
	if barcode == internal.NoBarcode {
		return NormalizeKey(internalCode)
	}
	return NormalizeKey(barcode)
}

func DerefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
