package util

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestResolveKey(t *testing.T) {
	if got := ResolveKey("int123", "0000000000000"); got != "INT123" {
		t.Fatalf("sentinel key=%q", got)
	}
	if got := ResolveKey("int123", " 7894900530001 "); got != "7894900530001" {
		t.Fatalf("barcode key=%q", got)
	}
	if got := ResolveKey("int123", ""); got != "" {
		t.Fatalf("empty barcode key=%q", got)
	}
}

func TestNormalizeDescriptionTruncates(t *testing.T) {
	long := strings.Repeat("á", 250)
	got := NormalizeDescription("  " + long + "  ")
	if n := utf8.RuneCountInString(got); n != 200 {
		t.Fatalf("len=%d", n)
	}
	if !strings.HasPrefix(got, "Á") {
		t.Fatalf("not uppercased: %q", got[:4])
	}
}

func TestTruncateShort(t *testing.T) {
	if got := Truncate("abc", 5); got != "abc" {
		t.Fatalf("got=%q", got)
	}
	if got := Truncate("abcdef", 3); got != "abc" {
		t.Fatalf("got=%q", got)
	}
	if got := Truncate("abc", 0); got != "" {
		t.Fatalf("got=%q", got)
	}
}

func TestNormalizeSpaces(t *testing.T) {
	if got := NormalizeSpaces("  a \t b\n c "); got != "a b c" {
		t.Fatalf("got=%q", got)
	}
}
