package pipeline

import (
	"slices"
	"strings"
	"testing"
	"unicode/utf8"

	"stockcount/internal"
)

func TestParseDropsBlankAndMalformedLines(t *testing.T) {
	content := "\n0000000020625;7894900530001;AGUA CRYSTAL PET 500ML SEM GAS;3,00;0037\r\n   \ninvalidline\nA;B\n0000000020626;7894900531008;AGUA COM GAS\n"
	lines := slices.Collect(Parse(content))
	if len(lines) != 2 {
		t.Fatalf("len=%d", len(lines))
	}
	if lines[0].LineNo != 2 || lines[1].LineNo != 6 {
		t.Fatalf("line numbers=%d,%d", lines[0].LineNo, lines[1].LineNo)
	}
	if lines[0].InternalCode != "0000000020625" || lines[0].Barcode != "7894900530001" {
		t.Fatalf("fields=%+v", lines[0])
	}
	if !slices.Equal(lines[0].Extra, []string{"3,00", "0037"}) {
		t.Fatalf("extra=%v", lines[0].Extra)
	}
	if lines[1].Extra != nil {
		t.Fatalf("extra=%v", lines[1].Extra)
	}
}

func TestParseIsRestartable(t *testing.T) {
	seq := Parse("a;b;c\nd;e;f\n")
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	if !slices.EqualFunc(first, second, func(a, b internal.RawImportLine) bool {
		return a.LineNo == b.LineNo && a.Description == b.Description
	}) {
		t.Fatalf("first=%v second=%v", first, second)
	}
}

func TestParseStopsEarly(t *testing.T) {
	n := 0
	for range Parse("a;b;c\nd;e;f\ng;h;i\n") {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Fatalf("n=%d", n)
	}
}

func TestParseReportsDrops(t *testing.T) {
	var dropped []int
	for range parse("a;b;c\nbad\n\nx;y\n", func(lineNo int, _ string) { dropped = append(dropped, lineNo) }) {
	}
	if !slices.Equal(dropped, []int{2, 4}) {
		t.Fatalf("dropped=%v", dropped)
	}
}

func TestNormalizeLineSentinelBarcode(t *testing.T) {
	c, ok := NormalizeLine(internal.RawImportLine{InternalCode: "int123", Barcode: internal.NoBarcode, Description: "cabo"})
	if !ok {
		t.Fatal("candidate dropped")
	}
	if c.Key != "INT123" {
		t.Fatalf("key=%q", c.Key)
	}
	if c.Description != "CABO" {
		t.Fatalf("description=%q", c.Description)
	}
}

func TestNormalizeLineTruncatesDescription(t *testing.T) {
	c, ok := NormalizeLine(internal.RawImportLine{Barcode: "789", Description: strings.Repeat("ç", 260)})
	if !ok {
		t.Fatal("candidate dropped")
	}
	if n := utf8.RuneCountInString(c.Description); n != internal.MaxDescriptionLen {
		t.Fatalf("len=%d", n)
	}
}

func TestNormalizeDropsEmptyKeyOrDescription(t *testing.T) {
	got := Normalize(Parse("INT1; ;desc\nINT2;789;   \nINT3;0000000000000;ok\n"))
	if len(got) != 1 || got[0].Key != "INT3" {
		t.Fatalf("got=%+v", got)
	}
}
