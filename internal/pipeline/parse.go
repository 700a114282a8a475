// Package pipeline turns catalog text into committed catalog products.
//
// Parse -> Normalize -> ResolveDuplicates -> Committer, sequenced by Importer.
package pipeline

import (
	"iter"
	"strings"

	"stockcount/internal"
)

const (
	fieldSeparator = ";"
	minFields      = 3
)

// Parse yields the well-formed lines of a `code;barcode;description[;...]`
// catalog. Blank lines and lines with fewer than three fields are skipped.
// The sequence is lazy and can be ranged over any number of times.
func Parse(content string) iter.Seq[internal.RawImportLine] {
	return parse(content, nil)
}

// parse is Parse with a hook for lines dropped as malformed.
func parse(content string, onDrop func(lineNo int, line string)) iter.Seq[internal.RawImportLine] {
	return func(yield func(internal.RawImportLine) bool) {
		lineNo := 0
		for line := range strings.SplitSeq(content, "\n") {
			lineNo++
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			fields := strings.Split(line, fieldSeparator)
			if len(fields) < minFields {
				if onDrop != nil {
					onDrop(lineNo, line)
				}
				continue
			}
			raw := internal.RawImportLine{
				LineNo:       lineNo,
				InternalCode: fields[0],
				Barcode:      fields[1],
				Description:  fields[2],
			}
			if len(fields) > minFields {
				raw.Extra = fields[minFields:]
			}
			if !yield(raw) {
				return
			}
		}
	}
}
