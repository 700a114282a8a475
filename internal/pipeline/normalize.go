package pipeline

import (
	"iter"

	"stockcount/internal"
	"stockcount/internal/util"
)

// NormalizeLine resolves the product key and cleans the description.
// ok is false when either ends up empty.
func NormalizeLine(line internal.RawImportLine) (internal.NormalizedCandidate, bool) {
	key := util.ResolveKey(line.InternalCode, line.Barcode)
	desc := util.NormalizeDescription(line.Description)
	if key == "" || desc == "" {
		return internal.NormalizedCandidate{}, false
	}
	return internal.NormalizedCandidate{LineNo: line.LineNo, Key: key, Description: desc}, true
}

func Normalize(lines iter.Seq[internal.RawImportLine]) []internal.NormalizedCandidate {
	out := []internal.NormalizedCandidate{}
	for line := range lines {
		if c, ok := NormalizeLine(line); ok {
			out = append(out, c)
		}
	}
	return out
}
