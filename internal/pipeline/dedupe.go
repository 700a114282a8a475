package pipeline

import (
	"context"

	"stockcount/internal"
)

// lookupChunk bounds the IN (...) list of one batched existence query.
const lookupChunk = 500

type KeyLookup interface {
	ExistsByKey(ctx context.Context, key string) (bool, error)
}

// BatchKeyLookup answers existence for many keys in one round trip.
type BatchKeyLookup interface {
	KeyLookup
	ExistingKeys(ctx context.Context, keys []string) (map[string]bool, error)
}

// ResolveDuplicates drops candidates whose key is already in the catalog.
// Candidates repeating a key within the same input are all kept; the
// committer sorts those out when the second write conflicts.
func ResolveDuplicates(ctx context.Context, candidates []internal.NormalizedCandidate, lookup KeyLookup) ([]internal.NormalizedCandidate, int, error) {
	if batch, ok := lookup.(BatchKeyLookup); ok {
		return resolveBatched(ctx, candidates, batch)
	}

	toInsert := make([]internal.NormalizedCandidate, 0, len(candidates))
	skipped := 0
	for _, c := range candidates {
		exists, err := lookup.ExistsByKey(ctx, c.Key)
		if err != nil {
			return nil, 0, err
		}
		if exists {
			skipped++
			continue
		}
		toInsert = append(toInsert, c)
	}
	return toInsert, skipped, nil
}

func resolveBatched(ctx context.Context, candidates []internal.NormalizedCandidate, lookup BatchKeyLookup) ([]internal.NormalizedCandidate, int, error) {
	existing := make(map[string]bool)
	for start := 0; start < len(candidates); start += lookupChunk {
		end := min(start+lookupChunk, len(candidates))
		seen := make(map[string]struct{}, end-start)
		keys := make([]string, 0, end-start)
		for _, c := range candidates[start:end] {
			if _, ok := seen[c.Key]; ok {
				continue
			}
			seen[c.Key] = struct{}{}
			keys = append(keys, c.Key)
		}
		found, err := lookup.ExistingKeys(ctx, keys)
		if err != nil {
			return nil, 0, err
		}
		for k, ok := range found {
			if ok {
				existing[k] = true
			}
		}
	}

	toInsert := make([]internal.NormalizedCandidate, 0, len(candidates))
	skipped := 0
	for _, c := range candidates {
		if existing[c.Key] {
			skipped++
			continue
		}
		toInsert = append(toInsert, c)
	}
	return toInsert, skipped, nil
}
