package usecase

import (
	"sort"

	"github.com/kirillkom/legal-assistant/internal/core/domain"
)

// withDefaultScore returns r with the source default injected when the
// store did not supply a score.
func withDefaultScore(r domain.SearchResult) domain.SearchResult {
	if r.Score != nil {
		return r
	}
	r.Score = domain.Score(r.SourceKind.DefaultScore())
	return r
}

// mergeCandidates collapses batches by dedup key. On collision the strictly
// higher score wins and ties keep the earlier entry, so batch order decides
// ties. The output is sorted by descending score; equal scores keep merge order.
func mergeCandidates(batches ...[]domain.SearchResult) []domain.SearchResult {
	total := 0
	for _, batch := range batches {
		total += len(batch)
	}

	positions := make(map[string]int, total)
	out := make([]domain.SearchResult, 0, total)
	for _, batch := range batches {
		for _, candidate := range batch {
			key := candidate.DedupKey()
			pos, seen := positions[key]
			if !seen {
				positions[key] = len(out)
				out = append(out, candidate)
				continue
			}
			if candidate.ScoreValue() > out[pos].ScoreValue() {
				out[pos] = candidate
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ScoreValue() > out[j].ScoreValue()
	})
	return out
}

func trimCandidates(results []domain.SearchResult, limit int) []domain.SearchResult {
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}
