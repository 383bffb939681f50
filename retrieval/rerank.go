package retrieval

import (
	"slices"

	"knowledge/types"
)

// Rerank orders candidates by descending score, keeping input order for equal
// scores, and returns the first k with 1-based ranks.
func Rerank(candidates []types.Candidate, k int) []types.RankedResult {
	sorted := slices.Clone(candidates)
	slices.SortStableFunc(sorted, func(a, b types.Candidate) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if k >= 0 && len(sorted) > k {
		sorted = sorted[:k]
	}

	ranked := make([]types.RankedResult, len(sorted))
	for i, c := range sorted {
		ranked[i] = types.RankedResult{Candidate: c, Rank: i + 1}
	}
	return ranked
}
