package qdrant

import (
	"sort"

	"github.com/marcoavk/urban-plan-assistant/internal/core/domain"
)

const rrfRankConstant = 60.0

// fuseByReciprocalRank merges the dense and lexical result lists. Ordering
// comes from the summed reciprocal ranks; the reported similarity is the
// dense cosine score where the candidate has one. Lexical-only hits inherit
// the weakest dense similarity in the fused set so they compete at the
// threshold rather than above it.
func fuseByReciprocalRank(dense, lexical []domain.RawMatch, limit int) []domain.RawMatch {
	type candidate struct {
		match    domain.RawMatch
		fused    float64
		hasDense bool
	}

	byKey := make(map[string]*candidate, len(dense)+len(lexical))
	order := make([]string, 0, len(dense)+len(lexical))

	absorb := func(matches []domain.RawMatch, isDense bool) {
		for rank, match := range matches {
			key := match.DocumentID
			if key == "" {
				key = match.Content
			}
			c, ok := byKey[key]
			if !ok {
				c = &candidate{match: match}
				byKey[key] = c
				order = append(order, key)
			}
			c.fused += 1.0 / (rrfRankConstant + float64(rank+1))
			if isDense {
				c.match.Similarity = match.Similarity
				c.hasDense = true
			}
		}
	}
	absorb(dense, true)
	absorb(lexical, false)

	if len(order) == 0 {
		return nil
	}

	minDense := 0.0
	for _, key := range order {
		c := byKey[key]
		if c.hasDense && (minDense == 0 || c.match.Similarity < minDense) {
			minDense = c.match.Similarity
		}
	}

	out := make([]*candidate, 0, len(order))
	for _, key := range order {
		c := byKey[key]
		if !c.hasDense {
			c.match.Similarity = minDense
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].fused > out[j].fused })

	if len(out) > limit {
		out = out[:limit]
	}
	matches := make([]domain.RawMatch, 0, len(out))
	for _, c := range out {
		matches = append(matches, c.match)
	}
	return matches
}
