package domain

// RawMatch is one candidate returned by the vector search service.
type RawMatch struct {
	DocumentID string  `json:"document_id"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// ScoredMatch is a RawMatch after contextual scoring. Every applied boost
// and penalty is recorded by name so a score can be explained after the fact.
type ScoredMatch struct {
	RawMatch
	FinalScore      float64  `json:"final_score"`
	Boosts          []string `json:"boosts,omitempty"`
	Penalties       []string `json:"penalties,omitempty"`
	PassesThreshold bool     `json:"passes_threshold"`
}

// ScoreReport holds every scored match plus aggregate quality metrics.
// A report over zero matches is valid and carries zero-valued metrics.
type ScoreReport struct {
	Matches      []ScoredMatch `json:"matches"`
	AverageScore float64       `json:"average_score"`
	TopScore     float64       `json:"top_score"`
	Passed       int           `json:"passed_threshold"`
}

func (r ScoreReport) PassingMatches() []ScoredMatch {
	out := make([]ScoredMatch, 0, r.Passed)
	for _, m := range r.Matches {
		if m.PassesThreshold {
			out = append(out, m)
		}
	}
	return out
}
