package usecase

import (
	"sort"
	"strings"

	"github.com/marcoavk/urban-plan-assistant/internal/core/domain"
)

// BoostConfig holds the multiplicative scoring adjustments. Exact article
// citations outrank neighborhood matches, which outrank generic term hits;
// penalties damp matches with no entity signal.
type BoostConfig struct {
	ExactArticle      float64
	NeighborhoodMatch float64
	TermMatch         float64
	GenericPenalty    float64
	TooGenericPenalty float64
}

func DefaultBoostConfig() BoostConfig {
	return BoostConfig{
		ExactArticle:      3.0,
		NeighborhoodMatch: 1.8,
		TermMatch:         1.5,
		GenericPenalty:    0.3,
		TooGenericPenalty: 0.5,
	}
}

// Domain terms tied to specific query types; a content hit earns a small boost.
var queryTypeTerms = map[domain.QueryType][]string{
	domain.QueryCertificationSustainability: {"certificacao", "sustentabilidade", "sustentavel", "ambiental"},
	domain.QueryConstructionGeneric:         {"construir", "edificacao", "regime urbanistico", "aproveitamento"},
	domain.QueryNeighborhoodSpecific:        {"regime urbanistico", "zona", "aproveitamento"},
	domain.QueryFourthDistrictArt74:         {"4o distrito", "inovacao"},
}

// Boilerplate terms that match almost any master plan passage. A candidate
// whose only signal is one of these gets penalized.
var genericBoilerplateTerms = []string{
	"plano diretor", "porto alegre", "disposicoes gerais", "lei complementar",
}

const shortContentBytes = 100

// ContextualScorer turns raw similarity into a final relevance score via
// named multiplicative boosts and penalties, then applies the per-type
// threshold carried by the classification. Scoring is deterministic: the
// same (content, similarity, classification) always yields the same score.
type ContextualScorer struct {
	cfg BoostConfig
}

func NewContextualScorer(cfg BoostConfig) *ContextualScorer {
	def := DefaultBoostConfig()
	if cfg.ExactArticle <= 0 {
		cfg.ExactArticle = def.ExactArticle
	}
	if cfg.NeighborhoodMatch <= 0 {
		cfg.NeighborhoodMatch = def.NeighborhoodMatch
	}
	if cfg.TermMatch <= 0 {
		cfg.TermMatch = def.TermMatch
	}
	if cfg.GenericPenalty <= 0 || cfg.GenericPenalty >= 1 {
		cfg.GenericPenalty = def.GenericPenalty
	}
	if cfg.TooGenericPenalty <= 0 || cfg.TooGenericPenalty >= 1 {
		cfg.TooGenericPenalty = def.TooGenericPenalty
	}
	return &ContextualScorer{cfg: cfg}
}

// Score returns every input match, scored and flagged; nothing is dropped so
// the caller can compute quality metrics over the full candidate set. Equal
// final scores keep their original relative order.
func (s *ContextualScorer) Score(matches []domain.RawMatch, c domain.Classification) domain.ScoreReport {
	report := domain.ScoreReport{
		Matches: make([]domain.ScoredMatch, 0, len(matches)),
	}
	if len(matches) == 0 {
		return report
	}

	var sum float64
	for _, raw := range matches {
		scored := s.scoreOne(raw, c)
		sum += scored.FinalScore
		if scored.FinalScore > report.TopScore {
			report.TopScore = scored.FinalScore
		}
		if scored.PassesThreshold {
			report.Passed++
		}
		report.Matches = append(report.Matches, scored)
	}
	report.AverageScore = sum / float64(len(matches))

	sort.SliceStable(report.Matches, func(i, j int) bool {
		return report.Matches[i].FinalScore > report.Matches[j].FinalScore
	})
	return report
}

func (s *ContextualScorer) scoreOne(raw domain.RawMatch, c domain.Classification) domain.ScoredMatch {
	out := domain.ScoredMatch{
		RawMatch:   raw,
		FinalScore: raw.Similarity,
	}
	folded := foldText(raw.Content)

	if c.ArticleNumber != "" && containsArticleReference(folded, c.ArticleNumber) {
		out.FinalScore *= s.cfg.ExactArticle
		out.Boosts = append(out.Boosts, "exact_article_match")
	}

	for _, neighborhood := range c.Entities.Neighborhoods {
		if strings.Contains(folded, foldText(neighborhood)) {
			out.FinalScore *= s.cfg.NeighborhoodMatch
			out.Boosts = append(out.Boosts, "bairro_match:"+neighborhood)
		}
	}

	for _, term := range queryTypeTerms[c.QueryType] {
		if strings.Contains(folded, term) {
			out.FinalScore *= s.cfg.TermMatch
			out.Boosts = append(out.Boosts, "term_boost:"+term)
		}
	}

	if len(out.Boosts) == 0 {
		if containsAny(folded, genericBoilerplateTerms) {
			out.FinalScore *= s.cfg.GenericPenalty
			out.Penalties = append(out.Penalties, "generic_terms_penalty")
		} else if len(raw.Content) < shortContentBytes {
			out.FinalScore *= s.cfg.TooGenericPenalty
			out.Penalties = append(out.Penalties, "too_generic_penalty")
		}
	}

	out.PassesThreshold = out.FinalScore >= c.Threshold
	return out
}

// containsArticleReference accepts the citation forms used across the plan
// text: "art. 74", "art 74", "artigo 74".
func containsArticleReference(folded, number string) bool {
	for _, form := range []string{"art. " + number, "art " + number, "artigo " + number, "art." + number} {
		idx := strings.Index(folded, form)
		for idx >= 0 {
			end := idx + len(form)
			if end == len(folded) || !isAlnumByte(folded[end]) {
				return true
			}
			next := strings.Index(folded[idx+1:], form)
			if next < 0 {
				break
			}
			idx += 1 + next
		}
	}
	return false
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
