package usecase

import (
	"regexp"
	"strings"

	"github.com/marcoavk/urban-plan-assistant/internal/core/domain"
)

// Thresholds maps each query type to its minimum usable similarity. The
// values are empirically tuned; they are configuration, not invariants, but
// the relative ordering (article > certification > generic) must hold.
type Thresholds struct {
	FourthDistrict float64
	Certification  float64
	Article        float64
	Neighborhood   float64
	Construction   float64
	Generic        float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		FourthDistrict: 0.30,
		Certification:  0.20,
		Article:        0.25,
		Neighborhood:   0.20,
		Construction:   0.15,
		Generic:        0.15,
	}
}

type classifierRule struct {
	name      string
	queryType domain.QueryType
	strategy  domain.Strategy
	threshold float64
	// confidence for a rule hit; degraded later when entities are missing
	confidence float64
	matches    func(folded string, entities domain.Entities) bool
}

// QueryClassifier assigns each query to one of the closed query types by
// evaluating an ordered rule list, most specific first. It never fails for
// well-formed text; the fallback rule always matches.
type QueryClassifier struct {
	rules []classifierRule
}

var (
	articlePattern = regexp.MustCompile(`\bart(?:igo)?\.?\s*(\d+)\b`)
	addressPattern = regexp.MustCompile(`\b(?:rua|avenida|av|travessa|estrada|alameda)\b[^,]*,?\s*(?:n[o.]?\s*)?\d+`)
)

var constructionTerms = []string{
	"o que posso construir", "o que pode ser construido", "posso construir",
	"construir", "edificar", "potencial construtivo", "regime urbanistico",
}

func NewQueryClassifier(t Thresholds) *QueryClassifier {
	rules := []classifierRule{
		{
			name:       "fourth_district",
			queryType:  domain.QueryFourthDistrictArt74,
			strategy:   domain.StrategyVectorOnly,
			threshold:  t.FourthDistrict,
			confidence: 0.9,
			matches: func(folded string, _ domain.Entities) bool {
				return strings.Contains(folded, "4o distrito") ||
					strings.Contains(folded, "quarto distrito") ||
					strings.Contains(folded, "4 distrito")
			},
		},
		{
			name:       "certification_sustainability",
			queryType:  domain.QueryCertificationSustainability,
			strategy:   domain.StrategyVectorOnly,
			threshold:  t.Certification,
			confidence: 0.9,
			matches: func(folded string, _ domain.Entities) bool {
				return strings.Contains(folded, "certificacao") &&
					(strings.Contains(folded, "sustentabilidade") || strings.Contains(folded, "sustentavel"))
			},
		},
		{
			name:       "article_specific",
			queryType:  domain.QueryArticleSpecific,
			strategy:   domain.StrategyVectorOnly,
			threshold:  t.Article,
			confidence: 0.85,
			matches: func(folded string, _ domain.Entities) bool {
				return articlePattern.MatchString(folded)
			},
		},
		{
			name:       "neighborhood_specific",
			queryType:  domain.QueryNeighborhoodSpecific,
			strategy:   domain.StrategyHybrid,
			threshold:  t.Neighborhood,
			confidence: 0.9,
			matches: func(_ string, entities domain.Entities) bool {
				return len(entities.Neighborhoods) > 0 &&
					(len(entities.Parameters) > 0 || len(entities.ZoneCodes) > 0)
			},
		},
		{
			name:       "construction",
			queryType:  domain.QueryConstructionGeneric,
			strategy:   domain.StrategyHybrid,
			threshold:  t.Construction,
			confidence: 0.85,
			matches: func(folded string, _ domain.Entities) bool {
				return containsAny(folded, constructionTerms)
			},
		},
		{
			name:       "generic",
			queryType:  domain.QueryGeneric,
			strategy:   domain.StrategyVectorOnly,
			threshold:  t.Generic,
			confidence: 0.5,
			matches:    func(string, domain.Entities) bool { return true },
		},
	}
	return &QueryClassifier{rules: rules}
}

func (c *QueryClassifier) Classify(text string, entities domain.Entities) domain.Classification {
	folded := foldText(text)

	for _, rule := range c.rules {
		if !rule.matches(folded, entities) {
			continue
		}
		out := domain.Classification{
			QueryType:   rule.queryType,
			Strategy:    rule.strategy,
			Entities:    entities,
			Confidence:  rule.confidence,
			Threshold:   rule.threshold,
			MatchedRule: rule.name,
		}
		refineClassification(&out, folded, entities)
		return out
	}

	// Unreachable: the fallback rule always matches.
	return domain.Classification{
		QueryType: domain.QueryGeneric,
		Strategy:  domain.StrategyVectorOnly,
		Entities:  entities,
	}
}

func refineClassification(c *domain.Classification, folded string, entities domain.Entities) {
	switch c.QueryType {
	case domain.QueryFourthDistrictArt74:
		c.ArticleNumber = "74"

	case domain.QueryArticleSpecific:
		if m := articlePattern.FindStringSubmatch(folded); m != nil {
			c.ArticleNumber = m[1]
		}

	case domain.QueryNeighborhoodSpecific:
		if len(entities.ZoneCodes) > 0 && len(entities.Parameters) == 0 {
			// Zone listing for a neighborhood needs only the tabular store.
			c.Strategy = domain.StrategyStructuredOnly
		}

	case domain.QueryConstructionGeneric:
		hasPlace := len(entities.Neighborhoods) > 0 || len(entities.ZoneCodes) > 0
		if !hasPlace {
			// A construction question without a place cannot be answered from
			// the tabular store; ask which neighborhood, never guess one.
			c.Strategy = domain.StrategyVectorOnly
			c.NeedsClarification = true
			c.Confidence = 0.4
		}

	case domain.QueryGeneric:
		if addressPattern.MatchString(folded) {
			// Street addresses carry no neighborhood; ask for one.
			c.NeedsClarification = true
			c.Confidence = 0.4
			return
		}
		if len(entities.Parameters) > 0 {
			// Parameter question with no place: answerable conceptually
			// ("varies by zone"), with reduced confidence.
			c.Confidence = 0.6
		}
	}

	if c.QueryType != domain.QueryGeneric && entities.IsEmpty() && !c.NeedsClarification {
		c.Confidence -= 0.15
	}
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}
