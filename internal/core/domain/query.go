package domain

// Query is one pipeline invocation's input. Immutable once received.
type Query struct {
	Text        string `json:"query_text"`
	SessionID   string `json:"session_id"`
	Role        string `json:"user_role"`
	BypassCache bool   `json:"bypass_cache"`
}

type QueryType string

const (
	QueryFourthDistrictArt74         QueryType = "fourth_district_art74"
	QueryCertificationSustainability QueryType = "certification_sustainability"
	QueryArticleSpecific             QueryType = "article_specific"
	QueryNeighborhoodSpecific        QueryType = "neighborhood_specific"
	QueryConstructionGeneric         QueryType = "construction_generic"
	QueryGeneric                     QueryType = "generic"
)

type Strategy string

const (
	StrategyStructuredOnly Strategy = "structured_only"
	StrategyVectorOnly     Strategy = "vector_only"
	StrategyHybrid         Strategy = "hybrid"
)

// Entities holds the canonical strings extracted from the query text,
// in order of appearance.
type Entities struct {
	Neighborhoods []string `json:"neighborhoods"`
	ZoneCodes     []string `json:"zone_codes"`
	Parameters    []string `json:"parameters"`
}

func (e Entities) IsEmpty() bool {
	return len(e.Neighborhoods) == 0 && len(e.ZoneCodes) == 0 && len(e.Parameters) == 0
}

// Classification carries the routing decision for one query. Threshold is a
// pure function of QueryType; it travels with the classification so the
// scorer never re-derives it.
type Classification struct {
	QueryType          QueryType `json:"query_type"`
	Strategy           Strategy  `json:"strategy"`
	Entities           Entities  `json:"entities"`
	Confidence         float64   `json:"confidence"`
	Threshold          float64   `json:"threshold"`
	NeedsClarification bool      `json:"needs_clarification"`
	ArticleNumber      string    `json:"article_number,omitempty"`
	MatchedRule        string    `json:"matched_rule,omitempty"`
}
