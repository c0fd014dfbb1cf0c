package usecase

import (
	"strings"
	"testing"

	"github.com/marcoavk/urban-plan-assistant/internal/core/domain"
)

func regimeRow(neighborhood, zone, height, basicCoef, maxCoef string) domain.StructuredRow {
	return domain.StructuredRow{
		Neighborhood: neighborhood,
		Zone:         zone,
		Values: map[string]string{
			domain.ColumnNeighborhood:     neighborhood,
			domain.ColumnZone:             zone,
			domain.ColumnMaxHeight:        height,
			domain.ColumnBasicCoefficient: basicCoef,
			domain.ColumnMaxCoefficient:   maxCoef,
		},
	}
}

func passingReport(scores ...float64) domain.ScoreReport {
	report := domain.ScoreReport{}
	var sum float64
	for i, score := range scores {
		report.Matches = append(report.Matches, domain.ScoredMatch{
			RawMatch: domain.RawMatch{
				DocumentID: "doc",
				Content:    strings.Repeat("regime urbanístico e aproveitamento do solo conforme o plano ", 3),
				Similarity: score,
			},
			FinalScore:      score,
			PassesThreshold: true,
		})
		report.Passed++
		sum += score
		report.Matches[i].FinalScore = score
	}
	if len(scores) > 0 {
		report.AverageScore = sum / float64(len(scores))
		report.TopScore = scores[0]
	}
	return report
}

func TestSynthesizeRendersRegimeTableVerbatim(t *testing.T) {
	s := NewSynthesizer()
	c := domain.Classification{
		QueryType:  domain.QueryNeighborhoodSpecific,
		Strategy:   domain.StrategyHybrid,
		Confidence: 0.9,
		Threshold:  0.25,
		Entities:   domain.Entities{Neighborhoods: []string{"PETRÓPOLIS"}},
	}
	structured := domain.StructuredResult{
		Rows: []domain.StructuredRow{regimeRow("PETRÓPOLIS", "ZOT 07", "60", "2.5", "4.0")},
	}

	result := s.Synthesize(domain.Query{Text: "altura em Petrópolis"}, c, structured, passingReport(0.8, 0.7))

	for _, want := range []string{"PETRÓPOLIS", "ZOT 07", "| 60 |", "2.5", "4.0"} {
		if !strings.Contains(result.Answer, want) {
			t.Fatalf("answer missing %q:\n%s", want, result.Answer)
		}
	}
	if result.Confidence < 0.8 {
		t.Fatalf("complete dual-source answer should score >= 0.8, got %v", result.Confidence)
	}
	if result.Sources.Tabular != 1 || result.Sources.Conceptual != 2 {
		t.Fatalf("unexpected sources: %+v", result.Sources)
	}
	if result.QueryType != domain.QueryNeighborhoodSpecific {
		t.Fatalf("unexpected query type %s", result.QueryType)
	}
}

func TestSynthesizeMentionsSubdivisionsOfSameBaseZone(t *testing.T) {
	s := NewSynthesizer()
	c := domain.Classification{
		QueryType:  domain.QueryNeighborhoodSpecific,
		Strategy:   domain.StrategyStructuredOnly,
		Confidence: 0.9,
		Entities:   domain.Entities{ZoneCodes: []string{"ZOT 08.3"}},
	}
	structured := domain.StructuredResult{
		Rows: []domain.StructuredRow{
			regimeRow("MOINHOS DE VENTO", "ZOT 08.3-A", "52", "2.0", "3.0"),
			regimeRow("MOINHOS DE VENTO", "ZOT 08.3-B", "60", "2.4", "3.6"),
			regimeRow("MOINHOS DE VENTO", "ZOT 08.3-C", "90", "3.0", "5.0"),
		},
	}

	result := s.Synthesize(domain.Query{}, c, structured, domain.ScoreReport{})

	if !strings.Contains(result.Answer, "ZOT 08.3 está subdividida em ZOT 08.3-A, ZOT 08.3-B, ZOT 08.3-C") {
		t.Fatalf("answer must explain the subdivision grouping:\n%s", result.Answer)
	}
	for _, height := range []string{"| 52 |", "| 60 |", "| 90 |"} {
		if !strings.Contains(result.Answer, height) {
			t.Fatalf("every subdivision row must be present, missing %q:\n%s", height, result.Answer)
		}
	}
}

func TestSynthesizeReportsAggregates(t *testing.T) {
	s := NewSynthesizer()
	c := domain.Classification{
		QueryType:  domain.QueryNeighborhoodSpecific,
		Strategy:   domain.StrategyStructuredOnly,
		Confidence: 0.9,
		Entities:   domain.Entities{Neighborhoods: []string{"TRISTEZA"}},
	}
	structured := domain.StructuredResult{
		Rows:       []domain.StructuredRow{regimeRow("TRISTEZA", "ZOT 05", "33", "1.9", "2.4")},
		Aggregates: map[string]float64{"zone_count_by_bairro:TRISTEZA": 2},
	}

	result := s.Synthesize(domain.Query{}, c, structured, domain.ScoreReport{})

	if !strings.Contains(result.Answer, "O bairro TRISTEZA possui 2 zona(s)") {
		t.Fatalf("aggregate summary missing:\n%s", result.Answer)
	}
}

func TestSynthesizeConceptualOnlyForCityWideParameter(t *testing.T) {
	s := NewSynthesizer()
	c := domain.Classification{
		QueryType:  domain.QueryGeneric,
		Strategy:   domain.StrategyVectorOnly,
		Confidence: 0.6,
		Threshold:  0.15,
		Entities:   domain.Entities{Parameters: []string{ParameterHeight}},
	}

	result := s.Synthesize(domain.Query{Text: "qual a altura máxima em Porto Alegre"}, c, domain.StructuredResult{}, passingReport(0.7))

	if !strings.Contains(result.Answer, "variam por zona e por bairro") {
		t.Fatalf("city-wide parameter answer must explain the variation:\n%s", result.Answer)
	}
	if result.Confidence < 0.5 || result.Confidence >= 0.8 {
		t.Fatalf("single-source answer should land between 0.5 and 0.8, got %v", result.Confidence)
	}
	if result.Sources.Tabular != 0 || result.Sources.Conceptual != 1 {
		t.Fatalf("unexpected sources: %+v", result.Sources)
	}
}

func TestSynthesizeClarificationCarriesNoSources(t *testing.T) {
	s := NewSynthesizer()
	c := domain.Classification{
		QueryType:          domain.QueryConstructionGeneric,
		Strategy:           domain.StrategyHybrid,
		Confidence:         0.4,
		NeedsClarification: true,
	}

	result := s.Synthesize(domain.Query{Text: "posso construir um prédio de 10 andares?"}, c, domain.StructuredResult{}, passingReport(0.9))

	if !strings.Contains(result.Answer, "bairro") {
		t.Fatalf("clarification must ask for the neighborhood:\n%s", result.Answer)
	}
	if result.Confidence > 0.4 {
		t.Fatalf("clarification confidence must stay at or below 0.4, got %v", result.Confidence)
	}
	if result.Sources.Tabular != 0 || result.Sources.Conceptual != 0 {
		t.Fatalf("clarification must not claim evidence: %+v", result.Sources)
	}
}

func TestSynthesizeFallbackNeverFabricatesValues(t *testing.T) {
	s := NewSynthesizer()
	c := domain.Classification{
		QueryType:  domain.QueryGeneric,
		Strategy:   domain.StrategyVectorOnly,
		Confidence: 0.5,
	}

	result := s.Synthesize(domain.Query{Text: "???"}, c, domain.StructuredResult{}, domain.ScoreReport{})

	if !strings.Contains(result.Answer, "Não encontrei evidência suficiente") {
		t.Fatalf("fallback must state the lack of evidence:\n%s", result.Answer)
	}
	if result.Confidence >= 0.5 {
		t.Fatalf("fallback confidence must be low, got %v", result.Confidence)
	}
}

func TestSynthesizeDegradedStructuredLowersConfidence(t *testing.T) {
	s := NewSynthesizer()
	c := domain.Classification{
		QueryType:  domain.QueryNeighborhoodSpecific,
		Strategy:   domain.StrategyHybrid,
		Confidence: 0.9,
		Entities:   domain.Entities{Neighborhoods: []string{"PETRÓPOLIS"}},
	}
	full := domain.StructuredResult{
		Rows: []domain.StructuredRow{regimeRow("PETRÓPOLIS", "ZOT 07", "60", "2.5", "4.0")},
	}
	degraded := domain.StructuredResult{
		Rows:   full.Rows,
		Errors: []domain.LookupError{{Lookup: "zone_count_by_bairro:PETRÓPOLIS", Err: domain.ErrPartialRetrieval}},
	}

	fullResult := s.Synthesize(domain.Query{}, c, full, passingReport(0.8))
	degradedResult := s.Synthesize(domain.Query{}, c, degraded, passingReport(0.8))

	if degradedResult.Confidence >= fullResult.Confidence {
		t.Fatalf("partial retrieval must lower confidence: full=%v degraded=%v",
			fullResult.Confidence, degradedResult.Confidence)
	}
}

func TestExcerptCutsAtWordBoundary(t *testing.T) {
	long := strings.Repeat("palavra ", 60)
	got := excerpt(long)
	if len(got) > excerptBytes+len("…") {
		t.Fatalf("excerpt too long: %d bytes", len(got))
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("truncated excerpt must end with ellipsis: %q", got)
	}
	if strings.HasSuffix(strings.TrimSuffix(got, "…"), "palavr") {
		t.Fatalf("excerpt must cut at a word boundary: %q", got)
	}
}
