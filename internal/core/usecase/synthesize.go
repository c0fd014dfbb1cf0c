package usecase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/marcoavk/urban-plan-assistant/internal/core/domain"
)

const maxConceptualExcerpts = 3

// Synthesizer merges structured rows and scored matches into the final
// answer. It never fabricates values: tabular cells come verbatim from the
// rows, and clarification is returned instead of a guessed neighborhood.
type Synthesizer struct{}

func NewSynthesizer() *Synthesizer {
	return &Synthesizer{}
}

func (s *Synthesizer) Synthesize(
	query domain.Query,
	c domain.Classification,
	structured domain.StructuredResult,
	scored domain.ScoreReport,
) domain.SynthesisResult {
	out := domain.SynthesisResult{
		QueryType:        c.QueryType,
		AppliedThreshold: c.Threshold,
		Sources: domain.Sources{
			Tabular:    len(structured.Rows),
			Conceptual: scored.Passed,
		},
	}

	switch {
	case c.NeedsClarification:
		out.Answer = clarificationAnswer()
		out.Confidence = clampConfidence(minFloat(c.Confidence, 0.4))
		out.Sources = domain.Sources{}

	case structured.HasRows():
		out.Answer = structuredAnswer(c, structured, scored)
		out.Confidence = aggregateConfidence(c, structured, scored)

	case scored.Passed > 0:
		out.Answer = conceptualAnswer(c, scored)
		out.Confidence = aggregateConfidence(c, structured, scored)

	default:
		out.Answer = fallbackAnswer(c)
		out.Confidence = clampConfidence(0.3 * c.Confidence)
	}

	return out
}

func clarificationAnswer() string {
	return "Para informar o regime urbanístico preciso saber o bairro. " +
		"Poderia indicar em qual bairro de Porto Alegre está o imóvel ou terreno?"
}

func structuredAnswer(c domain.Classification, structured domain.StructuredResult, scored domain.ScoreReport) string {
	var b strings.Builder

	if len(c.Entities.Neighborhoods) > 0 {
		fmt.Fprintf(&b, "Regime urbanístico para %s:\n\n", strings.Join(c.Entities.Neighborhoods, ", "))
	} else if len(c.Entities.ZoneCodes) > 0 {
		fmt.Fprintf(&b, "Regime urbanístico para %s:\n\n", strings.Join(c.Entities.ZoneCodes, ", "))
	}

	writeRegimeTable(&b, structured.Rows)

	for _, group := range orderedGroups(structured.BaseZoneGroups()) {
		if len(group.subdivisions) > 1 {
			fmt.Fprintf(&b, "\n%s está subdividida em %s; as subdivisões acima pertencem à mesma zona base.\n",
				group.base, strings.Join(group.subdivisions, ", "))
		}
	}

	writeAggregates(&b, structured.Aggregates)
	writeConceptualNotes(&b, scored)
	return strings.TrimRight(b.String(), "\n")
}

func writeRegimeTable(b *strings.Builder, rows []domain.StructuredRow) {
	columns := []string{
		domain.ColumnZone,
		domain.ColumnMaxHeight,
		domain.ColumnBasicCoefficient,
		domain.ColumnMaxCoefficient,
	}

	fmt.Fprintf(b, "| %s |\n", strings.Join(columns, " | "))
	b.WriteString("|" + strings.Repeat("---|", len(columns)) + "\n")
	for _, row := range rows {
		cells := make([]string, 0, len(columns))
		for _, column := range columns {
			value := row.Values[column]
			if column == domain.ColumnZone && value == "" {
				value = row.Zone
			}
			if value == "" {
				value = "-"
			}
			cells = append(cells, value)
		}
		fmt.Fprintf(b, "| %s |\n", strings.Join(cells, " | "))
	}
}

type zoneGroup struct {
	base         string
	subdivisions []string
}

func orderedGroups(groups map[string][]string) []zoneGroup {
	out := make([]zoneGroup, 0, len(groups))
	for base, subdivisions := range groups {
		sort.Strings(subdivisions)
		out = append(out, zoneGroup{base: base, subdivisions: subdivisions})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].base < out[j].base })
	return out
}

func writeAggregates(b *strings.Builder, aggregates map[string]float64) {
	if len(aggregates) == 0 {
		return
	}
	names := make([]string, 0, len(aggregates))
	for name := range aggregates {
		names = append(names, name)
	}
	sort.Strings(names)

	b.WriteString("\n")
	for _, name := range names {
		value := aggregates[name]
		switch {
		case strings.HasPrefix(name, "zone_count_by_bairro:"):
			fmt.Fprintf(b, "O bairro %s possui %d zona(s) de ordenamento territorial.\n",
				strings.TrimPrefix(name, "zone_count_by_bairro:"), int(value))
		case strings.HasPrefix(name, "bairro_count_by_zone:"):
			fmt.Fprintf(b, "A zona %s abrange %d bairro(s).\n",
				strings.TrimPrefix(name, "bairro_count_by_zone:"), int(value))
		}
	}
}

func writeConceptualNotes(b *strings.Builder, scored domain.ScoreReport) {
	passing := scored.PassingMatches()
	if len(passing) == 0 {
		return
	}
	b.WriteString("\nBase conceitual do Plano Diretor:\n")
	for i, match := range passing {
		if i == maxConceptualExcerpts {
			break
		}
		fmt.Fprintf(b, "- %s\n", excerpt(match.Content))
	}
}

func conceptualAnswer(c domain.Classification, scored domain.ScoreReport) string {
	var b strings.Builder

	switch c.QueryType {
	case domain.QueryFourthDistrictArt74:
		b.WriteString("Sobre o 4º Distrito (Art. 74 do Plano Diretor):\n\n")
	case domain.QueryCertificationSustainability:
		b.WriteString("Sobre a Certificação em Sustentabilidade Ambiental:\n\n")
	default:
		if len(c.Entities.Parameters) > 0 && len(c.Entities.Neighborhoods) == 0 {
			b.WriteString("Os parâmetros urbanísticos variam por zona e por bairro em Porto Alegre; " +
				"não há um valor único para toda a cidade. Com base no Plano Diretor:\n\n")
		}
	}

	for i, match := range scored.PassingMatches() {
		if i == maxConceptualExcerpts {
			break
		}
		fmt.Fprintf(&b, "- %s\n", excerpt(match.Content))
	}
	return strings.TrimRight(b.String(), "\n")
}

func fallbackAnswer(c domain.Classification) string {
	if len(c.Entities.Parameters) > 0 {
		return "Os parâmetros urbanísticos variam por zona e por bairro; indique o bairro " +
			"para que eu informe os valores exatos do regime urbanístico."
	}
	return "Não encontrei evidência suficiente no Plano Diretor para responder com segurança. " +
		"Reformule a pergunta ou indique o bairro ou a zona de interesse."
}

const excerptBytes = 280

func excerpt(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if len(content) <= excerptBytes {
		return content
	}
	cut := content[:excerptBytes]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "…"
}

// aggregateConfidence combines classification confidence, vector evidence
// quality and structured completeness into one bounded [0,1] value. A
// complete structured answer with passing vector support lands at or above
// 0.8; single-source answers land between 0.5 and 0.8.
func aggregateConfidence(c domain.Classification, structured domain.StructuredResult, scored domain.ScoreReport) float64 {
	vectorQuality := 0.0
	if len(scored.Matches) > 0 {
		passRate := float64(scored.Passed) / float64(len(scored.Matches))
		vectorQuality = 0.5*passRate + 0.5*minFloat(scored.AverageScore, 1.0)
	}

	if c.Strategy == domain.StrategyVectorOnly {
		return clampConfidence(0.6*c.Confidence + 0.4*vectorQuality)
	}

	structuredScore := 0.0
	if structured.HasRows() {
		structuredScore = 1.0
		if len(structured.Errors) > 0 {
			structuredScore = 0.8
		}
	}
	return clampConfidence(0.45*c.Confidence + 0.35*structuredScore + 0.20*vectorQuality)
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
