package usecase

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/marcoavk/urban-plan-assistant/internal/core/domain"
)

// Official list of the 94 Porto Alegre neighborhoods as stored in the
// tabular datasets. Lookups filter on these exact strings.
var neighborhoodGazetteer = []string{
	"ABERTA DOS MORROS", "AGRONOMIA", "ANCHIETA", "ARQUIPÉLAGO", "AUXILIADORA",
	"AZENHA", "BELA VISTA", "BELÉM NOVO", "BELÉM VELHO", "BOA VISTA",
	"BOA VISTA DO SUL", "BOM FIM", "BOM JESUS", "CAMAQUÃ", "CAMPO NOVO",
	"CASCATA", "CAVALHADA", "CEL. APARICIO BORGES", "CENTRO HISTÓRICO", "CHAPÉU DO SOL",
	"CHÁCARA DAS PEDRAS", "CIDADE BAIXA", "COSTA E SILVA", "CRISTAL", "CRISTO REDENTOR",
	"ESPÍRITO SANTO", "EXTREMA", "FARRAPOS", "FARROUPILHA", "FLORESTA",
	"GLÓRIA", "GUARUJÁ", "HIGIENÓPOLIS", "HÍPICA", "HUMAITÁ",
	"INDEPENDÊNCIA", "IPANEMA", "JARDIM BOTÂNICO", "JARDIM CARVALHO", "JARDIM DO SALSO",
	"JARDIM EUROPA", "JARDIM FLORESTA", "JARDIM ITU", "JARDIM LEOPOLDINA", "JARDIM LINDÓIA",
	"JARDIM SABARÁ", "JARDIM SÃO PEDRO", "JARDIM VILA NOVA", "LAGEADO", "LAMI",
	"LOMBA DO PINHEIRO", "MÁRIO QUINTANA", "MEDIANEIRA", "MENINO DEUS", "MOINHOS DE VENTO",
	"MONT SERRAT", "NAVEGANTES", "NONOAI", "PARQUE SANTA FÉ", "PARTENON",
	"PASSO D'AREIA", "PASSO DAS PEDRAS", "PEDRA REDONDA", "PETRÓPOLIS", "PONTA GROSSA",
	"PRAIA DE BELAS", "RESTINGA", "RIO BRANCO", "RUBEM BERTA", "SANTA CECÍLIA",
	"SANTA MARIA GORETTI", "SANTA TEREZA", "SANTANA", "SANTO ANTÔNIO", "SÃO GERALDO",
	"SÃO JOÃO", "SÃO JOSÉ", "SÃO SEBASTIÃO", "SARANDI", "SERRARIA",
	"TERESÓPOLIS", "TRÊS FIGUEIRAS", "TRISTEZA", "VILA ASSUNÇÃO", "VILA CONCEIÇÃO",
	"VILA IPIRANGA", "VILA JARDIM", "VILA JOÃO PESSOA", "VILA NOVA", "VILA SÃO JOSÉ",
}

// Canonical zoning parameter names and the vocabulary that maps onto them.
const (
	ParameterHeight      = "altura_maxima"
	ParameterCoefficient = "coeficiente_aproveitamento"
	ParameterOccupancy   = "taxa_ocupacao"
)

var parameterSynonyms = map[string]string{
	"altura":                        ParameterHeight,
	"altura maxima":                 ParameterHeight,
	"alturas maximas":               ParameterHeight,
	"gabarito":                      ParameterHeight,
	"limite de altura":              ParameterHeight,
	"ca":                            ParameterCoefficient,
	"coeficiente":                   ParameterCoefficient,
	"coeficiente de aproveitamento": ParameterCoefficient,
	"indice de aproveitamento":      ParameterCoefficient,
	"potencial construtivo":         ParameterCoefficient,
	"taxa de ocupacao":              ParameterOccupancy,
	"to":                            ParameterOccupancy,
}

var zoneCodePattern = regexp.MustCompile(`(?i)\bZOT\s*(\d+)(\.\d+)?(-([A-Za-z]))?`)

type gazetteerEntry struct {
	canonical string
	folded    string
}

// EntityExtractor scans query text against the neighborhood gazetteer, the
// zone code pattern and the parameter synonym vocabulary. It never fails;
// empty entity sets are a valid, expected outcome.
type EntityExtractor struct {
	entries []gazetteerEntry
}

func NewEntityExtractor() *EntityExtractor {
	entries := make([]gazetteerEntry, 0, len(neighborhoodGazetteer))
	for _, name := range neighborhoodGazetteer {
		entries = append(entries, gazetteerEntry{
			canonical: name,
			folded:    foldText(name),
		})
	}
	// Longest names first so "BOA VISTA DO SUL" wins over "BOA VISTA".
	sort.SliceStable(entries, func(i, j int) bool {
		return len(entries[i].folded) > len(entries[j].folded)
	})
	return &EntityExtractor{entries: entries}
}

func (e *EntityExtractor) Extract(text string) domain.Entities {
	folded := foldText(text)

	return domain.Entities{
		Neighborhoods: e.matchNeighborhoods(folded),
		ZoneCodes:     extractZoneCodes(text),
		Parameters:    matchParameters(folded),
	}
}

func (e *EntityExtractor) matchNeighborhoods(folded string) []string {
	var out []string
	consumed := make([]bool, len(folded))

	for _, entry := range e.entries {
		from := 0
		for {
			idx := strings.Index(folded[from:], entry.folded)
			if idx < 0 {
				break
			}
			start := from + idx
			end := start + len(entry.folded)
			from = end

			if !isWordBoundary(folded, start, end) || regionConsumed(consumed, start, end) {
				continue
			}
			for i := start; i < end; i++ {
				consumed[i] = true
			}
			out = appendUniqueString(out, entry.canonical)
		}
	}

	sortByPosition(out, folded, func(s string) string { return foldText(s) })
	return out
}

func extractZoneCodes(text string) []string {
	var out []string
	for _, m := range zoneCodePattern.FindAllStringSubmatch(text, -1) {
		number := m[1]
		if len(number) == 1 {
			number = "0" + number
		}
		code := "ZOT " + number + m[2]
		if m[4] != "" {
			code += "-" + strings.ToUpper(m[4])
		}
		out = appendUniqueString(out, code)
	}
	return out
}

func matchParameters(folded string) []string {
	tokens := toTokenSet(folded)
	var out []string
	for synonym, canonical := range parameterSynonyms {
		if strings.Contains(synonym, " ") {
			if strings.Contains(folded, synonym) {
				out = appendUniqueString(out, canonical)
			}
			continue
		}
		if _, ok := tokens[synonym]; ok {
			out = appendUniqueString(out, canonical)
		}
	}
	sort.Strings(out)
	return out
}

var accentStripper = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldText lower-cases and strips combining accents so "Petrópolis" and
// "PETROPOLIS" compare equal. NFKD also folds ordinal signs, so "4º" and
// "4o" compare equal too.
func foldText(s string) string {
	stripped, _, err := transform.String(accentStripper, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(strings.ToLower(stripped)), " ")
}

func isWordBoundary(s string, start, end int) bool {
	if start > 0 && isAlnumByte(s[start-1]) {
		return false
	}
	if end < len(s) && isAlnumByte(s[end]) {
		return false
	}
	return true
}

func isAlnumByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

func regionConsumed(consumed []bool, start, end int) bool {
	for i := start; i < end; i++ {
		if consumed[i] {
			return true
		}
	}
	return false
}

func appendUniqueString(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// sortByPosition orders matches by where they appear in the folded text so
// entity order follows reading order.
func sortByPosition(list []string, folded string, fold func(string) string) {
	sort.SliceStable(list, func(i, j int) bool {
		pi := strings.Index(folded, fold(list[i]))
		pj := strings.Index(folded, fold(list[j]))
		if pi != pj {
			return pi < pj
		}
		return list[i] < list[j]
	})
}
