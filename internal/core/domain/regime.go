package domain

import "time"

// Canonical column names as stored in the tabular datasets. The store has no
// schema-mapping layer, so lookups must reference these strings verbatim.
const (
	ColumnZone             = "Zona"
	ColumnNeighborhood     = "Bairro"
	ColumnMaxHeight        = "Altura Máxima - Edificação Isolada"
	ColumnBasicCoefficient = "Coeficiente de Aproveitamento - Básico"
	ColumnMaxCoefficient   = "Coeficiente de Aproveitamento - Máximo"
)

// Identifiers of the registered tabular datasets.
const (
	DatasetRegime        = "17_GMWnJC1sKff-YS0wesgxsvo3tnZdgSSb4JZ0ZjpCk"
	DatasetZonesByBairro = "1FTENHpX4aLxmAoxvrEeGQn0fej-wxTMQRQs_XBjPQPY"
)

// StructuredRow is one tabular-store row, tagged with the neighborhood and
// zone it was filtered on. Values keys are canonical column names.
type StructuredRow struct {
	Neighborhood string            `json:"neighborhood"`
	Zone         string            `json:"zone"`
	Values       map[string]string `json:"values"`
}

// Lookup is one generated read-only statement against the tabular store.
type Lookup struct {
	Name      string
	DatasetID string
	SQL       string
	Args      []any
	Aggregate bool
}

// LookupError tags a failed lookup without discarding its siblings.
type LookupError struct {
	Lookup string
	Err    error
}

func (e LookupError) Error() string {
	return "lookup " + e.Lookup + ": " + e.Err.Error()
}

func (e LookupError) Unwrap() error { return e.Err }

// StructuredResult aggregates all lookup outcomes for one query. Partial
// failure is the normal degraded case: Rows and Aggregates hold whatever
// succeeded, Errors holds the rest.
type StructuredResult struct {
	Rows       []StructuredRow    `json:"rows"`
	Aggregates map[string]float64 `json:"aggregates,omitempty"`
	Errors     []LookupError      `json:"-"`
}

func (r StructuredResult) HasRows() bool { return len(r.Rows) > 0 }

// BaseZoneGroups maps each base zone code to its subdivision rows present in
// the result, so subdivisions of one zone can be presented together.
func (r StructuredResult) BaseZoneGroups() map[string][]string {
	groups := make(map[string][]string)
	for _, row := range r.Rows {
		base := BaseZone(row.Zone)
		if base == "" {
			continue
		}
		groups[base] = appendUnique(groups[base], row.Zone)
	}
	return groups
}

// BaseZone strips the subdivision suffix: "ZOT 08.3-A" -> "ZOT 08.3".
func BaseZone(zone string) string {
	for i := 0; i < len(zone); i++ {
		if zone[i] == '-' {
			return zone[:i]
		}
	}
	return zone
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

type Sources struct {
	Tabular    int `json:"tabular"`
	Conceptual int `json:"conceptual"`
}

// SynthesisResult is the pipeline's final output. Created once per query and
// never mutated after return.
type SynthesisResult struct {
	Answer           string    `json:"response"`
	Confidence       float64   `json:"confidence"`
	Sources          Sources   `json:"sources"`
	QueryType        QueryType `json:"query_type"`
	AppliedThreshold float64   `json:"applied_threshold"`
}

// Dataset describes one registered tabular dataset.
type Dataset struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	RowCount int       `json:"row_count"`
	LoadedAt time.Time `json:"loaded_at"`
}

// QueryCompletedEvent is published after each answered query for external
// consumers (benchmark harness, dashboard).
type QueryCompletedEvent struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	QueryType  QueryType `json:"query_type"`
	Strategy   Strategy  `json:"strategy"`
	Confidence float64   `json:"confidence"`
	Sources    Sources   `json:"sources"`
	CacheHit   bool      `json:"cache_hit"`
	DurationMS float64   `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
