package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/marcoavk/urban-plan-assistant/internal/core/domain"
)

// RegimeRepository runs generated read-only lookups against the dataset rows.
// Row values live in a JSONB column keyed by the spreadsheet headers, so new
// dataset columns need no migration.
type RegimeRepository struct {
	db *sql.DB
}

func NewRegimeRepository(db *sql.DB) *RegimeRepository {
	return &RegimeRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *RegimeRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/loader startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026021001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS datasets (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	row_count INTEGER NOT NULL DEFAULT 0,
	loaded_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS document_rows (
	id BIGSERIAL PRIMARY KEY,
	dataset_id TEXT NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
	row_data JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_document_rows_dataset ON document_rows(dataset_id);
CREATE INDEX IF NOT EXISTS idx_document_rows_bairro ON document_rows(dataset_id, (row_data->>'Bairro'));
CREATE INDEX IF NOT EXISTS idx_document_rows_zona ON document_rows(dataset_id, (row_data->>'Zona'));
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *RegimeRepository) Query(ctx context.Context, lookup domain.Lookup) ([]domain.StructuredRow, error) {
	rows, err := r.db.QueryContext(ctx, lookup.SQL, lookup.Args...)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalFailed, "query "+lookup.Name, err)
	}
	defer rows.Close()

	out := make([]domain.StructuredRow, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, domain.WrapError(domain.ErrRetrievalFailed, "scan "+lookup.Name, err)
		}
		row, err := structuredRowFromJSON(raw)
		if err != nil {
			return nil, domain.WrapError(domain.ErrRetrievalFailed, "decode "+lookup.Name, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalFailed, "iterate "+lookup.Name, err)
	}
	return out, nil
}

func (r *RegimeRepository) QueryAggregate(ctx context.Context, lookup domain.Lookup) (float64, error) {
	var value sql.NullFloat64
	err := r.db.QueryRowContext(ctx, lookup.SQL, lookup.Args...).Scan(&value)
	if err != nil {
		return 0, domain.WrapError(domain.ErrRetrievalFailed, "aggregate "+lookup.Name, err)
	}
	return value.Float64, nil
}

// structuredRowFromJSON flattens one JSONB row into string cells and tags the
// canonical neighborhood and zone columns for downstream filtering.
func structuredRowFromJSON(raw []byte) (domain.StructuredRow, error) {
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return domain.StructuredRow{}, fmt.Errorf("unmarshal row_data: %w", err)
	}

	values := make(map[string]string, len(decoded))
	for key, value := range decoded {
		values[key] = stringifyCell(value)
	}
	return domain.StructuredRow{
		Neighborhood: values[domain.ColumnNeighborhood],
		Zone:         values[domain.ColumnZone],
		Values:       values,
	}, nil
}

func stringifyCell(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(raw)
	}
}
