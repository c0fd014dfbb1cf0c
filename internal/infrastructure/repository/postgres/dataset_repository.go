package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/marcoavk/urban-plan-assistant/internal/core/domain"
)

type DatasetRepository struct {
	db *sql.DB
}

func NewDatasetRepository(db *sql.DB) *DatasetRepository {
	return &DatasetRepository{db: db}
}

func (r *DatasetRepository) Upsert(ctx context.Context, dataset domain.Dataset) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO datasets (id, title, row_count, loaded_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (id) DO UPDATE
SET title = EXCLUDED.title, row_count = EXCLUDED.row_count, loaded_at = EXCLUDED.loaded_at
`, dataset.ID, dataset.Title, dataset.RowCount, dataset.LoadedAt)
	if err != nil {
		return fmt.Errorf("upsert dataset: %w", err)
	}
	return nil
}

func (r *DatasetRepository) GetByID(ctx context.Context, id string) (*domain.Dataset, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, title, row_count, loaded_at
FROM datasets
WHERE id = $1
`, id)

	var dataset domain.Dataset
	err := row.Scan(&dataset.ID, &dataset.Title, &dataset.RowCount, &dataset.LoadedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get dataset", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan dataset: %w", err)
	}
	return &dataset, nil
}

func (r *DatasetRepository) List(ctx context.Context) ([]domain.Dataset, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, title, row_count, loaded_at
FROM datasets
ORDER BY title
`)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Dataset, 0)
	for rows.Next() {
		var dataset domain.Dataset
		if err := rows.Scan(&dataset.ID, &dataset.Title, &dataset.RowCount, &dataset.LoadedAt); err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		out = append(out, dataset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate datasets: %w", err)
	}
	return out, nil
}

// ReplaceRows swaps a dataset's rows atomically so readers never observe a
// half-loaded dataset.
func (r *DatasetRepository) ReplaceRows(ctx context.Context, datasetID string, rows []map[string]string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_rows WHERE dataset_id = $1`, datasetID); err != nil {
		return fmt.Errorf("clear dataset rows: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO document_rows (dataset_id, row_data) VALUES ($1, $2)`)
	if err != nil {
		return fmt.Errorf("prepare row insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		raw, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("marshal row %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, datasetID, raw); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace tx: %w", err)
	}
	return nil
}
