package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/marcoavk/urban-plan-assistant/internal/core/domain"
)

func newDatasetRepoWithMock(t *testing.T) (*DatasetRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &DatasetRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newDatasetRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, title, row_count, loaded_at").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertWritesMetadata(t *testing.T) {
	repo, mock, done := newDatasetRepoWithMock(t)
	defer done()

	loadedAt := time.Now().UTC()
	mock.ExpectExec("INSERT INTO datasets").
		WithArgs(domain.DatasetRegime, "Regime Urbanístico", 387, loadedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), domain.Dataset{
		ID:       domain.DatasetRegime,
		Title:    "Regime Urbanístico",
		RowCount: 387,
		LoadedAt: loadedAt,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReplaceRowsSwapsInsideOneTransaction(t *testing.T) {
	repo, mock, done := newDatasetRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM document_rows").
		WithArgs(domain.DatasetRegime).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectPrepare("INSERT INTO document_rows")
	mock.ExpectExec("INSERT INTO document_rows").
		WithArgs(domain.DatasetRegime, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO document_rows").
		WithArgs(domain.DatasetRegime, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	err := repo.ReplaceRows(context.Background(), domain.DatasetRegime, []map[string]string{
		{"Bairro": "PETRÓPOLIS", "Zona": "ZOT 07"},
		{"Bairro": "TRISTEZA", "Zona": "ZOT 05"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReplaceRowsRollsBackOnInsertFailure(t *testing.T) {
	repo, mock, done := newDatasetRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM document_rows").
		WithArgs(domain.DatasetRegime).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectPrepare("INSERT INTO document_rows")
	mock.ExpectExec("INSERT INTO document_rows").
		WithArgs(domain.DatasetRegime, sqlmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.ReplaceRows(context.Background(), domain.DatasetRegime, []map[string]string{
		{"Bairro": "PETRÓPOLIS"},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
