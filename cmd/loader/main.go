package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marcoavk/urban-plan-assistant/internal/config"
	"github.com/marcoavk/urban-plan-assistant/internal/core/domain"
	"github.com/marcoavk/urban-plan-assistant/internal/infrastructure/dataset/xlsx"
	"github.com/marcoavk/urban-plan-assistant/internal/infrastructure/repository/postgres"
)

func main() {
	regimePath := flag.String("regime", "data/regime_urbanistico.xlsx", "regime urbanístico spreadsheet")
	zonesPath := flag.String("zones", "data/zots_por_bairro.xlsx", "ZOTs por bairro spreadsheet")
	flag.Parse()

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	defer db.Close()

	if err := postgres.NewRegimeRepository(db).EnsureSchema(ctx); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}
	datasets := postgres.NewDatasetRepository(db)

	loads := []struct {
		id    string
		title string
		path  string
	}{
		{domain.DatasetRegime, "Regime Urbanístico por Zona", *regimePath},
		{domain.DatasetZonesByBairro, "ZOTs por Bairro", *zonesPath},
	}

	for _, l := range loads {
		n, err := loadDataset(ctx, datasets, l.id, l.title, l.path)
		if err != nil {
			log.Fatalf("load %s: %v", l.title, err)
		}
		log.Printf("loaded %s: %d rows", l.title, n)
	}
}

func loadDataset(ctx context.Context, datasets *postgres.DatasetRepository, id, title, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	rows, err := xlsx.Read(f)
	if err != nil {
		return 0, fmt.Errorf("read spreadsheet: %w", err)
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("spreadsheet has no data rows")
	}

	// The registry row is written first: document_rows references it.
	err = datasets.Upsert(ctx, domain.Dataset{
		ID:       id,
		Title:    title,
		RowCount: len(rows),
		LoadedAt: time.Now().UTC(),
	})
	if err != nil {
		return 0, fmt.Errorf("register dataset: %w", err)
	}
	if err := datasets.ReplaceRows(ctx, id, rows); err != nil {
		return 0, fmt.Errorf("replace rows: %w", err)
	}
	return len(rows), nil
}
