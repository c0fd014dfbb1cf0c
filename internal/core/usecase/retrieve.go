package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/marcoavk/urban-plan-assistant/internal/core/domain"
	"github.com/marcoavk/urban-plan-assistant/internal/core/ports"
)

const (
	defaultLookupConcurrency = 4
	defaultLookupTimeout     = 5 * time.Second
)

// StructuredRetriever plans parameterized lookups from extracted entities,
// runs them against the tabular store under a concurrency cap, and returns
// whatever succeeded; each failed lookup is tagged, not fatal.
type StructuredRetriever struct {
	store         ports.TabularStore
	logger        *slog.Logger
	concurrency   int
	lookupTimeout time.Duration
}

func NewStructuredRetriever(store ports.TabularStore, logger *slog.Logger, concurrency int, lookupTimeout time.Duration) *StructuredRetriever {
	if concurrency <= 0 {
		concurrency = defaultLookupConcurrency
	}
	if lookupTimeout <= 0 {
		lookupTimeout = defaultLookupTimeout
	}
	return &StructuredRetriever{
		store:         store,
		logger:        logger,
		concurrency:   concurrency,
		lookupTimeout: lookupTimeout,
	}
}

func (r *StructuredRetriever) Retrieve(ctx context.Context, entities domain.Entities, queryType domain.QueryType) domain.StructuredResult {
	plan := planLookups(entities, queryType)
	result := domain.StructuredResult{}
	if len(plan) == 0 {
		return result
	}

	type lookupOutcome struct {
		lookup    domain.Lookup
		rows      []domain.StructuredRow
		aggregate float64
		err       error
	}

	outcomes := make(chan lookupOutcome, len(plan))
	semaphore := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup

	for _, lookup := range plan {
		if ctx.Err() != nil {
			break
		}
		if err := validateReadOnly(lookup.SQL); err != nil {
			r.logger.Warn("lookup_rejected", "lookup", lookup.Name, "error", err)
			result.Errors = append(result.Errors, domain.LookupError{Lookup: lookup.Name, Err: err})
			continue
		}

		wg.Add(1)
		go func(lookup domain.Lookup) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			lookupCtx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
			defer cancel()

			outcome := lookupOutcome{lookup: lookup}
			if lookup.Aggregate {
				outcome.aggregate, outcome.err = r.store.QueryAggregate(lookupCtx, lookup)
			} else {
				outcome.rows, outcome.err = r.store.Query(lookupCtx, lookup)
			}
			outcomes <- outcome
		}(lookup)
	}

	wg.Wait()
	close(outcomes)

	for outcome := range outcomes {
		if outcome.err != nil {
			r.logger.Warn("lookup_failed", "lookup", outcome.lookup.Name, "error", outcome.err)
			result.Errors = append(result.Errors, domain.LookupError{
				Lookup: outcome.lookup.Name,
				Err:    domain.WrapError(domain.ErrPartialRetrieval, outcome.lookup.Name, outcome.err),
			})
			continue
		}
		if outcome.lookup.Aggregate {
			if result.Aggregates == nil {
				result.Aggregates = make(map[string]float64)
			}
			result.Aggregates[outcome.lookup.Name] = outcome.aggregate
			continue
		}
		result.Rows = append(result.Rows, filterExactMatches(outcome.rows, outcome.lookup)...)
	}

	sortRows(result.Rows)
	return result
}

// planLookups builds the detail lookups for each extracted neighborhood and
// zone, plus a companion aggregate per lookup so the synthesizer can show a
// summary number alongside the detail rows.
func planLookups(entities domain.Entities, queryType domain.QueryType) []domain.Lookup {
	var plan []domain.Lookup

	for _, neighborhood := range entities.Neighborhoods {
		plan = append(plan,
			domain.Lookup{
				Name:      "regime_by_bairro:" + neighborhood,
				DatasetID: domain.DatasetRegime,
				SQL: fmt.Sprintf(
					`SELECT row_data FROM document_rows WHERE dataset_id = $1 AND row_data->>'%s' = $2`,
					domain.ColumnNeighborhood,
				),
				Args: []any{domain.DatasetRegime, neighborhood},
			},
			domain.Lookup{
				Name:      "zone_count_by_bairro:" + neighborhood,
				DatasetID: domain.DatasetZonesByBairro,
				SQL: fmt.Sprintf(
					`SELECT COUNT(DISTINCT row_data->>'%s') FROM document_rows WHERE dataset_id = $1 AND row_data->>'%s' = $2`,
					domain.ColumnZone, domain.ColumnNeighborhood,
				),
				Args:      []any{domain.DatasetZonesByBairro, neighborhood},
				Aggregate: true,
			},
		)
	}

	for _, zone := range entities.ZoneCodes {
		base := domain.BaseZone(zone)
		plan = append(plan,
			domain.Lookup{
				// Base zone filter pulls every subdivision, not the first hit.
				Name:      "regime_by_zone:" + base,
				DatasetID: domain.DatasetRegime,
				SQL: fmt.Sprintf(
					`SELECT row_data FROM document_rows WHERE dataset_id = $1 AND (row_data->>'%s' = $2 OR row_data->>'%s' LIKE $3)`,
					domain.ColumnZone, domain.ColumnZone,
				),
				Args: []any{domain.DatasetRegime, base, base + "-%"},
			},
			domain.Lookup{
				Name:      "bairro_count_by_zone:" + base,
				DatasetID: domain.DatasetZonesByBairro,
				SQL: fmt.Sprintf(
					`SELECT COUNT(DISTINCT row_data->>'%s') FROM document_rows WHERE dataset_id = $1 AND (row_data->>'%s' = $2 OR row_data->>'%s' LIKE $3)`,
					domain.ColumnNeighborhood, domain.ColumnZone, domain.ColumnZone,
				),
				Args:      []any{domain.DatasetZonesByBairro, base, base + "-%"},
				Aggregate: true,
			},
		)
	}

	if queryType == domain.QueryGeneric && len(plan) == 0 {
		return nil
	}
	return plan
}

var forbiddenLookupKeywords = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|truncate|grant|revoke|copy|into)\b`)

// validateReadOnly rejects any generated statement that is not a single pure
// SELECT. Entity text flows into lookup arguments, never into the statement,
// but the guard holds regardless of who built the lookup.
func validateReadOnly(sql string) error {
	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sql), ";"))
	if trimmed == "" {
		return domain.WrapError(domain.ErrUnsafeLookup, "validate lookup", errors.New("empty statement"))
	}
	if strings.ContainsRune(trimmed, ';') {
		return domain.WrapError(domain.ErrUnsafeLookup, "validate lookup", errors.New("multiple statements"))
	}
	if !strings.HasPrefix(strings.ToLower(trimmed), "select") {
		return domain.WrapError(domain.ErrUnsafeLookup, "validate lookup", errors.New("not a select statement"))
	}
	if m := forbiddenLookupKeywords.FindString(trimmed); m != "" {
		return domain.WrapError(domain.ErrUnsafeLookup, "validate lookup", fmt.Errorf("forbidden keyword %q", strings.ToLower(m)))
	}
	return nil
}

// filterExactMatches drops rows whose neighborhood tag differs from the
// requested canonical value. A "BOA VISTA" lookup must never surface
// "BOA VISTA DO SUL" rows.
func filterExactMatches(rows []domain.StructuredRow, lookup domain.Lookup) []domain.StructuredRow {
	requested := requestedNeighborhood(lookup)
	if requested == "" {
		return rows
	}
	out := rows[:0]
	for _, row := range rows {
		if row.Neighborhood == requested {
			out = append(out, row)
		}
	}
	return out
}

func requestedNeighborhood(lookup domain.Lookup) string {
	if !strings.HasPrefix(lookup.Name, "regime_by_bairro:") {
		return ""
	}
	if len(lookup.Args) < 2 {
		return ""
	}
	neighborhood, _ := lookup.Args[1].(string)
	return neighborhood
}

// Deterministic presentation order: neighborhood, then zone code.
func sortRows(rows []domain.StructuredRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Neighborhood != rows[j].Neighborhood {
			return rows[i].Neighborhood < rows[j].Neighborhood
		}
		return rows[i].Zone < rows[j].Zone
	})
}
