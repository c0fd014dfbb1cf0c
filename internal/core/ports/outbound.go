package ports

import (
	"context"
	"time"

	"github.com/marcoavk/urban-plan-assistant/internal/core/domain"
)

// Embedder builds a vector for query text.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher retrieves candidate passages from the document corpus.
// The raw query text travels alongside the vector so hybrid backends can
// run a lexical leg too.
type VectorSearcher interface {
	Search(ctx context.Context, queryText string, queryVector []float32, limit int) ([]domain.RawMatch, error)
}

// TabularStore executes generated read-only lookups against the dataset rows.
type TabularStore interface {
	Query(ctx context.Context, lookup domain.Lookup) ([]domain.StructuredRow, error)
	QueryAggregate(ctx context.Context, lookup domain.Lookup) (float64, error)
}

// DatasetStore persists dataset metadata and replaces dataset rows on load.
type DatasetStore interface {
	Upsert(ctx context.Context, dataset domain.Dataset) error
	GetByID(ctx context.Context, id string) (*domain.Dataset, error)
	List(ctx context.Context) ([]domain.Dataset, error)
	ReplaceRows(ctx context.Context, datasetID string, rows []map[string]string) error
}

// AnswerCache stores synthesized answers under an explicit key with a TTL.
type AnswerCache interface {
	Get(ctx context.Context, key string) (*domain.SynthesisResult, bool, error)
	Set(ctx context.Context, key string, result domain.SynthesisResult, ttl time.Duration) error
}

// EventPublisher emits query-completed events for external consumers.
type EventPublisher interface {
	PublishQueryCompleted(ctx context.Context, event domain.QueryCompletedEvent) error
}
