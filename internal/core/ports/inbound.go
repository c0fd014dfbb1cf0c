package ports

import (
	"context"

	"github.com/marcoavk/urban-plan-assistant/internal/core/domain"
)

// QueryAnswerer is the inbound contract for the question answering pipeline.
type QueryAnswerer interface {
	Answer(ctx context.Context, query domain.Query) (*domain.SynthesisResult, error)
}

// DatasetReader is the inbound read model for dataset metadata.
type DatasetReader interface {
	List(ctx context.Context) ([]domain.Dataset, error)
	GetByID(ctx context.Context, id string) (*domain.Dataset, error)
}
