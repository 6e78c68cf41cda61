package driving

import (
	"context"

	"github.com/custodia-labs/kgraph/internal/core/domain"
)

// RetrievalService fans a query out to every requested source, chunks and
// persists the results under one batch.
type RetrievalService interface {
	// SearchAll runs search-all. Missing batch ids are generated. A failing
	// source yields an empty list for that source, never an error.
	SearchAll(ctx context.Context, req domain.SearchAllRequest) (domain.SearchAllResult, error)

	// Sources returns the sources with a configured adapter.
	Sources() []domain.Source
}

// VectorSearchService answers semantic queries over stored passages.
type VectorSearchService interface {
	// Search returns ranked passages matching the query and filter.
	Search(ctx context.Context, q domain.VectorQuery) ([]domain.VectorResult, error)
}
