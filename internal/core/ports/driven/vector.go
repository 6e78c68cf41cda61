package driven

import (
	"context"

	"github.com/custodia-labs/kgraph/internal/core/domain"
)

// VectorEntry is one passage as held by the index.
type VectorEntry struct {
	// BatchUUID is the partition the passage was stored under.
	BatchUUID string

	// Document is the passage and its metadata.
	Document domain.RAGDocument

	// Embedding is the passage vector.
	Embedding []float32
}

// VectorIndex provides filtered semantic similarity search.
// The filter is applied before ranking.
type VectorIndex interface {
	// Add inserts or replaces entries keyed by metadata uuid.
	Add(ctx context.Context, entries ...VectorEntry) error

	// Has reports whether a passage uuid is indexed.
	Has(ctx context.Context, uuid string) bool

	// Delete removes a passage from the index.
	Delete(ctx context.Context, uuid string) error

	// Search returns up to k entries passing filter, ordered by descending
	// cosine similarity. Ties keep insertion order.
	Search(ctx context.Context, query []float32, k int, filter domain.VectorFilter) ([]VectorHit, error)

	// Count returns the number of indexed passages.
	Count() int

	// Close releases resources.
	Close() error
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// Document is the matched passage.
	Document domain.RAGDocument

	// BatchUUID is the matched passage's batch.
	BatchUUID string

	// Similarity is the cosine similarity score.
	Similarity float64
}

// Reranker scores (query, passage) pairs with a pairwise relevance model.
type Reranker interface {
	// Rerank returns one score per passage, index-aligned with passages.
	Rerank(ctx context.Context, query string, passages []string) ([]float64, error)

	// Name identifies the model for logging.
	Name() string
}
