// Package embedding provides a reranker that scores passages by cosine
// similarity of freshly computed embeddings. It is the fallback when no
// cross-encoder endpoint is configured.
package embedding

import (
	"context"
	"fmt"

	"github.com/custodia-labs/kgraph/internal/adapters/driven/vector/memory"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
)

// Ensure Reranker implements the interface.
var _ driven.Reranker = (*Reranker)(nil)

// Reranker embeds the query and passages in one batch.
type Reranker struct {
	embedder driven.EmbeddingService
}

// NewReranker wraps an embedding service.
func NewReranker(embedder driven.EmbeddingService) *Reranker {
	return &Reranker{embedder: embedder}
}

// Name identifies the model.
func (r *Reranker) Name() string {
	return "embedding:" + r.embedder.ModelName()
}

// Rerank implements driven.Reranker.
func (r *Reranker) Rerank(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}
	texts := make([]string, 0, len(passages)+1)
	texts = append(texts, query)
	texts = append(texts, passages...)

	vecs, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("rerank embeddings: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("rerank embeddings: got %d vectors for %d texts", len(vecs), len(texts))
	}

	scores := make([]float64, len(passages))
	for i := range passages {
		scores[i] = memory.Cosine(vecs[0], vecs[i+1])
	}
	return scores, nil
}
