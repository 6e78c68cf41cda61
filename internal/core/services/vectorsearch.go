package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
	"github.com/custodia-labs/kgraph/internal/core/ports/driving"
	"github.com/custodia-labs/kgraph/internal/logger"
)

// Ensure VectorSearchService implements the interface.
var _ driving.VectorSearchService = (*VectorSearchService)(nil)

// VectorSearchService answers semantic queries: filter, rank by cosine
// similarity, optionally rerank and weight, then cut.
type VectorSearchService struct {
	index    driven.VectorIndex
	embedder driven.EmbeddingService
	reranker driven.Reranker
	factor   int
	weights  map[domain.Source]float64
}

// NewVectorSearchService creates the service. The reranker is optional;
// without one, rerank requests keep similarity order.
func NewVectorSearchService(index driven.VectorIndex, embedder driven.EmbeddingService, reranker driven.Reranker, factor int) *VectorSearchService {
	if factor < 1 {
		factor = domain.DefaultRerankFactor
	}
	return &VectorSearchService{
		index:    index,
		embedder: embedder,
		reranker: reranker,
		factor:   factor,
		weights:  domain.DefaultSourceWeights(),
	}
}

type candidate struct {
	hit   driven.VectorHit
	score float64
}

// Search implements driving.VectorSearchService.
func (s *VectorSearchService) Search(ctx context.Context, q domain.VectorQuery) ([]domain.VectorResult, error) {
	q, err := q.Normalise()
	if err != nil {
		return nil, err
	}
	if s.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	if s.index == nil {
		return nil, domain.ErrVectorIndexUnavailable
	}

	vec, err := s.embedder.Embed(ctx, q.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rerank := q.Rerank && s.reranker != nil
	if q.Rerank && s.reranker == nil {
		logger.Warn("Rerank requested but no reranker is configured, keeping similarity order")
	}
	fetch := q.TopK
	if rerank {
		fetch = q.TopK * s.factor
	}

	hits, err := s.index.Search(ctx, vec, fetch, domain.VectorFilter{BatchUUID: q.BatchUUID, Sources: q.Sources})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	cands := make([]candidate, len(hits))
	for i, h := range hits {
		cands[i] = candidate{hit: h, score: h.Similarity}
	}
	if rerank && len(cands) > 0 {
		s.rerank(ctx, q.Query, cands)
	}
	if q.ApplySourceWeights {
		for i := range cands {
			if w, ok := s.weights[cands[i].hit.Document.Metadata.Source]; ok {
				cands[i].score *= w
			}
		}
	}

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })
	if len(cands) > q.TopK {
		cands = cands[:q.TopK]
	}

	results := make([]domain.VectorResult, 0, len(cands))
	for _, c := range cands {
		if q.Threshold != 0 && c.score < q.Threshold {
			continue
		}
		results = append(results, domain.VectorResult{
			Content:  c.hit.Document.Content,
			Metadata: c.hit.Document.Metadata,
			Score:    c.score,
		})
	}
	return results, nil
}

// rerank replaces similarity with the reranker's scores. On failure the
// similarity scores stand.
func (s *VectorSearchService) rerank(ctx context.Context, query string, cands []candidate) {
	passages := make([]string, len(cands))
	for i, c := range cands {
		passages[i] = c.hit.Document.Content
	}
	scores, err := s.reranker.Rerank(ctx, query, passages)
	if err == nil && len(scores) != len(cands) {
		err = fmt.Errorf("got %d scores for %d passages", len(scores), len(cands))
	}
	if err != nil {
		logger.Warn("Reranker %s failed, keeping similarity order: %v", s.reranker.Name(), err)
		return
	}
	for i := range cands {
		cands[i].score = scores[i]
	}
}
