package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
	"github.com/custodia-labs/kgraph/internal/logger"
)

// embedBatchSize bounds the texts sent per embedding request.
const embedBatchSize = 32

// Indexer embeds passages and adds them to the vector index. It is shared
// by the retrieval service, the file watcher and the startup rebuild.
type Indexer struct {
	index    driven.VectorIndex
	embedder driven.EmbeddingService
}

// NewIndexer creates an indexer. Both collaborators are required.
func NewIndexer(index driven.VectorIndex, embedder driven.EmbeddingService) *Indexer {
	return &Indexer{index: index, embedder: embedder}
}

// IndexDocuments indexes freshly stored passages of one batch.
func (i *Indexer) IndexDocuments(ctx context.Context, batch string, docs []domain.RAGDocument) error {
	passages := make([]driven.StoredPassage, len(docs))
	for n, d := range docs {
		passages[n] = driven.StoredPassage{BatchUUID: batch, Document: d}
	}
	return i.IndexPassages(ctx, passages)
}

// IndexPassages embeds and adds the passages not yet in the index.
func (i *Indexer) IndexPassages(ctx context.Context, passages []driven.StoredPassage) error {
	var todo []driven.StoredPassage
	for _, p := range passages {
		if !i.index.Has(ctx, p.Document.Metadata.UUID) {
			todo = append(todo, p)
		}
	}

	for start := 0; start < len(todo); start += embedBatchSize {
		batch := todo[start:min(start+embedBatchSize, len(todo))]
		texts := make([]string, len(batch))
		for n, p := range batch {
			texts[n] = p.Document.Content
		}
		vecs, err := i.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed passages: %w", err)
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("embed passages: got %d vectors for %d texts", len(vecs), len(batch))
		}
		entries := make([]driven.VectorEntry, len(batch))
		for n, p := range batch {
			entries[n] = driven.VectorEntry{BatchUUID: p.BatchUUID, Document: p.Document, Embedding: vecs[n]}
		}
		if err := i.index.Add(ctx, entries...); err != nil {
			return fmt.Errorf("index passages: %w", err)
		}
	}
	return nil
}

// Rebuild walks the passage store and indexes everything missing. It
// returns the index size afterwards.
func (i *Indexer) Rebuild(ctx context.Context, store driven.PassageStore) (int, error) {
	var pending []driven.StoredPassage
	flush := func() error {
		err := i.IndexPassages(ctx, pending)
		pending = pending[:0]
		return err
	}
	err := store.Walk(ctx, func(p driven.StoredPassage) error {
		pending = append(pending, p)
		if len(pending) >= embedBatchSize*4 {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		return i.index.Count(), fmt.Errorf("rebuild vector index: %w", err)
	}
	logger.Info("Vector index holds %d passages", i.index.Count())
	return i.index.Count(), nil
}
