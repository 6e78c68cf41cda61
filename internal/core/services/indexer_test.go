package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kgraph/internal/adapters/driven/storage/jsonl"
	vectormem "github.com/custodia-labs/kgraph/internal/adapters/driven/vector/memory"
	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
)

func newTestIndex(t *testing.T) *vectormem.Index {
	t.Helper()
	idx, err := vectormem.New(0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestIndexer_IndexDocuments(t *testing.T) {
	idx := newTestIndex(t)
	emb := &hashEmbedder{dims: 64}
	indexer := NewIndexer(idx, emb)
	docs := []domain.RAGDocument{
		passage(domain.SourceNews, "a", "quantum qubits"),
		passage(domain.SourceNews, "b", "classical bits"),
	}

	require.NoError(t, indexer.IndexDocuments(context.Background(), "batch-1", docs))
	assert.Equal(t, 2, idx.Count())
	assert.Equal(t, 1, emb.calls)

	// Already indexed passages are not embedded again.
	require.NoError(t, indexer.IndexDocuments(context.Background(), "batch-1", docs))
	assert.Equal(t, 1, emb.calls)

	hits, err := idx.Search(context.Background(), emb.vector("quantum"), 1, domain.VectorFilter{BatchUUID: "batch-1"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].Document.Metadata.UUID)
	assert.Equal(t, "batch-1", hits[0].BatchUUID)
}

func TestIndexer_IndexPassages_Batches(t *testing.T) {
	idx := newTestIndex(t)
	emb := &hashEmbedder{dims: 16}
	indexer := NewIndexer(idx, emb)

	passages := make([]driven.StoredPassage, embedBatchSize+5)
	for i := range passages {
		passages[i] = driven.StoredPassage{BatchUUID: "b", Document: passage(domain.SourceWebSearch, fmt.Sprintf("p%d", i), fmt.Sprintf("text %d", i))}
	}

	require.NoError(t, indexer.IndexPassages(context.Background(), passages))
	assert.Equal(t, len(passages), idx.Count())
	assert.Equal(t, 2, emb.calls)
}

func TestIndexer_EmbedFailure(t *testing.T) {
	idx := newTestIndex(t)
	indexer := NewIndexer(idx, &hashEmbedder{dims: 8, err: errors.New("down")})

	err := indexer.IndexDocuments(context.Background(), "b", []domain.RAGDocument{passage(domain.SourceNews, "a", "x")})

	assert.ErrorContains(t, err, "embed passages")
	assert.Zero(t, idx.Count())
}

func TestIndexer_Rebuild(t *testing.T) {
	store, err := jsonl.NewPassageStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "b1", []domain.RAGDocument{
		passage(domain.SourceNews, "n1", "news one"),
		passage(domain.SourceNews, "n2", "news two"),
	}))
	require.NoError(t, store.Save(ctx, "b2", []domain.RAGDocument{
		passage(domain.SourceYouTube, "y1", "video one"),
	}))

	idx := newTestIndex(t)
	indexer := NewIndexer(idx, &hashEmbedder{dims: 32})

	n, err := indexer.Rebuild(ctx, store)

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.True(t, idx.Has(ctx, "y1"))

	hits, err := idx.Search(ctx, (&hashEmbedder{dims: 32}).vector("video"), 5, domain.VectorFilter{BatchUUID: "b2"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "y1", hits[0].Document.Metadata.UUID)
}
