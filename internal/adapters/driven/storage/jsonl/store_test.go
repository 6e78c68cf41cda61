package jsonl

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
)

func setupPassageStore(t *testing.T) *PassageStore {
	t.Helper()
	store, err := NewPassageStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func testDoc(id string, src domain.Source, chunkType domain.ChunkType, index, total int) domain.RAGDocument {
	return domain.RAGDocument{
		Content: "content of " + id,
		Metadata: domain.Metadata{
			UUID:           id,
			Source:         src,
			Title:          "Title " + string(src),
			URL:            "https://example.com/" + id,
			SourceDatabase: src.Database(),
			ChunkType:      chunkType,
			ChunkIndex:     index,
			TotalChunks:    total,
			IsFirstChunk:   index == 0,
			IsLastChunk:    index == total-1,
			TokenCount:     3,
		},
	}
}

func TestPassageStore_SaveWritesParallelStreams(t *testing.T) {
	store := setupPassageStore(t)
	ctx := context.Background()
	doc := testDoc("p1", domain.SourceWebSearch, domain.ChunkTypeSummary, 0, 1)
	doc.Metadata.Payload = domain.WebPayload{Snippet: "snip"}

	require.NoError(t, store.Save(ctx, "batch-1", []domain.RAGDocument{doc}))

	docPath := filepath.Join(store.Root(), "web_search", "batch-1", "p1.jsonl")
	data, err := os.ReadFile(docPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":"content of p1","metadata":{"uuid":"p1","source":"web_search"}}`, string(data))

	metaPath := filepath.Join(filepath.Dir(store.Root()), "metadata", "web_search", "batch-1", "p1.jsonl")
	data, err = os.ReadFile(metaPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"snippet":"snip"`)
	assert.Contains(t, string(data), `"source_database":"google_custom_search"`)
}

func TestPassageStore_ListBatch(t *testing.T) {
	store := setupPassageStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "b1", []domain.RAGDocument{
		testDoc("n1", domain.SourceNews, domain.ChunkTypeContent, 0, 1),
		testDoc("w2", domain.SourceWebSearch, domain.ChunkTypeContent, 0, 1),
		testDoc("w1", domain.SourceWebSearch, domain.ChunkTypeSummary, 0, 1),
	}))
	require.NoError(t, store.Save(ctx, "b2", []domain.RAGDocument{
		testDoc("x1", domain.SourceWebSearch, domain.ChunkTypeSummary, 0, 1),
	}))

	t.Run("all sources in canonical order", func(t *testing.T) {
		got, err := store.ListBatch(ctx, "b1", nil)
		require.NoError(t, err)
		ids := make([]string, len(got))
		for i, p := range got {
			ids[i] = p.Document.Metadata.UUID
			assert.Equal(t, "b1", p.BatchUUID)
		}
		assert.Equal(t, []string{"w1", "w2", "n1"}, ids)
	})

	t.Run("restricted to sources", func(t *testing.T) {
		got, err := store.ListBatch(ctx, "b1", []domain.Source{domain.SourceNews})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "n1", got[0].Document.Metadata.UUID)
	})

	t.Run("metadata is joined", func(t *testing.T) {
		got, err := store.ListBatch(ctx, "b2", nil)
		require.NoError(t, err)
		require.Len(t, got, 1)
		want := testDoc("x1", domain.SourceWebSearch, domain.ChunkTypeSummary, 0, 1)
		if diff := cmp.Diff(want, got[0].Document); diff != "" {
			t.Errorf("document mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("unknown batch is empty", func(t *testing.T) {
		got, err := store.ListBatch(ctx, "missing", nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("path traversal rejected", func(t *testing.T) {
		_, err := store.ListBatch(ctx, "../b1", nil)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestPassageStore_SaveRejectsInvalid(t *testing.T) {
	store := setupPassageStore(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*domain.Metadata)
	}{
		{"missing uuid", func(m *domain.Metadata) { m.UUID = "" }},
		{"path in uuid", func(m *domain.Metadata) { m.UUID = "../p1" }},
		{"unknown source", func(m *domain.Metadata) { m.Source = "forum" }},
		{"unknown chunk type", func(m *domain.Metadata) { m.ChunkType = "bogus" }},
		{"first flag contradicts index", func(m *domain.Metadata) { m.ChunkIndex, m.TotalChunks = 1, 2 }},
		{"payload of another source", func(m *domain.Metadata) { m.Payload = domain.WebPayload{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := testDoc("p1", domain.SourceNews, domain.ChunkTypeContent, 0, 1)
			tt.mutate(&doc.Metadata)

			err := store.Save(ctx, "b", []domain.RAGDocument{doc})

			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			_, statErr := os.Stat(filepath.Join(filepath.Dir(store.Root()), "metadata", "news", "b"))
			assert.True(t, os.IsNotExist(statErr), "nothing written")
		})
	}

	err := store.Save(ctx, "", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPassageStore_ConcurrentWriters(t *testing.T) {
	store := setupPassageStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			src := domain.AllSources()[i%4]
			id := string(rune('a'+i)) + "-id"
			assert.NoError(t, store.Save(ctx, "shared", []domain.RAGDocument{testDoc(id, src, domain.ChunkTypeContent, 0, 1)}))
		}(i)
	}
	wg.Wait()

	got, err := store.ListBatch(ctx, "shared", nil)
	require.NoError(t, err)
	assert.Len(t, got, 20)
}

func TestPassageStore_WalkAndParsePath(t *testing.T) {
	store := setupPassageStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "b1", []domain.RAGDocument{testDoc("a", domain.SourceYouTube, domain.ChunkTypeTranscript, 0, 1)}))
	require.NoError(t, store.Save(ctx, "b2", []domain.RAGDocument{testDoc("b", domain.SourceNews, domain.ChunkTypeSummary, 0, 1)}))

	var seen []driven.StoredPassage
	require.NoError(t, store.Walk(ctx, func(p driven.StoredPassage) error {
		seen = append(seen, p)
		return nil
	}))
	assert.Len(t, seen, 2)

	src, batch, id, ok := store.ParsePath(filepath.Join(store.Root(), "youtube", "b1", "a.jsonl"))
	require.True(t, ok)
	assert.Equal(t, domain.SourceYouTube, src)
	assert.Equal(t, "b1", batch)
	assert.Equal(t, "a", id)

	_, _, _, ok = store.ParsePath(filepath.Join(store.Root(), "unknown", "b1", "a.jsonl"))
	assert.False(t, ok)
	_, _, _, ok = store.ParsePath(filepath.Join(store.Root(), "youtube", "b1", "a.txt"))
	assert.False(t, ok)
}

func TestGraphStore(t *testing.T) {
	store, err := NewGraphStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("missing artifacts", func(t *testing.T) {
		_, err := store.LoadArticles(ctx, "g1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = store.LoadGraph(ctx, "g1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("articles round trip", func(t *testing.T) {
		set := domain.ArticleSet{
			Name: "Graph",
			Articles: map[string]domain.ArticleRecord{
				"A": {Article: domain.Article{Title: "A", Content: "see [[B]]"}, Chunks: []domain.ChunkRef{{ChunkID: 1, Content: "c"}}},
			},
		}
		require.NoError(t, store.SaveArticles(ctx, "g1", set))
		got, err := store.LoadArticles(ctx, "g1")
		require.NoError(t, err)
		if diff := cmp.Diff(set, got); diff != "" {
			t.Errorf("articles mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("graph round trip", func(t *testing.T) {
		g := domain.KnowledgeGraph{
			Name:  "Graph",
			Nodes: []domain.Node{{ID: "A", Title: "A", Content: "x", ChunkRefs: []domain.ChunkRef{}}},
			Links: []domain.Link{},
		}
		require.NoError(t, store.SaveGraph(ctx, "g1", g))
		got, err := store.LoadGraph(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, g, got)
	})

	t.Run("invalid id", func(t *testing.T) {
		err := store.SaveGraph(ctx, "a/b", domain.KnowledgeGraph{})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}
