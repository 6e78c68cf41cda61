package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kgraph/internal/adapters/driven/storage/jsonl"
	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
	"github.com/custodia-labs/kgraph/internal/postprocessors"
	"github.com/custodia-labs/kgraph/internal/tokenizer"
)

func newTestChunker() *postprocessors.Pipeline {
	reg := postprocessors.NewRegistry()
	postprocessors.RegisterDefaults(reg)
	return postprocessors.NewPipeline(reg, tokenizer.NewWords())
}

type retrievalFixture struct {
	svc     *RetrievalService
	store   *jsonl.PassageStore
	indexer *Indexer
	metrics *recordingMetrics
}

func newRetrievalFixture(t *testing.T, adapters ...driven.SourceAdapter) retrievalFixture {
	t.Helper()
	store, err := jsonl.NewPassageStore(t.TempDir())
	require.NoError(t, err)
	indexer := NewIndexer(newTestIndex(t), &hashEmbedder{dims: 64})
	metrics := &recordingMetrics{}
	return retrievalFixture{
		svc:     NewRetrievalService(adapters, newTestChunker(), store, indexer, metrics),
		store:   store,
		indexer: indexer,
		metrics: metrics,
	}
}

func webSource() *fakeSource {
	return &fakeSource{
		src: domain.SourceWebSearch,
		items: []domain.RawItem{
			{ID: "1", Source: domain.SourceWebSearch, Title: "Intro to {q}", URL: "https://a.example/1", Summary: "A gentle intro.", Payload: domain.WebPayload{Snippet: "A gentle intro."}},
			{ID: "2", Source: domain.SourceWebSearch, Title: "Deep dive", URL: "https://a.example/2", Summary: "Details.", Payload: domain.WebPayload{Snippet: "Details."}},
		},
		contents: map[string]string{
			"https://a.example/1": "Qubits are the basic unit of quantum information. They can be in superposition.",
		},
	}
}

func TestRetrievalService_SearchAll_SummaryAndContent(t *testing.T) {
	f := newRetrievalFixture(t, webSource())

	res, err := f.svc.SearchAll(context.Background(), domain.SearchAllRequest{
		Keywords: "quantum computing",
		Sources:  []domain.Source{domain.SourceWebSearch},
	})

	require.NoError(t, err)
	assert.NotEmpty(t, res.BatchUUID)
	docs := res.Documents[domain.SourceWebSearch]

	var summaries, content int
	for _, d := range docs {
		assert.NotEmpty(t, d.Metadata.UUID)
		assert.Equal(t, domain.SourceWebSearch, d.Metadata.Source)
		assert.Equal(t, "google_custom_search", d.Metadata.SourceDatabase)
		switch d.Metadata.ChunkType {
		case domain.ChunkTypeSummary:
			summaries++
			assert.False(t, d.Metadata.IsFullText)
		case domain.ChunkTypeContent:
			content++
			assert.True(t, d.Metadata.IsFullText)
			assert.Equal(t, "https://a.example/1", d.Metadata.URL)
		}
	}
	assert.Equal(t, 2, summaries)
	assert.GreaterOrEqual(t, content, 1)
	assert.Contains(t, docs[0].Content, "Title: Intro to quantum computing")
	assert.Contains(t, docs[0].Content, "Snippet: A gentle intro.")
	assert.Equal(t, domain.WebPayload{Snippet: "A gentle intro."}, docs[0].Metadata.Payload)

	stored, err := f.store.ListBatch(context.Background(), res.BatchUUID, nil)
	require.NoError(t, err)
	assert.Len(t, stored, len(docs))
	assert.Equal(t, len(docs), f.metrics.stored[string(domain.SourceWebSearch)])
}

func TestRetrievalService_SearchAll_FailingSourceIsolated(t *testing.T) {
	failing := &fakeSource{src: domain.SourceNews, err: errors.New("newsapi down")}
	f := newRetrievalFixture(t, webSource(), failing)

	res, err := f.svc.SearchAll(context.Background(), domain.SearchAllRequest{
		Keywords:  "quantum",
		BatchUUID: "batch-1",
		Sources:   []domain.Source{domain.SourceWebSearch, domain.SourceNews},
	})

	require.NoError(t, err)
	assert.Equal(t, "batch-1", res.BatchUUID)
	assert.NotEmpty(t, res.Documents[domain.SourceWebSearch])
	require.Contains(t, res.Documents, domain.SourceNews)
	assert.NotNil(t, res.Documents[domain.SourceNews])
	assert.Empty(t, res.Documents[domain.SourceNews])
}

func TestRetrievalService_SearchAll_UnconfiguredSource(t *testing.T) {
	f := newRetrievalFixture(t, webSource())

	res, err := f.svc.SearchAll(context.Background(), domain.SearchAllRequest{Keywords: "quantum"})

	require.NoError(t, err)
	assert.Len(t, res.Documents, len(domain.AllSources()))
	assert.Empty(t, res.Documents[domain.SourceYouTube])
	assert.Equal(t, []domain.Source{domain.SourceWebSearch}, f.svc.Sources())
}

func TestRetrievalService_SearchAll_YouTubeTranscript(t *testing.T) {
	yt := &fakeSource{
		src: domain.SourceYouTube,
		items: []domain.RawItem{{
			ID: "vid", Source: domain.SourceYouTube, Title: "Lecture", URL: "https://youtu.be/vid",
			Summary: "A lecture.", Payload: domain.VideoPayload{VideoID: "vid"},
		}},
		contents: map[string]string{
			"https://youtu.be/vid": "[00:00:00] welcome to the lecture\n[00:00:45] today we cover qubits",
		},
	}
	f := newRetrievalFixture(t, yt)

	res, err := f.svc.SearchAll(context.Background(), domain.SearchAllRequest{
		Keywords:         "qubits",
		Sources:          []domain.Source{domain.SourceYouTube},
		ChunkingStrategy: domain.ChunkToken,
	})

	require.NoError(t, err)
	var transcripts []domain.RAGDocument
	for _, d := range res.Documents[domain.SourceYouTube] {
		if d.Metadata.ChunkType == domain.ChunkTypeTranscript {
			transcripts = append(transcripts, d)
		}
	}
	require.NotEmpty(t, transcripts)
	assert.Equal(t, "00:00:00", transcripts[0].Metadata.Extras.TimestampStart)
}

func TestRetrievalService_SearchAll_InvalidRequest(t *testing.T) {
	f := newRetrievalFixture(t, webSource())

	tests := []struct {
		name string
		req  domain.SearchAllRequest
	}{
		{"empty keywords", domain.SearchAllRequest{Keywords: " "}},
		{"unknown source", domain.SearchAllRequest{Keywords: "q", Sources: []domain.Source{"carrier_pigeon"}}},
		{"too many results", domain.SearchAllRequest{Keywords: "q", MaxResultsPerSource: 10_000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SearchAll(context.Background(), tt.req)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestRetrievalService_SearchAll_BatchFilteredVectorSearch(t *testing.T) {
	other := &fakeSource{
		src: domain.SourceNews,
		items: []domain.RawItem{
			{ID: "n", Source: domain.SourceNews, Title: "Quantum headline", URL: "https://news.example/n", Summary: "quantum quantum quantum"},
		},
	}
	f := newRetrievalFixture(t, webSource(), other)
	ctx := context.Background()

	first, err := f.svc.SearchAll(ctx, domain.SearchAllRequest{Keywords: "quantum", BatchUUID: "first", Sources: []domain.Source{domain.SourceWebSearch}})
	require.NoError(t, err)
	_, err = f.svc.SearchAll(ctx, domain.SearchAllRequest{Keywords: "quantum", BatchUUID: "second", Sources: []domain.Source{domain.SourceNews}})
	require.NoError(t, err)

	search := NewVectorSearchService(f.indexer.index, f.indexer.embedder, nil, 0)
	got, err := search.Search(ctx, domain.VectorQuery{Query: "quantum", TopK: 50, BatchUUID: "first"})

	require.NoError(t, err)
	assert.Len(t, got, first.Count())
	for _, r := range got {
		assert.Equal(t, domain.SourceWebSearch, r.Metadata.Source)
	}
}

type failingStore struct{ driven.PassageStore }

func (failingStore) Save(context.Context, string, []domain.RAGDocument) error {
	return errors.New("disk full")
}

func TestRetrievalService_SearchAll_PersistenceFailure(t *testing.T) {
	svc := NewRetrievalService([]driven.SourceAdapter{webSource()}, newTestChunker(), failingStore{}, nil, nil)

	_, err := svc.SearchAll(context.Background(), domain.SearchAllRequest{Keywords: "quantum", Sources: []domain.Source{domain.SourceWebSearch}})

	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestRetrievalService_SearchAll_Cancelled(t *testing.T) {
	blocking := &fakeSource{src: domain.SourceNews, block: true}
	f := newRetrievalFixture(t, blocking)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.svc.SearchAll(ctx, domain.SearchAllRequest{Keywords: "q", Sources: []domain.Source{domain.SourceNews}})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Documents[domain.SourceNews])
}
