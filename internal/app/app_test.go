package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kgraph/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
	"github.com/custodia-labs/kgraph/internal/core/services"
	"github.com/custodia-labs/kgraph/internal/retry"
)

type stubSource struct {
	src domain.Source
}

func (s stubSource) Source() domain.Source { return s.src }

func (s stubSource) Search(context.Context, domain.SearchParams) ([]domain.RawItem, error) {
	return nil, nil
}

func (s stubSource) ExtractContent(context.Context, domain.RawItem) (string, bool, error) {
	return "", false, nil
}

func noEnv(string) (string, bool) { return "", false }

func newTestApp(t *testing.T, values map[string]any, sources []driven.SourceAdapter) *App {
	t.Helper()
	dir := t.TempDir()
	cfg := map[string]any{
		"storage.data_dir":       filepath.Join(dir, "data"),
		"storage.graph_dir":      filepath.Join(dir, "graphs"),
		"storage.status_backend": "memory",
	}
	for k, v := range values {
		cfg[k] = v
	}
	a, err := New(context.Background(), Options{
		ConfigStore: memory.NewConfigStoreFrom(cfg),
		Env:         noEnv,
		Sources:     sources,
		Version:     "test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNew_WiresServices(t *testing.T) {
	a := newTestApp(t, nil, []driven.SourceAdapter{stubSource{domain.SourceNews}})

	assert.Equal(t, "test", a.Version)
	assert.Equal(t, []domain.Source{domain.SourceNews}, a.Retrieval.Sources())
	assert.NotNil(t, a.Graphs)
	assert.NotNil(t, a.Metrics)
	assert.Nil(t, a.Indexer, "no embedding provider configured")

	_, err := a.Search.Search(context.Background(), domain.VectorQuery{Query: "q"})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)

	_, err = a.RebuildIndex(context.Background())
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestNew_GenerateWithoutLLM(t *testing.T) {
	a := newTestApp(t, nil, []driven.SourceAdapter{stubSource{domain.SourceNews}})

	_, err := a.Graphs.Generate(context.Background(), "g1", "quantum")
	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)

	rec, err := a.Status.Get(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, string(domain.StageError), rec.Status)
}

func TestNew_SQLiteBackend(t *testing.T) {
	a := newTestApp(t, map[string]any{"storage.status_backend": "sqlite"}, nil)

	_, ok := a.Status.(services.HistoryPruner)
	assert.True(t, ok)
	assert.NotNil(t, a.Scheduler())

	require.NoError(t, a.Status.Create(context.Background(), domain.GraphRecord{UUID: "g1", Title: "t"}))
	rec, err := a.Status.Get(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, string(domain.StageCreated), rec.Status)
}

func TestBuildSources_SkipsUnconfigured(t *testing.T) {
	cfg := domain.SourceSettings{
		Enabled:    domain.AllSources(),
		NewsAPIKey: "key",
	}
	adapters := buildSources(context.Background(), cfg, retry.Policy{MaxAttempts: 1})

	var got []domain.Source
	for _, a := range adapters {
		got = append(got, a.Source())
	}
	assert.Equal(t, []domain.Source{domain.SourceSemanticScholar, domain.SourceNews}, got)
}

func TestClose_Idempotent(t *testing.T) {
	a := newTestApp(t, nil, nil)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}
