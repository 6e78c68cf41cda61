package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// Mocks

type mockRetrieval struct {
	got domain.SearchAllRequest
	res domain.SearchAllResult
	err error
}

func (m *mockRetrieval) SearchAll(_ context.Context, req domain.SearchAllRequest) (domain.SearchAllResult, error) {
	m.got = req
	if m.err != nil {
		return domain.SearchAllResult{}, m.err
	}
	res := m.res
	if res.BatchUUID == "" {
		res.BatchUUID = req.BatchUUID
	}
	if res.BatchUUID == "" {
		res.BatchUUID = "generated-batch"
	}
	return res, nil
}

func (m *mockRetrieval) Sources() []domain.Source {
	return []domain.Source{domain.SourceNews, domain.SourceWebSearch}
}

type mockSearch struct {
	got     domain.VectorQuery
	results []domain.VectorResult
	err     error
}

func (m *mockSearch) Search(_ context.Context, q domain.VectorQuery) ([]domain.VectorResult, error) {
	m.got = q
	return m.results, m.err
}

type mockGraphs struct {
	mu       sync.Mutex
	started  map[string]string
	startErr error
	records  map[string]domain.GraphRecord
	history  []domain.StatusEvent
	graphs   map[string]domain.KnowledgeGraph
	graphErr error
	running  []string
}

func newMockGraphs() *mockGraphs {
	return &mockGraphs{
		started: map[string]string{},
		records: map[string]domain.GraphRecord{},
		graphs:  map[string]domain.KnowledgeGraph{},
	}
}

func (m *mockGraphs) Generate(context.Context, string, string) (domain.KnowledgeGraph, error) {
	return domain.KnowledgeGraph{}, domain.ErrNotImplemented
}

func (m *mockGraphs) Start(id, query string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.started[id] = query
	return nil
}

func (m *mockGraphs) Status(_ context.Context, id string) (domain.GraphRecord, error) {
	rec, ok := m.records[id]
	if !ok {
		return rec, fmt.Errorf("graph %s: %w", id, domain.ErrNotFound)
	}
	return rec, nil
}

func (m *mockGraphs) History(_ context.Context, id string, _ int) ([]domain.StatusEvent, error) {
	if _, ok := m.records[id]; !ok {
		return nil, domain.ErrNotFound
	}
	return m.history, nil
}

func (m *mockGraphs) List(context.Context, int) ([]domain.GraphRecord, error) {
	out := make([]domain.GraphRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	return out, nil
}

func (m *mockGraphs) Running() []string { return m.running }

func (m *mockGraphs) Graph(_ context.Context, id string) (domain.KnowledgeGraph, error) {
	if m.graphErr != nil {
		return domain.KnowledgeGraph{}, m.graphErr
	}
	g, ok := m.graphs[id]
	if !ok {
		return g, domain.ErrNotFound
	}
	return g, nil
}

func (m *mockGraphs) Merge(context.Context, string, string) error { return domain.ErrMergeUnsupported }
func (m *mockGraphs) Wait()                                       {}

type fixture struct {
	retrieval *mockRetrieval
	search    *mockSearch
	graphs    *mockGraphs
	metrics   *metrics.Metrics
	handler   http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		retrieval: &mockRetrieval{},
		search:    &mockSearch{},
		graphs:    newMockGraphs(),
		metrics:   metrics.New(),
	}
	srv := NewServer(Deps{
		Retrieval: f.retrieval,
		Search:    f.search,
		Graphs:    f.graphs,
		Metrics:   f.metrics,
		Version:   "test",
	}, domain.ServerSettings{CORSOrigins: []string{"http://localhost:3000"}})
	f.handler = srv.Handler()
	return f
}

func (f *fixture) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// Tests

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("x: %w", domain.ErrInvalidInput), http.StatusBadRequest, "invalid_input"},
		{domain.ErrUnsupportedType, http.StatusBadRequest, "invalid_input"},
		{domain.ErrNotFound, http.StatusNotFound, "not_found"},
		{domain.ErrPipelineRunning, http.StatusConflict, "already_running"},
		{domain.ErrAlreadyExists, http.StatusConflict, "already_exists"},
		{domain.ErrInvalidStructuredOutput, http.StatusUnprocessableEntity, "invalid_structured_output"},
		{fmt.Errorf("news: %w", domain.ErrRateLimited), http.StatusTooManyRequests, "rate_limited"},
		{domain.ErrEmbeddingUnavailable, http.StatusServiceUnavailable, "unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code := classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	f.graphs.running = []string{"g1"}

	rec := f.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.Equal(t, []string{"news", "web_search"}, resp.Sources)
	assert.Equal(t, 1, resp.RunningPipelines)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestRequestID_Echoed(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/health", "", RequestIDHeader, "abc-123")
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestSearchAll(t *testing.T) {
	t.Run("groups documents by source and returns the batch header", func(t *testing.T) {
		f := newFixture(t)
		f.retrieval.res = domain.SearchAllResult{
			Documents: map[domain.Source][]domain.RAGDocument{
				domain.SourceNews:      {{Content: "headline", Metadata: domain.Metadata{UUID: "n1", Source: domain.SourceNews}}},
				domain.SourceWebSearch: nil,
			},
		}

		rec := f.do(http.MethodPost, "/search-all", `{"keywords":"quantum","sources":["news","web_search"],"max_results_per_source":3}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "generated-batch", rec.Header().Get(BatchHeader))
		assert.Equal(t, "quantum", f.retrieval.got.Keywords)
		assert.Equal(t, 3, f.retrieval.got.MaxResultsPerSource)

		body := decode[map[string][]domain.RAGDocument](t, rec)
		require.Len(t, body["news"], 1)
		assert.Equal(t, "headline", body["news"][0].Content)
		assert.NotNil(t, body["web_search"])
		assert.Empty(t, body["web_search"])
	})

	t.Run("batch id from header", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(http.MethodPost, "/search-all", `{"keywords":"q"}`, BatchHeader, "b-7")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "b-7", f.retrieval.got.BatchUUID)
		assert.Equal(t, "b-7", rec.Header().Get(BatchHeader))
	})

	t.Run("malformed body", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(http.MethodPost, "/search-all", `{"keywords":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decode[ErrorResponse](t, rec)
		assert.Equal(t, "invalid_input", resp.Code)
		assert.False(t, resp.Timestamp.IsZero())
	})

	t.Run("service validation error", func(t *testing.T) {
		f := newFixture(t)
		f.retrieval.err = fmt.Errorf("%w: keywords are required", domain.ErrInvalidInput)
		rec := f.do(http.MethodPost, "/search-all", `{"keywords":""}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("internal errors are reported generically", func(t *testing.T) {
		f := newFixture(t)
		f.retrieval.err = fmt.Errorf("write /secret/path: %w", domain.ErrPersistence)
		rec := f.do(http.MethodPost, "/search-all", `{"keywords":"q"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		resp := decode[ErrorResponse](t, rec)
		assert.Equal(t, "internal error", resp.Error)
		assert.NotContains(t, rec.Body.String(), "/secret/path")
	})
}

func TestVectorSearch(t *testing.T) {
	t.Run("results and total", func(t *testing.T) {
		f := newFixture(t)
		f.search.results = []domain.VectorResult{
			{Content: "a", Score: 0.9, Metadata: domain.Metadata{UUID: "1", Source: domain.SourceNews}},
			{Content: "b", Score: 0.5, Metadata: domain.Metadata{UUID: "2", Source: domain.SourceWebSearch}},
		}
		rec := f.do(http.MethodPost, "/vector-search", `{"query":"qubits","top_k":2,"rerank":true,"batch_uuid":"b1"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[VectorSearchResponse](t, rec)
		assert.Equal(t, 2, resp.TotalResults)
		assert.Equal(t, "a", resp.Results[0].Content)
		assert.Equal(t, "b1", f.search.got.BatchUUID)
		assert.True(t, f.search.got.Rerank)
	})

	t.Run("empty results are an empty list", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(http.MethodPost, "/vector-search", `{"query":"qubits"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"results":[]`)
	})

	t.Run("rate limited", func(t *testing.T) {
		f := newFixture(t)
		f.search.err = domain.ErrRateLimited
		rec := f.do(http.MethodPost, "/vector-search", `{"query":"qubits"}`)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})
}

func TestGenerate(t *testing.T) {
	t.Run("accepted with given uuid", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(http.MethodPost, "/generate-knowledge-graph", `{"uuid":"g1","query":"Quantum computing"}`)
		require.Equal(t, http.StatusAccepted, rec.Code)
		resp := decode[GenerateResponse](t, rec)
		assert.Equal(t, GenerateResponse{Status: "accepted", GraphID: "g1"}, resp)
		assert.Equal(t, "Quantum computing", f.graphs.started["g1"])
	})

	t.Run("uuid generated when missing", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(http.MethodPost, "/generate-knowledge-graph", `{"query":"q"}`)
		require.Equal(t, http.StatusAccepted, rec.Code)
		resp := decode[GenerateResponse](t, rec)
		assert.Len(t, resp.GraphID, 36)
	})

	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"missing query", `{"uuid":"g1"}`, nil, http.StatusBadRequest},
		{"already running", `{"uuid":"g1","query":"q"}`, domain.ErrPipelineRunning, http.StatusConflict},
		{"already exists", `{"uuid":"g1","query":"q"}`, domain.ErrAlreadyExists, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.graphs.startErr = tt.err
			rec := f.do(http.MethodPost, "/generate-knowledge-graph", tt.body)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestGraphEndpoints(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f.graphs.records["g1"] = domain.GraphRecord{UUID: "g1", Title: "Quantum", Status: "topics_found:a|b", UpdatedAt: now}
	f.graphs.history = []domain.StatusEvent{{Status: "created", At: now}, {Status: "topics_found:a|b", At: now}}
	f.graphs.graphs["g1"] = domain.KnowledgeGraph{
		Name:  "Quantum",
		Nodes: []domain.Node{{ID: "a", Title: "a", Content: "x", ChunkRefs: []domain.ChunkRef{}}},
		Links: []domain.Link{},
	}

	t.Run("status", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/knowledge-graphs/status/g1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[StatusResponse](t, rec)
		assert.Equal(t, StatusResponse{UUID: "g1", Title: "Quantum", Status: "topics_found:a|b", UpdatedAt: now}, resp)
	})

	t.Run("status not found", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/knowledge-graphs/status/nope", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("history", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/knowledge-graphs/status/g1/history?limit=5", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			History []domain.StatusEvent `json:"history"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.History, 2)
	})

	t.Run("bad limit", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/knowledge-graphs?limit=zero", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("list", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/knowledge-graphs", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"uuid":"g1"`)
	})

	t.Run("graph", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/knowledge-graphs/g1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		g := decode[domain.KnowledgeGraph](t, rec)
		assert.Equal(t, "Quantum", g.Name)
		assert.True(t, g.HasNode("a"))
	})

	t.Run("graph missing", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/knowledge-graphs/none", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestNoRouteAndMetrics(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, rec).Code)

	rec = f.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "kgraph_http_requests_total")
}

func TestCORS(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodOptions, "/search-all", "",
		"Origin", "http://localhost:3000",
		"Access-Control-Request-Method", "POST")
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecovery(t *testing.T) {
	f := newFixture(t)
	srv := NewServer(Deps{Graphs: f.graphs}, domain.ServerSettings{})
	// Retrieval is nil so the handler panics.
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/search-all", strings.NewReader(`{"keywords":"q"}`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal", decode[ErrorResponse](t, rec).Code)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	f := newFixture(t)
	srv := NewServer(Deps{Graphs: f.graphs}, domain.ServerSettings{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
