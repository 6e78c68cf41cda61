package mcp

import (
	"context"

	"github.com/custodia-labs/kgraph/internal/core/domain"
)

// mockRetrievalService is a mock implementation of driving.RetrievalService.
type mockRetrievalService struct {
	req domain.SearchAllRequest
	res domain.SearchAllResult
	err error
}

func (m *mockRetrievalService) SearchAll(_ context.Context, req domain.SearchAllRequest) (domain.SearchAllResult, error) {
	m.req = req
	return m.res, m.err
}

func (m *mockRetrievalService) Sources() []domain.Source {
	return domain.AllSources()
}

// mockVectorSearchService is a mock implementation of driving.VectorSearchService.
type mockVectorSearchService struct {
	query   domain.VectorQuery
	results []domain.VectorResult
	err     error
}

func (m *mockVectorSearchService) Search(_ context.Context, q domain.VectorQuery) ([]domain.VectorResult, error) {
	m.query = q
	return m.results, m.err
}

// mockGraphService is a mock implementation of driving.GraphService.
type mockGraphService struct {
	started   map[string]string
	generated domain.KnowledgeGraph
	record    domain.GraphRecord
	records   []domain.GraphRecord
	graph     domain.KnowledgeGraph
	running   []string
	err       error
}

func (m *mockGraphService) Generate(_ context.Context, _, _ string) (domain.KnowledgeGraph, error) {
	return m.generated, m.err
}

func (m *mockGraphService) Start(id, query string) error {
	if m.err != nil {
		return m.err
	}
	if m.started == nil {
		m.started = map[string]string{}
	}
	m.started[id] = query
	return nil
}

func (m *mockGraphService) Status(_ context.Context, _ string) (domain.GraphRecord, error) {
	return m.record, m.err
}

func (m *mockGraphService) History(_ context.Context, _ string, _ int) ([]domain.StatusEvent, error) {
	return nil, m.err
}

func (m *mockGraphService) List(_ context.Context, _ int) ([]domain.GraphRecord, error) {
	return m.records, m.err
}

func (m *mockGraphService) Running() []string {
	return m.running
}

func (m *mockGraphService) Graph(_ context.Context, _ string) (domain.KnowledgeGraph, error) {
	return m.graph, m.err
}

func (m *mockGraphService) Merge(_ context.Context, _, _ string) error {
	return domain.ErrMergeUnsupported
}

func (m *mockGraphService) Wait() {}
