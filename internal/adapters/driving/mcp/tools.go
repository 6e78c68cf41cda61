package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/kgraph/internal/core/domain"
)

// SearchAllInput is the input schema for the search_all tool.
type SearchAllInput struct {
	Keywords            string   `json:"keywords" jsonschema:"the topic or keywords to retrieve sources for"`
	Sources             []string `json:"sources,omitempty" jsonschema:"sources to query: web_search, semantic_scholar, youtube, news (default all configured)"`
	MaxResultsPerSource int      `json:"max_results_per_source,omitempty" jsonschema:"maximum items per source (default 10)"`
	BatchUUID           string   `json:"batch_uuid,omitempty" jsonschema:"batch to store passages under (generated when empty)"`
	ChunkingStrategy    string   `json:"chunking_strategy,omitempty" jsonschema:"recursive, semantic, token, markdown or timestamp"`
	Language            string   `json:"language,omitempty" jsonschema:"result language (default en)"`
}

// PassageOutput is one stored passage.
type PassageOutput struct {
	UUID      string  `json:"uuid"`
	Source    string  `json:"source"`
	Title     string  `json:"title,omitempty"`
	URL       string  `json:"url,omitempty"`
	ChunkType string  `json:"chunk_type,omitempty"`
	Content   string  `json:"content"`
	Score     float64 `json:"score,omitempty"`
}

// SearchAllOutput is the output schema for the search_all tool.
type SearchAllOutput struct {
	BatchUUID string                     `json:"batch_uuid"`
	Counts    map[string]int             `json:"counts"`
	Passages  map[string][]PassageOutput `json:"passages"`
}

// VectorSearchInput is the input schema for the vector_search tool.
type VectorSearchInput struct {
	Query              string   `json:"query" jsonschema:"natural language query"`
	TopK               int      `json:"top_k,omitempty" jsonschema:"number of results (default 10, max 100)"`
	Sources            []string `json:"sources,omitempty" jsonschema:"restrict results to these sources"`
	BatchUUID          string   `json:"batch_uuid,omitempty" jsonschema:"restrict results to one search-all batch"`
	Rerank             bool     `json:"rerank,omitempty" jsonschema:"rescore candidates with the reranker"`
	Threshold          float64  `json:"threshold,omitempty" jsonschema:"drop results scoring below this value"`
	ApplySourceWeights bool     `json:"apply_source_weights,omitempty" jsonschema:"weight scores by source"`
}

// VectorSearchOutput is the output schema for the vector_search tool.
type VectorSearchOutput struct {
	Results      []PassageOutput `json:"results"`
	TotalResults int             `json:"total_results"`
}

// GenerateInput is the input schema for the generate_knowledge_graph tool.
type GenerateInput struct {
	Query string `json:"query" jsonschema:"the subject of the knowledge graph"`
	UUID  string `json:"uuid,omitempty" jsonschema:"graph id (generated when empty)"`
	Wait  bool   `json:"wait,omitempty" jsonschema:"block until the graph is built instead of returning immediately"`
}

// GenerateOutput is the output schema for the generate_knowledge_graph tool.
type GenerateOutput struct {
	GraphID string `json:"graph_id"`
	Status  string `json:"status"`
	Name    string `json:"name,omitempty"`
	Nodes   int    `json:"nodes,omitempty"`
	Links   int    `json:"links,omitempty"`
}

// GraphIDInput names a graph.
type GraphIDInput struct {
	UUID string `json:"uuid" jsonschema:"graph id"`
}

// GraphStatusOutput is the output schema for the graph_status tool.
type GraphStatusOutput struct {
	UUID    string   `json:"uuid"`
	Title   string   `json:"title"`
	Status  string   `json:"status"`
	Topics  []string `json:"topics,omitempty"`
	Running bool     `json:"running"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_all",
		Description: "Search every configured source for a topic, chunk and store the results under one batch",
	}, s.handleSearchAll)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "vector_search",
		Description: "Semantic search over stored passages",
	}, s.handleVectorSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "generate_knowledge_graph",
		Description: "Build a knowledge graph for a query: expand subtopics, retrieve sources, write linked articles",
	}, s.handleGenerate)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "graph_status",
		Description: "Report the pipeline status of a knowledge graph",
	}, s.handleGraphStatus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_graph",
		Description: "Return the nodes and links of a knowledge graph",
	}, s.handleGetGraph)
}

func toSources(names []string) []domain.Source {
	out := make([]domain.Source, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, domain.Source(n))
		}
	}
	return out
}

func passage(content string, m domain.Metadata, score float64) PassageOutput {
	return PassageOutput{
		UUID:      m.UUID,
		Source:    string(m.Source),
		Title:     m.Title,
		URL:       m.URL,
		ChunkType: string(m.ChunkType),
		Content:   content,
		Score:     score,
	}
}

func (s *Server) handleSearchAll(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchAllInput,
) (*mcp.CallToolResult, SearchAllOutput, error) {
	res, err := s.ports.Retrieval.SearchAll(ctx, domain.SearchAllRequest{
		Keywords:            input.Keywords,
		BatchUUID:           input.BatchUUID,
		Sources:             toSources(input.Sources),
		MaxResultsPerSource: input.MaxResultsPerSource,
		ChunkingStrategy:    domain.ChunkStrategy(input.ChunkingStrategy),
		Language:            input.Language,
	})
	if err != nil {
		return nil, SearchAllOutput{}, err
	}

	out := SearchAllOutput{
		BatchUUID: res.BatchUUID,
		Counts:    make(map[string]int, len(res.Documents)),
		Passages:  make(map[string][]PassageOutput, len(res.Documents)),
	}
	for src, docs := range res.Documents {
		list := make([]PassageOutput, len(docs))
		for i, d := range docs {
			list[i] = passage(d.Content, d.Metadata, 0)
		}
		out.Counts[string(src)] = len(docs)
		out.Passages[string(src)] = list
	}
	return nil, out, nil
}

func (s *Server) handleVectorSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input VectorSearchInput,
) (*mcp.CallToolResult, VectorSearchOutput, error) {
	if s.ports.Search == nil {
		return nil, VectorSearchOutput{}, domain.ErrEmbeddingUnavailable
	}
	results, err := s.ports.Search.Search(ctx, domain.VectorQuery{
		Query:              input.Query,
		TopK:               input.TopK,
		Sources:            toSources(input.Sources),
		BatchUUID:          input.BatchUUID,
		Rerank:             input.Rerank,
		Threshold:          input.Threshold,
		ApplySourceWeights: input.ApplySourceWeights,
	})
	if err != nil {
		return nil, VectorSearchOutput{}, err
	}

	out := VectorSearchOutput{
		Results:      make([]PassageOutput, len(results)),
		TotalResults: len(results),
	}
	for i, r := range results {
		out.Results[i] = passage(r.Content, r.Metadata, r.Score)
	}
	return nil, out, nil
}

func (s *Server) handleGenerate(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GenerateInput,
) (*mcp.CallToolResult, GenerateOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, GenerateOutput{}, fmt.Errorf("%w: query is required", domain.ErrInvalidInput)
	}
	id := input.UUID
	if id == "" {
		id = uuid.NewString()
	}

	if !input.Wait {
		if err := s.ports.Graphs.Start(id, query); err != nil {
			return nil, GenerateOutput{}, err
		}
		return nil, GenerateOutput{GraphID: id, Status: "accepted"}, nil
	}

	g, err := s.ports.Graphs.Generate(ctx, id, query)
	if err != nil {
		return nil, GenerateOutput{}, err
	}
	return nil, GenerateOutput{
		GraphID: id,
		Status:  string(domain.StageDone),
		Name:    g.Name,
		Nodes:   len(g.Nodes),
		Links:   len(g.Links),
	}, nil
}

func (s *Server) handleGraphStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GraphIDInput,
) (*mcp.CallToolResult, GraphStatusOutput, error) {
	rec, err := s.ports.Graphs.Status(ctx, input.UUID)
	if err != nil {
		return nil, GraphStatusOutput{}, err
	}
	out := GraphStatusOutput{UUID: rec.UUID, Title: rec.Title, Status: rec.Status}
	if st, err := domain.ParseStatus(rec.Status); err == nil {
		out.Topics = st.Topics
	}
	for _, id := range s.ports.Graphs.Running() {
		if id == rec.UUID {
			out.Running = true
			break
		}
	}
	return nil, out, nil
}

func (s *Server) handleGetGraph(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GraphIDInput,
) (*mcp.CallToolResult, domain.KnowledgeGraph, error) {
	g, err := s.ports.Graphs.Graph(ctx, input.UUID)
	if err != nil {
		return nil, domain.KnowledgeGraph{}, err
	}
	return nil, g, nil
}
