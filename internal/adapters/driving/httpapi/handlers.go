package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/custodia-labs/kgraph/internal/core/domain"
)

const defaultListLimit = 50

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
	Service          string    `json:"service"`
	Version          string    `json:"version"`
	Sources          []string  `json:"sources"`
	RunningPipelines int       `json:"running_pipelines"`
}

// VectorSearchResponse is returned by POST /vector-search.
type VectorSearchResponse struct {
	Results      []domain.VectorResult `json:"results"`
	TotalResults int                   `json:"total_results"`
}

// GenerateRequest is the body of POST /generate-knowledge-graph.
type GenerateRequest struct {
	UUID  string `json:"uuid"`
	Query string `json:"query"`
}

// GenerateResponse acknowledges an accepted pipeline run.
type GenerateResponse struct {
	Status  string `json:"status"`
	GraphID string `json:"graph_id"`
}

// StatusResponse is returned by GET /knowledge-graphs/status/:uuid.
type StatusResponse struct {
	UUID      string    `json:"uuid"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Server) health(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Service:   "kgraph",
		Version:   s.deps.Version,
		Sources:   []string{},
	}
	if s.deps.Retrieval != nil {
		for _, src := range s.deps.Retrieval.Sources() {
			resp.Sources = append(resp.Sources, string(src))
		}
	}
	if s.deps.Graphs != nil {
		resp.RunningPipelines = len(s.deps.Graphs.Running())
	}
	c.JSON(http.StatusOK, resp)
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		writeError(c, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		return false
	}
	return true
}

func (s *Server) searchAll(c *gin.Context) {
	var req domain.SearchAllRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.BatchUUID == "" {
		req.BatchUUID = strings.TrimSpace(c.GetHeader(BatchHeader))
	}

	res, err := s.deps.Retrieval.SearchAll(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make(map[string][]domain.RAGDocument, len(res.Documents))
	for src, docs := range res.Documents {
		if docs == nil {
			docs = []domain.RAGDocument{}
		}
		out[string(src)] = docs
	}
	c.Header(BatchHeader, res.BatchUUID)
	c.JSON(http.StatusOK, out)
}

func (s *Server) vectorSearch(c *gin.Context) {
	var q domain.VectorQuery
	if !bindJSON(c, &q) {
		return
	}
	results, err := s.deps.Search.Search(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	if results == nil {
		results = []domain.VectorResult{}
	}
	c.JSON(http.StatusOK, VectorSearchResponse{Results: results, TotalResults: len(results)})
}

func (s *Server) generate(c *gin.Context) {
	var req GenerateRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeError(c, fmt.Errorf("%w: query is required", domain.ErrInvalidInput))
		return
	}
	if req.UUID == "" {
		req.UUID = uuid.NewString()
	}
	if err := s.deps.Graphs.Start(req.UUID, req.Query); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, GenerateResponse{Status: "accepted", GraphID: req.UUID})
}

func (s *Server) graphStatus(c *gin.Context) {
	rec, err := s.deps.Graphs.Status(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, StatusResponse{
		UUID:      rec.UUID,
		Title:     rec.Title,
		Status:    rec.Status,
		UpdatedAt: rec.UpdatedAt,
	})
}

func limitParam(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := cast.ToIntE(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", domain.ErrInvalidInput)
	}
	return n, nil
}

func (s *Server) graphHistory(c *gin.Context) {
	limit, err := limitParam(c)
	if err != nil {
		writeError(c, err)
		return
	}
	events, err := s.deps.Graphs.History(c.Request.Context(), c.Param("uuid"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if events == nil {
		events = []domain.StatusEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"uuid": c.Param("uuid"), "history": events})
}

func (s *Server) listGraphs(c *gin.Context) {
	limit, err := limitParam(c)
	if err != nil {
		writeError(c, err)
		return
	}
	recs, err := s.deps.Graphs.List(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if recs == nil {
		recs = []domain.GraphRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"graphs": recs, "running": s.deps.Graphs.Running()})
}

func (s *Server) graph(c *gin.Context) {
	g, err := s.deps.Graphs.Graph(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}
