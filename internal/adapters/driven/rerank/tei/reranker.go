// Package tei provides a reranker backed by a hosted cross-encoder that
// speaks the TEI or Cohere /rerank protocol.
package tei

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/kgraph/internal/connectors/ratelimit"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
)

// Ensure Reranker implements the interface.
var _ driven.Reranker = (*Reranker)(nil)

// DefaultTimeout bounds one rerank call.
const DefaultTimeout = 30 * time.Second

// Config holds configuration for the HTTP reranker.
type Config struct {
	// URL is the service base URL; /rerank is appended.
	URL string

	// Model is sent for Cohere-style services and used as the name.
	Model string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout is the request timeout (default: 30s).
	Timeout time.Duration
}

// Reranker scores passages with a remote cross-encoder.
type Reranker struct {
	client *http.Client
	url    string
	model  string
	apiKey string
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	Documents []string `json:"documents,omitempty"`
	Model     string   `json:"model,omitempty"`
	RawScores bool     `json:"raw_scores"`
}

type rankedItem struct {
	Index          int      `json:"index"`
	Score          *float64 `json:"score,omitempty"`
	RelevanceScore *float64 `json:"relevance_score,omitempty"`
}

// NewReranker creates an HTTP reranker.
func NewReranker(cfg Config) (*Reranker, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("rerank: URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Reranker{
		client: &http.Client{Timeout: cfg.Timeout},
		url:    strings.TrimRight(cfg.URL, "/") + "/rerank",
		model:  cfg.Model,
		apiKey: cfg.APIKey,
	}, nil
}

// Name identifies the model.
func (r *Reranker) Name() string {
	if r.model != "" {
		return r.model
	}
	return "http-cross-encoder"
}

// Rerank implements driven.Reranker. Passages the service does not score
// get the lowest possible score.
func (r *Reranker) Rerank(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(rerankRequest{
		Query:     query,
		Texts:     passages,
		Documents: r.cohereDocuments(passages),
		Model:     r.model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if err := ratelimit.CheckResponse("rerank", resp); err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	items, err := decodeRanked(raw)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(passages))
	for i := range scores {
		scores[i] = -1e308
	}
	for _, it := range items {
		if it.Index < 0 || it.Index >= len(passages) {
			return nil, fmt.Errorf("rerank: index %d out of range", it.Index)
		}
		switch {
		case it.Score != nil:
			scores[it.Index] = *it.Score
		case it.RelevanceScore != nil:
			scores[it.Index] = *it.RelevanceScore
		}
	}
	return scores, nil
}

// cohereDocuments duplicates texts only when a model is set, which is how
// Cohere-compatible services are told apart from TEI.
func (r *Reranker) cohereDocuments(passages []string) []string {
	if r.model == "" {
		return nil
	}
	return passages
}

// decodeRanked accepts a bare TEI array or a Cohere {"results": [...]}.
func decodeRanked(raw []byte) ([]rankedItem, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []rankedItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return items, nil
	}
	var wrapped struct {
		Results []rankedItem `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return wrapped.Results, nil
}
