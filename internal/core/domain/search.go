package domain

import (
	"fmt"
	"strings"
)

// Vector search defaults.
const (
	DefaultTopK         = 10
	MaxTopK             = 100
	DefaultRerankFactor = 3
)

// VectorQuery is a semantic search request over stored passages.
type VectorQuery struct {
	// Query is the natural language query text.
	Query string `json:"query"`

	// TopK is the number of results to return.
	TopK int `json:"top_k,omitempty"`

	// Sources restricts results to these sources. Empty means all.
	Sources []Source `json:"sources,omitempty"`

	// BatchUUID restricts results to one batch when set.
	BatchUUID string `json:"batch_uuid,omitempty"`

	// Rerank enables second-stage pairwise scoring.
	Rerank bool `json:"rerank"`

	// Threshold drops results scoring below it. Zero disables it.
	Threshold float64 `json:"threshold,omitempty"`

	// ApplySourceWeights multiplies scores by per-source weights.
	ApplySourceWeights bool `json:"apply_source_weights,omitempty"`
}

// Normalise applies defaults and validates the query.
func (q VectorQuery) Normalise() (VectorQuery, error) {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return q, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	if q.TopK == 0 {
		q.TopK = DefaultTopK
	}
	if q.TopK < 1 || q.TopK > MaxTopK {
		return q, fmt.Errorf("%w: top_k must be within 1..%d", ErrInvalidInput, MaxTopK)
	}
	names := make([]string, len(q.Sources))
	for i, s := range q.Sources {
		names[i] = string(s)
	}
	sources, err := ParseSources(names)
	if err != nil {
		return q, err
	}
	q.Sources = sources
	return q, nil
}

// VectorFilter is the metadata predicate applied before ranking.
type VectorFilter struct {
	// BatchUUID must match when non-empty.
	BatchUUID string

	// Sources must contain the passage source when non-empty.
	Sources []Source
}

// Match reports whether a passage in batch with source passes the filter.
func (f VectorFilter) Match(batch string, source Source) bool {
	if f.BatchUUID != "" && f.BatchUUID != batch {
		return false
	}
	if len(f.Sources) == 0 {
		return true
	}
	for _, s := range f.Sources {
		if s == source {
			return true
		}
	}
	return false
}

// VectorResult is one ranked passage.
type VectorResult struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
	Score    float64  `json:"score"`
}

// DefaultSourceWeights returns the per-source score multipliers.
func DefaultSourceWeights() map[Source]float64 {
	return map[Source]float64{
		SourceWebSearch:       1.0,
		SourceSemanticScholar: 1.3,
		SourceYouTube:         1.0,
		SourceNews:            1.2,
	}
}
