package domain

import (
	"fmt"
	"strings"
)

// Search-all defaults.
const (
	DefaultSearchChunkSize     = 2000
	DefaultSearchChunkOverlap  = 300
	DefaultMaxResultsPerSource = 10
	MaxResultsPerSourceLimit   = 100
	DefaultSearchDaysBack      = 30
	DefaultLanguage            = "en"
)

// SearchAllRequest asks every requested source for passages about keywords
// and persists them under one batch.
type SearchAllRequest struct {
	Keywords            string        `json:"keywords"`
	BatchUUID           string        `json:"batch_uuid,omitempty"`
	Sources             []Source      `json:"sources,omitempty"`
	MaxResultsPerSource int           `json:"max_results_per_source,omitempty"`
	ChunkingStrategy    ChunkStrategy `json:"chunking_strategy,omitempty"`
	ChunkSize           int           `json:"chunk_size,omitempty"`
	ChunkOverlap        int           `json:"chunk_overlap,omitempty"`
	Language            string        `json:"language,omitempty"`
	DaysBack            int           `json:"days_back,omitempty"`
	YearStart           int           `json:"year_start,omitempty"`
	YearEnd             int           `json:"year_end,omitempty"`
}

// Normalise applies defaults and validates the request.
// It does not assign a batch id; that is the caller's decision.
func (r SearchAllRequest) Normalise() (SearchAllRequest, error) {
	r.Keywords = strings.TrimSpace(r.Keywords)
	if r.Keywords == "" {
		return r, fmt.Errorf("%w: keywords are required", ErrInvalidInput)
	}
	if len(r.Sources) == 0 {
		r.Sources = AllSources()
	}
	names := make([]string, len(r.Sources))
	for i, s := range r.Sources {
		names[i] = string(s)
	}
	sources, err := ParseSources(names)
	if err != nil {
		return r, err
	}
	r.Sources = sources

	if r.MaxResultsPerSource == 0 {
		r.MaxResultsPerSource = DefaultMaxResultsPerSource
	}
	if r.MaxResultsPerSource < 1 || r.MaxResultsPerSource > MaxResultsPerSourceLimit {
		return r, fmt.Errorf("%w: max_results_per_source must be within 1..%d", ErrInvalidInput, MaxResultsPerSourceLimit)
	}
	if r.ChunkSize == 0 {
		r.ChunkSize = DefaultSearchChunkSize
	}
	if r.ChunkOverlap == 0 {
		r.ChunkOverlap = DefaultSearchChunkOverlap
	}
	opts, err := r.ChunkOptions().Normalise()
	if err != nil {
		return r, err
	}
	r.ChunkingStrategy, r.ChunkSize, r.ChunkOverlap = opts.Strategy, opts.ChunkSize, opts.ChunkOverlap

	if r.Language == "" {
		r.Language = DefaultLanguage
	}
	if r.DaysBack <= 0 {
		r.DaysBack = DefaultSearchDaysBack
	}
	if r.YearStart > 0 && r.YearEnd > 0 && r.YearStart > r.YearEnd {
		return r, fmt.Errorf("%w: year_start after year_end", ErrInvalidInput)
	}
	return r, nil
}

// ChunkOptions returns the chunking part of the request.
func (r SearchAllRequest) ChunkOptions() ChunkOptions {
	return ChunkOptions{
		Strategy:     r.ChunkingStrategy,
		ChunkSize:    r.ChunkSize,
		ChunkOverlap: r.ChunkOverlap,
	}
}

// Params returns the adapter-facing search parameters.
func (r SearchAllRequest) Params() SearchParams {
	return SearchParams{
		Keywords:   r.Keywords,
		MaxResults: r.MaxResultsPerSource,
		Language:   r.Language,
		DaysBack:   r.DaysBack,
		YearStart:  r.YearStart,
		YearEnd:    r.YearEnd,
	}
}

// SearchAllResult groups the produced passages by source.
// Every requested source has an entry, possibly empty.
type SearchAllResult struct {
	BatchUUID string
	Documents map[Source][]RAGDocument
}

// Count returns the total number of passages.
func (r SearchAllResult) Count() int {
	n := 0
	for _, docs := range r.Documents {
		n += len(docs)
	}
	return n
}

// Flatten returns every passage in canonical source order.
func (r SearchAllResult) Flatten() []RAGDocument {
	var out []RAGDocument
	for _, s := range AllSources() {
		out = append(out, r.Documents[s]...)
	}
	return out
}

// TopicTask is the serializable unit of per-topic retrieval work.
// Results are joined back to the pipeline by Topic.
type TopicTask struct {
	Topic     string           `json:"topic"`
	BatchUUID string           `json:"batch_uuid"`
	Sources   []Source         `json:"sources"`
	Options   SearchAllRequest `json:"options"`
}

// Request builds the search-all request for this task.
func (t TopicTask) Request() SearchAllRequest {
	req := t.Options
	req.Keywords = t.Topic
	req.BatchUUID = t.BatchUUID
	req.Sources = t.Sources
	return req
}
