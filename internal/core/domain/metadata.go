package domain

import (
	"encoding/json"
	"fmt"
)

// Source identifies the origin of a passage. It is the discriminator that
// selects which payload a Metadata value may carry.
type Source string

// Known sources.
const (
	SourceWebSearch       Source = "web_search"
	SourceSemanticScholar Source = "semantic_scholar"
	SourceYouTube         Source = "youtube"
	SourceNews            Source = "news"
)

// AllSources returns every source in canonical order.
func AllSources() []Source {
	return []Source{SourceWebSearch, SourceSemanticScholar, SourceYouTube, SourceNews}
}

// IsValid returns true if the source is recognised.
func (s Source) IsValid() bool {
	switch s {
	case SourceWebSearch, SourceSemanticScholar, SourceYouTube, SourceNews:
		return true
	default:
		return false
	}
}

// Database returns the upstream API a source is backed by.
func (s Source) Database() string {
	switch s {
	case SourceWebSearch:
		return "google_custom_search"
	case SourceSemanticScholar:
		return "semantic_scholar"
	case SourceYouTube:
		return "youtube_data_api"
	case SourceNews:
		return "newsapi"
	default:
		return ""
	}
}

// SummaryLabel names the short-form field in a summary passage.
func (s Source) SummaryLabel() string {
	switch s {
	case SourceWebSearch:
		return "Snippet"
	case SourceSemanticScholar:
		return "Abstract"
	default:
		return "Description"
	}
}

// ContentChunkType is the chunk type of full-content passages.
func (s Source) ContentChunkType() ChunkType {
	if s == SourceYouTube {
		return ChunkTypeTranscript
	}
	return ChunkTypeContent
}

// ForcedStrategy returns the chunking strategy a source's content always
// uses, or "" when the request's strategy applies.
func (s Source) ForcedStrategy() ChunkStrategy {
	if s == SourceYouTube {
		return ChunkTimestamp
	}
	return ""
}

// String returns the string representation.
func (s Source) String() string {
	return string(s)
}

// ParseSources converts names into sources, rejecting unknown ones and
// dropping duplicates. An empty list means every source.
func ParseSources(names []string) ([]Source, error) {
	if len(names) == 0 {
		return AllSources(), nil
	}
	seen := make(map[Source]bool, len(names))
	out := make([]Source, 0, len(names))
	for _, n := range names {
		s := Source(n)
		if !s.IsValid() {
			return nil, fmt.Errorf("%w: unknown source %q", ErrInvalidInput, n)
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out, nil
}

// ChunkType classifies what a passage represents within its parent item.
type ChunkType string

// Chunk types.
const (
	// ChunkTypeSummary is the short-form representation every item yields.
	ChunkTypeSummary ChunkType = "summary"

	// ChunkTypeContent is a window of extracted full text.
	ChunkTypeContent ChunkType = "content"

	// ChunkTypeTranscript is a window of a spoken transcript.
	ChunkTypeTranscript ChunkType = "transcript"
)

// IsValid returns true if the chunk type is recognised.
func (c ChunkType) IsValid() bool {
	switch c {
	case ChunkTypeSummary, ChunkTypeContent, ChunkTypeTranscript:
		return true
	default:
		return false
	}
}

// Payload is the source-specific part of Metadata.
type Payload interface {
	// Kind returns the source this payload belongs to.
	Kind() Source
}

// WebPayload carries web search fields.
type WebPayload struct {
	Snippet string `json:"snippet,omitempty"`
}

// Kind implements Payload.
func (WebPayload) Kind() Source { return SourceWebSearch }

// ScholarPayload carries academic paper fields.
type ScholarPayload struct {
	PaperID        string   `json:"paper_id,omitempty"`
	Authors        []string `json:"authors,omitempty"`
	Year           int      `json:"year,omitempty"`
	Venue          string   `json:"venue,omitempty"`
	FieldsOfStudy  []string `json:"fields_of_study,omitempty"`
	CitationCount  int      `json:"citation_count,omitempty"`
	ReferenceCount int      `json:"reference_count,omitempty"`
	TLDR           string   `json:"tldr,omitempty"`
}

// Kind implements Payload.
func (ScholarPayload) Kind() Source { return SourceSemanticScholar }

// VideoPayload carries video fields.
type VideoPayload struct {
	VideoID      string `json:"video_id,omitempty"`
	ChannelTitle string `json:"channel_title,omitempty"`
	PublishedAt  string `json:"published_at,omitempty"`
	ViewCount    uint64 `json:"view_count,omitempty"`
	LikeCount    uint64 `json:"like_count,omitempty"`
	CommentCount uint64 `json:"comment_count,omitempty"`
	Duration     string `json:"duration,omitempty"`
}

// Kind implements Payload.
func (VideoPayload) Kind() Source { return SourceYouTube }

// NewsPayload carries news article fields.
type NewsPayload struct {
	Author      string `json:"author,omitempty"`
	SourceName  string `json:"source_name,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
}

// Kind implements Payload.
func (NewsPayload) Kind() Source { return SourceNews }

// payloadKeys lists the flat JSON keys owned by each payload.
// published_at is shared by youtube and news.
var payloadKeys = map[Source][]string{
	SourceWebSearch:       {"snippet"},
	SourceSemanticScholar: {"paper_id", "authors", "year", "venue", "fields_of_study", "citation_count", "reference_count", "tldr"},
	SourceYouTube:         {"video_id", "channel_title", "published_at", "view_count", "like_count", "comment_count", "duration"},
	SourceNews:            {"author", "source_name", "published_at"},
}

// ChunkExtras holds strategy-specific position data.
type ChunkExtras struct {
	// Header1..Header3 are the enclosing markdown headings.
	Header1 string `json:"header_1,omitempty"`
	Header2 string `json:"header_2,omitempty"`
	Header3 string `json:"header_3,omitempty"`

	// TimestampStart and TimestampEnd bound a transcript window (hh:mm:ss).
	TimestampStart string `json:"timestamp_start,omitempty"`
	TimestampEnd   string `json:"timestamp_end,omitempty"`

	// StartSeconds is TimestampStart in seconds.
	StartSeconds *int `json:"start_seconds,omitempty"`
}

// Metadata is the unified metadata attached to every passage.
// It is a common envelope plus at most one payload whose Kind matches Source.
// The JSON encoding is flat; decoding selects the payload by the source field.
type Metadata struct {
	UUID           string
	Source         Source
	Title          string
	URL            string
	SourceDatabase string
	ChunkType      ChunkType
	IsFullText     bool
	ChunkIndex     int
	TotalChunks    int
	IsFirstChunk   bool
	IsLastChunk    bool
	TokenCount     int
	Extras         ChunkExtras
	Payload        Payload
}

// envelope is the flat wire form of the common fields.
type envelope struct {
	UUID           string    `json:"uuid"`
	Source         Source    `json:"source"`
	Title          string    `json:"title,omitempty"`
	URL            string    `json:"url,omitempty"`
	SourceDatabase string    `json:"source_database,omitempty"`
	ChunkType      ChunkType `json:"chunk_type,omitempty"`
	IsFullText     bool      `json:"is_full_text"`
	ChunkIndex     int       `json:"chunk_index"`
	TotalChunks    int       `json:"total_chunks"`
	IsFirstChunk   bool      `json:"is_first_chunk"`
	IsLastChunk    bool      `json:"is_last_chunk"`
	TokenCount     int       `json:"token_count"`
	ChunkExtras
}

// MarshalJSON flattens the envelope and payload into one object.
func (m Metadata) MarshalJSON() ([]byte, error) {
	if m.Payload != nil && m.Payload.Kind() != m.Source {
		return nil, fmt.Errorf("%w: %s payload on %s metadata", ErrInvalidInput, m.Payload.Kind(), m.Source)
	}

	fields := make(map[string]json.RawMessage)
	if err := mergeInto(fields, envelope{
		UUID:           m.UUID,
		Source:         m.Source,
		Title:          m.Title,
		URL:            m.URL,
		SourceDatabase: m.SourceDatabase,
		ChunkType:      m.ChunkType,
		IsFullText:     m.IsFullText,
		ChunkIndex:     m.ChunkIndex,
		TotalChunks:    m.TotalChunks,
		IsFirstChunk:   m.IsFirstChunk,
		IsLastChunk:    m.IsLastChunk,
		TokenCount:     m.TokenCount,
		ChunkExtras:    m.Extras,
	}); err != nil {
		return nil, err
	}
	if m.Payload != nil {
		if err := mergeInto(fields, m.Payload); err != nil {
			return nil, err
		}
	}
	return json.Marshal(fields)
}

func mergeInto(dst map[string]json.RawMessage, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var part map[string]json.RawMessage
	if err := json.Unmarshal(b, &part); err != nil {
		return err
	}
	for k, raw := range part {
		dst[k] = raw
	}
	return nil
}

// UnmarshalJSON decodes the flat form, rejecting payload fields that belong
// to a different source than the discriminator names.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if !env.Source.IsValid() {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidInput, env.Source)
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}

	own := make(map[string]bool)
	for _, k := range payloadKeys[env.Source] {
		own[k] = true
	}
	hasPayload := false
	for k := range keys {
		if own[k] {
			hasPayload = true
			continue
		}
		for src, foreign := range payloadKeys {
			if src == env.Source {
				continue
			}
			for _, fk := range foreign {
				if fk == k {
					return fmt.Errorf("%w: field %q belongs to %s, not %s", ErrInvalidInput, k, src, env.Source)
				}
			}
		}
	}

	*m = Metadata{
		UUID:           env.UUID,
		Source:         env.Source,
		Title:          env.Title,
		URL:            env.URL,
		SourceDatabase: env.SourceDatabase,
		ChunkType:      env.ChunkType,
		IsFullText:     env.IsFullText,
		ChunkIndex:     env.ChunkIndex,
		TotalChunks:    env.TotalChunks,
		IsFirstChunk:   env.IsFirstChunk,
		IsLastChunk:    env.IsLastChunk,
		TokenCount:     env.TokenCount,
		Extras:         env.ChunkExtras,
	}
	if !hasPayload {
		return nil
	}

	dec := func(v any) error { return json.Unmarshal(data, v) }
	switch env.Source {
	case SourceWebSearch:
		var p WebPayload
		if err := dec(&p); err != nil {
			return err
		}
		m.Payload = p
	case SourceSemanticScholar:
		var p ScholarPayload
		if err := dec(&p); err != nil {
			return err
		}
		m.Payload = p
	case SourceYouTube:
		var p VideoPayload
		if err := dec(&p); err != nil {
			return err
		}
		m.Payload = p
	case SourceNews:
		var p NewsPayload
		if err := dec(&p); err != nil {
			return err
		}
		m.Payload = p
	}
	return nil
}

// Validate checks the envelope, the discriminator and the position fields.
func (m Metadata) Validate() error {
	if m.UUID == "" {
		return fmt.Errorf("%w: metadata uuid is required", ErrInvalidInput)
	}
	if !m.Source.IsValid() {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidInput, m.Source)
	}
	if !m.ChunkType.IsValid() {
		return fmt.Errorf("%w: unknown chunk type %q", ErrInvalidInput, m.ChunkType)
	}
	if m.Payload != nil && m.Payload.Kind() != m.Source {
		return fmt.Errorf("%w: %s payload on %s metadata", ErrInvalidInput, m.Payload.Kind(), m.Source)
	}
	if m.TotalChunks < 1 {
		return fmt.Errorf("%w: total_chunks must be positive", ErrInvalidInput)
	}
	if m.ChunkIndex < 0 || m.ChunkIndex >= m.TotalChunks {
		return fmt.Errorf("%w: chunk_index %d outside [0,%d)", ErrInvalidInput, m.ChunkIndex, m.TotalChunks)
	}
	if m.IsFirstChunk != (m.ChunkIndex == 0) || m.IsLastChunk != (m.ChunkIndex == m.TotalChunks-1) {
		return fmt.Errorf("%w: first/last flags disagree with chunk_index", ErrInvalidInput)
	}
	if m.TokenCount < 0 {
		return fmt.Errorf("%w: negative token_count", ErrInvalidInput)
	}
	return nil
}

// RAGDocument is one retrieval unit: a passage of text and its metadata.
type RAGDocument struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}
