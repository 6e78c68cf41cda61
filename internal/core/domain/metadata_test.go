package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMetadata() Metadata {
	return Metadata{
		UUID:           "u-1",
		Source:         SourceSemanticScholar,
		Title:          "Attention Is All You Need",
		URL:            "https://example.org/paper",
		SourceDatabase: SourceSemanticScholar.Database(),
		ChunkType:      ChunkTypeContent,
		IsFullText:     true,
		ChunkIndex:     0,
		TotalChunks:    2,
		IsFirstChunk:   true,
		IsLastChunk:    false,
		TokenCount:     42,
		Payload:        ScholarPayload{PaperID: "p1", Authors: []string{"Vaswani"}, Year: 2017},
	}
}

func TestMetadata_JSONIsFlat(t *testing.T) {
	b, err := json.Marshal(validMetadata())
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(b, &flat))
	assert.Equal(t, "semantic_scholar", flat["source"])
	assert.Equal(t, "p1", flat["paper_id"])
	assert.Equal(t, float64(2017), flat["year"])
	assert.Equal(t, true, flat["is_first_chunk"])
	assert.NotContains(t, flat, "Payload")
}

func TestMetadata_DecodeSelectsPayloadBySource(t *testing.T) {
	t.Run("scholar", func(t *testing.T) {
		var m Metadata
		err := json.Unmarshal([]byte(`{"uuid":"u","source":"semantic_scholar","chunk_type":"summary","paper_id":"p9","tldr":"short"}`), &m)
		require.NoError(t, err)
		p, ok := m.Payload.(ScholarPayload)
		require.True(t, ok)
		assert.Equal(t, "p9", p.PaperID)
		assert.Equal(t, "short", p.TLDR)
	})

	t.Run("shared published_at on news", func(t *testing.T) {
		var m Metadata
		err := json.Unmarshal([]byte(`{"uuid":"u","source":"news","published_at":"2024-01-01","author":"A"}`), &m)
		require.NoError(t, err)
		p, ok := m.Payload.(NewsPayload)
		require.True(t, ok)
		assert.Equal(t, "2024-01-01", p.PublishedAt)
	})

	t.Run("no payload fields", func(t *testing.T) {
		var m Metadata
		require.NoError(t, json.Unmarshal([]byte(`{"uuid":"u","source":"web_search"}`), &m))
		assert.Nil(t, m.Payload)
	})

	t.Run("foreign payload field rejected", func(t *testing.T) {
		var m Metadata
		err := json.Unmarshal([]byte(`{"uuid":"u","source":"web_search","video_id":"abc"}`), &m)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidInput))
	})

	t.Run("unknown source rejected", func(t *testing.T) {
		var m Metadata
		err := json.Unmarshal([]byte(`{"uuid":"u","source":"reddit"}`), &m)
		assert.True(t, errors.Is(err, ErrInvalidInput))
	})
}

func TestMetadata_RoundTripKeepsExtras(t *testing.T) {
	secs := 75
	m := validMetadata()
	m.Source = SourceYouTube
	m.ChunkType = ChunkTypeTranscript
	m.Payload = VideoPayload{VideoID: "v1", ViewCount: 10}
	m.Extras = ChunkExtras{TimestampStart: "00:01:15", TimestampEnd: "00:02:00", StartSeconds: &secs}

	b, err := json.Marshal(m)
	require.NoError(t, err)
	var got Metadata
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, m, got)
}

func TestMetadata_MarshalRejectsMismatchedPayload(t *testing.T) {
	m := validMetadata()
	m.Payload = WebPayload{Snippet: "x"}
	_, err := json.Marshal(m)
	assert.Error(t, err)
}

func TestMetadata_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Metadata)
		ok     bool
	}{
		{"valid", func(*Metadata) {}, true},
		{"missing uuid", func(m *Metadata) { m.UUID = "" }, false},
		{"bad source", func(m *Metadata) { m.Source = "x" }, false},
		{"bad chunk type", func(m *Metadata) { m.ChunkType = "x" }, false},
		{"payload mismatch", func(m *Metadata) { m.Payload = NewsPayload{} }, false},
		{"index out of range", func(m *Metadata) { m.ChunkIndex = 2 }, false},
		{"first flag wrong", func(m *Metadata) { m.IsFirstChunk = false }, false},
		{"single chunk", func(m *Metadata) { m.TotalChunks = 1; m.IsLastChunk = true }, true},
		{"zero total", func(m *Metadata) { m.TotalChunks = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validMetadata()
			tt.mutate(&m)
			err := m.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidInput)
			}
		})
	}
}

func TestParseSources(t *testing.T) {
	t.Run("empty means all", func(t *testing.T) {
		got, err := ParseSources(nil)
		require.NoError(t, err)
		assert.Equal(t, AllSources(), got)
	})
	t.Run("dedupes", func(t *testing.T) {
		got, err := ParseSources([]string{"news", "news", "youtube"})
		require.NoError(t, err)
		assert.Equal(t, []Source{SourceNews, SourceYouTube}, got)
	})
	t.Run("unknown", func(t *testing.T) {
		_, err := ParseSources([]string{"arxiv"})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestRawItem_SummaryText(t *testing.T) {
	item := RawItem{Title: "T", Summary: "abs", Payload: ScholarPayload{TLDR: "tl"}}
	assert.Equal(t, "Title: T\n\nAbstract: abs\n\nTL;DR: tl", item.SummaryText("Abstract"))

	bare := RawItem{Title: "Only"}
	assert.Equal(t, "Title: Only", bare.SummaryText("Snippet"))
}

func TestSource_ContentProfile(t *testing.T) {
	tests := []struct {
		source    Source
		label     string
		chunkType ChunkType
		forced    ChunkStrategy
	}{
		{SourceWebSearch, "Snippet", ChunkTypeContent, ""},
		{SourceSemanticScholar, "Abstract", ChunkTypeContent, ""},
		{SourceYouTube, "Description", ChunkTypeTranscript, ChunkTimestamp},
		{SourceNews, "Description", ChunkTypeContent, ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.source), func(t *testing.T) {
			assert.Equal(t, tt.label, tt.source.SummaryLabel())
			assert.Equal(t, tt.chunkType, tt.source.ContentChunkType())
			assert.Equal(t, tt.forced, tt.source.ForcedStrategy())
		})
	}
}
