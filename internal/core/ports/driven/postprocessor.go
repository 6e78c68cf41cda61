package driven

import (
	"context"

	"github.com/custodia-labs/kgraph/internal/core/domain"
)

// Piece is one split of a text before metadata enrichment.
type Piece struct {
	// Text is the chunk content.
	Text string

	// Extras carries strategy-specific position data (headers, timestamps).
	Extras domain.ChunkExtras
}

// Splitter is one chunking strategy.
type Splitter interface {
	// Name returns the strategy name.
	Name() domain.ChunkStrategy

	// Split divides cleaned text into pieces under the token budget.
	Split(ctx context.Context, text string, opts domain.ChunkOptions) ([]Piece, error)
}

// Chunker cleans, splits and enriches text into passages.
type Chunker interface {
	// Chunk returns passages whose metadata merges base with position
	// fields. Empty input yields no passages and no error. Each passage
	// gets a fresh uuid.
	Chunk(ctx context.Context, text string, base domain.Metadata, opts domain.ChunkOptions) ([]domain.RAGDocument, error)
}

// Tokenizer is the fixed reference token counter.
type Tokenizer interface {
	// Encode returns token ids for text.
	Encode(text string) []int

	// Decode returns text for token ids.
	Decode(tokens []int) string

	// Count returns the number of tokens in text.
	Count(text string) int
}
