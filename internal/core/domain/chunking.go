package domain

import "fmt"

// ChunkStrategy names a text splitting strategy.
type ChunkStrategy string

// Available chunking strategies.
const (
	// ChunkRecursive splits on a priority list of separators.
	ChunkRecursive ChunkStrategy = "recursive"

	// ChunkSemantic is recursive splitting with code-aware separators.
	ChunkSemantic ChunkStrategy = "semantic"

	// ChunkToken uses fixed-width token windows.
	ChunkToken ChunkStrategy = "token"

	// ChunkMarkdown splits at heading boundaries.
	ChunkMarkdown ChunkStrategy = "markdown"

	// ChunkTimestamp groups [hh:mm:ss]-tagged transcript lines.
	ChunkTimestamp ChunkStrategy = "timestamp"

	// ChunkYouTube is an alias for ChunkTimestamp.
	ChunkYouTube ChunkStrategy = "youtube"
)

// Canonical resolves aliases.
func (s ChunkStrategy) Canonical() ChunkStrategy {
	if s == ChunkYouTube {
		return ChunkTimestamp
	}
	return s
}

// IsValid returns true if the strategy is recognised.
func (s ChunkStrategy) IsValid() bool {
	switch s.Canonical() {
	case ChunkRecursive, ChunkSemantic, ChunkToken, ChunkMarkdown, ChunkTimestamp:
		return true
	default:
		return false
	}
}

// Chunker defaults.
const (
	DefaultChunkSize    = 3000
	DefaultChunkOverlap = 200
)

// ChunkOptions configures a single chunking call.
type ChunkOptions struct {
	// Strategy selects the splitter. Empty means recursive.
	Strategy ChunkStrategy

	// ChunkSize is the token budget per chunk.
	ChunkSize int

	// ChunkOverlap is the number of tokens repeated across boundaries.
	ChunkOverlap int
}

// DefaultChunkOptions returns the chunker defaults.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		Strategy:     ChunkRecursive,
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
	}
}

// Normalise fills zero values with defaults and clamps an overlap that
// would swallow the whole window to a quarter of the chunk size.
func (o ChunkOptions) Normalise() (ChunkOptions, error) {
	if o.Strategy == "" {
		o.Strategy = ChunkRecursive
	}
	if !o.Strategy.IsValid() {
		return o, fmt.Errorf("%w: unknown chunking strategy %q", ErrInvalidInput, o.Strategy)
	}
	o.Strategy = o.Strategy.Canonical()
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ChunkOverlap < 0 {
		o.ChunkOverlap = 0
	}
	if o.ChunkOverlap >= o.ChunkSize {
		o.ChunkOverlap = o.ChunkSize / 4
	}
	return o, nil
}
