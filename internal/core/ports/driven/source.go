package driven

import (
	"context"

	"github.com/custodia-labs/kgraph/internal/core/domain"
)

// SourceAdapter searches one upstream source and extracts item content.
// Implementations own their transport, rate limiting and error typing; a
// failure in one adapter never affects another.
type SourceAdapter interface {
	// Source returns the discriminator this adapter produces.
	Source() domain.Source

	// Search returns raw items for the given parameters.
	Search(ctx context.Context, params domain.SearchParams) ([]domain.RawItem, error)

	// ExtractContent returns the item's full text. ok is false when the item
	// has no extractable content; that is not an error.
	ExtractContent(ctx context.Context, item domain.RawItem) (text string, ok bool, err error)
}

// ContentExtractor turns a fetched page or file into plain text.
// Used by adapters to share HTML and PDF handling.
type ContentExtractor interface {
	// Extract fetches url and returns its readable text.
	Extract(ctx context.Context, url string) (string, error)
}
