// Package chunker provides the text splitting strategies. Every strategy
// measures size in tokens of the shared reference tokenizer.
package chunker

import (
	"context"

	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
)

// Token splits text into fixed-width token windows with overlap,
// ignoring separators.
type Token struct {
	tok driven.Tokenizer
}

var _ driven.Splitter = (*Token)(nil)

// NewToken creates a token window splitter.
func NewToken(tok driven.Tokenizer) *Token {
	return &Token{tok: tok}
}

// Name returns the strategy name.
func (t *Token) Name() domain.ChunkStrategy {
	return domain.ChunkToken
}

// Split implements driven.Splitter.
func (t *Token) Split(ctx context.Context, text string, opts domain.ChunkOptions) ([]driven.Piece, error) {
	ids := t.tok.Encode(text)
	if len(ids) == 0 {
		return nil, nil
	}
	step := opts.ChunkSize - opts.ChunkOverlap
	if step <= 0 {
		step = opts.ChunkSize
	}

	pieces := make([]driven.Piece, 0, len(ids)/step+1)
	for start := 0; start < len(ids); start += step {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + opts.ChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		pieces = append(pieces, driven.Piece{Text: t.tok.Decode(ids[start:end])})
		if end == len(ids) {
			break
		}
	}
	return pieces, nil
}
