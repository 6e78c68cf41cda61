package chunker

import (
	"context"
	"strings"

	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
)

// DefaultSeparators is the split priority, coarsest first. The empty
// separator splits between characters.
var DefaultSeparators = []string{"\n\n", "\n", ". ", ", ", " ", ""}

// CodeSeparators split source code at class and function definitions
// before falling back to blank lines and words.
var CodeSeparators = []string{"\nclass ", "\ndef ", "\n\tdef ", "\nfunc ", "\n\n", "\n", " ", ""}

// Recursive greedily splits on the coarsest separator present and
// re-descends into finer separators for pieces still over budget.
// Adjacent small pieces are merged back up to the budget, repeating up to
// the overlap budget across boundaries. A separator stays attached to the
// end of the piece it closes, so punctuation survives chunk boundaries.
type Recursive struct {
	tok        driven.Tokenizer
	name       domain.ChunkStrategy
	separators []string
	// sepAtStart attaches a separator to the piece it opens instead.
	sepAtStart bool
}

var _ driven.Splitter = (*Recursive)(nil)

// Option configures the recursive splitter.
type Option func(*Recursive)

// WithSeparators replaces the separator priority list.
func WithSeparators(seps []string) Option {
	return func(r *Recursive) {
		if len(seps) > 0 {
			r.separators = seps
		}
	}
}

// NewRecursive creates a recursive splitter.
func NewRecursive(tok driven.Tokenizer, opts ...Option) *Recursive {
	r := &Recursive{tok: tok, name: domain.ChunkRecursive, separators: DefaultSeparators}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewSemantic creates the code-aware variant. Definition keywords open the
// piece that follows them, so a function stays with its signature.
func NewSemantic(tok driven.Tokenizer) *Recursive {
	r := NewRecursive(tok, WithSeparators(CodeSeparators))
	r.name = domain.ChunkSemantic
	r.sepAtStart = true
	return r
}

// Name returns the strategy name.
func (r *Recursive) Name() domain.ChunkStrategy {
	return r.name
}

// Split implements driven.Splitter.
func (r *Recursive) Split(ctx context.Context, text string, opts domain.ChunkOptions) ([]driven.Piece, error) {
	texts, err := r.split(ctx, text, r.separators, opts)
	if err != nil {
		return nil, err
	}
	pieces := make([]driven.Piece, 0, len(texts))
	for _, t := range texts {
		pieces = append(pieces, driven.Piece{Text: t})
	}
	return pieces, nil
}

// SplitText is Split without piece wrapping, for strategies that sub-split.
func (r *Recursive) SplitText(ctx context.Context, text string, opts domain.ChunkOptions) ([]string, error) {
	return r.split(ctx, text, r.separators, opts)
}

func (r *Recursive) split(ctx context.Context, text string, separators []string, opts domain.ChunkOptions) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sep := separators[len(separators)-1]
	var rest []string
	for i, s := range separators {
		if s == "" || strings.Contains(text, s) {
			sep = s
			rest = separators[i+1:]
			break
		}
	}

	var parts []string
	if sep == "" {
		for _, ch := range text {
			parts = append(parts, string(ch))
		}
	} else {
		parts = r.splitKeep(text, sep)
	}

	var out, small []string
	for _, part := range parts {
		if part == "" {
			continue
		}
		if r.tok.Count(part) < opts.ChunkSize {
			small = append(small, part)
			continue
		}
		if len(small) > 0 {
			out = append(out, r.merge(small, opts)...)
			small = nil
		}
		if len(rest) == 0 {
			out = append(out, part)
			continue
		}
		sub, err := r.split(ctx, part, rest, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	if len(small) > 0 {
		out = append(out, r.merge(small, opts)...)
	}
	return out, nil
}

func (r *Recursive) splitKeep(text, sep string) []string {
	if !r.sepAtStart {
		return strings.SplitAfter(text, sep)
	}
	parts := strings.Split(text, sep)
	for i := 1; i < len(parts); i++ {
		parts[i] = sep + parts[i]
	}
	return parts
}

// merge joins small splits into chunks no larger than the budget, keeping
// up to the overlap budget of trailing splits at the start of the next chunk.
// Splits already carry their separators, so they are concatenated as is.
func (r *Recursive) merge(splits []string, opts domain.ChunkOptions) []string {
	var (
		docs    []string
		current []string
		sizes   []int
		total   int
	)
	for _, s := range splits {
		n := r.tok.Count(s)
		if total+n > opts.ChunkSize && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				docs = append(docs, doc)
			}
			for total > opts.ChunkOverlap || (total > 0 && total+n > opts.ChunkSize) {
				total -= sizes[0]
				current, sizes = current[1:], sizes[1:]
			}
		}
		total += n
		current = append(current, s)
		sizes = append(sizes, n)
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}
