// Package postprocessors turns extracted text into enriched passages.
// A Pipeline cleans text, runs the selected splitting strategy and stamps
// position metadata on every resulting passage.
package postprocessors

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
)

var _ driven.Chunker = (*Pipeline)(nil)

// Pipeline implements driven.Chunker on top of a strategy registry.
type Pipeline struct {
	registry *Registry
	tok      driven.Tokenizer
	configs  map[domain.ChunkStrategy]map[string]any
	defaults domain.ChunkOptions

	mu        sync.Mutex
	splitters map[domain.ChunkStrategy]driven.Splitter
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithStrategyConfig passes generic config to a strategy builder.
func WithStrategyConfig(name domain.ChunkStrategy, cfg map[string]any) PipelineOption {
	return func(p *Pipeline) {
		p.configs[name.Canonical()] = cfg
	}
}

// WithDefaults sets the options used for zero-valued request fields.
func WithDefaults(opts domain.ChunkOptions) PipelineOption {
	return func(p *Pipeline) {
		p.defaults = opts
	}
}

// NewPipeline creates a chunking pipeline.
func NewPipeline(registry *Registry, tok driven.Tokenizer, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		registry:  registry,
		tok:       tok,
		configs:   make(map[domain.ChunkStrategy]map[string]any),
		defaults:  domain.DefaultChunkOptions(),
		splitters: make(map[domain.ChunkStrategy]driven.Splitter),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OptionsFromConfig reads chunk_size, chunk_overlap and strategy from
// generic config, leaving absent keys zero.
func OptionsFromConfig(cfg map[string]any) domain.ChunkOptions {
	var opts domain.ChunkOptions
	if cfg == nil {
		return opts
	}
	opts.ChunkSize = getIntFromConfig(cfg, "chunk_size")
	opts.ChunkOverlap = getIntFromConfig(cfg, "chunk_overlap")
	if s, ok := cfg["strategy"].(string); ok {
		opts.Strategy = domain.ChunkStrategy(s)
	}
	return opts
}

// Chunk implements driven.Chunker.
func (p *Pipeline) Chunk(ctx context.Context, text string, base domain.Metadata, opts domain.ChunkOptions) ([]domain.RAGDocument, error) {
	cleaned := CleanText(text)
	if cleaned == "" {
		return nil, nil
	}

	if opts.Strategy == "" {
		opts.Strategy = p.defaults.Strategy
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = p.defaults.ChunkSize
	}
	if opts.ChunkOverlap == 0 {
		opts.ChunkOverlap = p.defaults.ChunkOverlap
	}
	opts, err := opts.Normalise()
	if err != nil {
		return nil, err
	}

	splitter, err := p.splitter(opts.Strategy)
	if err != nil {
		return nil, err
	}
	pieces, err := splitter.Split(ctx, cleaned, opts)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", splitter.Name(), err)
	}
	return Enrich(pieces, base, p.tok), nil
}

func (p *Pipeline) splitter(name domain.ChunkStrategy) (driven.Splitter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.splitters[name]; ok {
		return s, nil
	}
	s, err := p.registry.Build(name, p.tok, p.configs[name])
	if err != nil {
		return nil, err
	}
	p.splitters[name] = s
	return s, nil
}

// Enrich turns pieces into passages. Each passage copies base, gets a fresh
// uuid, and is stamped with its position and token count. Piece extras
// override base extras field by field. Blank pieces are dropped first so
// chunk_index stays dense.
func Enrich(pieces []driven.Piece, base domain.Metadata, tok driven.Tokenizer) []domain.RAGDocument {
	kept := pieces[:0:0]
	for _, p := range pieces {
		if strings.TrimSpace(p.Text) != "" {
			kept = append(kept, p)
		}
	}

	docs := make([]domain.RAGDocument, len(kept))
	for i, piece := range kept {
		md := base
		md.UUID = uuid.NewString()
		md.ChunkIndex = i
		md.TotalChunks = len(kept)
		md.IsFirstChunk = i == 0
		md.IsLastChunk = i == len(kept)-1
		md.TokenCount = tok.Count(piece.Text)
		md.Extras = mergeExtras(base.Extras, piece.Extras)
		docs[i] = domain.RAGDocument{Content: piece.Text, Metadata: md}
	}
	return docs
}

func mergeExtras(base, over domain.ChunkExtras) domain.ChunkExtras {
	pick := func(a, b string) string {
		if b != "" {
			return b
		}
		return a
	}
	out := domain.ChunkExtras{
		Header1:        pick(base.Header1, over.Header1),
		Header2:        pick(base.Header2, over.Header2),
		Header3:        pick(base.Header3, over.Header3),
		TimestampStart: pick(base.TimestampStart, over.TimestampStart),
		TimestampEnd:   pick(base.TimestampEnd, over.TimestampEnd),
		StartSeconds:   base.StartSeconds,
	}
	if over.StartSeconds != nil {
		out.StartSeconds = over.StartSeconds
	}
	return out
}

var (
	horizontalSpace = regexp.MustCompile(`[ \t\f\v]+`)
	blankRuns       = regexp.MustCompile(`\n{3,}`)
)

// CleanText normalises whitespace while keeping line structure: horizontal
// runs collapse to one space, lines are right-trimmed, CRLF becomes LF and
// three or more newlines collapse to a paragraph break.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = horizontalSpace.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	text = strings.Join(lines, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
