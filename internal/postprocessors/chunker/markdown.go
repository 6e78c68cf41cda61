package chunker

import (
	"context"
	"strings"

	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
)

// Markdown splits at #, ## and ### headings and records the enclosing
// heading hierarchy as header_1..3. Heading lines are not repeated in the
// section text. Sections over budget are sub-split recursively and every
// sub-piece keeps the section's headers.
type Markdown struct {
	tok       driven.Tokenizer
	recursive *Recursive
}

var _ driven.Splitter = (*Markdown)(nil)

// NewMarkdown creates a markdown heading splitter.
func NewMarkdown(tok driven.Tokenizer) *Markdown {
	return &Markdown{tok: tok, recursive: NewRecursive(tok)}
}

// Name returns the strategy name.
func (m *Markdown) Name() domain.ChunkStrategy {
	return domain.ChunkMarkdown
}

type section struct {
	headers [3]string
	body    string
}

// headingLevel returns 1..3 for a supported heading line and its title.
func headingLevel(line string) (int, string) {
	for level := 3; level >= 1; level-- {
		prefix := strings.Repeat("#", level) + " "
		if strings.HasPrefix(line, prefix) {
			return level, strings.TrimSpace(line[len(prefix):])
		}
	}
	return 0, ""
}

// Split implements driven.Splitter.
func (m *Markdown) Split(ctx context.Context, text string, opts domain.ChunkOptions) ([]driven.Piece, error) {
	var (
		sections []section
		headers  [3]string
		current  []string
		inFence  bool
	)
	flush := func() {
		body := strings.TrimSpace(strings.Join(current, "\n"))
		if body != "" {
			sections = append(sections, section{headers: headers, body: body})
		}
		current = nil
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		}
		if !inFence {
			if level, title := headingLevel(line); level > 0 {
				flush()
				headers[level-1] = title
				for i := level; i < len(headers); i++ {
					headers[i] = ""
				}
				continue
			}
		}
		current = append(current, line)
	}
	flush()

	var pieces []driven.Piece
	for _, s := range sections {
		extras := domain.ChunkExtras{Header1: s.headers[0], Header2: s.headers[1], Header3: s.headers[2]}
		if m.tok.Count(s.body) <= opts.ChunkSize {
			pieces = append(pieces, driven.Piece{Text: s.body, Extras: extras})
			continue
		}
		parts, err := m.recursive.SplitText(ctx, s.body, opts)
		if err != nil {
			return nil, err
		}
		for _, p := range parts {
			pieces = append(pieces, driven.Piece{Text: p, Extras: extras})
		}
	}
	return pieces, nil
}
