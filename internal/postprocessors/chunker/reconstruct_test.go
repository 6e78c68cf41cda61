package chunker_test

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
	"github.com/custodia-labs/kgraph/internal/postprocessors"
	"github.com/custodia-labs/kgraph/internal/postprocessors/chunker"
	"github.com/custodia-labs/kgraph/internal/tokenizer"
)

// prose builds text of unique words with commas, sentence ends and
// paragraph breaks, plus untidy whitespace for the cleaner to fix.
func prose(prefix string, n int) string {
	var b strings.Builder
	for i := range n {
		fmt.Fprintf(&b, "%s%d", prefix, i)
		switch {
		case i == n-1:
		case (i+1)%20 == 0:
			b.WriteString(".\r\n\n\n")
		case (i+1)%7 == 0:
			b.WriteString(".  ")
		case (i+1)%3 == 0:
			b.WriteString(",\t")
		default:
			b.WriteString(" ")
		}
	}
	return b.String()
}

func transcript(n int) string {
	lines := []string{"Welcome to the show"}
	for i := range n {
		lines = append(lines, fmt.Sprintf("[%s] s%da s%db", chunker.FormatStamp(float64(i*7)), i, i))
		if i%4 == 3 {
			lines = append(lines, fmt.Sprintf("c%d continues", i))
		}
	}
	return strings.Join(lines, "\n")
}

// reconstruct concatenates piece words in order, dropping the longest
// prefix of each piece that repeats the tail of what came before. Words
// are unique in the inputs, so only real overlap can match. Markdown
// headings live in metadata and are re-inserted when they change.
func reconstruct(pieces []driven.Piece, withHeaders bool) []string {
	var (
		out  []string
		prev [3]string
	)
	for _, p := range pieces {
		if withHeaders {
			cur := [3]string{p.Extras.Header1, p.Extras.Header2, p.Extras.Header3}
			for i := range cur {
				if cur[i] != prev[i] && cur[i] != "" {
					out = append(out, strings.Fields(cur[i])...)
				}
			}
			prev = cur
		}
		words := strings.Fields(p.Text)
		k := min(len(out), len(words))
		for ; k > 0; k-- {
			if slices.Equal(out[len(out)-k:], words[:k]) {
				break
			}
		}
		out = append(out, words[k:]...)
	}
	return out
}

func TestSplitters_ReconstructCleanedInput(t *testing.T) {
	tok := tokenizer.NewWords()
	markdown := "Preface words here\n# Alpha One\n" + prose("a", 30) +
		"\n## Beta Two\n" + prose("b", 12) + "\n### Gamma\n" + prose("g", 5) + "\n## Delta\n" + prose("d", 9)

	tests := []struct {
		name     string
		splitter driven.Splitter
		input    string
		opts     domain.ChunkOptions
		headers  bool
	}{
		{"recursive", chunker.NewRecursive(tok), prose("w", 75), domain.ChunkOptions{ChunkSize: 8, ChunkOverlap: 3}, false},
		{"recursive word level", chunker.NewRecursive(tok), prose("w", 75), domain.ChunkOptions{ChunkSize: 5, ChunkOverlap: 2}, false},
		{"semantic", chunker.NewSemantic(tok), prose("w", 75), domain.ChunkOptions{ChunkSize: 8, ChunkOverlap: 3}, false},
		{"token", chunker.NewToken(tok), prose("w", 75), domain.ChunkOptions{ChunkSize: 8, ChunkOverlap: 3}, false},
		{"markdown", chunker.NewMarkdown(tok), markdown, domain.ChunkOptions{ChunkSize: 8, ChunkOverlap: 3}, true},
		{"timestamp", chunker.NewTimestamp(tok), transcript(24), domain.ChunkOptions{ChunkSize: 8, ChunkOverlap: 7}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleaned := postprocessors.CleanText(tt.input)

			pieces, err := tt.splitter.Split(context.Background(), cleaned, tt.opts)
			require.NoError(t, err)
			require.Greater(t, len(pieces), 1)

			want := slices.DeleteFunc(strings.Fields(cleaned), func(w string) bool {
				return tt.headers && strings.Trim(w, "#") == ""
			})
			got := reconstruct(pieces, tt.headers)

			assert.Equal(t, want, got)
			assert.Equal(t, len(strings.Join(want, "")), len(strings.Join(got, "")), "non-whitespace length")
		})
	}
}
