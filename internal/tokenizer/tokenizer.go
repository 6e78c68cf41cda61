// Package tokenizer provides the reference token counter used for every
// chunk budget. Counts use the cl100k_base encoding (gpt-3.5-turbo) so chunk
// sizes are reproducible regardless of the configured LLM.
package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
)

// ReferenceModel is the model whose encoding defines token counts.
const ReferenceModel = "gpt-3.5-turbo"

var _ driven.Tokenizer = (*Tiktoken)(nil)

var loaderOnce sync.Once

// Tiktoken counts tokens with a BPE encoding.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// New returns the reference tokenizer. The BPE ranks are embedded, so no
// network access is needed.
func New() (*Tiktoken, error) {
	return ForModel(ReferenceModel)
}

// ForModel returns a tokenizer for a specific model's encoding.
func ForModel(model string) (*Tiktoken, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("tokenizer for %s: %w", model, err)
	}
	return &Tiktoken{enc: enc}, nil
}

// Encode implements driven.Tokenizer.
func (t *Tiktoken) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// Decode implements driven.Tokenizer.
func (t *Tiktoken) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

// Count implements driven.Tokenizer.
func (t *Tiktoken) Count(text string) int {
	return len(t.Encode(text))
}

var _ driven.Tokenizer = (*Words)(nil)

// Words treats every whitespace-separated word as one token. Ids are
// assigned from a growing vocabulary, and Decode joins words with single
// spaces. Intended for tests and as a fallback when no encoding loads.
type Words struct {
	mu    sync.Mutex
	ids   map[string]int
	words []string
}

// NewWords returns an empty word tokenizer.
func NewWords() *Words {
	return &Words{ids: make(map[string]int)}
}

// Encode implements driven.Tokenizer.
func (w *Words) Encode(text string) []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	fields := strings.Fields(text)
	out := make([]int, len(fields))
	for i, f := range fields {
		id, ok := w.ids[f]
		if !ok {
			id = len(w.words)
			w.ids[f] = id
			w.words = append(w.words, f)
		}
		out[i] = id
	}
	return out
}

// Decode implements driven.Tokenizer.
func (w *Words) Decode(tokens []int) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	parts := make([]string, 0, len(tokens))
	for _, id := range tokens {
		if id >= 0 && id < len(w.words) {
			parts = append(parts, w.words[id])
		}
	}
	return strings.Join(parts, " ")
}

// Count implements driven.Tokenizer.
func (w *Words) Count(text string) int {
	return len(strings.Fields(text))
}
