package postprocessors

import (
	"github.com/spf13/cast"

	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
	"github.com/custodia-labs/kgraph/internal/postprocessors/chunker"
)

// RegisterDefaults registers all built-in strategies with the registry.
// Call this during application initialisation to enable standard strategies.
func RegisterDefaults(r *Registry) {
	r.Register(domain.ChunkRecursive, buildRecursive)
	r.Register(domain.ChunkSemantic, func(tok driven.Tokenizer, _ map[string]any) (driven.Splitter, error) {
		return chunker.NewSemantic(tok), nil
	})
	r.Register(domain.ChunkToken, func(tok driven.Tokenizer, _ map[string]any) (driven.Splitter, error) {
		return chunker.NewToken(tok), nil
	})
	r.Register(domain.ChunkMarkdown, func(tok driven.Tokenizer, _ map[string]any) (driven.Splitter, error) {
		return chunker.NewMarkdown(tok), nil
	})
	r.Register(domain.ChunkTimestamp, func(tok driven.Tokenizer, _ map[string]any) (driven.Splitter, error) {
		return chunker.NewTimestamp(tok), nil
	})
}

// buildRecursive creates a recursive splitter from generic config.
// Supported config keys:
//   - separators ([]string): Split priority, coarsest first
func buildRecursive(tok driven.Tokenizer, cfg map[string]any) (driven.Splitter, error) {
	var opts []chunker.Option
	if cfg != nil {
		if seps := getStringsFromConfig(cfg, "separators"); len(seps) > 0 {
			opts = append(opts, chunker.WithSeparators(seps))
		}
	}
	return chunker.NewRecursive(tok, opts...), nil
}

// getIntFromConfig safely extracts an int from generic config map.
// Handles the numeric types that may come from TOML/JSON parsing.
func getIntFromConfig(cfg map[string]any, key string) int {
	val, ok := cfg[key]
	if !ok {
		return 0
	}
	n, err := cast.ToIntE(val)
	if err != nil {
		return 0
	}
	return n
}

// getStringsFromConfig extracts a string list from generic config.
func getStringsFromConfig(cfg map[string]any, key string) []string {
	val, ok := cfg[key]
	if !ok {
		return nil
	}
	s, err := cast.ToStringSliceE(val)
	if err != nil {
		return nil
	}
	return s
}
