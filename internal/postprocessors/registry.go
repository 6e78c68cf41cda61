package postprocessors

import (
	"fmt"
	"sort"

	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
)

// BuilderFunc creates a Splitter from the shared tokenizer and generic config.
// Config is a map of strategy-specific settings parsed from user config.
type BuilderFunc func(tok driven.Tokenizer, cfg map[string]any) (driven.Splitter, error)

// Registry maps strategy names to their builders.
// It allows dynamic construction of splitters from configuration.
type Registry struct {
	builders map[domain.ChunkStrategy]BuilderFunc
}

// NewRegistry creates a new strategy registry.
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[domain.ChunkStrategy]BuilderFunc),
	}
}

// Register adds a strategy builder to the registry.
func (r *Registry) Register(name domain.ChunkStrategy, builder BuilderFunc) {
	r.builders[name] = builder
}

// Build creates a splitter by name with the given config.
// Returns error if the strategy name is not registered.
func (r *Registry) Build(name domain.ChunkStrategy, tok driven.Tokenizer, cfg map[string]any) (driven.Splitter, error) {
	builder, ok := r.builders[name.Canonical()]
	if !ok {
		return nil, fmt.Errorf("%w: unknown chunking strategy: %s", domain.ErrUnsupportedType, name)
	}
	return builder(tok, cfg)
}

// Has returns true if a strategy with the given name is registered.
func (r *Registry) Has(name domain.ChunkStrategy) bool {
	_, ok := r.builders[name.Canonical()]
	return ok
}

// Names returns all registered strategy names, sorted.
func (r *Registry) Names() []domain.ChunkStrategy {
	names := make([]domain.ChunkStrategy, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
