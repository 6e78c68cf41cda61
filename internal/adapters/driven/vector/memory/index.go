// Package memory provides an in-memory cosine similarity index.
// It implements the driven.VectorIndex interface.
package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// ErrClosed is returned by operations on a closed index.
var ErrClosed = errors.New("vector index is closed")

type entry struct {
	driven.VectorEntry
	norm float64
	seq  uint64
}

// Index is an exact cosine index keyed by passage uuid. Search scans every
// entry that passes the filter, which is adequate for the per-graph corpora
// this system builds.
type Index struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]*entry
	seq       uint64
	closed    bool
}

// New creates an index. A dimension of zero is fixed by the first Add.
func New(dimension int) (*Index, error) {
	if dimension < 0 {
		return nil, fmt.Errorf("%w: dimension must not be negative", domain.ErrInvalidInput)
	}
	return &Index{
		dimension: dimension,
		entries:   make(map[string]*entry),
	}, nil
}

// Add inserts or replaces entries. Replacing keeps the original insertion
// position for tie ordering.
func (idx *Index) Add(_ context.Context, entries ...driven.VectorEntry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return ErrClosed
	}
	for _, e := range entries {
		id := e.Document.Metadata.UUID
		if id == "" {
			return fmt.Errorf("%w: vector entry needs a uuid", domain.ErrInvalidInput)
		}
		if len(e.Embedding) == 0 {
			return fmt.Errorf("%w: empty embedding for %s", domain.ErrInvalidInput, id)
		}
		if idx.dimension == 0 {
			idx.dimension = len(e.Embedding)
		}
		if len(e.Embedding) != idx.dimension {
			return fmt.Errorf("%w: embedding dimension %d, index expects %d",
				domain.ErrInvalidInput, len(e.Embedding), idx.dimension)
		}

		seq := idx.seq
		if prev, ok := idx.entries[id]; ok {
			seq = prev.seq
		} else {
			idx.seq++
		}
		idx.entries[id] = &entry{VectorEntry: e, norm: norm(e.Embedding), seq: seq}
	}
	return nil
}

// Has reports whether a passage uuid is indexed.
func (idx *Index) Has(_ context.Context, uuid string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.entries[uuid]
	return ok
}

// Delete removes a passage from the index.
func (idx *Index) Delete(_ context.Context, uuid string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}
	delete(idx.entries, uuid)
	return nil
}

// Search returns up to k entries passing filter, by descending cosine
// similarity. Ties keep insertion order.
func (idx *Index) Search(ctx context.Context, query []float32, k int, filter domain.VectorFilter) ([]driven.VectorHit, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, ErrClosed
	}
	if k <= 0 {
		return nil, nil
	}
	if idx.dimension != 0 && len(query) != idx.dimension {
		return nil, fmt.Errorf("%w: query dimension %d, index expects %d",
			domain.ErrInvalidInput, len(query), idx.dimension)
	}
	qn := norm(query)

	type scored struct {
		e   *entry
		sim float64
	}
	candidates := make([]scored, 0, len(idx.entries))
	for _, e := range idx.entries {
		if !filter.Match(e.BatchUUID, e.Document.Metadata.Source) {
			continue
		}
		candidates = append(candidates, scored{e: e, sim: cosine(query, qn, e.Embedding, e.norm)})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].sim != candidates[j].sim {
			return candidates[i].sim > candidates[j].sim
		}
		return candidates[i].e.seq < candidates[j].e.seq
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	hits := make([]driven.VectorHit, len(candidates))
	for i, c := range candidates {
		hits[i] = driven.VectorHit{
			Document:   c.e.Document,
			BatchUUID:  c.e.BatchUUID,
			Similarity: c.sim,
		}
	}
	return hits, nil
}

// Count returns the number of indexed passages.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Dimension returns the vector size, zero until the first Add.
func (idx *Index) Dimension() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dimension
}

// Close releases the entries. Further calls fail with ErrClosed.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.closed = true
	idx.entries = nil
	return nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine similarity of a and b, zero when either is a
// zero vector or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	return cosine(a, norm(a), b, norm(b))
}

func cosine(a []float32, an float64, b []float32, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (an * bn)
}
