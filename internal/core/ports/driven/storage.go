package driven

import (
	"context"

	"github.com/custodia-labs/kgraph/internal/core/domain"
)

// StoredPassage is a persisted passage together with its batch.
type StoredPassage struct {
	BatchUUID string
	Document  domain.RAGDocument
}

// PassageStore persists passages as two parallel, batch-partitioned record
// streams: a minimal document record and the full metadata record.
// Writes are append-only and safe for concurrent callers.
type PassageStore interface {
	// Save writes each document and its metadata under batch.
	Save(ctx context.Context, batch string, docs []domain.RAGDocument) error

	// ListBatch returns the passages of one batch, optionally restricted
	// to sources.
	ListBatch(ctx context.Context, batch string, sources []domain.Source) ([]StoredPassage, error)

	// Walk streams every stored passage. Returning an error from fn stops
	// the walk and returns that error.
	Walk(ctx context.Context, fn func(StoredPassage) error) error

	// Root returns the directory holding the documents tree.
	Root() string
}

// GraphStore persists the per-graph artifacts.
type GraphStore interface {
	// SaveArticles atomically writes articles.json.
	SaveArticles(ctx context.Context, graphID string, set domain.ArticleSet) error

	// LoadArticles reads articles.json. Returns domain.ErrNotFound when absent.
	LoadArticles(ctx context.Context, graphID string) (domain.ArticleSet, error)

	// SaveGraph atomically writes graph.json.
	SaveGraph(ctx context.Context, graphID string, g domain.KnowledgeGraph) error

	// LoadGraph reads graph.json. Returns domain.ErrNotFound when absent.
	LoadGraph(ctx context.Context, graphID string) (domain.KnowledgeGraph, error)
}

// StatusStore holds graph registry rows.
// Implementations refuse transitions that move a graph backwards or out of
// a terminal stage with domain.ErrInvalidTransition.
type StatusStore interface {
	// Create registers a graph in the created stage.
	Create(ctx context.Context, rec domain.GraphRecord) error

	// SetStatus records a new status value, creating the row if needed.
	SetStatus(ctx context.Context, graphID string, status domain.PipelineStatus) error

	// SetTitle updates the display title.
	SetTitle(ctx context.Context, graphID, title string) error

	// Get returns the row. Returns domain.ErrNotFound when absent.
	Get(ctx context.Context, graphID string) (domain.GraphRecord, error)

	// List returns rows newest first.
	List(ctx context.Context, limit int) ([]domain.GraphRecord, error)

	// Close releases resources.
	Close() error
}

// StatusHistory is implemented by status stores that keep every accepted
// status change, not just the latest.
type StatusHistory interface {
	// History returns the status changes of one graph, oldest first.
	// A positive limit keeps only the most recent entries.
	History(ctx context.Context, graphID string, limit int) ([]domain.StatusEvent, error)
}
