package driving

import (
	"context"

	"github.com/custodia-labs/kgraph/internal/core/domain"
)

// GraphService generates and serves knowledge graphs.
type GraphService interface {
	// Generate runs the whole pipeline synchronously.
	Generate(ctx context.Context, graphID, query string) (domain.KnowledgeGraph, error)

	// Start launches the pipeline in the background and returns once the
	// run is registered. Returns domain.ErrPipelineRunning for a duplicate.
	Start(graphID, query string) error

	// Status returns the persisted registry row for a graph.
	Status(ctx context.Context, graphID string) (domain.GraphRecord, error)

	// History returns the accepted status changes of a graph, newest last.
	// Returns domain.ErrNotImplemented when the status backend keeps none.
	History(ctx context.Context, graphID string, limit int) ([]domain.StatusEvent, error)

	// List returns registry rows, most recently updated first.
	List(ctx context.Context, limit int) ([]domain.GraphRecord, error)

	// Running returns the ids of in-flight pipelines.
	Running() []string

	// Graph returns the assembled graph.
	Graph(ctx context.Context, graphID string) (domain.KnowledgeGraph, error)

	// Merge is reserved for incremental updates and is not supported.
	Merge(ctx context.Context, graphID, previousID string) error

	// Wait blocks until every background run has finished.
	Wait()
}
