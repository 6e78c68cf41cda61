package mcp

import (
	"github.com/custodia-labs/kgraph/internal/core/ports/driving"
)

// Ports aggregates the driving ports the MCP server calls.
type Ports struct {
	// Retrieval runs search-all.
	Retrieval driving.RetrievalService

	// Search answers vector queries. Optional; without it vector_search
	// reports that embeddings are unavailable.
	Search driving.VectorSearchService

	// Graphs generates and serves knowledge graphs.
	Graphs driving.GraphService
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Retrieval == nil {
		return ErrMissingRetrievalService
	}
	if p.Graphs == nil {
		return ErrMissingGraphService
	}
	return nil
}
