// Package mcp exposes kgraph to AI assistants over the Model Context
// Protocol: retrieval, vector search and knowledge graph generation as
// tools, stored graphs as resources.
package mcp

import "errors"

var (
	// ErrMissingRetrievalService is returned when the retrieval service is not provided.
	ErrMissingRetrievalService = errors.New("mcp: retrieval service is required")

	// ErrMissingGraphService is returned when the graph service is not provided.
	ErrMissingGraphService = errors.New("mcp: graph service is required")
)
