// Package domain defines the core business entities for kgraph.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - RAGDocument: A chunked passage with its unified metadata
//   - Metadata: Common envelope plus one source-specific payload
//   - RawItem: An untouched search hit from a source adapter
//   - KnowledgeGraph: Nodes and links assembled from synthesized articles
//   - PipelineStatus: The ordered lifecycle of a graph generation run
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
