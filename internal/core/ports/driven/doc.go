// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - SourceAdapter: Searches one upstream source and extracts item content
//   - Chunker: Splits text into token-bounded passages
//   - PassageStore: Batch-partitioned passage and metadata persistence
//   - GraphStore: articles.json and graph.json persistence
//   - StatusStore: Graph registry rows (title and status)
//   - ConfigStore: Application configuration
//   - PromptStore: LLM prompt templates
//   - Tokenizer: The reference token counter
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - VectorIndex and EmbeddingService: without them vector search is disabled.
//   - Reranker: without it rerank requests fall back to similarity order.
//   - LLMService: without it graph generation is disabled; search-all still works.
//   - Metrics: without it nothing is recorded.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter, connector, or normaliser package
package driven
