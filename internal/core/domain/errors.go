package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indicates functionality is not yet available.
	ErrNotImplemented = errors.New("not implemented")

	// ErrUnsupportedType indicates an unknown source, strategy or provider.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrLLMUnavailable indicates the LLM service is not configured.
	// Topic expansion and article synthesis are disabled.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	// Vector search is disabled without embeddings.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrVectorIndexUnavailable indicates the vector index is not configured.
	ErrVectorIndexUnavailable = errors.New("vector index unavailable")

	// ErrRateLimited indicates an upstream API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrTransient indicates a timeout or server-side failure worth retrying.
	ErrTransient = errors.New("transient upstream failure")

	// ErrExtractionFailed indicates a document yielded no usable text.
	// Callers fall back to the item's abstract or summary.
	ErrExtractionFailed = errors.New("content extraction failed")

	// Pipeline Errors.

	// ErrInvalidStructuredOutput indicates the LLM returned JSON that could not be
	// parsed, repaired, or validated against the requested schema.
	ErrInvalidStructuredOutput = errors.New("invalid structured output")

	// ErrPersistence indicates an artifact could not be written.
	// It is fatal for the batch being processed.
	ErrPersistence = errors.New("persistence failure")

	// ErrInvalidTransition indicates a status change that would move a
	// pipeline backwards or out of a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrPipelineRunning indicates a pipeline for the same graph is in flight.
	ErrPipelineRunning = errors.New("pipeline already running")

	// ErrNoTopics indicates topic expansion produced nothing usable.
	ErrNoTopics = errors.New("no topics generated")

	// ErrMergeUnsupported is returned for graph merge requests. The merge
	// semantics of an updated graph against its predecessor are undefined.
	ErrMergeUnsupported = errors.New("graph merge is not supported")
)
