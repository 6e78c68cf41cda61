// Package gemini provides an embedding service adapter using the Google Gen
// AI SDK.
package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	geminillm "github.com/custodia-labs/kgraph/internal/adapters/driven/llm/gemini"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultModel      = "gemini-embedding-001"
	DefaultDimensions = 768
)

// maxBatch is the largest number of texts per embed request.
const maxBatch = 100

// Config holds configuration for the Gemini embedding service.
type Config struct {
	geminillm.Config

	// Dimensions truncates the output vectors (default 768).
	Dimensions int

	// TaskType hints the embedding use (default RETRIEVAL_DOCUMENT).
	TaskType string
}

// EmbeddingService generates embeddings using Gemini.
type EmbeddingService struct {
	client     *genai.Client
	model      string
	dimensions int
	taskType   string
}

// NewEmbeddingService creates a new Gemini embedding service.
func NewEmbeddingService(ctx context.Context, cfg Config) (*EmbeddingService, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.TaskType == "" {
		cfg.TaskType = "RETRIEVAL_DOCUMENT"
	}
	client, err := geminillm.NewClient(ctx, cfg.Config)
	if err != nil {
		return nil, err
	}
	return &EmbeddingService{client: client, model: cfg.Model, dimensions: cfg.Dimensions, taskType: cfg.TaskType}, nil
}

// Embed generates a vector embedding for the given text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in requests of at most 100.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := min(start+maxBatch, len(texts))
		contents := make([]*genai.Content, 0, end-start)
		for _, t := range texts[start:end] {
			contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
		}
		resp, err := s.client.Models.EmbedContent(ctx, s.model, contents, &genai.EmbedContentConfig{
			TaskType:             s.taskType,
			OutputDimensionality: genai.Ptr(int32(s.dimensions)),
		})
		if err != nil {
			return nil, geminillm.Classify(err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini: got %d embeddings for %d texts", len(resp.Embeddings), end-start)
		}
		for _, e := range resp.Embeddings {
			out = append(out, e.Values)
		}
	}
	return out, nil
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping validates the key by fetching the model description.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	if _, err := s.client.Models.Get(ctx, s.model, nil); err != nil {
		return fmt.Errorf("gemini: ping failed: %w", geminillm.Classify(err))
	}
	return nil
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return nil
}
