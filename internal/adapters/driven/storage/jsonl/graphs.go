package jsonl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
)

const (
	articlesFile = "articles.json"
	graphFile    = "graph.json"
)

var _ driven.GraphStore = (*GraphStore)(nil)

// GraphStore keeps one directory per graph holding articles.json and
// graph.json.
type GraphStore struct {
	root string
}

// NewGraphStore creates the graph directory.
func NewGraphStore(root string) (*GraphStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating graph dir: %v", domain.ErrPersistence, err)
	}
	return &GraphStore{root: root}, nil
}

func (s *GraphStore) path(graphID, name string) (string, error) {
	if err := ValidateBatch(graphID); err != nil {
		return "", err
	}
	return filepath.Join(s.root, graphID, name), nil
}

// SaveArticles implements driven.GraphStore.
func (s *GraphStore) SaveArticles(ctx context.Context, graphID string, set domain.ArticleSet) error {
	return s.save(ctx, graphID, articlesFile, set)
}

// LoadArticles implements driven.GraphStore.
func (s *GraphStore) LoadArticles(ctx context.Context, graphID string) (domain.ArticleSet, error) {
	var set domain.ArticleSet
	err := s.load(ctx, graphID, articlesFile, &set)
	return set, err
}

// SaveGraph implements driven.GraphStore.
func (s *GraphStore) SaveGraph(ctx context.Context, graphID string, g domain.KnowledgeGraph) error {
	return s.save(ctx, graphID, graphFile, g)
}

// LoadGraph implements driven.GraphStore.
func (s *GraphStore) LoadGraph(ctx context.Context, graphID string) (domain.KnowledgeGraph, error) {
	var g domain.KnowledgeGraph
	err := s.load(ctx, graphID, graphFile, &g)
	return g, err
}

func (s *GraphStore) save(ctx context.Context, graphID, name string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(graphID, name)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	return writeAtomic(path, data)
}

func (s *GraphStore) load(ctx context.Context, graphID, name string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(graphID, name)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("graph %s %s: %w", graphID, name, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", domain.ErrPersistence, path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decoding %s: %v", domain.ErrPersistence, path, err)
	}
	return nil
}
