package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
	"github.com/custodia-labs/kgraph/internal/core/ports/driving"
	"github.com/custodia-labs/kgraph/internal/logger"
)

// Ensure RetrievalService implements the interface.
var _ driving.RetrievalService = (*RetrievalService)(nil)

// extractConcurrency bounds content fetches per adapter call.
const extractConcurrency = 8

// RetrievalService runs search-all: every requested source is searched
// concurrently, each item becomes a summary passage plus chunked content,
// and the passages are persisted and indexed under one batch.
type RetrievalService struct {
	adapters map[domain.Source]driven.SourceAdapter
	chunker  driven.Chunker
	store    driven.PassageStore
	indexer  *Indexer
	metrics  driven.Metrics
}

// NewRetrievalService creates the service. The indexer is optional; when
// nil, passages are only persisted.
func NewRetrievalService(
	adapters []driven.SourceAdapter,
	chunker driven.Chunker,
	store driven.PassageStore,
	indexer *Indexer,
	metrics driven.Metrics,
) *RetrievalService {
	if metrics == nil {
		metrics = driven.NopMetrics{}
	}
	m := make(map[domain.Source]driven.SourceAdapter, len(adapters))
	for _, a := range adapters {
		m[a.Source()] = a
	}
	return &RetrievalService{adapters: m, chunker: chunker, store: store, indexer: indexer, metrics: metrics}
}

// Sources returns the configured sources in canonical order.
func (s *RetrievalService) Sources() []domain.Source {
	var out []domain.Source
	for _, src := range domain.AllSources() {
		if _, ok := s.adapters[src]; ok {
			out = append(out, src)
		}
	}
	return out
}

// SearchAll implements driving.RetrievalService.
//
// Source failures degrade to an empty list for that source. Persistence
// failures are fatal and wrap domain.ErrPersistence.
func (s *RetrievalService) SearchAll(ctx context.Context, req domain.SearchAllRequest) (domain.SearchAllResult, error) {
	req, err := req.Normalise()
	if err != nil {
		return domain.SearchAllResult{}, err
	}
	if req.BatchUUID == "" {
		req.BatchUUID = uuid.NewString()
	}

	result := domain.SearchAllResult{
		BatchUUID: req.BatchUUID,
		Documents: make(map[domain.Source][]domain.RAGDocument, len(req.Sources)),
	}
	for _, src := range req.Sources {
		result.Documents[src] = []domain.RAGDocument{}
	}

	var (
		mu      sync.Mutex
		failed  *multierror.Error
		started = time.Now()
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range req.Sources {
		adapter, ok := s.adapters[src]
		if !ok {
			logger.Warn("Source %s is not configured, skipping", src)
			continue
		}
		g.Go(func() error {
			docs, err := s.searchSource(gctx, adapter, req)
			if err != nil {
				if errors.Is(err, domain.ErrPersistence) {
					return err
				}
				mu.Lock()
				failed = multierror.Append(failed, fmt.Errorf("%s: %w", src, err))
				mu.Unlock()
				return nil
			}
			mu.Lock()
			result.Documents[src] = docs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	if err := failed.ErrorOrNil(); err != nil {
		logger.Warn("search-all %q: %d source(s) failed: %v", req.Keywords, failed.Len(), err)
	}
	logger.Debug("search-all %q: %d passages in batch %s (%s)", req.Keywords, result.Count(), req.BatchUUID, time.Since(started))
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// searchSource searches one adapter, builds passages for every item, then
// persists and indexes them.
func (s *RetrievalService) searchSource(ctx context.Context, adapter driven.SourceAdapter, req domain.SearchAllRequest) ([]domain.RAGDocument, error) {
	src := adapter.Source()

	start := time.Now()
	items, err := adapter.Search(ctx, req.Params())
	s.metrics.SourceCall(string(src), err, time.Since(start))
	if err != nil {
		return nil, err
	}

	perItem := make([][]domain.RAGDocument, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(extractConcurrency)
	for i, item := range items {
		g.Go(func() error {
			perItem[i] = s.itemPassages(gctx, adapter, item, req.ChunkOptions())
			return nil
		})
	}
	_ = g.Wait()

	var docs []domain.RAGDocument
	for _, d := range perItem {
		docs = append(docs, d...)
	}
	if len(docs) == 0 {
		return []domain.RAGDocument{}, nil
	}

	if err := s.store.Save(ctx, req.BatchUUID, docs); err != nil {
		return nil, fmt.Errorf("%w: %s batch %s: %w", domain.ErrPersistence, src, req.BatchUUID, err)
	}
	s.metrics.PassagesStored(string(src), len(docs))

	if s.indexer != nil {
		if err := s.indexer.IndexDocuments(ctx, req.BatchUUID, docs); err != nil {
			// Stored passages reach the index on the next rebuild.
			logger.Warn("Indexing %s passages failed: %v", src, err)
		}
	}
	return docs, nil
}

// itemPassages returns the summary passage and the content passages of one
// item. Extraction failures keep only the summary.
func (s *RetrievalService) itemPassages(ctx context.Context, adapter driven.SourceAdapter, item domain.RawItem, opts domain.ChunkOptions) []domain.RAGDocument {
	src := adapter.Source()
	base := domain.Metadata{
		Source:         src,
		Title:          item.Title,
		URL:            item.URL,
		SourceDatabase: src.Database(),
		Payload:        item.Payload,
	}

	summaryMeta := base
	summaryMeta.ChunkType = domain.ChunkTypeSummary
	docs, err := s.chunker.Chunk(ctx, item.SummaryText(src.SummaryLabel()), summaryMeta, opts)
	if err != nil {
		logger.Debug("Chunking summary of %s failed: %v", item.URL, err)
	}

	text, ok, err := adapter.ExtractContent(ctx, item)
	if err != nil {
		logger.Debug("Skipping content of %s: %v", item.URL, err)
		return docs
	}
	if !ok {
		return docs
	}

	contentMeta := base
	contentMeta.ChunkType = src.ContentChunkType()
	contentMeta.IsFullText = true
	if forced := src.ForcedStrategy(); forced != "" {
		opts.Strategy = forced
	}
	content, err := s.chunker.Chunk(ctx, text, contentMeta, opts)
	if err != nil {
		logger.Debug("Chunking content of %s failed: %v", item.URL, err)
		return docs
	}
	return append(docs, content...)
}
