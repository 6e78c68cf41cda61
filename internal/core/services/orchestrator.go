package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
	"github.com/custodia-labs/kgraph/internal/core/ports/driving"
	"github.com/custodia-labs/kgraph/internal/logger"
)

// Ensure Orchestrator implements the interface.
var _ driving.GraphService = (*Orchestrator)(nil)

// statusTimeout bounds one best-effort status write.
const statusTimeout = 5 * time.Second

// Orchestrator runs the knowledge graph pipeline: topic expansion, per-topic
// retrieval, article synthesis, persistence and graph assembly.
type Orchestrator struct {
	completer *Completer
	writer    *ArticleWriter
	retrieval driving.RetrievalService
	graphs    driven.GraphStore
	status    driven.StatusStore
	metrics   driven.Metrics
	cfg       domain.PipelineSettings
	sources   []domain.Source

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	running map[string]time.Time
}

// OrchestratorDeps groups the orchestrator's collaborators.
type OrchestratorDeps struct {
	Completer *Completer
	Writer    *ArticleWriter
	Retrieval driving.RetrievalService
	Graphs    driven.GraphStore
	Status    driven.StatusStore
	Metrics   driven.Metrics
}

// NewOrchestrator creates an orchestrator. sources are the sources each
// topic is searched with; empty means every configured source.
func NewOrchestrator(deps OrchestratorDeps, cfg domain.PipelineSettings, sources []domain.Source) *Orchestrator {
	if deps.Metrics == nil {
		deps.Metrics = driven.NopMetrics{}
	}
	if len(sources) == 0 && deps.Retrieval != nil {
		sources = deps.Retrieval.Sources()
	}
	cfg = normalisePipeline(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		completer: deps.Completer,
		writer:    deps.Writer,
		retrieval: deps.Retrieval,
		graphs:    deps.Graphs,
		status:    deps.Status,
		metrics:   deps.Metrics,
		cfg:       cfg,
		sources:   sources,
		baseCtx:   ctx,
		cancel:    cancel,
		running:   make(map[string]time.Time),
	}
}

func normalisePipeline(cfg domain.PipelineSettings) domain.PipelineSettings {
	d := domain.DefaultAppSettings().Pipeline
	cfg.ArticleConcurrency = min(max(cfg.ArticleConcurrency, 0), 8)
	if cfg.ArticleConcurrency == 0 {
		cfg.ArticleConcurrency = d.ArticleConcurrency
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = d.Deadline
	}
	if cfg.TopicDeadline <= 0 {
		cfg.TopicDeadline = d.TopicDeadline
	}
	if cfg.SearchDeadline <= 0 {
		cfg.SearchDeadline = d.SearchDeadline
	}
	if cfg.ArticleDeadline <= 0 {
		cfg.ArticleDeadline = d.ArticleDeadline
	}
	return cfg
}

// Generate implements driving.GraphService.
func (o *Orchestrator) Generate(ctx context.Context, graphID, query string) (domain.KnowledgeGraph, error) {
	if err := o.begin(ctx, graphID, query); err != nil {
		return domain.KnowledgeGraph{}, err
	}
	defer o.finish(graphID)
	return o.run(ctx, graphID, strings.TrimSpace(query))
}

// Start implements driving.GraphService. The run uses the orchestrator's
// own context, so it outlives the triggering request.
func (o *Orchestrator) Start(graphID, query string) error {
	if err := o.begin(o.baseCtx, graphID, query); err != nil {
		return err
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.finish(graphID)
		if _, err := o.run(o.baseCtx, graphID, strings.TrimSpace(query)); err != nil {
			logger.Error("Pipeline %s failed: %v", graphID, err)
		}
	}()
	return nil
}

// begin validates the request, claims the graph id and registers the graph
// in the created stage.
func (o *Orchestrator) begin(ctx context.Context, graphID, query string) error {
	if strings.TrimSpace(graphID) == "" {
		return fmt.Errorf("%w: graph id is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("%w: query is required", domain.ErrInvalidInput)
	}

	o.mu.Lock()
	if _, busy := o.running[graphID]; busy {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrPipelineRunning, graphID)
	}
	o.running[graphID] = time.Now()
	o.mu.Unlock()

	now := time.Now().UTC()
	err := o.status.Create(ctx, domain.GraphRecord{
		UUID:      graphID,
		Title:     strings.TrimSpace(query),
		Query:     strings.TrimSpace(query),
		Status:    string(domain.StageCreated),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		o.finish(graphID)
		return fmt.Errorf("register graph %s: %w", graphID, err)
	}
	return nil
}

func (o *Orchestrator) finish(graphID string) {
	o.mu.Lock()
	delete(o.running, graphID)
	o.mu.Unlock()
}

// pipelineRun carries the state of one run.
type pipelineRun struct {
	o       *Orchestrator
	id      string
	started time.Time
	stage   time.Time
	log     *zap.Logger
}

// report records a status best-effort; failures only log.
func (r *pipelineRun) report(ctx context.Context, st domain.PipelineStatus) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusTimeout)
	defer cancel()
	if err := r.o.status.SetStatus(ctx, r.id, st); err != nil {
		logger.Warn("Status update %s -> %s failed: %v", r.id, st.Stage, err)
	}
}

// stageDone reports a stage and records its duration.
func (r *pipelineRun) stageDone(ctx context.Context, name string, st domain.PipelineStatus) {
	took := time.Since(r.stage)
	r.o.metrics.StageFinished(name, took)
	r.log.Info("stage finished", zap.String("stage", name), zap.Duration("took", took), zap.Duration("elapsed", time.Since(r.started)))
	r.stage = time.Now()
	r.report(ctx, st)
}

func (r *pipelineRun) fail(ctx context.Context, err error) error {
	r.report(ctx, domain.PipelineStatus{Stage: domain.StageError})
	r.log.Error("pipeline failed", zap.Error(err), zap.Duration("elapsed", time.Since(r.started)))
	return err
}

func (o *Orchestrator) run(parent context.Context, graphID, query string) (domain.KnowledgeGraph, error) {
	ctx, cancel := context.WithTimeout(parent, o.cfg.Deadline)
	defer cancel()

	o.metrics.PipelineActive(1)
	defer o.metrics.PipelineActive(-1)

	r := &pipelineRun{
		o:       o,
		id:      graphID,
		started: time.Now(),
		stage:   time.Now(),
		log:     logger.L().With(zap.String("graph_id", graphID)),
	}
	r.log.Info("pipeline started", zap.String("query", query))

	// Topics.
	tctx, tcancel := context.WithTimeout(ctx, o.cfg.TopicDeadline)
	plan, err := o.completer.ExpandTopics(tctx, query)
	tcancel()
	if err != nil {
		return domain.KnowledgeGraph{}, r.fail(ctx, fmt.Errorf("expand topics: %w", err))
	}
	if err := o.status.SetTitle(context.WithoutCancel(ctx), graphID, plan.Name); err != nil {
		logger.Warn("Title update for %s failed: %v", graphID, err)
	}
	r.stageDone(ctx, "topics", domain.TopicsFound(plan.Topics))

	// Retrieval.
	chunks, err := o.searchTopics(ctx, graphID, plan.Topics)
	if err != nil {
		return domain.KnowledgeGraph{}, r.fail(ctx, err)
	}
	r.stageDone(ctx, "search", domain.PipelineStatus{Stage: domain.StageSearchResultsFound})

	// Articles.
	set := o.writeArticles(ctx, plan, chunks)
	if err := ctx.Err(); err != nil {
		return domain.KnowledgeGraph{}, r.fail(ctx, fmt.Errorf("write articles: %w", err))
	}
	if len(set.Articles) == 0 {
		return domain.KnowledgeGraph{}, r.fail(ctx, fmt.Errorf("no articles generated for %d topics", len(plan.Topics)))
	}
	if err := o.graphs.SaveArticles(ctx, graphID, set); err != nil {
		return domain.KnowledgeGraph{}, r.fail(ctx, fmt.Errorf("%w: articles: %w", domain.ErrPersistence, err))
	}
	r.stageDone(ctx, "articles", domain.PipelineStatus{Stage: domain.StageArticlesGenerated})

	// Graph.
	graph := AssembleGraph(set)
	if err := o.graphs.SaveGraph(ctx, graphID, graph); err != nil {
		return domain.KnowledgeGraph{}, r.fail(ctx, fmt.Errorf("%w: graph: %w", domain.ErrPersistence, err))
	}
	r.stageDone(ctx, "links", domain.PipelineStatus{Stage: domain.StageLinksCreated})

	r.report(ctx, domain.PipelineStatus{Stage: domain.StageDone})
	r.log.Info("pipeline done",
		zap.Int("nodes", len(graph.Nodes)),
		zap.Int("links", len(graph.Links)),
		zap.Duration("elapsed", time.Since(r.started)))
	return graph, nil
}

// searchTopics runs search-all once per topic. Topics that fail or find
// nothing are left out of the result. Only persistence failures and the
// overall deadline abort the run.
func (o *Orchestrator) searchTopics(ctx context.Context, graphID string, topics []string) (map[string][]domain.RAGDocument, error) {
	var (
		mu  sync.Mutex
		out = make(map[string][]domain.RAGDocument, len(topics))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range topics {
		task := domain.TopicTask{Topic: topic, BatchUUID: graphID, Sources: o.sources, Options: o.cfg.Search}
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(gctx, o.cfg.SearchDeadline)
			defer cancel()
			res, err := o.retrieval.SearchAll(sctx, task.Request())
			if errors.Is(err, domain.ErrPersistence) {
				return err
			}
			if err != nil {
				logger.Warn("Search for topic %q failed: %v", task.Topic, err)
				return nil
			}
			docs := res.Flatten()
			if len(docs) == 0 {
				logger.Warn("Search for topic %q found nothing", task.Topic)
				return nil
			}
			mu.Lock()
			out[task.Topic] = docs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("search topics: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("search topics: %w", err)
	}
	return out, nil
}

// writeArticles synthesizes articles on a bounded pool. Failed topics are
// omitted.
func (o *Orchestrator) writeArticles(ctx context.Context, plan domain.TopicPlan, chunks map[string][]domain.RAGDocument) domain.ArticleSet {
	set := domain.ArticleSet{Name: plan.Name, Articles: make(map[string]domain.ArticleRecord, len(chunks))}
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.ArticleConcurrency)
	for _, topic := range plan.Topics {
		docs, ok := chunks[topic]
		if !ok {
			continue
		}
		related := make([]string, 0, len(plan.Topics)-1)
		for _, t := range plan.Topics {
			if t != topic {
				related = append(related, t)
			}
		}
		g.Go(func() error {
			actx, cancel := context.WithTimeout(ctx, o.cfg.ArticleDeadline)
			defer cancel()
			rec, err := o.writer.Write(actx, topic, docs, related)
			if err != nil {
				logger.Warn("Article for topic %q failed: %v", topic, err)
				return nil
			}
			mu.Lock()
			set.Articles[topic] = rec
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return set
}

// Status implements driving.GraphService.
func (o *Orchestrator) Status(ctx context.Context, graphID string) (domain.GraphRecord, error) {
	return o.status.Get(ctx, graphID)
}

// History returns the recorded status changes of a graph when the status
// store keeps them.
func (o *Orchestrator) History(ctx context.Context, graphID string, limit int) ([]domain.StatusEvent, error) {
	h, ok := o.status.(driven.StatusHistory)
	if !ok {
		return nil, fmt.Errorf("%w: status store keeps no history", domain.ErrNotImplemented)
	}
	return h.History(ctx, graphID, limit)
}

// List returns the most recent graphs.
func (o *Orchestrator) List(ctx context.Context, limit int) ([]domain.GraphRecord, error) {
	return o.status.List(ctx, limit)
}

// Running implements driving.GraphService.
func (o *Orchestrator) Running() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.running))
	for id := range o.running {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Graph implements driving.GraphService. When only articles.json exists
// the graph is assembled on read and not written.
func (o *Orchestrator) Graph(ctx context.Context, graphID string) (domain.KnowledgeGraph, error) {
	g, err := o.graphs.LoadGraph(ctx, graphID)
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		return g, err
	}
	set, err := o.graphs.LoadArticles(ctx, graphID)
	if err != nil {
		return domain.KnowledgeGraph{}, err
	}
	return AssembleGraph(set), nil
}

// Merge implements driving.GraphService.
func (o *Orchestrator) Merge(context.Context, string, string) error {
	return domain.ErrMergeUnsupported
}

// Wait implements driving.GraphService.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Shutdown cancels background runs and waits for them to record their
// final status.
func (o *Orchestrator) Shutdown() {
	o.cancel()
	o.wg.Wait()
}
