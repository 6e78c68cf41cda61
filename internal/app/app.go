// Package app wires settings, storage, sources and services into a
// running kgraph instance.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/custodia-labs/kgraph/internal/adapters/driven/ai"
	"github.com/custodia-labs/kgraph/internal/adapters/driven/config/file"
	"github.com/custodia-labs/kgraph/internal/adapters/driven/storage/jsonl"
	"github.com/custodia-labs/kgraph/internal/adapters/driven/storage/memory"
	redisstore "github.com/custodia-labs/kgraph/internal/adapters/driven/storage/redis"
	"github.com/custodia-labs/kgraph/internal/adapters/driven/storage/sqlite"
	vectormem "github.com/custodia-labs/kgraph/internal/adapters/driven/vector/memory"
	"github.com/custodia-labs/kgraph/internal/adapters/driven/vector/watcher"
	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
	"github.com/custodia-labs/kgraph/internal/core/services"
	"github.com/custodia-labs/kgraph/internal/logger"
	"github.com/custodia-labs/kgraph/internal/metrics"
	"github.com/custodia-labs/kgraph/internal/postprocessors"
	"github.com/custodia-labs/kgraph/internal/retry"
	"github.com/custodia-labs/kgraph/internal/tokenizer"
)

// Options control how an App is built.
type Options struct {
	// ConfigPath is the TOML config file. Empty means ~/.kgraph/config.toml.
	ConfigPath string

	// Env replaces the process environment lookup. Optional.
	Env func(string) (string, bool)

	// ConfigStore replaces the file config store. Optional.
	ConfigStore driven.ConfigStore

	// Sources replaces the adapters built from settings. Optional.
	Sources []driven.SourceAdapter

	Version string
}

// App holds the wired services.
type App struct {
	Settings        *domain.AppSettings
	SettingsService *services.SettingsService
	Metrics         *metrics.Metrics

	Passages  *jsonl.PassageStore
	GraphData *jsonl.GraphStore
	Status    driven.StatusStore
	Index     *vectormem.Index
	Indexer   *services.Indexer

	Retrieval *services.RetrievalService
	Search    *services.VectorSearchService
	Graphs    *services.Orchestrator

	Version string

	closeOnce sync.Once
	closers   []func() error
}

// New builds an App. Missing LLM or embedding configuration is not an
// error; the affected operations report domain.ErrLLMUnavailable or
// domain.ErrEmbeddingUnavailable when called.
func New(ctx context.Context, opts Options) (*App, error) {
	store := opts.ConfigStore
	if store == nil {
		var err error
		if opts.ConfigPath != "" {
			store, err = file.OpenConfigStore(opts.ConfigPath)
		} else {
			store, err = file.NewConfigStore("")
		}
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
	}

	settingsSvc := services.NewSettingsService(store, ai.NewConfigValidator())
	if opts.Env != nil {
		settingsSvc.WithEnv(opts.Env)
	}
	settings, err := settingsSvc.Get()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	a := &App{
		Settings:        settings,
		SettingsService: settingsSvc,
		Metrics:         metrics.New(),
		Version:         opts.Version,
	}
	if err := a.build(ctx, store, opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, store driven.ConfigStore, opts Options) error {
	s := a.Settings

	passages, err := jsonl.NewPassageStore(s.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("open passage store: %w", err)
	}
	a.Passages = passages

	graphs, err := jsonl.NewGraphStore(s.Storage.GraphDir)
	if err != nil {
		return fmt.Errorf("open graph store: %w", err)
	}
	a.GraphData = graphs

	if a.Status, err = a.openStatus(ctx); err != nil {
		return err
	}

	tok := newTokenizer()
	chunker := newChunker(tok, s.Pipeline.Search.ChunkOptions())

	embedder, err := ai.CreateEmbeddingService(ctx, &s.Embedding)
	if err != nil {
		logger.Warn("Embedding provider unavailable: %v", err)
		embedder = nil
	}
	if embedder != nil {
		a.Index, err = vectormem.New(embedder.Dimensions())
		if err != nil {
			return fmt.Errorf("create vector index: %w", err)
		}
		a.closers = append(a.closers, a.Index.Close)
		a.Indexer = services.NewIndexer(a.Index, embedder)
	}

	reranker, err := ai.CreateReranker(&s.Rerank, embedder)
	if err != nil {
		logger.Warn("Reranker unavailable: %v", err)
		reranker = nil
	}

	adapters := opts.Sources
	if adapters == nil {
		adapters = buildSources(ctx, s.Sources, a.sourcePolicy())
	}

	a.Retrieval = services.NewRetrievalService(adapters, chunker, passages, a.Indexer, a.Metrics)

	var index driven.VectorIndex
	if a.Index != nil {
		index = a.Index
	}
	a.Search = services.NewVectorSearchService(index, embedder, reranker, s.Rerank.Factor)

	llm, err := ai.CreateLLMService(ctx, &s.LLM)
	if err != nil {
		logger.Warn("LLM provider unavailable: %v", err)
		llm = nil
	}
	if llm != nil {
		a.closers = append(a.closers, llm.Close)
	}

	prompts, err := file.NewPromptStore(promptDir(store))
	if err != nil {
		return fmt.Errorf("open prompts: %w", err)
	}
	completer := services.NewCompleter(llm, prompts, retry.DefaultPolicy(), a.Metrics)

	a.Graphs = services.NewOrchestrator(services.OrchestratorDeps{
		Completer: completer,
		Writer:    services.NewArticleWriter(completer, tok, 0),
		Retrieval: a.Retrieval,
		Graphs:    graphs,
		Status:    a.Status,
		Metrics:   a.Metrics,
	}, s.Pipeline, s.Sources.Enabled)

	return nil
}

func (a *App) openStatus(ctx context.Context) (driven.StatusStore, error) {
	st := a.Settings.Storage
	switch st.StatusBackend {
	case domain.StatusBackendMemory:
		return memory.NewStatusStore(), nil
	case domain.StatusBackendRedis:
		rs, err := redisstore.Dial(ctx, st.RedisAddr, st.RedisPassword, st.RedisDB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rs.Close)
		return rs, nil
	default:
		ss, err := sqlite.NewStore(st.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open status store: %w", err)
		}
		a.closers = append(a.closers, ss.Close)
		return ss, nil
	}
}

func (a *App) sourcePolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.OnRetry = func(int, time.Duration, error) { a.Metrics.Retry("source") }
	return p
}

func newTokenizer() driven.Tokenizer {
	tok, err := tokenizer.New()
	if err != nil {
		logger.Warn("Falling back to word tokenizer: %v", err)
		return tokenizer.NewWords()
	}
	return tok
}

func newChunker(tok driven.Tokenizer, defaults domain.ChunkOptions) *postprocessors.Pipeline {
	reg := postprocessors.NewRegistry()
	postprocessors.RegisterDefaults(reg)
	return postprocessors.NewPipeline(reg, tok, postprocessors.WithDefaults(defaults))
}

func promptDir(store driven.ConfigStore) string {
	if p := store.Path(); p != "" {
		return filepath.Join(filepath.Dir(p), "prompts")
	}
	return ""
}

// Scheduler returns the maintenance scheduler for long-running commands.
func (a *App) Scheduler() *services.Scheduler {
	pruner, _ := a.Status.(services.HistoryPruner)
	funcs := services.MaintenanceTasks(a.Indexer, a.Passages, pruner, a.Settings.Scheduler.HistoryKeep)
	return services.NewScheduler(a.Settings.Scheduler, funcs)
}

// RebuildIndex embeds every stored passage not yet indexed.
func (a *App) RebuildIndex(ctx context.Context) (int, error) {
	if a.Indexer == nil {
		return 0, domain.ErrEmbeddingUnavailable
	}
	return a.Indexer.Rebuild(ctx, a.Passages)
}

// StartWatcher indexes passage files as they are written by other
// processes. The returned function stops it.
func (a *App) StartWatcher(ctx context.Context) (func() error, error) {
	if a.Indexer == nil {
		return func() error { return nil }, domain.ErrEmbeddingUnavailable
	}
	w, err := watcher.New(a.Passages, a.Indexer)
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return nil, fmt.Errorf("start watcher: %w", err)
	}
	return func() error {
		w.Stop()
		return nil
	}, nil
}

// Close cancels running pipelines and releases stores and clients.
func (a *App) Close() error {
	var result *multierror.Error
	a.closeOnce.Do(func() {
		if a.Graphs != nil {
			a.Graphs.Shutdown()
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil && !errors.Is(err, context.Canceled) {
				result = multierror.Append(result, err)
			}
		}
	})
	return result.ErrorOrNil()
}
