package services

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
	"github.com/custodia-labs/kgraph/internal/retry"
)

// fastPolicy retries without real waiting.
func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, InitialDelay: time.Microsecond, MaxDelay: time.Microsecond, Multiplier: 1}
}

// fakePrompts serves fixed templates.
type fakePrompts map[string]string

func (p fakePrompts) Load(name string) (string, error) {
	t, ok := p[name]
	if !ok {
		return "", domain.ErrNotFound
	}
	return t, nil
}

func (p fakePrompts) Reload() {}

func testPrompts() fakePrompts {
	return fakePrompts{
		driven.PromptTopicGenerator:   "Topics for {{TOPIC}}",
		driven.PromptArticleWriter:    "Write about {{TOPIC}}\n{{CHUNKS}}\nRelated:\n{{RELATED_TOPICS}}",
		driven.PromptStructuredSystem: "Answer with JSON matching {{SCHEMA}}",
	}
}

// fakeLLM answers Chat with scripted replies in order (the last one
// repeats) and Generate through a function.
type fakeLLM struct {
	mu       sync.Mutex
	replies  []string
	chatErrs []error
	generate func(prompt string) (string, error)

	chats     [][]driven.ChatMessage
	chatOpts  []driven.ChatOptions
	prompts   []string
	genOpts   []driven.GenerateOptions
	chatCalls int
}

func (f *fakeLLM) Generate(_ context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.genOpts = append(f.genOpts, opts)
	gen := f.generate
	f.mu.Unlock()
	if gen == nil {
		return "", errors.New("no generate script")
	}
	return gen(prompt)
}

func (f *fakeLLM) Chat(_ context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.chatCalls
	f.chatCalls++
	f.chats = append(f.chats, messages)
	f.chatOpts = append(f.chatOpts, opts)
	if n < len(f.chatErrs) && f.chatErrs[n] != nil {
		return "", f.chatErrs[n]
	}
	if len(f.replies) == 0 {
		return "", errors.New("no chat script")
	}
	return f.replies[min(n, len(f.replies)-1)], nil
}

func (f *fakeLLM) ModelName() string           { return "fake" }
func (f *fakeLLM) Ping(context.Context) error { return nil }
func (f *fakeLLM) Close() error               { return nil }

// hashEmbedder maps each word to a fixed dimension, so texts sharing words
// are similar.
type hashEmbedder struct {
	dims int
	err  error

	mu    sync.Mutex
	calls int
}

func (e *hashEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dims)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, ".,:;!?")))
		v[h.Sum32()%uint32(e.dims)]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range v {
			v[i] /= n
		}
	}
	return v
}

func (e *hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.vector(text), nil
}

func (e *hashEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *hashEmbedder) Dimensions() int            { return e.dims }
func (e *hashEmbedder) ModelName() string          { return "hash" }
func (e *hashEmbedder) Ping(context.Context) error { return nil }
func (e *hashEmbedder) Close() error               { return nil }

// fakeSource is a scripted source adapter.
type fakeSource struct {
	src      domain.Source
	items    []domain.RawItem
	err      error
	contents map[string]string
	block    bool

	mu     sync.Mutex
	params []domain.SearchParams
}

func (f *fakeSource) Source() domain.Source { return f.src }

func (f *fakeSource) Search(ctx context.Context, params domain.SearchParams) ([]domain.RawItem, error) {
	f.mu.Lock()
	f.params = append(f.params, params)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	items := make([]domain.RawItem, len(f.items))
	for i, it := range f.items {
		it.Title = strings.ReplaceAll(it.Title, "{q}", params.Keywords)
		items[i] = it
	}
	return items, nil
}

func (f *fakeSource) ExtractContent(_ context.Context, item domain.RawItem) (string, bool, error) {
	text, ok := f.contents[item.URL]
	if !ok {
		return "", false, nil
	}
	return text, true, nil
}

// fakeReranker returns scripted scores and records how many passages each
// call received.
type fakeReranker struct {
	scores func(passages []string) ([]float64, error)
	seen   []int
}

func (r *fakeReranker) Rerank(_ context.Context, _ string, passages []string) ([]float64, error) {
	r.seen = append(r.seen, len(passages))
	return r.scores(passages)
}

func (r *fakeReranker) Name() string { return "fake" }

// recordingMetrics counts observations.
type recordingMetrics struct {
	driven.NopMetrics

	mu      sync.Mutex
	stages  []string
	retries int
	stored  map[string]int
	active  int
}

func (m *recordingMetrics) StageFinished(stage string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, stage)
}

func (m *recordingMetrics) Retry(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries++
}

func (m *recordingMetrics) PassagesStored(source string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stored == nil {
		m.stored = make(map[string]int)
	}
	m.stored[source] += n
}

func (m *recordingMetrics) PipelineActive(delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active += delta
}
