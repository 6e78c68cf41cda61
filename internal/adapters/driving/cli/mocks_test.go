package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/kgraph/internal/core/domain"
)

type mockRetrieval struct {
	lastReq domain.SearchAllRequest
	result  domain.SearchAllResult
	err     error
}

func (m *mockRetrieval) SearchAll(_ context.Context, req domain.SearchAllRequest) (domain.SearchAllResult, error) {
	m.lastReq = req
	return m.result, m.err
}

func (m *mockRetrieval) Sources() []domain.Source { return domain.AllSources() }

type mockVectorSearch struct {
	lastQuery domain.VectorQuery
	results   []domain.VectorResult
	err       error
}

func (m *mockVectorSearch) Search(_ context.Context, q domain.VectorQuery) ([]domain.VectorResult, error) {
	m.lastQuery = q
	return m.results, m.err
}

type mockGraphs struct {
	generated  []string
	started    []string
	statuses   []string
	polls      int
	record     domain.GraphRecord
	history    []domain.StatusEvent
	records    []domain.GraphRecord
	running    []string
	graph      domain.KnowledgeGraph
	err        error
	startErr   error
	lastLimit  int
	lastWanted string
}

func (m *mockGraphs) Generate(_ context.Context, id, query string) (domain.KnowledgeGraph, error) {
	m.generated = append(m.generated, id+"|"+query)
	return m.graph, m.err
}

func (m *mockGraphs) Start(id, query string) error {
	m.started = append(m.started, id+"|"+query)
	return m.startErr
}

func (m *mockGraphs) Status(_ context.Context, id string) (domain.GraphRecord, error) {
	m.lastWanted = id
	if m.err != nil {
		return domain.GraphRecord{}, m.err
	}
	rec := m.record
	rec.UUID = id
	if len(m.statuses) > 0 {
		rec.Status = m.statuses[min(m.polls, len(m.statuses)-1)]
		m.polls++
	}
	return rec, nil
}

func (m *mockGraphs) History(_ context.Context, _ string, limit int) ([]domain.StatusEvent, error) {
	m.lastLimit = limit
	return m.history, nil
}

func (m *mockGraphs) List(_ context.Context, limit int) ([]domain.GraphRecord, error) {
	m.lastLimit = limit
	return m.records, m.err
}

func (m *mockGraphs) Running() []string { return m.running }

func (m *mockGraphs) Graph(context.Context, string) (domain.KnowledgeGraph, error) {
	return m.graph, m.err
}

func (m *mockGraphs) Merge(context.Context, string, string) error { return domain.ErrMergeUnsupported }

func (m *mockGraphs) Wait() {}

type mockSettings struct {
	settings    domain.AppSettings
	validateErr error
	llm         []string
	embedding   []string
}

func (m *mockSettings) Get() (*domain.AppSettings, error) { return &m.settings, nil }
func (m *mockSettings) Save(s *domain.AppSettings) error  { m.settings = *s; return nil }
func (m *mockSettings) SetLLMProvider(p domain.AIProvider, model, key string) error {
	m.llm = []string{string(p), model, key}
	return nil
}
func (m *mockSettings) SetEmbeddingProvider(p domain.AIProvider, model, key string) error {
	m.embedding = []string{string(p), model, key}
	return nil
}
func (m *mockSettings) Validate() error                 { return m.validateErr }
func (m *mockSettings) GetDefaults() domain.AppSettings { return domain.DefaultAppSettings() }
func (m *mockSettings) ValidateEmbeddingConfig() error  { return nil }
func (m *mockSettings) ValidateLLMConfig() error        { return nil }

// withServices installs fakes for the duration of a test.
func withServices(t *testing.T, r *mockRetrieval, v *mockVectorSearch, g *mockGraphs, s *mockSettings) {
	t.Helper()
	prevR, prevV, prevG, prevS := retrievalService, vectorService, graphService, settingsService
	prevTerm, prevInterval := isTerminal, pollInterval
	prevServer, prevSched, prevMaint := serverSettings, scheduler, maintenance

	retrievalService, vectorService, graphService, settingsService = nil, nil, nil, nil
	if r != nil {
		retrievalService = r
	}
	if v != nil {
		vectorService = v
	}
	if g != nil {
		graphService = g
	}
	if s != nil {
		settingsService = s
	}
	isTerminal = func() bool { return false }
	pollInterval = time.Millisecond

	t.Cleanup(func() {
		retrievalService, vectorService, graphService, settingsService = prevR, prevV, prevG, prevS
		isTerminal, pollInterval = prevTerm, prevInterval
		serverSettings, scheduler, maintenance = prevServer, prevSched, prevMaint
	})
}

// execute runs the root command and resets every flag afterwards, since
// cobra keeps parsed values on the package-level commands.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(bytes.NewBufferString(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		resetFlags(rootCmd)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil) //nolint:errcheck // test cleanup
		} else {
			_ = f.Value.Set(f.DefValue) //nolint:errcheck // test cleanup
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
