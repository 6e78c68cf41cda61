// Package tui renders live progress for a knowledge graph pipeline.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/kgraph/internal/adapters/driving/tui/components/status"
	"github.com/custodia-labs/kgraph/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/kgraph/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/kgraph/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/kgraph/internal/core/domain"
)

const (
	// DefaultPollInterval is how often the status store is read.
	DefaultPollInterval = time.Second

	historyLimit = 20
)

// pipelineStages is the display order of the non-error stages.
var pipelineStages = []domain.Stage{
	domain.StageCreated,
	domain.StageTopicsFound,
	domain.StageSearchResultsFound,
	domain.StageArticlesGenerated,
	domain.StageLinksCreated,
	domain.StageDone,
}

var stageLabels = map[domain.Stage]string{
	domain.StageCreated:            "Created",
	domain.StageTopicsFound:        "Subtopics planned",
	domain.StageSearchResultsFound: "Passages retrieved",
	domain.StageArticlesGenerated:  "Articles written",
	domain.StageLinksCreated:       "Links created",
	domain.StageDone:               "Done",
}

// Model follows one graph pipeline until it finishes or the user detaches.
// It implements tea.Model.
type Model struct {
	ctx      context.Context
	ports    *Ports
	graphID  string
	interval time.Duration
	now      func() time.Time

	styles  *styles.Styles
	keymap  *keymap.KeyMap
	spinner spinner.Model
	bar     *status.Bar

	record   domain.GraphRecord
	pipeline domain.PipelineStatus
	// reached is the furthest stage seen, kept across an error transition.
	reached domain.Stage
	topics  []string

	history     []domain.StatusEvent
	showHistory bool
	showHelp    bool

	started  time.Time
	err      error
	finished bool
	detached bool
	width    int
}

var _ tea.Model = (*Model)(nil)

// NewModel creates a progress model for graphID.
func NewModel(ports *Ports, graphID string) (*Model, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("creating progress view: %w", err)
	}
	if strings.TrimSpace(graphID) == "" {
		return nil, fmt.Errorf("%w: graph id is required", domain.ErrInvalidInput)
	}

	s := styles.DefaultStyles()
	km := keymap.DefaultKeyMap()
	return &Model{
		ctx:      context.Background(),
		ports:    ports,
		graphID:  graphID,
		interval: DefaultPollInterval,
		now:      time.Now,
		styles:   s,
		keymap:   km,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(s.Spinner)),
		bar:      status.NewBar(s, km),
		width:    80,
	}, nil
}

// WithContext sets the context used for status reads.
func (m *Model) WithContext(ctx context.Context) *Model {
	m.ctx = ctx
	return m
}

// WithInterval sets the poll interval.
func (m *Model) WithInterval(d time.Duration) *Model {
	if d > 0 {
		m.interval = d
	}
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	m.started = m.now()
	return tea.Batch(m.spinner.Tick, m.poll)
}

func (m *Model) poll() tea.Msg {
	rec, err := m.ports.Graphs.Status(m.ctx, m.graphID)
	return messages.StatusPolled{Record: rec, Err: err}
}

func (m *Model) loadHistory() tea.Msg {
	events, err := m.ports.Graphs.History(m.ctx, m.graphID, historyLimit)
	return messages.HistoryLoaded{Events: events, Err: err}
}

func (m *Model) schedulePoll() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg {
		return messages.PollDue{}
	})
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.SetWidth(msg.Width)
		return m, nil

	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.bar.SetElapsed(m.now().Sub(m.started))
		return m, cmd

	case messages.PollDue:
		return m, m.poll

	case messages.StatusPolled:
		return m.handleStatus(msg)

	case messages.HistoryLoaded:
		if msg.Err == nil {
			m.history = msg.Events
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := msg.String()
	switch {
	case keymap.Matches(k, m.keymap.Quit):
		if !m.finished {
			m.detached = true
		}
		return m, tea.Quit
	case keymap.Matches(k, m.keymap.History):
		m.showHistory = !m.showHistory
		if m.showHistory {
			return m, m.loadHistory
		}
	case keymap.Matches(k, m.keymap.Help):
		m.showHelp = !m.showHelp
	}
	return m, nil
}

func (m *Model) handleStatus(msg messages.StatusPolled) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		if errors.Is(msg.Err, context.Canceled) {
			return m, tea.Quit
		}
		m.err = msg.Err
		m.finished = true
		m.bar.SetState(status.StateFailed)
		m.bar.SetMessage(msg.Err.Error())
		return m, tea.Quit
	}

	m.record = msg.Record
	st, err := domain.ParseStatus(msg.Record.Status)
	if err != nil {
		m.err = err
		m.finished = true
		m.bar.SetState(status.StateFailed)
		m.bar.SetMessage(err.Error())
		return m, tea.Quit
	}
	m.pipeline = st
	if st.Stage != domain.StageError {
		m.reached = st.Stage
	}
	if len(st.Topics) > 0 {
		m.topics = st.Topics
	}
	m.bar.SetElapsed(m.now().Sub(m.started))

	var cmds []tea.Cmd
	if m.showHistory {
		cmds = append(cmds, m.loadHistory)
	}
	switch {
	case st.Stage == domain.StageDone:
		m.finished = true
		m.bar.SetState(status.StateDone)
		cmds = append(cmds, tea.Quit)
	case st.Stage == domain.StageError:
		m.finished = true
		m.bar.SetState(status.StateFailed)
		cmds = append(cmds, tea.Quit)
	default:
		m.bar.SetState(status.StateRunning)
		cmds = append(cmds, m.schedulePoll())
	}
	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("kgraph"))
	b.WriteString(m.styles.Muted.Render("  " + m.graphID))
	b.WriteString("\n")
	if m.record.Title != "" {
		b.WriteString(m.styles.Subtitle.Render(m.record.Title))
		b.WriteString("\n")
	}
	if m.record.Query != "" {
		b.WriteString(m.styles.Muted.Render("query: " + m.record.Query))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	for _, stage := range pipelineStages {
		b.WriteString(m.renderStage(stage))
		b.WriteString("\n")
		if stage == domain.StageTopicsFound {
			for _, t := range m.topics {
				b.WriteString(m.styles.Topic.Render("· " + t))
				b.WriteString("\n")
			}
		}
	}

	if m.pipeline.Stage == domain.StageError {
		b.WriteString("\n")
		msg := "✗ Pipeline failed"
		if m.reached != "" {
			msg += " after " + label(m.reached)
		}
		b.WriteString(m.styles.Error.Render(msg))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(m.styles.Error.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	}

	if m.showHistory {
		b.WriteString("\n")
		b.WriteString(m.renderHistory())
		b.WriteString("\n")
	}
	if m.showHelp {
		b.WriteString("\n")
		b.WriteString(m.renderHelp())
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.bar.View())
	return b.String()
}

func (m *Model) renderStage(stage domain.Stage) string {
	name := label(stage)
	cur := stageIndex(m.reached)
	idx := stageIndex(stage)
	failed := m.pipeline.Stage == domain.StageError

	switch {
	case m.reached == "":
		return m.styles.StagePending.Render("  " + name)
	case idx <= cur:
		return m.styles.StageDone.Render("✓ " + name)
	case idx == cur+1 && !failed:
		return m.spinner.View() + m.styles.StageActive.Render(name)
	default:
		return m.styles.StagePending.Render("  " + name)
	}
}

func (m *Model) renderHistory() string {
	if len(m.history) == 0 {
		return m.styles.Border.Render(m.styles.Muted.Render("no history yet"))
	}
	lines := make([]string, 0, len(m.history))
	for _, e := range m.history {
		stage, _, _ := strings.Cut(e.Status, ":")
		lines = append(lines, fmt.Sprintf("%s  %s", e.At.Format(time.TimeOnly), stage))
	}
	return m.styles.Border.Render(strings.Join(lines, "\n"))
}

func (m *Model) renderHelp() string {
	var lines []string
	for _, group := range m.keymap.FullHelp() {
		for _, kb := range group {
			h := kb.Help()
			lines = append(lines, fmt.Sprintf("%-4s %s", h.Key, h.Desc))
		}
	}
	return m.styles.Help.Render(strings.Join(lines, "\n"))
}

// Record returns the last status read.
func (m *Model) Record() domain.GraphRecord {
	return m.record
}

// Err returns the error that stopped the watch, if any.
func (m *Model) Err() error {
	return m.err
}

// Finished reports whether the pipeline reached a terminal stage.
func (m *Model) Finished() bool {
	return m.finished
}

// Detached reports whether the user stopped watching early.
func (m *Model) Detached() bool {
	return m.detached
}

func stageIndex(s domain.Stage) int {
	for i, st := range pipelineStages {
		if st == s {
			return i
		}
	}
	return -1
}

func label(s domain.Stage) string {
	if l, ok := stageLabels[s]; ok {
		return l
	}
	return string(s)
}

// Watch runs the progress view until the pipeline finishes, the user
// detaches, or ctx is done. It returns the last status read.
func Watch(ctx context.Context, ports *Ports, graphID string, opts ...tea.ProgramOption) (domain.GraphRecord, error) {
	m, err := NewModel(ports, graphID)
	if err != nil {
		return domain.GraphRecord{}, err
	}
	m.WithContext(ctx)

	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	final, err := tea.NewProgram(m, opts...).Run()
	if err != nil {
		if ctx.Err() != nil {
			return m.Record(), ctx.Err()
		}
		return m.Record(), fmt.Errorf("progress view: %w", err)
	}

	fm, ok := final.(*Model)
	if !ok {
		return m.Record(), nil
	}
	return fm.Record(), fm.Err()
}
