package status

import (
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kgraph/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/kgraph/internal/adapters/driving/tui/styles"
)

func TestNewBar(t *testing.T) {
	bar := NewBar(styles.DefaultStyles(), keymap.DefaultKeyMap())

	require.NotNil(t, bar)
	assert.Equal(t, StateWaiting, bar.State())
	assert.Empty(t, bar.Message())
	assert.Equal(t, 80, bar.Width())
}

func TestNewBar_NilDependencies(t *testing.T) {
	bar := NewBar(nil, nil)

	require.NotNil(t, bar)
	assert.NotNil(t, bar.styles)
	assert.NotNil(t, bar.keymap)
}

func TestBar_View(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		message  string
		contains []string
		excludes []string
	}{
		{
			name:     "waiting",
			state:    StateWaiting,
			contains: []string{"Waiting for status", "h: history", "q: detach"},
		},
		{
			name:     "running shows elapsed",
			state:    StateRunning,
			contains: []string{"Running 1m5s", "h: history"},
		},
		{
			name:     "done hides history hint",
			state:    StateDone,
			contains: []string{"Done in 1m5s", "q: detach"},
			excludes: []string{"history"},
		},
		{
			name:     "failed with message",
			state:    StateFailed,
			message:  "llm unavailable",
			contains: []string{"Failed: llm unavailable"},
		},
		{
			name:     "failed without message",
			state:    StateFailed,
			contains: []string{"Failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := NewBar(nil, nil)
			bar.SetWidth(100)
			bar.SetState(tt.state)
			bar.SetMessage(tt.message)
			bar.SetElapsed(65*time.Second + 300*time.Millisecond)

			view := bar.View()
			assert.NotContains(t, view, "\n", "bar fits on one line")
			assert.Equal(t, 100, lipgloss.Width(view))
			for _, s := range tt.contains {
				assert.Contains(t, view, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, view, s)
			}
		})
	}
}

func TestBar_NarrowWidthStillRenders(t *testing.T) {
	bar := NewBar(nil, nil)
	bar.SetWidth(5)

	assert.NotEmpty(t, bar.View())
}
