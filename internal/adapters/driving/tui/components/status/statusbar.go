// Package status provides the status bar for the progress view.
package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/kgraph/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/kgraph/internal/adapters/driving/tui/styles"
)

// State is the pipeline state shown in the bar.
type State string

const (
	StateWaiting State = "waiting"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// Bar displays pipeline state, elapsed time and keybinding hints.
type Bar struct {
	styles  *styles.Styles
	keymap  *keymap.KeyMap
	state   State
	message string
	elapsed time.Duration
	width   int
}

// NewBar creates a new status bar component.
func NewBar(s *styles.Styles, km *keymap.KeyMap) *Bar {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}

	return &Bar{
		styles: s,
		keymap: km,
		state:  StateWaiting,
		width:  80,
	}
}

// View renders the status bar.
func (b *Bar) View() string {
	left := b.renderLeft()
	right := b.renderRight()

	// The style's own padding counts against the width.
	inner := b.width - b.styles.StatusBar.GetHorizontalFrameSize()
	padding := inner - lipgloss.Width(left) - lipgloss.Width(right)
	if padding < 1 {
		padding = 1
	}

	return b.styles.StatusBar.Width(b.width).Render(
		left + strings.Repeat(" ", padding) + right,
	)
}

func (b *Bar) renderLeft() string {
	elapsed := b.elapsed.Truncate(time.Second).String()
	switch b.state {
	case StateRunning:
		return b.styles.Normal.Render("Running " + elapsed)
	case StateDone:
		return b.styles.Success.Render("Done in " + elapsed)
	case StateFailed:
		if b.message != "" {
			return b.styles.Error.Render("Failed: " + b.message)
		}
		return b.styles.Error.Render("Failed")
	case StateWaiting:
	}
	return b.styles.Muted.Render("Waiting for status...")
}

func (b *Bar) renderRight() string {
	var bindings []key.Binding
	if b.state == StateDone || b.state == StateFailed {
		bindings = []key.Binding{b.keymap.Quit}
	} else {
		bindings = b.keymap.ShortHelp()
	}

	hints := make([]string, 0, len(bindings))
	for _, kb := range bindings {
		h := kb.Help()
		hints = append(hints, fmt.Sprintf("%s: %s", h.Key, h.Desc))
	}
	return b.styles.Muted.Render(strings.Join(hints, " | "))
}

// SetState sets the current state.
func (b *Bar) SetState(state State) {
	b.state = state
}

// State returns the current state.
func (b *Bar) State() State {
	return b.state
}

// SetMessage sets the failure message.
func (b *Bar) SetMessage(message string) {
	b.message = message
}

// Message returns the current message.
func (b *Bar) Message() string {
	return b.message
}

// SetElapsed sets the time since the watch started.
func (b *Bar) SetElapsed(d time.Duration) {
	b.elapsed = d
}

// SetWidth sets the status bar width.
func (b *Bar) SetWidth(width int) {
	b.width = width
}

// Width returns the current width.
func (b *Bar) Width() int {
	return b.width
}
