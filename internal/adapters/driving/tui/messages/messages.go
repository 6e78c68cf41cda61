// Package messages defines Bubbletea message types for the TUI.
// Messages carry poll results and timer ticks back into the model.
package messages

import (
	"github.com/custodia-labs/kgraph/internal/core/domain"
)

// StatusPolled carries one status read for the watched graph.
type StatusPolled struct {
	Record domain.GraphRecord
	Err    error
}

// HistoryLoaded carries the status change log for the watched graph.
type HistoryLoaded struct {
	Events []domain.StatusEvent
	Err    error
}

// PollDue asks the model to read the status again.
type PollDue struct{}
