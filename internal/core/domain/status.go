package domain

import (
	"fmt"
	"strings"
)

// Stage is one step of the graph generation lifecycle.
type Stage string

// Pipeline stages in forward order. StageError is absorbing.
const (
	StageCreated            Stage = "created"
	StageTopicsFound        Stage = "topics_found"
	StageSearchResultsFound Stage = "search_results_found"
	StageArticlesGenerated  Stage = "articles_generated"
	StageLinksCreated       Stage = "links_created"
	StageDone               Stage = "done"
	StageError              Stage = "error"
)

var stageOrder = map[Stage]int{
	StageCreated:            0,
	StageTopicsFound:        1,
	StageSearchResultsFound: 2,
	StageArticlesGenerated:  3,
	StageLinksCreated:       4,
	StageDone:               5,
}

// IsValid returns true if the stage is recognised.
func (s Stage) IsValid() bool {
	_, ok := stageOrder[s]
	return ok || s == StageError
}

// IsTerminal returns true for done and error.
func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageError
}

// PipelineStatus is a parsed status value.
type PipelineStatus struct {
	Stage  Stage
	Topics []string
}

// TopicsFound builds the compound topics_found status.
func TopicsFound(topics []string) PipelineStatus {
	return PipelineStatus{Stage: StageTopicsFound, Topics: topics}
}

// String renders the wire form, e.g. "topics_found:a|b".
func (p PipelineStatus) String() string {
	if p.Stage == StageTopicsFound {
		return string(p.Stage) + ":" + strings.Join(p.Topics, "|")
	}
	return string(p.Stage)
}

// ParseStatus parses the wire form.
func ParseStatus(s string) (PipelineStatus, error) {
	stage, rest, compound := strings.Cut(s, ":")
	st := PipelineStatus{Stage: Stage(stage)}
	if !st.Stage.IsValid() {
		return st, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s)
	}
	if compound {
		if st.Stage != StageTopicsFound {
			return st, fmt.Errorf("%w: status %q takes no arguments", ErrInvalidInput, stage)
		}
		if rest != "" {
			st.Topics = strings.Split(rest, "|")
		}
	}
	return st, nil
}

// CanTransition reports whether moving from one stage to another keeps the
// lifecycle monotonic. Re-reporting the current non-terminal stage is allowed.
func CanTransition(from, to Stage) bool {
	if from == "" {
		return to.IsValid()
	}
	if from.IsTerminal() {
		return false
	}
	if to == StageError {
		return true
	}
	f, okFrom := stageOrder[from]
	t, okTo := stageOrder[to]
	return okFrom && okTo && t >= f
}
