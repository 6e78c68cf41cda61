package driven

import "time"

// Metrics records pipeline observations. A nil Metrics is never passed to
// services; use NopMetrics instead.
type Metrics interface {
	// SourceCall records one adapter search with its outcome.
	SourceCall(source string, err error, took time.Duration)

	// PassagesStored adds n persisted passages for source.
	PassagesStored(source string, n int)

	// LLMCall records one completion with its outcome.
	LLMCall(kind string, err error, took time.Duration)

	// Retry records a retried call.
	Retry(operation string)

	// StageFinished records how long a pipeline stage took.
	StageFinished(stage string, took time.Duration)

	// PipelineActive moves the active pipeline gauge by delta.
	PipelineActive(delta int)
}

// NopMetrics discards every observation.
type NopMetrics struct{}

// SourceCall implements Metrics.
func (NopMetrics) SourceCall(string, error, time.Duration) {}

// PassagesStored implements Metrics.
func (NopMetrics) PassagesStored(string, int) {}

// LLMCall implements Metrics.
func (NopMetrics) LLMCall(string, error, time.Duration) {}

// Retry implements Metrics.
func (NopMetrics) Retry(string) {}

// StageFinished implements Metrics.
func (NopMetrics) StageFinished(string, time.Duration) {}

// PipelineActive implements Metrics.
func (NopMetrics) PipelineActive(int) {}
