package metrics

import "time"

// ResultLabel enumerates page result categories for counters.
type ResultLabel string

const (
	ResultSuccess   ResultLabel = "success"
	ResultUnchanged ResultLabel = "unchanged"
	ResultFailed    ResultLabel = "failed"
	ResultCanceled  ResultLabel = "canceled"
)

// Build kinds.
const (
	KindFull        = "full"
	KindIncremental = "incremental"
	KindLazy        = "lazy"
)

// Recorder defines observability hooks for builds and pages.
type Recorder interface {
	ObserveBuildDuration(kind string, d time.Duration)
	ObservePageDuration(d time.Duration)
	IncPageResult(result ResultLabel)
	IncBuildOutcome(outcome string) // outcome: success|partial|failed|canceled
	SetPendingPages(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveBuildDuration(string, time.Duration) {}
func (NoopRecorder) ObservePageDuration(time.Duration)          {}
func (NoopRecorder) IncPageResult(ResultLabel)                  {}
func (NoopRecorder) IncBuildOutcome(string)                     {}
func (NoopRecorder) SetPendingPages(int)                        {}
