// Package metrics defines observability hooks for pipeline runs.
package metrics

import "time"

// ResultLabel enumerates step result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultFailure  ResultLabel = "failure"
	ResultCanceled ResultLabel = "canceled"
	ResultSkipped  ResultLabel = "skipped"
)

// Recorder defines observability hooks for pipeline and task metrics.
// Implementations may forward to Prometheus, OpenTelemetry, etc. The
// NoopRecorder is the default when metrics are not configured.
type Recorder interface {
	ObserveTaskDuration(task string, d time.Duration)
	ObservePipelineDuration(pipeline string, d time.Duration)
	IncTaskResult(task string, result ResultLabel)
	IncPipelineOutcome(pipeline, outcome string) // outcome: completed|failed
	IncCacheLookup(hit bool)
	IncDeploy(environment string, success bool)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObserveTaskDuration(string, time.Duration)     {}
func (NoopRecorder) ObservePipelineDuration(string, time.Duration) {}
func (NoopRecorder) IncTaskResult(string, ResultLabel)             {}
func (NoopRecorder) IncPipelineOutcome(string, string)             {}
func (NoopRecorder) IncCacheLookup(bool)                           {}
func (NoopRecorder) IncDeploy(string, bool)                        {}
