package pipeline

import (
	"sync"
	"time"
)

// RunStatus is the scheduler's state machine value for a run.
type RunStatus string

const (
	StatusIdle      RunStatus = "idle"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// RunReport records per-step and per-task timings and the final outcome of a
// pipeline run. Task durations may be written from concurrent step members.
type RunReport struct {
	Pipeline string
	BuildID  string
	Status   RunStatus

	// FailedTask and FailedStep identify the first failure, valid only when
	// Status is StatusFailed. FailedStep indexes the outermost definition.
	FailedTask string
	FailedStep int
	Cause      error

	StepDurations []time.Duration
	Duration      time.Duration

	mu            sync.Mutex
	taskDurations map[string]time.Duration
}

// NewRunReport creates a report in the Idle state.
func NewRunReport(pipeline, buildID string) *RunReport {
	return &RunReport{
		Pipeline:      pipeline,
		BuildID:       buildID,
		Status:        StatusIdle,
		FailedStep:    -1,
		taskDurations: make(map[string]time.Duration),
	}
}

func (r *RunReport) recordTask(name string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.taskDurations[name] = d
}

// TaskDuration returns the recorded duration for a task.
func (r *RunReport) TaskDuration(name string) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.taskDurations[name]
	return d, ok
}

// TaskCount returns the number of tasks that ran.
func (r *RunReport) TaskCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.taskDurations)
}
