// Package events publishes pipeline lifecycle events to interested consumers.
// Publishing is fire-and-forget: a failed publish never fails the build.
package events

import "time"

// EventType enumerates pipeline lifecycle events.
type EventType string

const (
	EventRunStarted    EventType = "run_started"
	EventStepCompleted EventType = "step_completed"
	EventRunCompleted  EventType = "run_completed"
	EventRunFailed     EventType = "run_failed"
	EventDeployed      EventType = "deployed"
)

// Event is the payload published for each lifecycle transition.
type Event struct {
	Type        EventType `json:"type"`
	BuildID     string    `json:"build_id"`
	Pipeline    string    `json:"pipeline,omitempty"`
	Step        int       `json:"step,omitempty"`
	Task        string    `json:"task,omitempty"`
	Environment string    `json:"environment,omitempty"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Publisher delivers events. Implementations must be safe for use from the
// scheduler goroutine only (single publisher, no concurrent Publish calls).
type Publisher interface {
	Publish(ev Event) error
	Close() error
}

// NoopPublisher discards all events (default when events are not configured).
type NoopPublisher struct{}

func (NoopPublisher) Publish(Event) error { return nil }
func (NoopPublisher) Close() error        { return nil }
