// Package pipeline implements the task registry and the step-oriented
// pipeline scheduler that drives every build and deploy run.
package pipeline

import (
	"context"
	"fmt"
	"sort"
)

// Runner is a task's executable unit. Runners must be pure functions of the
// artifact tree plus their declared inputs, never of execution order
// elsewhere; only the scheduler may invoke them.
type Runner func(ctx context.Context, bs *BuildState) error

// Task is a named, single-purpose unit of build work with declared
// predecessors. Tasks are registered once at process start and never mutated
// afterwards.
type Task struct {
	Name         string
	Predecessors []string
	Run          Runner

	// ConcurrencySafe marks a task as eligible to run alongside siblings in
	// the same concurrent step. The scheduler rejects definitions placing a
	// non-safe task in a concurrent step.
	ConcurrencySafe bool
}

// DuplicateTaskError reports a second registration under an existing name.
type DuplicateTaskError struct {
	Name string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("task already registered: %s", e.Name)
}

// UnknownTaskError reports a lookup of an unregistered task name.
type UnknownTaskError struct {
	Name string
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("unknown task: %s", e.Name)
}

// Registry owns all registered tasks. The scheduler holds names, never
// copies of task logic. An explicit Registry value replaces any ambient
// global task table; construct one and pass it by reference.
type Registry struct {
	tasks map[string]*Task
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// Register adds a task. Registration fails with DuplicateTaskError when the
// name is taken; registry misuse is fatal at startup, never recovered.
func (r *Registry) Register(t Task) error {
	if t.Name == "" {
		return fmt.Errorf("task name is required")
	}
	if t.Run == nil {
		return fmt.Errorf("task %s has no runner", t.Name)
	}
	if _, exists := r.tasks[t.Name]; exists {
		return &DuplicateTaskError{Name: t.Name}
	}
	task := t
	r.tasks[t.Name] = &task
	return nil
}

// MustRegister registers a task and panics on error. Intended for static
// registration in main where a failure is a programming mistake.
func (r *Registry) MustRegister(t Task) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Resolve returns the task registered under name.
func (r *Registry) Resolve(name string) (*Task, error) {
	t, ok := r.tasks[name]
	if !ok {
		return nil, &UnknownTaskError{Name: name}
	}
	return t, nil
}

// Names returns registered task names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tasks))
	for n := range r.tasks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
