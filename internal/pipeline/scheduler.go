package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/siteforge/internal/events"
	"git.home.luguber.info/inful/siteforge/internal/metrics"
)

// TaskExecutionError reports a task transform failure. It halts the current
// step and the whole run; asset inputs are deterministic so the scheduler
// never retries.
type TaskExecutionError struct {
	Task     string
	Step     int
	Pipeline string
	Cause    error
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task %s failed at step %d of pipeline %s: %v", e.Task, e.Step, e.Pipeline, e.Cause)
}

func (e *TaskExecutionError) Unwrap() error { return e.Cause }

// Scheduler executes pipeline definitions against a task registry. It is the
// only component allowed to invoke task runners, and the only one deciding
// whether to continue past a failure.
type Scheduler struct {
	registry  *Registry
	pipelines map[string]Definition
	metrics   metrics.Recorder
	events    events.Publisher
	logger    *slog.Logger
}

// NewScheduler creates a scheduler over the given registry.
func NewScheduler(reg *Registry) *Scheduler {
	return &Scheduler{
		registry:  reg,
		pipelines: make(map[string]Definition),
		metrics:   metrics.NoopRecorder{},
		events:    events.NoopPublisher{},
		logger:    slog.Default(),
	}
}

// WithMetrics sets the metrics recorder.
func (s *Scheduler) WithMetrics(rec metrics.Recorder) *Scheduler {
	if rec != nil {
		s.metrics = rec
	}
	return s
}

// WithEvents sets the event publisher.
func (s *Scheduler) WithEvents(pub events.Publisher) *Scheduler {
	if pub != nil {
		s.events = pub
	}
	return s
}

// WithLogger sets a custom logger.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// Define registers a pipeline definition under its name.
func (s *Scheduler) Define(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("pipeline name is required")
	}
	if len(def.Steps) == 0 {
		return fmt.Errorf("pipeline %s has no steps", def.Name)
	}
	if _, exists := s.pipelines[def.Name]; exists {
		return fmt.Errorf("pipeline already defined: %s", def.Name)
	}
	s.pipelines[def.Name] = def
	return nil
}

// Validate statically checks every definition: each referenced task and
// pipeline must exist, concurrent steps may only list concurrency-safe
// tasks, nested pipelines must not form a cycle, and every task's declared
// predecessors must be scheduled in an earlier step. Misspelled task names
// fail here instead of mid-run.
func (s *Scheduler) Validate() error {
	for name := range s.pipelines {
		if err := s.validateNesting(name, map[string]bool{}); err != nil {
			return err
		}
	}
	for name, def := range s.pipelines {
		if _, err := s.validateSteps(def, map[string]bool{}); err != nil {
			return fmt.Errorf("pipeline %s: %w", name, err)
		}
	}
	return nil
}

func (s *Scheduler) validateNesting(name string, visiting map[string]bool) error {
	if visiting[name] {
		return fmt.Errorf("pipeline nesting cycle through %s", name)
	}
	def, ok := s.pipelines[name]
	if !ok {
		return &UnknownPipelineError{Name: name}
	}
	visiting[name] = true
	defer delete(visiting, name)
	for _, step := range def.Steps {
		if step.Kind == StepPipeline {
			if err := s.validateNesting(step.Pipeline, visiting); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateSteps checks one definition, threading the set of tasks completed
// by earlier steps (including expanded nested pipelines) so predecessor
// declarations can be verified.
func (s *Scheduler) validateSteps(def Definition, done map[string]bool) (map[string]bool, error) {
	for i, step := range def.Steps {
		switch step.Kind {
		case StepSingle, StepConcurrent:
			if len(step.Tasks) == 0 {
				return nil, fmt.Errorf("step %d has no tasks", i)
			}
			for _, taskName := range step.Tasks {
				task, err := s.registry.Resolve(taskName)
				if err != nil {
					return nil, fmt.Errorf("step %d: %w", i, err)
				}
				if step.Kind == StepConcurrent && len(step.Tasks) > 1 && !task.ConcurrencySafe {
					return nil, fmt.Errorf("step %d: task %s is not concurrency-safe", i, taskName)
				}
				for _, pred := range task.Predecessors {
					if _, err := s.registry.Resolve(pred); err != nil {
						return nil, fmt.Errorf("task %s predecessor: %w", taskName, err)
					}
					if !done[pred] {
						return nil, fmt.Errorf("step %d: task %s requires %s in an earlier step", i, taskName, pred)
					}
				}
			}
			// Members of a step only count as done for subsequent steps.
			for _, taskName := range step.Tasks {
				done[taskName] = true
			}
		case StepPipeline:
			sub, ok := s.pipelines[step.Pipeline]
			if !ok {
				return nil, &UnknownPipelineError{Name: step.Pipeline}
			}
			var err error
			done, err = s.validateSteps(sub, done)
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("step %d has invalid kind %q", i, step.Kind)
		}
	}
	return done, nil
}

// Run executes the named pipeline. The run either completes, or fails at the
// first step containing a failed task and stops; partial artifacts from
// completed steps remain on disk for inspection.
func (s *Scheduler) Run(ctx context.Context, name string, bs *BuildState) (*RunReport, error) {
	def, ok := s.pipelines[name]
	if !ok {
		return nil, &UnknownPipelineError{Name: name}
	}

	report := NewRunReport(name, bs.BuildID)
	report.Status = StatusRunning
	start := time.Now()

	s.logger.Info("Pipeline run started", "pipeline", name, "build_id", bs.BuildID, "steps", len(def.Steps))
	s.publish(events.Event{Type: events.EventRunStarted, BuildID: bs.BuildID, Pipeline: name})

	err := s.runDefinition(ctx, def, bs, report, true)
	report.Duration = time.Since(start)
	s.metrics.ObservePipelineDuration(name, report.Duration)

	if err != nil {
		report.Status = StatusFailed
		report.Cause = err
		s.metrics.IncPipelineOutcome(name, string(StatusFailed))
		s.publish(events.Event{
			Type: events.EventRunFailed, BuildID: bs.BuildID, Pipeline: name,
			Step: report.FailedStep, Task: report.FailedTask, Error: err.Error(),
		})
		s.logger.Error("Pipeline run failed",
			"pipeline", name,
			"build_id", bs.BuildID,
			"step", report.FailedStep,
			"task", report.FailedTask,
			"error", err)
		return report, err
	}

	report.Status = StatusCompleted
	s.metrics.IncPipelineOutcome(name, string(StatusCompleted))
	s.publish(events.Event{Type: events.EventRunCompleted, BuildID: bs.BuildID, Pipeline: name})
	s.logger.Info("Pipeline run completed",
		"pipeline", name,
		"build_id", bs.BuildID,
		"duration", report.Duration,
		"tasks", report.TaskCount())
	return report, nil
}

// runDefinition drives one definition's steps in declared order. Step i+1
// never begins while any task in step i is still running: each step is fully
// drained before advancing.
func (s *Scheduler) runDefinition(ctx context.Context, def Definition, bs *BuildState, report *RunReport, outer bool) error {
	for i, step := range def.Steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline %s canceled before step %d: %w", def.Name, i, err)
		}

		t0 := time.Now()
		failedTask, err := s.runStep(ctx, def, i, step, bs, report)
		stepDur := time.Since(t0)
		if outer {
			report.StepDurations = append(report.StepDurations, stepDur)
		}

		if err != nil {
			if outer {
				report.FailedStep = i
				report.FailedTask = failedTask
			}
			return err
		}

		s.logger.Debug("Step completed", "pipeline", def.Name, "step", i, "tasks", step.String(), "duration", stepDur)
		s.publish(events.Event{Type: events.EventStepCompleted, BuildID: bs.BuildID, Pipeline: def.Name, Step: i})
	}
	return nil
}

// runStep executes one step and returns the name of the failed task, if any.
func (s *Scheduler) runStep(ctx context.Context, def Definition, index int, step Step, bs *BuildState, report *RunReport) (string, error) {
	switch step.Kind {
	case StepSingle:
		name := step.Tasks[0]
		if err := s.runTask(ctx, def.Name, index, name, bs, report); err != nil {
			return name, err
		}
		return "", nil

	case StepConcurrent:
		// Join-all with per-member error slots: the step's failure is the
		// first failure in declaration order, regardless of which member
		// returned first. The group cancels siblings when a member fails,
		// so cancellation errors are blamed only when no member carries a
		// real cause.
		g, gctx := errgroup.WithContext(ctx)
		errs := make([]error, len(step.Tasks))
		for i, name := range step.Tasks {
			g.Go(func() error {
				errs[i] = s.runTask(gctx, def.Name, index, name, bs, report)
				return errs[i]
			})
		}
		_ = g.Wait()
		for i, err := range errs {
			if err != nil && !errors.Is(err, context.Canceled) {
				return step.Tasks[i], err
			}
		}
		for i, err := range errs {
			if err != nil {
				return step.Tasks[i], err
			}
		}
		return "", nil

	case StepPipeline:
		sub, ok := s.pipelines[step.Pipeline]
		if !ok {
			return "", &UnknownPipelineError{Name: step.Pipeline}
		}
		if err := s.runDefinition(ctx, sub, bs, report, false); err != nil {
			// Failure anywhere in the nested pipeline is a failure of the
			// containing step; surface the innermost failed task.
			var te *TaskExecutionError
			if errors.As(err, &te) {
				return te.Task, err
			}
			return "", err
		}
		return "", nil

	default:
		return "", fmt.Errorf("step %d has invalid kind %q", index, step.Kind)
	}
}

func (s *Scheduler) runTask(ctx context.Context, pipeline string, step int, name string, bs *BuildState, report *RunReport) error {
	task, err := s.registry.Resolve(name)
	if err != nil {
		return err
	}

	t0 := time.Now()
	runErr := task.Run(ctx, bs)
	d := time.Since(t0)

	report.recordTask(name, d)
	s.metrics.ObserveTaskDuration(name, d)

	if runErr != nil {
		s.metrics.IncTaskResult(name, metrics.ResultFailure)
		return &TaskExecutionError{Task: name, Step: step, Pipeline: pipeline, Cause: runErr}
	}
	s.metrics.IncTaskResult(name, metrics.ResultSuccess)
	s.logger.Debug("Task completed", "task", name, "duration", d)
	return nil
}

func (s *Scheduler) publish(ev events.Event) {
	if err := s.events.Publish(ev); err != nil {
		s.logger.Warn("Event publish failed", "type", ev.Type, "error", err)
	}
}
