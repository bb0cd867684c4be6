package pipeline

import "fmt"

// StepKind tags the variant of a pipeline step.
type StepKind string

const (
	// StepSingle runs one task to completion.
	StepSingle StepKind = "single"
	// StepConcurrent runs a set of tasks concurrently and joins them all.
	StepConcurrent StepKind = "concurrent"
	// StepPipeline runs another full pipeline definition as one step.
	StepPipeline StepKind = "pipeline"
)

// Step is one element of a pipeline definition: a single task, a concurrent
// set of tasks, or a nested pipeline. Tasks listed in a concurrent step must
// not depend on each other and must write to disjoint subtrees; that is a
// contract on pipeline authors, not something the scheduler verifies.
type Step struct {
	Kind     StepKind
	Tasks    []string
	Pipeline string
}

// Single declares a step running one task.
func Single(task string) Step {
	return Step{Kind: StepSingle, Tasks: []string{task}}
}

// Concurrent declares a step running tasks concurrently. Failure of the step
// is the first failure among members in declaration order.
func Concurrent(tasks ...string) Step {
	return Step{Kind: StepConcurrent, Tasks: tasks}
}

// Sub declares a step that runs a whole named pipeline. A failure anywhere
// in the nested pipeline is a failure of this step.
func Sub(pipeline string) Step {
	return Step{Kind: StepPipeline, Pipeline: pipeline}
}

func (s Step) String() string {
	switch s.Kind {
	case StepSingle:
		return s.Tasks[0]
	case StepConcurrent:
		return fmt.Sprintf("%v", s.Tasks)
	case StepPipeline:
		return "pipeline:" + s.Pipeline
	default:
		return "invalid"
	}
}

// Definition is an ordered sequence of steps registered under a name.
// A step starts only after every task in the previous step completed
// successfully; the pipeline aborts at the first step containing a failure.
type Definition struct {
	Name  string
	Steps []Step
}

// UnknownPipelineError reports a reference to an undefined pipeline.
type UnknownPipelineError struct {
	Name string
}

func (e *UnknownPipelineError) Error() string {
	return fmt.Sprintf("unknown pipeline: %s", e.Name)
}
