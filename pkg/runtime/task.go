// Package runtime contains the execution stages: the executor, which wraps
// one block handler with the retry and timeout loop, and the pool, a
// bounded-concurrency dispatcher per resource class.
package runtime

import "github.com/rustkas/beamline-worker/pkg/core"

// Task is one admitted unit of work flowing through a pool to an executor:
// the step request, its block context and the assignment identity needed to
// publish the result.
type Task struct {
	Req core.StepRequest
	Ctx core.BlockContext

	AssignmentID string
	RequestID    string
	ProviderID   string
}

// ResultSink receives the terminal StepResult for a task. At most one result
// is delivered per task.
type ResultSink func(task Task, res core.StepResult)
