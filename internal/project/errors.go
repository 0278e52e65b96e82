package project

import "fmt"

// ConcurrentTask is returned if Process ever observes Current already
// set when it expects to assign a new one, an invariant violation in
// single-threaded execution.
type ConcurrentTask struct {
	Name string
}

func (e *ConcurrentTask) Error() string {
	return fmt.Sprintf("project: task %q already current", e.Name)
}

// MissingDependency is returned when a task about to run declares a
// dependency not yet in Completed.
type MissingDependency struct {
	Task string
	Dep  string
}

func (e *MissingDependency) Error() string {
	return fmt.Sprintf("project: task %q depends on %q which has not completed", e.Task, e.Dep)
}

// ReadOnlyProject is returned by any mutating method called on a
// read-only Project.
type ReadOnlyProject struct {
	Name string
}

func (e *ReadOnlyProject) Error() string {
	return fmt.Sprintf("project %q is read-only", e.Name)
}

// TaskExecutionFailed wraps any error a task body returns. The
// worker never unwraps it further: the Project moves to FAILED and the
// string is persisted verbatim into FailureException.
type TaskExecutionFailed struct {
	Task string
	Err  error
}

func (e *TaskExecutionFailed) Error() string {
	return fmt.Sprintf("task %q: %s", e.Task, e.Err)
}

func (e *TaskExecutionFailed) Unwrap() error { return e.Err }
