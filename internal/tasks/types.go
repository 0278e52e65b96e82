// Package tasks implements the task registry and resolver: a
// pluggable, explicit table of named task descriptors (order +
// dependencies), and the closure/topological-sort algorithm that turns a
// user-declared task list into the resolved list a Project executes.
//
// Each task is a constant Descriptor in a static registry; additional
// tasks are loaded from a directory of JSON manifests (tasks_path).
package tasks

import (
	"context"
	"path/filepath"
)

// Context is what a Task body receives when run. It intentionally says
// nothing about how the task does its work: only the filesystem
// locations and collaborators every task may need.
type Context struct {
	context.Context

	// TaskName is the name of the task currently running.
	TaskName string

	// WorkDir is the Project's scratch/processing directory.
	WorkDir string
	// FastqDir is the instrument-generated input directory.
	FastqDir string
	// PackageFile is where the package task should write its archive.
	PackageFile string

	// SampleNames lists the project's member samples.
	SampleNames []string
	// SamplePaths maps sample name to its resolved read-file paths.
	SamplePaths map[string][]string

	// PriorOutputs holds every already-completed task's Outputs map,
	// keyed by task name, so a dependent task can consume upstream
	// results (e.g. email reading the URL upload returned).
	PriorOutputs map[string]map[string]any

	// ExperimentName and Contacts carry through the experiment
	// metadata so terminal tasks (metadata, email) can use it.
	ExperimentName string
	Contacts       map[string]string

	// Config is this task's `tasks.<name>.*` configuration subtree.
	Config map[string]any

	// NThreadsPerProject is the `nthreads_per_project` hint.
	NThreadsPerProject int

	// Implicit is true when this task was pulled into the resolved list
	// by dependency or defaults rather than requested in the experiment
	// metadata. ImplicitSubdir is the `implicit_tasks_path` value: a
	// subdirectory of WorkDir under which implicit tasks place their
	// outputs, keeping the top level of the processing directory to the
	// tasks the experiment actually asked for.
	Implicit       bool
	ImplicitSubdir string

	// Log is a line-buffered sink dedicated to this task
	// (logs/log_<task>.txt under WorkDir); tasks should write their
	// progress here rather than to the process's own stdout/stderr.
	Log Logger

	Uploader Uploader
	Mailer   Mailer
}

// OutputDir is the directory a task should create its own output
// subdirectories under: WorkDir itself, or WorkDir/ImplicitSubdir for
// tasks that were not explicitly requested.
func (tc *Context) OutputDir() string {
	if tc.Implicit && tc.ImplicitSubdir != "" {
		return filepath.Join(tc.WorkDir, tc.ImplicitSubdir)
	}
	return tc.WorkDir
}

// Logger is the minimal per-task log sink interface.
type Logger interface {
	Printf(format string, args ...any)
}

// Uploader returns a publicly reachable URL for a local file.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// Mailer delivers an email; failures are logged by the caller, not
// returned as fatal to the Project unless the task is mandatory.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, body string, html bool) error
}

// Task is one pluggable unit of processing.
type Task interface {
	Run(tc *Context) (map[string]any, error)
}

// Descriptor declares a task's identity, ordering, and dependencies.
// Factory builds the runnable Task, given this Project's slice of
// `tasks.<name>.*` config.
type Descriptor struct {
	Name    string
	Order   int
	Deps    []string
	Factory func(cfg map[string]any) Task
}
