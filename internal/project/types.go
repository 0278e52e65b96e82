// Package project implements the Project work unit: the join of one
// Analysis with one project's experiment metadata, its durable status
// file, its resolved task graph, and the Process loop that executes
// it.
package project

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/umbra-run/umbrad/internal/illumina"
	"github.com/umbra-run/umbrad/internal/tasks"
)

// Status is the Project lifecycle state.
type Status string

const (
	StatusNone         Status = "none"
	StatusProcessing   Status = "processing"
	StatusPackageReady Status = "package-ready"
	StatusComplete     Status = "complete"
	StatusFailed       Status = "failed"
)

// Project is one project's portion of one Analysis.
type Project struct {
	// Identity: (run id, analysis index, project name).
	RunID         string
	AnalysisIndex int
	Name          string

	WorkDirName string // human-readable slug

	Analysis *illumina.Analysis
	// AnalysisPath survives a status-file reload, when the live
	// Analysis reference is unavailable.
	AnalysisPath string

	ProcessingDir string
	PackageFile   string
	StatusFile    string

	SampleNames []string
	SamplePaths map[string][]string
	Contacts    map[string]string

	// RequestedTasks is the task list declared in the experiment
	// metadata, before defaults and dependency closure. A resolved task
	// not present here is "implicit" and places its outputs under
	// ImplicitTasksSubdir.
	RequestedTasks      []string
	ImplicitTasksSubdir string

	Resolved  []string // resolved task list, sorted
	Pending   []string
	Current   string
	Completed []string
	Outputs   map[string]map[string]any

	Status           Status
	FailureException string

	ReadOnly bool

	ExperimentName string

	// NThreadsPerProject is the nthreads_per_project subprocess
	// parallelism hint handed through to each task body.
	NThreadsPerProject int

	Uploader tasks.Uploader
	Mailer   tasks.Mailer
}

// record is the on-disk schema of the status file: explicit fields
// only, so restart-time loads can reject anything unrecognized instead
// of silently carrying a free-form blob.
type record struct {
	Status    Status                    `yaml:"status"`
	Resolved  []string                  `yaml:"resolved"`
	Pending   []string                  `yaml:"pending"`
	Current   string                    `yaml:"current"`
	Completed []string                  `yaml:"completed"`
	Outputs   map[string]map[string]any `yaml:"outputs"`

	ExperimentInfo struct {
		Name        string            `yaml:"name"`
		Contacts    map[string]string `yaml:"contacts"`
		SampleNames []string          `yaml:"sample_names"`
		Tasks       []string          `yaml:"tasks"`
	} `yaml:"experiment_info"`

	SamplePaths map[string][]string `yaml:"sample_paths"`

	FailureException string `yaml:"failure_exception,omitempty"`

	RunID         string `yaml:"run_id"`
	AnalysisIndex int    `yaml:"analysis_index"`
	AnalysisPath  string `yaml:"analysis_path"`

	// The work-directory identity is persisted so a restart reports and
	// reuses the same locations instead of recomputing them (the date
	// component would otherwise drift with the reload time).
	WorkDir       string `yaml:"work_dir"`
	ProcessingDir string `yaml:"processing_dir"`
	PackageFile   string `yaml:"package_file"`
}

var slugPattern = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Slug replaces anything outside [A-Za-z0-9-_] with "_". Used for
// filenames derived from free-text names (project name, contact name).
func Slug(s string) string {
	return slugPattern.ReplaceAllString(s, "_")
}

// statusFilePath computes the status file location.
func statusFilePath(statusRoot, runID string, analysisIndex int, projectName string) string {
	return filepath.Join(statusRoot, runID, fmt.Sprintf("%d", analysisIndex), Slug(projectName)+".yml")
}

// contactFirstNames joins the first name of every contact, sorted for
// determinism, used by the work-directory slug.
func contactFirstNames(contacts map[string]string) string {
	names := make([]string, 0, len(contacts))
	for n := range contacts {
		if fields := strings.Fields(n); len(fields) > 0 {
			names = append(names, fields[0])
		}
	}
	sort.Strings(names)
	return strings.Join(names, "-")
}
