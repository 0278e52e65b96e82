// Package scheduler implements the coordinator/worker-pool core: a
// single coordinator goroutine that owns run/Project state and a
// bounded pool of workers that run Project.Process, communicating only
// through the job and completion queues.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/umbra-run/umbrad/internal/illumina"
	"github.com/umbra-run/umbrad/internal/project"
	"github.com/umbra-run/umbrad/internal/tasks"
)

// Logger is the minimal structured-ish log sink the scheduler writes
// to; internal/display supplies the daemon's concrete implementation.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}

// Config bundles every configuration key the scheduler consumes.
type Config struct {
	RunsRoot        string
	ExperimentsRoot string
	StatusRoot      string
	ProcessedRoot   string
	PackagedRoot    string

	NThreads           int
	NThreadsPerProject int
	ReadOnly           bool

	MinAge time.Duration
	MaxAge time.Duration

	GraceWindow time.Duration

	PollInterval time.Duration

	ReportPath     string
	ReportMaxWidth int

	// ImplicitTasksPath is handed to every constructed Project as the
	// subdirectory for dependency-pulled task outputs.
	ImplicitTasksPath string

	TaskConfig map[string]map[string]any
}

func (c Config) roots() project.Roots {
	return project.Roots{
		ExperimentsRoot: c.ExperimentsRoot,
		StatusRoot:      c.StatusRoot,
		ProcessedRoot:   c.ProcessedRoot,
		PackagedRoot:    c.PackagedRoot,
	}
}

// Scheduler is the coordinator/processor: it owns `runs` and the
// three Project buckets, and drives the worker pool via queues.
type Scheduler struct {
	cfg      Config
	registry *tasks.Registry
	uploader tasks.Uploader
	mailer   tasks.Mailer
	log      Logger

	// Owned exclusively by the coordinator goroutine. Never touched
	// from worker goroutines.
	runs      map[string]*illumina.Run
	active    map[string]*project.Project
	inactive  map[string]*project.Project
	completed map[string]*project.Project

	queueJobs       chan *project.Project
	queueCompletion chan *project.Project
	queueCmd        chan command

	busyWorkers int32 // atomic; number of workers currently running Project.Process

	mu sync.Mutex // protects AlertHook only, for cross-goroutine safety

	// AlertHook is invoked (from a worker goroutine) whenever a Project
	// transitions to FAILED during processing; the CLI wires it to an
	// alert email. May be nil.
	AlertHook func(p *project.Project)

	// VerbosityHook is invoked from the coordinator goroutine on
	// SIGUSR1/SIGUSR2 (step -1/+1). May be nil.
	VerbosityHook func(step int)
}

type command int

const (
	cmdReload command = iota
	cmdFinishUp
)

// New constructs a Scheduler. reg must already be Validate()'d.
func New(cfg Config, reg *tasks.Registry, uploader tasks.Uploader, mailer tasks.Mailer, log Logger) *Scheduler {
	if cfg.NThreads <= 0 {
		cfg.NThreads = 1
	}
	return &Scheduler{
		cfg:             cfg,
		registry:        reg,
		uploader:        uploader,
		mailer:          mailer,
		log:             log,
		runs:            map[string]*illumina.Run{},
		active:          map[string]*project.Project{},
		inactive:        map[string]*project.Project{},
		completed:       map[string]*project.Project{},
		queueJobs:       make(chan *project.Project, 1024),
		queueCompletion: make(chan *project.Project, 1024),
		queueCmd:        make(chan command, 4),
	}
}

func projectKey(p *project.Project) string {
	return fmt.Sprintf("%s/%d/%s", p.RunID, p.AnalysisIndex, p.Name)
}

// Reload waits for running jobs (when wait is true), clears all owned
// state, and refreshes from scratch.
func (s *Scheduler) Reload(ctx context.Context, wait bool) error {
	if wait {
		s.waitForDrain()
	} else {
		s.drainQueueCompletion()
	}
	s.runs = map[string]*illumina.Run{}
	s.active = map[string]*project.Project{}
	s.inactive = map[string]*project.Project{}
	s.completed = map[string]*project.Project{}
	return s.Refresh(ctx, wait)
}

func (s *Scheduler) drainQueueCompletion() {
	for {
		select {
		case p := <-s.queueCompletion:
			s.completed[projectKey(p)] = p
			delete(s.active, projectKey(p))
		default:
			return
		}
	}
}

// Active/Inactive/Completed expose read-only snapshots for the report
// writer and tests.
func (s *Scheduler) Active() []*project.Project    { return values(s.active) }
func (s *Scheduler) Inactive() []*project.Project  { return values(s.inactive) }
func (s *Scheduler) Completed() []*project.Project { return values(s.completed) }
func (s *Scheduler) Runs() []*illumina.Run         { return runValues(s.runs) }

func values(m map[string]*project.Project) []*project.Project {
	out := make([]*project.Project, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	return out
}

func runValues(m map[string]*illumina.Run) []*illumina.Run {
	out := make([]*illumina.Run, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	return out
}
