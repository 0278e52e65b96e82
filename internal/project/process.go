package project

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/umbra-run/umbrad/internal/tasks"
)

// fileLogger is the per-task log sink (logs/log_<task>.txt): each task
// gets its own *log.Logger so a Project's processing directory is
// self-documenting.
type fileLogger struct {
	f *os.File
	l *log.Logger
}

func newFileLogger(path string) (*fileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &fileLogger{f: f, l: log.New(f, "", log.LstdFlags)}, nil
}

func (fl *fileLogger) Printf(format string, args ...any) { fl.l.Printf(format, args...) }
func (fl *fileLogger) Close() error                      { return fl.f.Close() }

// Process drives the Project through its resolved task list.
// cfg supplies each task's factory configuration, keyed by task name.
// alert, if non-nil, is invoked once if the Project transitions to
// FAILED.
func (p *Project) Process(ctx context.Context, reg *tasks.Registry, cfg map[string]map[string]any, alert func(p *Project)) error {
	if p.ReadOnly {
		return &ReadOnlyProject{Name: p.Name}
	}
	if p.Status == StatusFailed {
		return fmt.Errorf("project %s: already failed, will not be re-run", p.Name)
	}

	fail := func(err error) error {
		err = p.fail(err)
		if alert != nil {
			alert(p)
		}
		return err
	}

	p.Status = StatusProcessing
	if err := os.MkdirAll(p.ProcessingDir, 0755); err != nil {
		return fail(err)
	}
	if err := p.saveForce(); err != nil {
		return err
	}

	for len(p.Pending) > 0 {
		if p.Current != "" {
			return fail(&ConcurrentTask{Name: p.Current})
		}

		name := p.Pending[0]
		p.Pending = p.Pending[1:]
		p.Current = name

		desc, ok := reg.Get(name)
		if !ok {
			return fail(fmt.Errorf("project %s: task %q vanished from the registry", p.Name, name))
		}
		for _, dep := range desc.Deps {
			if !containsStr(p.Completed, dep) {
				return fail(&MissingDependency{Task: name, Dep: dep})
			}
		}

		if err := p.saveForce(); err != nil {
			return err
		}

		fl, logErr := newFileLogger(filepath.Join(p.ProcessingDir, "logs", "log_"+name+".txt"))
		if logErr != nil {
			return fail(logErr)
		}

		priorOutputs := map[string]map[string]any{}
		for k, v := range p.Outputs {
			priorOutputs[k] = v
		}

		tc := &tasks.Context{
			Context:            ctx,
			TaskName:           name,
			WorkDir:            p.ProcessingDir,
			FastqDir:           p.fastqDir(),
			PackageFile:        p.PackageFile,
			SampleNames:        p.SampleNames,
			SamplePaths:        p.SamplePaths,
			PriorOutputs:       priorOutputs,
			ExperimentName:     p.ExperimentName,
			Contacts:           p.Contacts,
			Config:             cfg[name],
			NThreadsPerProject: p.NThreadsPerProject,
			Implicit:           !containsStr(p.RequestedTasks, name),
			ImplicitSubdir:     p.ImplicitTasksSubdir,
			Log:                fl,
			Uploader:           p.Uploader,
			Mailer:             p.Mailer,
		}

		body := desc.Factory(cfg[name])
		out, err := body.Run(tc)
		fl.Close()
		if err != nil {
			return fail(&TaskExecutionFailed{Task: name, Err: err})
		}

		if out == nil {
			out = map[string]any{}
		}
		p.Outputs[name] = out
		p.Completed = append(p.Completed, name)
		p.Current = ""
		if name == "package" {
			p.Status = StatusPackageReady
		}
		if err := p.saveForce(); err != nil {
			return err
		}
	}

	p.Status = StatusComplete
	return p.saveForce()
}

// fail records the failure detail, persists the status file, and
// returns the original error (or the save error, if persisting fails).
// Current is left as-is: a Project that
// fails mid-task keeps Current pointing at the task that failed.
func (p *Project) fail(err error) error {
	p.Status = StatusFailed
	p.FailureException = err.Error()
	if saveErr := p.saveForce(); saveErr != nil {
		return saveErr
	}
	return err
}

// fastqDir resolves the Analysis's instrument-generated input
// directory, empty for a Project restored from a status file alone.
func (p *Project) fastqDir() string {
	if p.Analysis != nil {
		return p.Analysis.FastqDir()
	}
	return ""
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
