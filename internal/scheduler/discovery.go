package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/umbra-run/umbrad/internal/illumina"
	"github.com/umbra-run/umbrad/internal/project"
)

// Refresh implements `refresh(wait)`: re-check known Runs,
// discover new ones, drain completions, and optionally block until the
// job queue and all workers are idle.
func (s *Scheduler) Refresh(ctx context.Context, wait bool) error {
	for path, r := range s.runs {
		if err := r.Refresh(); err != nil {
			// failure model: I/O errors during refresh are logged
			// and the Run is dropped; the next cycle may rediscover it.
			s.log.Warnf("run %s: refresh: %v; dropping run", path, err)
			delete(s.runs, path)
		}
	}

	if err := s.discoverRuns(); err != nil {
		return err
	}

	s.drainQueueCompletion()

	if wait {
		s.waitForDrain()
	}
	return nil
}

func (s *Scheduler) runOptions() illumina.Options {
	return illumina.Options{
		Strict:      true,
		MinAge:      s.cfg.MinAge,
		GraceWindow: s.cfg.GraceWindow,
		OnComplete:  s.onAnalysisComplete,
		Warn:        func(msg string) { s.log.Warnf("%s", msg) },
		Debug:       func(msg string) { s.log.Debugf("%s", msg) },
	}
}

func (s *Scheduler) discoverRuns() error {
	entries, err := os.ReadDir(s.cfg.RunsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(s.cfg.RunsRoot, e.Name())
		if _, known := s.runs[path]; known {
			continue
		}
		if s.cfg.MinAge > 0 {
			fi, err := e.Info()
			if err == nil && time.Since(fi.ModTime()) < s.cfg.MinAge {
				s.log.Debugf("run dir %s: younger than min_age, skipping", path)
				continue
			}
		}
		if s.cfg.MaxAge > 0 {
			fi, err := e.Info()
			if err == nil && time.Since(fi.ModTime()) > s.cfg.MaxAge {
				continue
			}
		}

		r, err := illumina.Open(path, s.runOptions())
		if err != nil {
			if _, ok := err.(*illumina.NotARun); ok {
				s.log.Debugf("%s: not a run, skipping", path)
				continue
			}
			s.log.Warnf("%s: %v", path, err)
			continue
		}
		s.runs[path] = r
		s.log.Infof("discovered run %s (id=%s)", path, r.RunID())
	}
	return nil
}

// onAnalysisComplete is the "New-Analysis callback": it builds
// every Project for the newly complete Analysis and classifies each
// into active (enqueued) or inactive.
func (s *Scheduler) onAnalysisComplete(an *illumina.Analysis) {
	projects, err := project.ProjectsFromAnalysis(
		an, s.cfg.roots(), s.registry, s.uploader, s.mailer, s.cfg.ReadOnly,
		func(msg string) { s.log.Warnf("%s", msg) },
	)
	if err != nil {
		s.log.Errorf("analysis %s: ProjectsFromAnalysis: %v", an.Path(), err)
		return
	}
	for _, p := range projects {
		p.NThreadsPerProject = s.cfg.NThreadsPerProject
		p.ImplicitTasksSubdir = s.cfg.ImplicitTasksPath
		key := projectKey(p)
		if p.ReadOnly || p.Status == project.StatusFailed {
			s.inactive[key] = p
			s.log.Infof("project %s (%s): classified inactive (readonly=%v status=%s)", p.Name, p.WorkDirName, p.ReadOnly, p.Status)
			continue
		}
		s.active[key] = p
		s.log.Infof("project %s (%s): classified active, enqueuing", p.Name, p.WorkDirName)
		select {
		case s.queueJobs <- p:
		default:
			s.log.Errorf("project %s: job queue full, dropping", p.Name)
		}
	}
}

// waitForDrain blocks until the job queue is empty and no worker is
// currently processing a Project.
func (s *Scheduler) waitForDrain() {
	for {
		if len(s.queueJobs) == 0 && atomic.LoadInt32(&s.busyWorkers) == 0 {
			s.drainQueueCompletion()
			return
		}
		time.Sleep(10 * time.Millisecond)
		s.drainQueueCompletion()
	}
}
