package scheduler

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchAndProcess runs the coordinator loop until ctx is
// cancelled or a finish_up command is processed: start the worker
// pool, then repeatedly refresh, optionally save the report, and
// sleep for poll. SIGINT/SIGTERM request a clean shutdown (a second
// signal exits immediately); SIGHUP requests a full reload; SIGUSR1/
// SIGUSR2 lower/raise the log level (more/less verbose) via
// adjustVerbosity, if set.
func (s *Scheduler) WatchAndProcess(ctx context.Context, poll time.Duration, wait bool) error {
	if poll <= 0 {
		poll = s.cfg.PollInterval
	}
	if poll <= 0 {
		poll = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g := s.runWorkerPool(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigCh)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.Warnf("fsnotify: %v (falling back to poll-only discovery)", err)
	} else {
		defer watcher.Close()
	}

	shutdownRequested := false
	var pendingReload bool

	s.log.Debugf("starting processing loop")
	for {
		if !pendingReload {
			s.log.Debugf("refreshing")
			if err := s.Refresh(ctx, wait); err != nil {
				s.log.Warnf("refresh: %v", err)
			}
		} else {
			pendingReload = false
			s.log.Debugf("reloading")
			if err := s.Reload(ctx, wait); err != nil {
				s.log.Warnf("reload: %v", err)
			}
		}

		if s.cfg.ReportPath != "" {
			if err := s.SaveReport(); err != nil {
				s.log.Warnf("save_report: %v", err)
			}
		}

		if watcher != nil {
			s.syncWatches(watcher)
		}

		select {
		case <-time.After(poll):
		case <-fsEvents(watcher):
			s.log.Debugf("fsnotify: filesystem change observed, short-circuiting poll")
		case err := <-fsErrors(watcher):
			if err != nil {
				s.log.Debugf("fsnotify: %v", err)
			}
		case <-ctx.Done():
			return g.Wait()
		}

		// Signals only translate to commands; the loop below is the one
		// place command state is mutated.
		drained := false
		for !drained {
			select {
			case sig := <-sigCh:
				switch sig {
				case syscall.SIGINT, syscall.SIGTERM:
					if shutdownRequested {
						s.log.Warnf("second shutdown signal received, exiting immediately")
						cancel()
						return nil
					}
					shutdownRequested = true
					s.RequestFinishUp()
				case syscall.SIGHUP:
					s.RequestReload()
				case syscall.SIGUSR1:
					s.adjustVerbosity(-1)
				case syscall.SIGUSR2:
					s.adjustVerbosity(1)
				}
			default:
				drained = true
			}
		}

		for done := false; !done; {
			select {
			case cmd := <-s.queueCmd:
				switch cmd {
				case cmdReload:
					s.log.Infof("reload requested")
					pendingReload = true
				case cmdFinishUp:
					s.log.Infof("shutdown requested, finishing current cycle")
					cancel()
					done := make(chan error, 1)
					go func() { done <- g.Wait() }()
					for {
						select {
						case err := <-done:
							return err
						case sig := <-sigCh:
							if sig == syscall.SIGINT || sig == syscall.SIGTERM {
								s.log.Warnf("second shutdown signal received, exiting immediately")
								return nil
							}
						}
					}
				}
			default:
				done = true
			}
		}
	}
}

// RequestReload asks the coordinator to clear and rebuild its state
// after the current cycle; the daemon wires SIGHUP here.
func (s *Scheduler) RequestReload() {
	select {
	case s.queueCmd <- cmdReload:
	default:
	}
}

// RequestFinishUp asks the coordinator to exit after the current
// cycle; the daemon wires SIGINT/SIGTERM here.
func (s *Scheduler) RequestFinishUp() {
	select {
	case s.queueCmd <- cmdFinishUp:
	default:
	}
}

// RunOnce starts the worker pool, runs a single refresh (waiting for
// every enqueued Project to finish when wait is true), then stops the
// pool. It backs `umbrad process`, a one-shot analogue of the
// `--action process` CLI surface.
func (s *Scheduler) RunOnce(ctx context.Context, wait bool) error {
	ctx, cancel := context.WithCancel(ctx)
	g := s.runWorkerPool(ctx)

	err := s.Refresh(ctx, wait)
	cancel()
	if waitErr := g.Wait(); err == nil {
		err = waitErr
	}
	return err
}

// adjustVerbosity is a no-op unless VerbosityHook is set; it exists so
// the coordinator can react to SIGUSR1/SIGUSR2 without depending on a
// concrete logging implementation.
func (s *Scheduler) adjustVerbosity(step int) {
	if s.VerbosityHook != nil {
		s.VerbosityHook(step)
	}
}

// fsEvents/fsErrors return watcher's channels, or a nil channel (which
// blocks forever and so is never selected) when fsnotify failed to
// initialize -- letting the coordinator's select degrade gracefully to
// poll-only discovery.
func fsEvents(w *fsnotify.Watcher) chan fsnotify.Event {
	if w == nil {
		return nil
	}
	return w.Events
}

func fsErrors(w *fsnotify.Watcher) chan error {
	if w == nil {
		return nil
	}
	return w.Errors
}

// syncWatches adds a watch for every directory the coordinator currently
// cares about: the runs and experiments roots (to see brand-new run/
// experiment directories appear), plus every known Run's own directory
// and every known Analysis's directory (to see completion markers and
// metadata.csv land without waiting a full poll interval). fsnotify.Add
// on an already-watched path is a cheap no-op, so this is safe to call
// every cycle without tracking what is already registered.
func (s *Scheduler) syncWatches(w *fsnotify.Watcher) {
	add := func(path string) {
		if path == "" {
			return
		}
		if err := w.Add(path); err != nil {
			s.log.Debugf("fsnotify: watch %s: %v", path, err)
		}
	}
	add(s.cfg.RunsRoot)
	add(s.cfg.ExperimentsRoot)
	for path, r := range s.runs {
		add(path)
		for _, an := range r.Analyses {
			add(an.Path())
		}
	}
	if s.cfg.ExperimentsRoot != "" {
		entries, err := os.ReadDir(s.cfg.ExperimentsRoot)
		if err == nil {
			for _, e := range entries {
				if e.IsDir() {
					add(filepath.Join(s.cfg.ExperimentsRoot, e.Name()))
				}
			}
		}
	}
}
