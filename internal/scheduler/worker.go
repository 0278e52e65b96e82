package scheduler

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/umbra-run/umbrad/internal/project"
)

// runWorkerPool consumes queueJobs until ctx is cancelled, running up
// to cfg.NThreads Projects concurrently. Each worker drives one
// Project to completion (success or failure) before taking the next
// job; finished Projects are pushed to queueCompletion for the
// coordinator to fold into its `completed` bucket.
func (s *Scheduler) runWorkerPool(ctx context.Context) *errgroup.Group {
	sem := semaphore.NewWeighted(int64(s.cfg.NThreads))
	g, gctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case p, ok := <-s.queueJobs:
				if !ok {
					return nil
				}
				// Counted busy the instant it leaves the queue, not after the
				// semaphore grants a slot, so waitForDrain can't observe an
				// empty queue and zero busy workers while this job is still
				// waiting for a slot.
				atomic.AddInt32(&s.busyWorkers, 1)
				if err := sem.Acquire(gctx, 1); err != nil {
					atomic.AddInt32(&s.busyWorkers, -1)
					return nil
				}
				g.Go(func() error {
					defer sem.Release(1)
					defer atomic.AddInt32(&s.busyWorkers, -1)
					s.runOne(ctx, p)
					return nil
				})
			}
		}
	})

	return g
}

func (s *Scheduler) runOne(ctx context.Context, p *project.Project) {
	err := p.Process(ctx, s.registry, s.cfg.TaskConfig, s.alert)
	if err != nil {
		s.log.Errorf("project %s: failed: %v", p.Name, err)
	} else {
		s.log.Infof("project %s: complete", p.Name)
	}
	s.queueCompletion <- p
}

func (s *Scheduler) alert(p *project.Project) {
	s.mu.Lock()
	hook := s.AlertHook
	s.mu.Unlock()
	if hook != nil {
		hook(p)
	}
}
