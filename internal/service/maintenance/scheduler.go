// Package maintenance runs the registry housekeeping jobs on a schedule.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/diagnosis/baywheel-hotline/pkg/logger"
)

// Job is one housekeeping pass. The returned value is logged.
type Job func(ctx context.Context) (any, error)

type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration

	mu      sync.Mutex
	jobs    map[string]Job
	running map[string]bool
}

// NewScheduler parses six-field specs (with seconds) in UTC. Each run gets
// its own timeout.
func NewScheduler(timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		timeout: timeout,
		jobs:    make(map[string]Job),
		running: make(map[string]bool),
	}
}

func (s *Scheduler) Add(name, spec string, job Job) error {
	s.mu.Lock()
	if _, dup := s.jobs[name]; dup {
		s.mu.Unlock()
		return fmt.Errorf("job %q already registered", name)
	}
	s.jobs[name] = job
	s.mu.Unlock()

	if _, err := s.cron.AddFunc(spec, func() { s.Run(context.Background(), name) }); err != nil {
		s.mu.Lock()
		delete(s.jobs, name)
		s.mu.Unlock()
		return fmt.Errorf("job %q: invalid schedule %q: %w", name, spec, err)
	}
	logger.Info("Maintenance job scheduled", "job", name, "schedule", spec)
	return nil
}

// Run executes a job now. A job still running from a previous tick is
// skipped. It reports whether the job ran and succeeded.
func (s *Scheduler) Run(ctx context.Context, name string) bool {
	s.mu.Lock()
	job, ok := s.jobs[name]
	if !ok || s.running[name] {
		s.mu.Unlock()
		if ok {
			logger.Warn("Maintenance job still running, skipping", "job", name)
		}
		return false
	}
	s.running[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	res, err := job(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Maintenance job failed", "job", name, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return false
	}
	logger.InfoContext(ctx, "Maintenance job finished", "job", name, "result", res, "elapsed_ms", time.Since(start).Milliseconds())
	return true
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
