// Package cron drives the gateway's background maintenance, currently
// the sweep that times out overdue approval requests.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler runs registered jobs on five-field cron expressions. Ticks
// of the same job never overlap: a run that outlives its interval (a
// sweep stuck on a busy database, say) makes the next tick a no-op
// rather than a second goroutine.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries []*entry
	logger  *slog.Logger
	cancel  context.CancelFunc
}

// entry pairs a job with the mutex guarding against overlapping runs.
type entry struct {
	job  Job
	lock sync.Mutex
}

// NewScheduler creates an empty scheduler. Jobs are registered before
// Start; nothing can be added to a running scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{logger: logger}
}

// RegisterJob adds a job. Names are unique so a misconfigured module
// cannot silently double a sweep.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.job.Name() == j.Name() {
			return fmt.Errorf("cron: duplicate job name %q", j.Name())
		}
	}
	s.entries = append(s.entries, &entry{job: j})
	return nil
}

// Start parses every schedule and begins ticking. A single invalid
// expression fails the whole start; a half-scheduled gateway would
// leave approval requests unswept without anyone noticing.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	s.cron = cron.New(cron.WithParser(parser))

	for _, e := range s.entries {
		e := e
		if _, err := s.cron.AddFunc(e.job.Schedule(), func() { s.tick(ctx, e) }); err != nil {
			cancel()
			return fmt.Errorf("cron: invalid schedule for job %q: %w", e.job.Name(), err)
		}
	}

	s.cron.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.entries))
	return nil
}

// tick runs one scheduled execution. TryLock is the overlap guard:
// if the previous execution is still in flight the tick is dropped,
// not queued.
func (s *Scheduler) tick(ctx context.Context, e *entry) {
	if !e.lock.TryLock() {
		s.logger.Warn("cron: previous run still in flight, skipping tick", "job", e.job.Name())
		return
	}
	defer e.lock.Unlock()

	if err := e.job.Run(ctx); err != nil {
		s.logger.Error("cron: job failed", "job", e.job.Name(), "error", err)
		return
	}
	s.logger.Debug("cron: job completed", "job", e.job.Name())
}

// Stop cancels the job context and waits for in-flight runs to finish.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.logger.Info("cron: scheduler stopped")
	}
	return nil
}
