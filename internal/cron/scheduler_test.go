package cron

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
)

type stubJob struct {
	name     string
	schedule string
	runs     atomic.Int32
	err      error
}

func (j *stubJob) Name() string     { return j.name }
func (j *stubJob) Schedule() string { return j.schedule }
func (j *stubJob) Run(context.Context) error {
	j.runs.Add(1)
	return j.err
}

func TestSchedulerRejectsDuplicateNames(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil)
	if err := s.RegisterJob(&stubJob{name: "sweep", schedule: "* * * * *"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := s.RegisterJob(&stubJob{name: "sweep", schedule: "* * * * *"})
	if err == nil || !strings.Contains(err.Error(), "duplicate job name") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestSchedulerRejectsInvalidSchedule(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil)
	if err := s.RegisterJob(&stubJob{name: "bad", schedule: "not a schedule"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Fatal("invalid schedule must fail Start")
	}
}

func TestSchedulerStartStop(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil)
	if err := s.RegisterJob(&stubJob{name: "sweep", schedule: "*/5 * * * *"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (c *countingSweeper) SweepExpired(context.Context) (int64, error) {
	c.calls.Add(1)
	return 1, c.err
}

func TestApprovalSweepJob(t *testing.T) {
	t.Parallel()

	sweeper := &countingSweeper{}
	job := &ApprovalSweepJob{Sweeper: sweeper}

	if job.Name() != "hitl_sweep_expired" {
		t.Errorf("name = %q", job.Name())
	}
	if job.Schedule() != "*/5 * * * *" {
		t.Errorf("default schedule = %q", job.Schedule())
	}
	if got := (&ApprovalSweepJob{Interval: "0 * * * *"}).Schedule(); got != "0 * * * *" {
		t.Errorf("custom schedule = %q", got)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if sweeper.calls.Load() != 1 {
		t.Errorf("sweeper calls = %d", sweeper.calls.Load())
	}

	boom := errors.New("db locked")
	job = &ApprovalSweepJob{Sweeper: &countingSweeper{err: boom}}
	if err := job.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("run error = %v", err)
	}
}
