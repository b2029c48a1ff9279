package cron

import (
	"context"
)

// Job is a named periodic task with a cron schedule.
type Job interface {
	Name() string
	Schedule() string
	Run(ctx context.Context) error
}

// Sweeper times out overdue approval requests. Implemented by the
// approval gate.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// ApprovalSweepJob marks expired pending approval requests as timed out.
// Resumption after expiry is impossible by design; this sweep is what
// enforces it, and it also recovers records orphaned by a crash between
// persist and notify.
type ApprovalSweepJob struct {
	Sweeper  Sweeper
	Interval string
}

var _ Job = (*ApprovalSweepJob)(nil)

// Name implements Job.
func (j *ApprovalSweepJob) Name() string { return "hitl_sweep_expired" }

// Schedule implements Job. Defaults to every five minutes.
func (j *ApprovalSweepJob) Schedule() string {
	if j.Interval != "" {
		return j.Interval
	}
	return "*/5 * * * *"
}

// Run implements Job.
func (j *ApprovalSweepJob) Run(ctx context.Context) error {
	_, err := j.Sweeper.SweepExpired(ctx)
	return err
}
