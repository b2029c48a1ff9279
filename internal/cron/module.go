package cron

import (
	"context"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/flowchat/gateway/internal/core"
)

func init() {
	core.RegisterModule(&Module{})
}

// Config holds scheduler settings.
type Config struct {
	// SweepSchedule overrides the approval sweep cadence.
	SweepSchedule string `yaml:"sweep_schedule"`
}

// Module runs the scheduler as part of the application lifecycle.
type Module struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	scheduler *Scheduler
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "cron.scheduler",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	return node.Decode(&m.config)
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.appCtx = ctx
	m.logger = ctx.Logger
	m.scheduler = NewScheduler(m.logger)
	ctx.RegisterService("cron.scheduler", m.scheduler)
	return nil
}

// Start implements core.Starter. Jobs whose collaborators exist in the
// service registry are registered just before the scheduler starts.
func (m *Module) Start() error {
	if svc, ok := m.appCtx.Service("hitl.gate"); ok {
		if sweeper, ok := svc.(Sweeper); ok {
			if err := m.scheduler.RegisterJob(&ApprovalSweepJob{
				Sweeper:  sweeper,
				Interval: m.config.SweepSchedule,
			}); err != nil {
				return err
			}
		}
	}
	return m.scheduler.Start()
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	return m.scheduler.Stop(ctx)
}
