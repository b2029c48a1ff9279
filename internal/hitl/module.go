package hitl

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flowchat/gateway/internal/core"
	"github.com/flowchat/gateway/internal/worker"
)

func init() {
	core.RegisterModule(&Module{})
}

// Config holds the approval gate settings.
type Config struct {
	Enabled        bool    `yaml:"enabled"`
	DBPath         string  `yaml:"db_path"`
	Threshold      float64 `yaml:"threshold"`
	TimeoutMinutes int     `yaml:"timeout_minutes"`

	Notify struct {
		URL    string `yaml:"url"`
		Secret string `yaml:"secret"`
	} `yaml:"notify"`
}

func (c *Config) defaults() {
	if c.Threshold <= 0 {
		c.Threshold = 1500
	}
	if c.TimeoutMinutes <= 0 {
		c.TimeoutMinutes = 30
	}
}

// Module wires the approval gate into the application lifecycle and
// exposes it as the "hitl.gate" service.
type Module struct {
	config Config
	appCtx *core.AppContext
	logger *slog.Logger
	store  *Store
	rules  *Rules
	gate   *Gate
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "hitl.gate",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return err
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.appCtx = ctx
	m.logger = ctx.Logger

	path := m.config.DBPath
	if path == "" {
		path = filepath.Join(ctx.DataDir, "hitl", "requests.db")
	}

	store, err := OpenStore(path, m.logger)
	if err != nil {
		return err
	}
	m.store = store

	var notifier Notifier
	if m.config.Notify.URL != "" {
		notifier = NewWebhookNotifier(m.config.Notify.URL, m.config.Notify.Secret, nil)
	}

	m.rules = &Rules{Threshold: m.config.Threshold, Logger: m.logger}
	m.gate = NewGate(store, notifier, m.rules, m.config.Enabled,
		time.Duration(m.config.TimeoutMinutes)*time.Minute, m.logger)

	ctx.RegisterService("hitl.gate", m.gate)
	return nil
}

// Start implements core.Starter. Dependencies are resolved lazily from
// the service registry so module load order stays flexible.
func (m *Module) Start() error {
	if svc, ok := m.appCtx.Service("worker.clients"); ok {
		if clients, ok := svc.(*worker.Clients); ok {
			m.rules.Checker = &QueryInvoiceChecker{Query: clients.Query}
		}
	}

	bound := false
	if svc, ok := m.appCtx.Service("tool.dispatch"); ok {
		if fn, ok := svc.(DispatchFunc); ok {
			m.gate.SetDispatch(fn)
			bound = true
		}
	}

	if m.config.Enabled && !bound {
		return errors.New("hitl: enabled but no dispatcher available")
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if m.gate != nil {
		m.gate.Wait()
	}
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}
