// Package app provides the shared entry point for the flowgate binary.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/flowchat/gateway/internal/config"
	"github.com/flowchat/gateway/internal/core"
	_ "github.com/flowchat/gateway/internal/cron"
	"github.com/flowchat/gateway/internal/gateway"
	"github.com/flowchat/gateway/internal/hitl"
	"github.com/flowchat/gateway/internal/mcp"
	"github.com/flowchat/gateway/internal/telemetry"
	"github.com/flowchat/gateway/internal/tool"
	"github.com/flowchat/gateway/internal/tools"
	"github.com/flowchat/gateway/internal/worker"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version is injected at build time via ldflags.
	Version string

	// DataDir overrides the default persistent data directory.
	DataDir string
}

// Run loads configuration, starts all modules, and blocks until a
// shutdown signal is received.
func Run(params RunParams) error {
	cfg, cfgPath, err := loadConfig(params.ConfigPath)
	if err != nil {
		return err
	}

	logger := buildLogger(cfg.Log)

	shutdownTracing, err := telemetry.Setup(context.Background(), cfg.Telemetry, params.Version)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("trace exporter shutdown failed", "error", err)
		}
	}()

	appCtx := core.NewAppContext(logger, dataDir(params.DataDir, cfg))
	appCtx = appCtx.WithModuleConfigs(cfg.Modules)
	appCtx.RegisterService("config.path", cfgPath)

	registry, clients := wireServices(appCtx, cfg, logger)

	application := core.NewApp(appCtx)
	if err := application.LoadModules(config.Resolve(cfg)); err != nil {
		return err
	}

	// The catalog is registered between LoadModules and Start: the
	// approval gate only exists once its module is provisioned, and the
	// workflow handlers need it.
	tools.RegisterAll(registry, tools.Deps{
		Clients: clients,
		Gate:    resolveGate(appCtx),
		Logger:  logger,
	})
	logger.Info("tool catalog registered", "tools", registry.Len())

	return application.Run()
}

// RunMCP serves the tool catalog over MCP on stdio. No HTTP server, no
// scheduler, no approval gate: workflows run unguarded, which suits the
// local development loop this mode exists for.
func RunMCP(params RunParams) error {
	cfg, _, err := loadConfig(params.ConfigPath)
	if err != nil {
		return err
	}

	// stdout belongs to the MCP framing; logs go to stderr regardless
	// of the configured format.
	logger := buildLogger(cfg.Log)

	registry := tool.NewRegistry(logger)
	dispatcher := tool.NewDispatcher(registry, logger)
	clients := worker.NewClients(workerSettings(cfg), logger)
	tools.RegisterAll(registry, tools.Deps{Clients: clients, Logger: logger})

	return mcp.NewServer(dispatcher, params.Version, logger).ServeStdio()
}

func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return nil, "", err
		}
		path = resolved
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func buildLogger(lc config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if lc.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// wireServices builds the process-wide collaborators and registers them
// for cross-module discovery before any module loads.
func wireServices(appCtx *core.AppContext, cfg *config.Config, logger *slog.Logger) (*tool.Registry, *worker.Clients) {
	clients := worker.NewClients(workerSettings(cfg), logger)
	appCtx.RegisterService("worker.clients", clients)

	registry := tool.NewRegistry(logger)
	dispatcher := tool.NewDispatcher(registry, logger)

	metrics := gateway.NewMetrics()
	dispatcher.SetMetrics(metrics)
	appCtx.RegisterService("gateway.metrics", metrics)
	appCtx.RegisterService("gateway.upstream", cfg.Upstream)

	appCtx.RegisterService("tool.registry", registry)
	appCtx.RegisterService("tool.dispatcher", dispatcher)

	// The approval gate resumes workflows through this narrower shape.
	var dispatch hitl.DispatchFunc = func(ctx context.Context, name string, params map[string]any) (any, error) {
		result, err := dispatcher.Dispatch(ctx, name, params)
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	appCtx.RegisterService("tool.dispatch", dispatch)

	return registry, clients
}

func workerSettings(cfg *config.Config) worker.Settings {
	return worker.Settings{
		Secret:      cfg.Workers.Secret,
		QueryURL:    cfg.Workers.Query.URL,
		QueryKey:    cfg.Workers.Query.Key,
		MutationURL: cfg.Workers.Mutation.URL,
		DocumentURL: cfg.Workers.Document.URL,
		StorageURL:  cfg.Workers.Storage.URL,
		EmailURL:    cfg.Workers.Email.URL,
	}
}

func resolveGate(appCtx *core.AppContext) *hitl.Gate {
	if svc, ok := appCtx.Service("hitl.gate"); ok {
		if gate, ok := svc.(*hitl.Gate); ok {
			return gate
		}
	}
	return nil
}

func dataDir(override string, cfg *config.Config) string {
	if override != "" {
		return override
	}
	if cfg.DataDir != "" {
		return cfg.DataDir
	}
	return DefaultDataDir()
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/flowgate/flowgate.yaml →
// ~/.config/flowgate/flowgate.yaml → ./flowgate.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "flowgate", "flowgate.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "flowgate", "flowgate.yaml"))
	}

	candidates = append(candidates, "flowgate.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultDataDir returns the default persistent data directory per the
// XDG spec.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "flowgate")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "flowgate")
}
