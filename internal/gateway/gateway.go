// Package gateway is the HTTP surface: tool invocation and discovery
// endpoints, the approval webhook, the streaming upstream proxy, health
// and metrics.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flowchat/gateway/internal/config"
	"github.com/flowchat/gateway/internal/core"
	"github.com/flowchat/gateway/internal/hitl"
	"github.com/flowchat/gateway/internal/tool"
	"github.com/flowchat/gateway/internal/worker"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Gateway is the HTTP gateway module. It is a leaf module — nothing
// imports it.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	metrics   *Metrics
	startedAt time.Time

	// Resolved lazily at Start() via service registry.
	dispatcher *tool.Dispatcher
	gate       *hitl.Gate
	clients    *worker.Clients
	upstream   config.UpstreamConfig
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.appCtx = ctx
	g.logger = ctx.Logger

	if svc, ok := ctx.Service("gateway.metrics"); ok {
		if m, ok := svc.(*Metrics); ok {
			g.metrics = m
		}
	}
	if g.metrics == nil {
		g.metrics = NewMetrics()
		ctx.RegisterService("gateway.metrics", g.metrics)
	}

	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	return nil
}

// Start implements core.Starter. It resolves collaborators from the
// service registry (lazy binding) and starts the HTTP server.
func (g *Gateway) Start() error {
	if svc, ok := g.appCtx.Service("tool.dispatcher"); ok {
		if d, ok := svc.(*tool.Dispatcher); ok {
			g.dispatcher = d
		}
	}
	if g.dispatcher == nil {
		return errors.New("gateway: tool dispatcher not available")
	}

	if svc, ok := g.appCtx.Service("hitl.gate"); ok {
		if gate, ok := svc.(*hitl.Gate); ok {
			g.gate = gate
			g.metrics.SetPendingFunc(func() float64 {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				n, err := gate.PendingCount(ctx)
				if err != nil {
					return 0
				}
				return float64(n)
			})
		}
	}
	if svc, ok := g.appCtx.Service("worker.clients"); ok {
		if c, ok := svc.(*worker.Clients); ok {
			g.clients = c
		}
	}
	if svc, ok := g.appCtx.Service("gateway.upstream"); ok {
		if u, ok := svc.(config.UpstreamConfig); ok {
			g.upstream = u
		}
	}

	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:              g.config.Bind,
		Handler:           g.buildRouter(),
		ReadHeaderTimeout: g.config.ReadHeaderTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.config.Bind)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
