// Package mcp exposes the tool catalog over the Model Context Protocol
// on stdio, for agent runtimes that speak MCP directly instead of the
// HTTP surface.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flowchat/gateway/internal/tool"
)

// Server wraps an MCP stdio server around a dispatcher.
type Server struct {
	srv    *server.MCPServer
	logger *slog.Logger
}

// NewServer builds the MCP server, declaring one MCP tool per registry
// entry. Invocations go through the dispatcher so MCP callers get the
// same validation and error taxonomy as HTTP callers.
func NewServer(dispatcher *tool.Dispatcher, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	srv := server.NewMCPServer("flowgate", version,
		server.WithToolCapabilities(false),
	)

	for _, schema := range dispatcher.Registry().Schemas() {
		raw, err := json.Marshal(schema.InputSchema)
		if err != nil {
			logger.Error("skipping tool with unmarshalable schema", "tool", schema.Name, "error", err)
			continue
		}

		name := schema.Name
		srv.AddTool(
			mcpgo.NewToolWithRawSchema(name, schema.Description, raw),
			func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
				result, err := dispatcher.Dispatch(ctx, name, req.GetArguments())
				if err != nil {
					return mcpgo.NewToolResultError(errorPayload(err)), nil
				}
				out, merr := json.Marshal(result)
				if merr != nil {
					return mcpgo.NewToolResultError(`{"error":"internal_error"}`), nil
				}
				return mcpgo.NewToolResultText(string(out)), nil
			},
		)
	}

	return &Server{srv: srv, logger: logger}
}

// ServeStdio blocks serving MCP over stdin/stdout until EOF.
func (s *Server) ServeStdio() error {
	s.logger.Info("mcp stdio server started")
	return server.ServeStdio(s.srv)
}

// errorPayload renders a dispatch failure as the JSON error envelope.
func errorPayload(err error) string {
	var derr *tool.Error
	if errors.As(err, &derr) {
		if raw, merr := json.Marshal(derr); merr == nil {
			return string(raw)
		}
	}
	raw, merr := json.Marshal(map[string]string{
		"error":   string(tool.CodeInternal),
		"message": err.Error(),
	})
	if merr != nil {
		return `{"error":"internal_error"}`
	}
	return string(raw)
}
