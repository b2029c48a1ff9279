package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowchat/gateway/internal/tool"
)

// ToolCallRequest is the body of POST /mcp/tools/call.
type ToolCallRequest struct {
	ToolName string         `json:"tool_name"`
	Params   map[string]any `json:"params"`
}

func (g *Gateway) handleToolCall() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ToolCallRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.ToolName == "" {
			writeJSONError(w, http.StatusBadRequest, "tool_name is required")
			return
		}

		result, err := g.dispatcher.Dispatch(r.Context(), req.ToolName, req.Params)
		if err != nil {
			writeToolError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (g *Gateway) handleToolList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category := tool.Category(r.URL.Query().Get("category"))
		switch category {
		case "", tool.CategoryRead, tool.CategoryWrite, tool.CategoryWorkflow:
		default:
			writeJSONError(w, http.StatusBadRequest, "unknown category: "+string(category))
			return
		}

		infos := g.dispatcher.Registry().List(category)
		writeJSON(w, http.StatusOK, map[string]any{
			"tools": infos,
			"count": len(infos),
		})
	}
}

func (g *Gateway) handleToolSchema() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		meta, ok := g.dispatcher.Registry().Lookup(name)
		if !ok {
			writeJSONError(w, http.StatusNotFound, "Outil inconnu: "+name)
			return
		}
		writeJSON(w, http.StatusOK, meta.Schema)
	}
}

// writeToolError renders a dispatch failure. Every error leaving the
// dispatcher is a *tool.Error; anything else is a bug rendered as 500.
func writeToolError(w http.ResponseWriter, err error) {
	var derr *tool.Error
	if errors.As(err, &derr) {
		writeJSON(w, derr.HTTPStatus(), derr)
		return
	}
	writeJSONError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
