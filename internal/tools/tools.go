// Package tools declares the business tool catalog: company,
// qualification, invoice, payment and communication tools plus the
// multi-service workflows, each bound to the downstream worker clients.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/google/uuid"

	"github.com/flowchat/gateway/internal/hitl"
	"github.com/flowchat/gateway/internal/requestid"
	"github.com/flowchat/gateway/internal/tool"
	"github.com/flowchat/gateway/internal/worker"
)

// Deps carries everything a tool handler may need. Handlers close over
// it at registration time.
type Deps struct {
	Clients *worker.Clients
	Gate    *hitl.Gate
	Logger  *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// RegisterAll installs the complete catalog into the registry.
func RegisterAll(r *tool.Registry, d Deps) {
	registerEntreprise(r, d)
	registerQualification(r, d)
	registerFacture(r, d)
	registerPaiement(r, d)
	registerCommunication(r, d)
	registerWorkflow(r, d)
}

// intParam reads an integer argument, tolerating the float64 shape JSON
// decoding produces. Falls back to def when absent or malformed.
func intParam(p tool.Params, key string, def int) int {
	switch v := p[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

func strParam(p tool.Params, key string) string {
	s, _ := p[key].(string)
	return s
}

func boolParam(p tool.Params, key string) bool {
	b, _ := p[key].(bool)
	return b
}

// firstRow unwraps RPC results that arrive as a single-row array.
func firstRow(v any) map[string]any {
	switch t := v.(type) {
	case []any:
		if len(t) == 0 {
			return nil
		}
		row, _ := t[0].(map[string]any)
		return row
	case map[string]any:
		return t
	default:
		return nil
	}
}

// reqID returns the correlation id of the current request, minting one
// when the call did not come through the HTTP surface.
func reqID(ctx context.Context) string {
	if id := requestid.FromContext(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

func facturePath(factureID string) string {
	return "/facture/" + url.PathEscape(factureID)
}

// requireID enforces the success contract of worker writes that echo the
// entity id: a 2xx body without an id is treated as a failed write.
func requireID(d Deps, endpoint string, data map[string]any) error {
	if data["id"] == nil {
		d.logger().Error("worker response missing id",
			"endpoint", endpoint,
			"response", data,
		)
		return tool.BusinessValidation("Validation failed: response missing 'id'")
	}
	return nil
}

// requireValidated enforces the worker's own validation verdict: the
// response must carry validated=true, otherwise the discrepancies it
// reported become the caller-visible detail.
func requireValidated(d Deps, endpoint string, data map[string]any) error {
	if ok, _ := data["validated"].(bool); ok {
		return nil
	}
	d.logger().Error("worker validation failed",
		"endpoint", endpoint,
		"discrepancies", data["discrepancies"],
	)
	details := discrepancyList(data["discrepancies"])
	msg := "Validation failed: Unknown error"
	if len(details) > 0 {
		msg = fmt.Sprintf("Validation failed: %v", data["discrepancies"])
	}
	return tool.BusinessValidation(msg, details...)
}

func discrepancyList(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		return []string{t}
	default:
		return []string{fmt.Sprint(t)}
	}
}

// validated returns a copy of data with the gateway-side validation
// marker set.
func validated(data map[string]any) map[string]any {
	out := make(map[string]any, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out["validated"] = true
	return out
}
