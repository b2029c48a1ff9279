package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)

	// Public — no auth required.
	r.Get("/health", g.handleHealth())
	r.Handle("/metrics", g.metrics.Handler())

	// Approval webhook — own HMAC auth.
	r.Post("/webhooks/hitl", g.handleApprovalWebhook())

	// Tool surface — key auth when configured.
	r.Group(func(r chi.Router) {
		r.Use(keyAuthMiddleware(g.config.ProxyKey))
		r.Post("/mcp/tools/call", g.handleToolCall())
		r.Get("/mcp/tools/list", g.handleToolList())
		r.Get("/mcp/tools/{name}/schema", g.handleToolSchema())

		// Everything else under /mcp is relayed to the upstream,
		// streaming the response as it arrives.
		r.Handle("/mcp/*", g.proxyHandler())
	})

	return r
}
