package gateway

import (
	"net/http"
	"time"
)

// HealthResponse is the JSON response for GET /health. Worker entries
// report configuration presence, not liveness: an unset URL is the only
// state the gateway can assert without calling out.
type HealthResponse struct {
	Status           string          `json:"status"`
	UptimeSeconds    int64           `json:"uptime_seconds"`
	Workers          map[string]bool `json:"workers,omitempty"`
	PendingApprovals int             `json:"pending_approvals"`
}

func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:        "ok",
			UptimeSeconds: int64(time.Since(g.startedAt).Seconds()),
		}

		if g.clients != nil {
			resp.Workers = make(map[string]bool)
			for svc, ok := range g.clients.Configured() {
				resp.Workers[string(svc)] = ok
			}
		}

		if g.gate != nil {
			if n, err := g.gate.PendingCount(r.Context()); err == nil {
				resp.PendingApprovals = n
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
