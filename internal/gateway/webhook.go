package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/flowchat/gateway/internal/hitl"
)

// ApprovalWebhookRequest is the body of POST /webhooks/hitl, sent by the
// approval channel when a human decides a pending request.
type ApprovalWebhookRequest struct {
	RequestID      string         `json:"request_id"`
	Action         string         `json:"action"`
	ValidatorID    string         `json:"validator_id"`
	ModifiedParams map[string]any `json:"modified_params,omitempty"`
}

func (g *Gateway) handleApprovalWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.gate == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "approval gate not available")
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "failed to read body")
			return
		}

		if g.config.WebhookSecret != "" {
			sig := r.Header.Get("X-Signature-256")
			if !validateHMAC(body, sig, g.config.WebhookSecret) {
				writeJSONError(w, http.StatusUnauthorized, "invalid signature")
				return
			}
		}

		var req ApprovalWebhookRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.RequestID == "" || req.Action == "" {
			writeJSONError(w, http.StatusBadRequest, "request_id and action are required")
			return
		}

		decision, err := g.gate.ProcessResponse(r.Context(), req.RequestID, req.Action, req.ValidatorID, req.ModifiedParams)
		if err != nil {
			switch {
			case errors.Is(err, hitl.ErrRequestNotFound):
				writeJSONError(w, http.StatusNotFound, "approval request not found")
			case errors.Is(err, hitl.ErrAlreadyDecided):
				writeJSONError(w, http.StatusConflict, "approval request already decided")
			default:
				g.logger.Error("approval webhook failed", "request_id", req.RequestID, "error", err)
				writeJSONError(w, http.StatusInternalServerError, "internal error")
			}
			return
		}

		writeJSON(w, http.StatusOK, decision)
	}
}

// validateHMAC checks an HMAC-SHA256 signature in constant time.
func validateHMAC(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
