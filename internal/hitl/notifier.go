package hitl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Notifier delivers an approval request to the human channel. The
// channel itself (chat bot, dashboard, pager) lives outside this
// system; only this boundary is fixed.
type Notifier interface {
	Notify(ctx context.Context, req Request) error
}

// WebhookNotifier posts approval requests as JSON to a configured URL.
type WebhookNotifier struct {
	url    string
	secret string
	httpc  *http.Client
}

// NewWebhookNotifier builds a notifier. The secret, when set, is sent
// as a bearer credential.
func NewWebhookNotifier(url, secret string, httpc *http.Client) *WebhookNotifier {
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	return &WebhookNotifier{url: url, secret: secret, httpc: httpc}
}

type notifyPayload struct {
	RequestID    string         `json:"request_id"`
	WorkflowName string         `json:"workflow_name"`
	ToolName     string         `json:"tool_name"`
	Params       map[string]any `json:"params"`
	Context      string         `json:"context,omitempty"`
	ExpiresAt    time.Time      `json:"expires_at"`
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, req Request) error {
	body, err := json.Marshal(notifyPayload{
		RequestID:    req.ID,
		WorkflowName: req.WorkflowName,
		ToolName:     req.ToolName,
		Params:       req.OriginalParams,
		Context:      req.Context,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("hitl: marshal notification: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("hitl: build notification: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if n.secret != "" {
		httpReq.Header.Set("Authorization", "Bearer "+n.secret)
	}

	resp, err := n.httpc.Do(httpReq)
	if err != nil {
		return fmt.Errorf("hitl: sending notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("hitl: notification endpoint returned %d", resp.StatusCode)
	}
	return nil
}
