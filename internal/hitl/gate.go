// Package hitl implements the human-in-the-loop approval gate: decision
// rules, the persisted pending-request store, the notification channel
// and out-of-band resumption of paused workflows.
package hitl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DispatchFunc re-invokes a tool through the dispatcher. Resumption is a
// fresh dispatch, not a continuation of the original call stack, so the
// gate only needs this one capability and no import of the tool package.
type DispatchFunc func(ctx context.Context, toolName string, params map[string]any) (any, error)

// Pending describes a freshly persisted approval request, returned to
// the paused workflow so it can answer the caller immediately.
type Pending struct {
	RequestID string    `json:"request_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Decision is the outcome of processing an approval response.
type Decision struct {
	RequestID string `json:"request_id"`
	Status    Status `json:"status"`
	Result    any    `json:"result,omitempty"`
}

// Gate coordinates approval decisions for gated workflows.
type Gate struct {
	store    *Store
	notifier Notifier
	rules    *Rules
	logger   *slog.Logger

	enabled bool
	timeout time.Duration

	mu       sync.RWMutex
	dispatch DispatchFunc

	notifyWG sync.WaitGroup
}

// NewGate assembles a gate. The dispatch function is bound later via
// SetDispatch because the dispatcher is wired after the gate exists.
func NewGate(store *Store, notifier Notifier, rules *Rules, enabled bool, timeout time.Duration, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Gate{
		store:    store,
		notifier: notifier,
		rules:    rules,
		logger:   logger,
		enabled:  enabled,
		timeout:  timeout,
	}
}

// SetDispatch binds the re-dispatch capability used on approval.
func (g *Gate) SetDispatch(fn DispatchFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dispatch = fn
}

// Enabled reports whether the gate is active. A disabled gate never
// requires approval.
func (g *Gate) Enabled() bool { return g.enabled }

// NeedsApproval decides whether the workflow step requires human
// sign-off. Side-effect free and safe to evaluate repeatedly.
func (g *Gate) NeedsApproval(ctx context.Context, workflowName string, params map[string]any) bool {
	if !g.enabled {
		return false
	}
	return g.rules.Evaluate(ctx, workflowName, params)
}

// RequestApproval persists a pending record and notifies the approval
// channel, then returns immediately: the triggering request completes
// with "not yet done" rather than blocking on a human.
//
// The notification is fire-and-forget. A crash between persist and
// notify leaves an orphaned pending record that only the expiry sweep
// recovers; that trade is deliberate.
func (g *Gate) RequestApproval(ctx context.Context, workflowName, toolName string, params map[string]any, note string) (Pending, error) {
	now := time.Now().UTC()
	req := Request{
		ID:             uuid.NewString(),
		WorkflowName:   workflowName,
		ToolName:       toolName,
		OriginalParams: params,
		Context:        note,
		Status:         StatusPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(g.timeout),
	}

	if err := g.store.Create(ctx, req); err != nil {
		return Pending{}, err
	}

	g.logger.Info("approval requested",
		"request_id", req.ID,
		"workflow", workflowName,
		"expires_at", req.ExpiresAt,
	)

	if g.notifier != nil {
		g.notifyWG.Add(1)
		go func() {
			defer g.notifyWG.Done()
			notifyCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := g.notifier.Notify(notifyCtx, req); err != nil {
				g.logger.Error("approval notification failed",
					"request_id", req.ID,
					"error", err,
				)
			}
		}()
	}

	return Pending{RequestID: req.ID, ExpiresAt: req.ExpiresAt}, nil
}

// ProcessResponse applies a human decision to a pending request.
// Actions: "approve" re-dispatches the original tool with the original
// params, "modify" re-dispatches with the supplied replacement params,
// "reject" terminates the request. Each request resolves at most once;
// late or duplicate responses get ErrAlreadyDecided from the store.
func (g *Gate) ProcessResponse(ctx context.Context, requestID, action, approver string, modifiedParams map[string]any) (Decision, error) {
	req, err := g.store.Get(ctx, requestID)
	if err != nil {
		return Decision{}, err
	}

	switch action {
	case "reject":
		if err := g.store.Transition(ctx, requestID, StatusRejected, approver); err != nil {
			return Decision{}, err
		}
		g.logger.Info("approval rejected", "request_id", requestID, "approver", approver)
		return Decision{RequestID: requestID, Status: StatusRejected}, nil

	case "approve":
		if err := g.store.Transition(ctx, requestID, StatusApproved, approver); err != nil {
			return Decision{}, err
		}
		return g.resume(ctx, req, req.OriginalParams, StatusApproved, approver)

	case "modify":
		if len(modifiedParams) == 0 {
			return Decision{}, fmt.Errorf("hitl: modify action requires params")
		}
		if err := g.store.Transition(ctx, requestID, StatusModified, approver); err != nil {
			return Decision{}, err
		}
		return g.resume(ctx, req, modifiedParams, StatusModified, approver)

	default:
		return Decision{}, fmt.Errorf("hitl: unknown action %q", action)
	}
}

// resume re-invokes the original tool. The approval flag is injected so
// the gated workflow does not pause a second time on the same params.
//
// The record has already left pending by the time resume runs, so a
// failed execution cannot be retried through the gate. The failure is
// stored as the workflow result and returned in the decision instead
// of a bare error: the approver learns the approval took effect but
// the workflow did not.
func (g *Gate) resume(ctx context.Context, req Request, params map[string]any, status Status, approver string) (Decision, error) {
	g.mu.RLock()
	dispatch := g.dispatch
	g.mu.RUnlock()
	if dispatch == nil {
		return Decision{}, fmt.Errorf("hitl: dispatcher not bound")
	}

	resumed := make(map[string]any, len(params)+1)
	for k, v := range params {
		resumed[k] = v
	}
	resumed["_hitl_approved"] = true

	g.logger.Info("resuming workflow",
		"request_id", req.ID,
		"tool", req.ToolName,
		"approver", approver,
	)

	result, err := dispatch(ctx, req.ToolName, resumed)
	if err != nil {
		g.logger.Error("resumed workflow failed",
			"request_id", req.ID,
			"tool", req.ToolName,
			"error", err,
		)
		result = map[string]any{
			"success": false,
			"message": "Workflow approved but execution failed",
			"error":   err.Error(),
		}
	}

	if raw, merr := json.Marshal(result); merr == nil {
		if serr := g.store.SetResult(ctx, req.ID, raw); serr != nil {
			g.logger.Error("storing workflow result failed", "request_id", req.ID, "error", serr)
		}
	}

	return Decision{RequestID: req.ID, Status: status, Result: result}, nil
}

// Approved reports whether params carry the resume marker injected by
// an approved or modified decision.
func Approved(params map[string]any) bool {
	v, _ := params["_hitl_approved"].(bool)
	return v
}

// SweepExpired times out overdue pending requests. Called by the
// scheduler; the gate owns expiry, not the workflow handlers.
func (g *Gate) SweepExpired(ctx context.Context) (int64, error) {
	n, err := g.store.SweepExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		g.logger.Info("expired approval requests swept", "count", n)
	}
	return n, nil
}

// PendingCount returns the number of undecided requests, for metrics.
func (g *Gate) PendingCount(ctx context.Context) (int, error) {
	return g.store.CountPending(ctx)
}

// Get returns a stored request by id.
func (g *Gate) Get(ctx context.Context, id string) (Request, error) {
	return g.store.Get(ctx, id)
}

// Wait blocks until in-flight notifications finish. Used on shutdown.
func (g *Gate) Wait() {
	g.notifyWG.Wait()
}
