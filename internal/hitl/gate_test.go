package hitl

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestGate(t *testing.T, rules *Rules) *Gate {
	t.Helper()
	s := openTestStore(t)
	if rules == nil {
		rules = &Rules{Threshold: 1500}
	}
	return NewGate(s, nil, rules, true, 30*time.Minute, nil)
}

func TestGateRequestApprovalReturnsPending(t *testing.T) {
	t.Parallel()

	g := newTestGate(t, nil)
	ctx := context.Background()

	before := time.Now()
	pending, err := g.RequestApproval(ctx, WorkflowCreateAndSendFacture, "create_and_send_facture",
		map[string]any{"qualification_id": "q-1", "montant": 2000.0}, "montant=2000 EUR")
	if err != nil {
		t.Fatalf("request approval: %v", err)
	}
	if pending.RequestID == "" {
		t.Fatal("empty request id")
	}

	wantExpiry := before.Add(30 * time.Minute)
	if pending.ExpiresAt.Before(wantExpiry.Add(-time.Minute)) || pending.ExpiresAt.After(wantExpiry.Add(time.Minute)) {
		t.Errorf("expires_at = %v, want ~%v", pending.ExpiresAt, wantExpiry)
	}

	req, err := g.Get(ctx, pending.RequestID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if req.Status != StatusPending {
		t.Errorf("status = %s", req.Status)
	}
	if req.Context != "montant=2000 EUR" {
		t.Errorf("context = %q", req.Context)
	}
}

func TestGateApproveResumesWithMarker(t *testing.T) {
	t.Parallel()

	g := newTestGate(t, nil)
	ctx := context.Background()

	var dispatchedTool string
	var dispatchedParams map[string]any
	g.SetDispatch(func(_ context.Context, toolName string, params map[string]any) (any, error) {
		dispatchedTool = toolName
		dispatchedParams = params
		return map[string]any{"success": true, "facture_id": "f-9"}, nil
	})

	pending, err := g.RequestApproval(ctx, WorkflowCreateAndSendFacture, "create_and_send_facture",
		map[string]any{"qualification_id": "q-1", "montant": 2000.0}, "")
	if err != nil {
		t.Fatalf("request approval: %v", err)
	}

	decision, err := g.ProcessResponse(ctx, pending.RequestID, "approve", "alice", nil)
	if err != nil {
		t.Fatalf("process response: %v", err)
	}
	if decision.Status != StatusApproved {
		t.Errorf("decision status = %s", decision.Status)
	}
	if dispatchedTool != "create_and_send_facture" {
		t.Errorf("dispatched tool = %q", dispatchedTool)
	}
	if dispatchedParams["_hitl_approved"] != true {
		t.Errorf("resume marker missing: %v", dispatchedParams)
	}
	if dispatchedParams["montant"] != 2000.0 {
		t.Errorf("original params not carried: %v", dispatchedParams)
	}

	req, _ := g.Get(ctx, pending.RequestID)
	if string(req.WorkflowResult) == "" {
		t.Error("workflow result not stored")
	}
}

func TestGateApproveWithFailingWorkflow(t *testing.T) {
	t.Parallel()

	g := newTestGate(t, nil)
	ctx := context.Background()

	g.SetDispatch(func(context.Context, string, map[string]any) (any, error) {
		return nil, errors.New("mutation worker down")
	})

	pending, err := g.RequestApproval(ctx, WorkflowCreateAndSendFacture, "create_and_send_facture",
		map[string]any{"qualification_id": "q-1", "montant": 2000.0}, "")
	if err != nil {
		t.Fatalf("request approval: %v", err)
	}

	decision, err := g.ProcessResponse(ctx, pending.RequestID, "approve", "alice", nil)
	if err != nil {
		t.Fatalf("process response: %v", err)
	}
	if decision.Status != StatusApproved {
		t.Errorf("decision status = %s", decision.Status)
	}
	payload, ok := decision.Result.(map[string]any)
	if !ok {
		t.Fatalf("result = %T, want failure payload", decision.Result)
	}
	if payload["success"] != false {
		t.Errorf("success = %v", payload["success"])
	}
	if payload["message"] != "Workflow approved but execution failed" {
		t.Errorf("message = %v", payload["message"])
	}

	req, err := g.Get(ctx, pending.RequestID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if req.Status != StatusApproved {
		t.Errorf("stored status = %s", req.Status)
	}
	if !strings.Contains(string(req.WorkflowResult), "mutation worker down") {
		t.Errorf("failure not stored: %s", req.WorkflowResult)
	}
}

func TestGateRejectDoesNotDispatch(t *testing.T) {
	t.Parallel()

	g := newTestGate(t, nil)
	ctx := context.Background()

	dispatched := false
	g.SetDispatch(func(context.Context, string, map[string]any) (any, error) {
		dispatched = true
		return nil, nil
	})

	pending, err := g.RequestApproval(ctx, WorkflowCreateAndSendFacture, "create_and_send_facture",
		map[string]any{"montant": 2000.0}, "")
	if err != nil {
		t.Fatalf("request approval: %v", err)
	}

	decision, err := g.ProcessResponse(ctx, pending.RequestID, "reject", "alice", nil)
	if err != nil {
		t.Fatalf("process response: %v", err)
	}
	if decision.Status != StatusRejected {
		t.Errorf("decision status = %s", decision.Status)
	}
	if dispatched {
		t.Error("rejection must not re-dispatch the workflow")
	}
}

func TestGateModifyUsesReplacementParams(t *testing.T) {
	t.Parallel()

	g := newTestGate(t, nil)
	ctx := context.Background()

	var dispatchedParams map[string]any
	g.SetDispatch(func(_ context.Context, _ string, params map[string]any) (any, error) {
		dispatchedParams = params
		return map[string]any{"success": true}, nil
	})

	pending, err := g.RequestApproval(ctx, WorkflowCreateAndSendFacture, "create_and_send_facture",
		map[string]any{"qualification_id": "q-1", "montant": 2000.0}, "")
	if err != nil {
		t.Fatalf("request approval: %v", err)
	}

	if _, err := g.ProcessResponse(ctx, pending.RequestID, "modify", "alice", nil); err == nil {
		t.Fatal("modify without params must fail")
	}

	decision, err := g.ProcessResponse(ctx, pending.RequestID, "modify", "alice",
		map[string]any{"qualification_id": "q-1", "montant": 1200.0})
	if err != nil {
		t.Fatalf("process response: %v", err)
	}
	if decision.Status != StatusModified {
		t.Errorf("decision status = %s", decision.Status)
	}
	if dispatchedParams["montant"] != 1200.0 {
		t.Errorf("modified params not used: %v", dispatchedParams)
	}
	if dispatchedParams["_hitl_approved"] != true {
		t.Errorf("resume marker missing: %v", dispatchedParams)
	}
}

func TestGateDuplicateDecision(t *testing.T) {
	t.Parallel()

	g := newTestGate(t, nil)
	ctx := context.Background()
	g.SetDispatch(func(context.Context, string, map[string]any) (any, error) {
		return map[string]any{}, nil
	})

	pending, err := g.RequestApproval(ctx, WorkflowCreateAndSendFacture, "t", map[string]any{}, "")
	if err != nil {
		t.Fatalf("request approval: %v", err)
	}

	if _, err := g.ProcessResponse(ctx, pending.RequestID, "approve", "alice", nil); err != nil {
		t.Fatalf("first decision: %v", err)
	}
	_, err = g.ProcessResponse(ctx, pending.RequestID, "approve", "bob", nil)
	if !errors.Is(err, ErrAlreadyDecided) {
		t.Fatalf("expected ErrAlreadyDecided, got %v", err)
	}
}

func TestGateUnknownRequestAndAction(t *testing.T) {
	t.Parallel()

	g := newTestGate(t, nil)
	ctx := context.Background()

	_, err := g.ProcessResponse(ctx, "nope", "approve", "alice", nil)
	if !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound, got %v", err)
	}

	pending, err := g.RequestApproval(ctx, WorkflowCreateAndSendFacture, "t", map[string]any{}, "")
	if err != nil {
		t.Fatalf("request approval: %v", err)
	}
	if _, err := g.ProcessResponse(ctx, pending.RequestID, "escalate", "alice", nil); err == nil {
		t.Fatal("unknown action must fail")
	}
}

func TestGateDisabledNeverRequiresApproval(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	g := NewGate(s, nil, &Rules{Threshold: 1500}, false, 30*time.Minute, nil)

	needs := g.NeedsApproval(context.Background(), WorkflowCreateAndSendFacture,
		map[string]any{"montant": 99999.0})
	if needs {
		t.Fatal("disabled gate required approval")
	}
}

func TestGateSweepExpired(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	g := NewGate(s, nil, &Rules{Threshold: 1500}, true, 30*time.Minute, nil)
	ctx := context.Background()

	if err := s.Create(ctx, pendingRequest("overdue", -time.Minute)); err != nil {
		t.Fatalf("create: %v", err)
	}

	n, err := g.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept = %d, want 1", n)
	}

	count, err := g.PendingCount(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("pending = %d, want 0", count)
	}
}

func TestApproved(t *testing.T) {
	t.Parallel()

	if Approved(map[string]any{"montant": 10.0}) {
		t.Error("unmarked params reported approved")
	}
	if !Approved(map[string]any{"_hitl_approved": true}) {
		t.Error("marked params not reported approved")
	}
	if Approved(map[string]any{"_hitl_approved": "true"}) {
		t.Error("non-boolean marker must not count")
	}
}
