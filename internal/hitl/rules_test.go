package hitl

import (
	"context"
	"errors"
	"testing"
)

type fakeChecker struct {
	has  bool
	err  error
	seen string
}

func (f *fakeChecker) HasInvoices(_ context.Context, qualificationID string) (bool, error) {
	f.seen = qualificationID
	return f.has, f.err
}

func TestRulesAmountAboveThreshold(t *testing.T) {
	t.Parallel()

	r := &Rules{Threshold: 1500, Checker: &fakeChecker{has: true}}
	ctx := context.Background()

	if !r.Evaluate(ctx, WorkflowCreateAndSendFacture, map[string]any{"montant": 1500.01}) {
		t.Error("amount above threshold must require approval")
	}
	if r.Evaluate(ctx, WorkflowCreateAndSendFacture, map[string]any{"montant": 1500.0}) {
		t.Error("amount at threshold must not require approval")
	}
	if r.Evaluate(ctx, WorkflowCreateAndSendFacture, map[string]any{"montant": 200.0}) {
		t.Error("small amount must not require approval")
	}
}

func TestRulesIntegerAmount(t *testing.T) {
	t.Parallel()

	r := &Rules{Threshold: 1500}
	if !r.Evaluate(context.Background(), WorkflowCreateAndSendFacture, map[string]any{"montant": 2000}) {
		t.Error("int amount above threshold must require approval")
	}
}

func TestRulesFirstInvoiceForQualification(t *testing.T) {
	t.Parallel()

	checker := &fakeChecker{has: false}
	r := &Rules{Threshold: 1500, Checker: checker}

	needs := r.Evaluate(context.Background(), WorkflowCreateAndSendFacture,
		map[string]any{"montant": 200.0, "qualification_id": "q-1"})
	if !needs {
		t.Error("first invoice must require approval")
	}
	if checker.seen != "q-1" {
		t.Errorf("checker called with %q", checker.seen)
	}

	checker.has = true
	needs = r.Evaluate(context.Background(), WorkflowCreateAndSendFacture,
		map[string]any{"montant": 200.0, "qualification_id": "q-1"})
	if needs {
		t.Error("repeat client under threshold must not require approval")
	}
}

func TestRulesFailClosedOnCheckerError(t *testing.T) {
	t.Parallel()

	r := &Rules{Threshold: 1500, Checker: &fakeChecker{err: errors.New("query down")}}
	needs := r.Evaluate(context.Background(), WorkflowCreateAndSendFacture,
		map[string]any{"montant": 200.0, "qualification_id": "q-1"})
	if !needs {
		t.Error("checker failure must fail closed and require approval")
	}
}

func TestRulesOtherWorkflowsUngated(t *testing.T) {
	t.Parallel()

	r := &Rules{Threshold: 1500, Checker: &fakeChecker{has: false}}
	if r.Evaluate(context.Background(), "generate_monthly_report", map[string]any{"montant": 99999.0}) {
		t.Error("only the invoice workflow is gated")
	}
}

func TestRulesNoQualificationSkipsCheck(t *testing.T) {
	t.Parallel()

	checker := &fakeChecker{err: errors.New("must not be called")}
	r := &Rules{Threshold: 1500, Checker: checker}
	if r.Evaluate(context.Background(), WorkflowCreateAndSendFacture, map[string]any{"montant": 200.0}) {
		t.Error("missing qualification_id must not require approval")
	}
	if checker.seen != "" {
		t.Error("checker called without a qualification id")
	}
}
