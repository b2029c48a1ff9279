package hitl

import (
	"context"
	"log/slog"
)

// WorkflowCreateAndSendFacture is the only gated workflow.
const WorkflowCreateAndSendFacture = "create_and_send_facture"

// InvoiceChecker answers whether a qualification already has invoices.
// Backed by the read-side worker in production, faked in tests.
type InvoiceChecker interface {
	HasInvoices(ctx context.Context, qualificationID string) (bool, error)
}

// Rules holds the deterministic approval criteria.
type Rules struct {
	// Threshold is the invoice amount above which approval is required.
	Threshold float64

	Checker InvoiceChecker
	Logger  *slog.Logger
}

// Evaluate reports whether the given workflow invocation needs human
// approval. Criteria, in order:
//
//  1. amount above the configured threshold;
//  2. first invoice for the qualification (new client);
//  3. the new-client check itself failed — fail closed and require
//     approval rather than letting an unverifiable write through.
//
// Case 3 masks the underlying failure from the caller, so it is logged
// at Error level for operators.
func (r *Rules) Evaluate(ctx context.Context, workflowName string, params map[string]any) bool {
	if workflowName != WorkflowCreateAndSendFacture {
		return false
	}

	if amount, ok := numberParam(params, "montant"); ok && amount > r.Threshold {
		r.logger().Info("approval required: amount above threshold",
			"montant", amount,
			"threshold", r.Threshold,
		)
		return true
	}

	qualificationID, _ := params["qualification_id"].(string)
	if qualificationID == "" || r.Checker == nil {
		return false
	}

	has, err := r.Checker.HasInvoices(ctx, qualificationID)
	if err != nil {
		r.logger().Error("new-client check failed, requiring approval (fail closed)",
			"qualification_id", qualificationID,
			"error", err,
		)
		return true
	}
	if !has {
		r.logger().Info("approval required: first invoice for qualification",
			"qualification_id", qualificationID,
		)
		return true
	}

	return false
}

func (r *Rules) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func numberParam(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
