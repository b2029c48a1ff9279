package hitl

import (
	"context"
	"fmt"

	"github.com/flowchat/gateway/internal/worker"
)

// QueryInvoiceChecker answers the new-client question through the
// read-side worker: resolve the qualification to its company, then
// count that company's invoices.
type QueryInvoiceChecker struct {
	Query *worker.QueryClient
}

// HasInvoices reports whether the company behind the qualification
// already has at least one invoice.
func (c *QueryInvoiceChecker) HasInvoices(ctx context.Context, qualificationID string) (bool, error) {
	out, err := c.Query.RPC(ctx, "get_qualification_by_id", map[string]any{
		"p_id": qualificationID,
	})
	if err != nil {
		return false, err
	}

	qualif := firstRow(out)
	if qualif == nil {
		return false, fmt.Errorf("hitl: qualification %s not found", qualificationID)
	}
	entrepriseID, _ := qualif["entreprise_id"].(string)
	if entrepriseID == "" {
		return false, fmt.Errorf("hitl: qualification %s has no entreprise_id", qualificationID)
	}

	count, err := c.Query.RPC(ctx, "count_factures_by_entreprise", map[string]any{
		"p_entreprise_id": entrepriseID,
	})
	if err != nil {
		return false, err
	}
	return invoiceCount(count) > 0, nil
}

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

// invoiceCount tolerates the two shapes the RPC returns: a bare number
// or a single row carrying a "count" column.
func invoiceCount(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case []any:
		if row, ok := firstRow(t)["count"]; ok {
			if n, ok := row.(float64); ok {
				return int(n)
			}
		}
		return 0
	case map[string]any:
		if n, ok := t["count"].(float64); ok {
			return int(n)
		}
		return 0
	default:
		return 0
	}
}
