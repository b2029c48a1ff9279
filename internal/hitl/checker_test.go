package hitl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/flowchat/gateway/internal/worker"
)

func queryCheckerServer(t *testing.T, qualifRows, countBody string) *QueryInvoiceChecker {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/get_qualification_by_id"):
			_, _ = w.Write([]byte(qualifRows))
		case strings.HasSuffix(r.URL.Path, "/count_factures_by_entreprise"):
			_, _ = w.Write([]byte(countBody))
		default:
			t.Errorf("unexpected rpc path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return &QueryInvoiceChecker{Query: worker.NewQueryClient(srv.URL, "k", srv.Client(), nil)}
}

func TestQueryCheckerHasInvoices(t *testing.T) {
	t.Parallel()

	c := queryCheckerServer(t, `[{"id":"q-1","entreprise_id":"e-1"}]`, `3`)
	has, err := c.HasInvoices(context.Background(), "q-1")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !has {
		t.Error("count 3 must report invoices present")
	}
}

func TestQueryCheckerNoInvoices(t *testing.T) {
	t.Parallel()

	c := queryCheckerServer(t, `[{"id":"q-1","entreprise_id":"e-1"}]`, `0`)
	has, err := c.HasInvoices(context.Background(), "q-1")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if has {
		t.Error("count 0 must report no invoices")
	}
}

func TestQueryCheckerCountRowShape(t *testing.T) {
	t.Parallel()

	c := queryCheckerServer(t, `[{"id":"q-1","entreprise_id":"e-1"}]`, `[{"count":2}]`)
	has, err := c.HasInvoices(context.Background(), "q-1")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !has {
		t.Error("row-shaped count must be honored")
	}
}

func TestQueryCheckerUnknownQualification(t *testing.T) {
	t.Parallel()

	c := queryCheckerServer(t, `[]`, `0`)
	if _, err := c.HasInvoices(context.Background(), "q-404"); err == nil {
		t.Fatal("missing qualification must error")
	}
}

func TestQueryCheckerMissingEntreprise(t *testing.T) {
	t.Parallel()

	c := queryCheckerServer(t, `[{"id":"q-1"}]`, `0`)
	if _, err := c.HasInvoices(context.Background(), "q-1"); err == nil {
		t.Fatal("qualification without entreprise_id must error")
	}
}
