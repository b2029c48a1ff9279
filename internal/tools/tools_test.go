package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/flowchat/gateway/internal/tool"
	"github.com/flowchat/gateway/internal/worker"
)

// fakeWorkers serves every downstream service from one mux and records
// the request bodies per path.
type fakeWorkers struct {
	t         *testing.T
	mux       *http.ServeMux
	srv       *httptest.Server
	responses map[string]string

	mu     sync.Mutex
	bodies map[string][]map[string]any
}

func newFakeWorkers(t *testing.T) *fakeWorkers {
	t.Helper()
	f := &fakeWorkers{
		t:         t,
		mux:       http.NewServeMux(),
		responses: make(map[string]string),
		bodies:    make(map[string][]map[string]any),
	}
	f.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var decoded map[string]any
		_ = json.Unmarshal(body, &decoded)
		f.mu.Lock()
		f.bodies[r.URL.Path] = append(f.bodies[r.URL.Path], decoded)
		f.mu.Unlock()

		resp, ok := f.responses[r.URL.Path]
		if !ok {
			t.Errorf("unexpected worker call %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(resp))
	})
	f.srv = httptest.NewServer(f.mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeWorkers) respond(path, body string) { f.responses[path] = body }

func (f *fakeWorkers) lastBody(path string) map[string]any {
	f.t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := f.bodies[path]
	if len(calls) == 0 {
		f.t.Fatalf("no call recorded for %s", path)
	}
	return calls[len(calls)-1]
}

func (f *fakeWorkers) callCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bodies[path])
}

func (f *fakeWorkers) calls(path string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.bodies[path]...)
}

func (f *fakeWorkers) deps() Deps {
	url := f.srv.URL
	httpc := f.srv.Client()
	return Deps{Clients: &worker.Clients{
		Query:    worker.NewQueryClient(url, "k", httpc, nil),
		Mutation: worker.NewMutationClient(url, "s", httpc, nil),
		Document: worker.NewDocumentClient(url, "s", httpc, nil),
		Storage:  worker.NewStorageClient(url, "s", httpc, nil),
		Email:    worker.NewEmailClient(url, "s", httpc, nil),
	}}
}

// invoke runs a registered tool handler directly, bypassing the
// dispatcher.
func invoke(t *testing.T, r *tool.Registry, name string, p tool.Params) (any, error) {
	t.Helper()
	meta, ok := r.Lookup(name)
	if !ok {
		t.Fatalf("tool %s not registered", name)
	}
	return meta.Handler(context.Background(), p)
}

func TestRegisterAllCatalog(t *testing.T) {
	t.Parallel()

	r := tool.NewRegistry(nil)
	RegisterAll(r, Deps{})

	want := map[string]tool.Category{
		"search_entreprise_with_stats": tool.CategoryRead,
		"get_entreprise_by_id":         tool.CategoryRead,
		"list_entreprises":             tool.CategoryRead,
		"get_stats_entreprises":        tool.CategoryRead,
		"upsert_entreprise":            tool.CategoryWrite,
		"get_entreprise_qualifications": tool.CategoryRead,
		"search_qualifications":         tool.CategoryRead,
		"upsert_qualification":          tool.CategoryWrite,
		"search_factures":               tool.CategoryRead,
		"get_facture_by_id":             tool.CategoryRead,
		"create_facture":                tool.CategoryWrite,
		"update_facture":                tool.CategoryWrite,
		"delete_facture":                tool.CategoryWrite,
		"get_unpaid_factures":           tool.CategoryRead,
		"get_revenue_stats":             tool.CategoryRead,
		"mark_facture_paid":             tool.CategoryWrite,
		"list_recent_interactions":      tool.CategoryRead,
		"generate_facture_pdf":          tool.CategoryWorkflow,
		"create_and_send_facture":       tool.CategoryWorkflow,
		"send_facture_email":            tool.CategoryWorkflow,
		"generate_monthly_report":       tool.CategoryWorkflow,
		"send_plaquette_to_entreprise":  tool.CategoryWorkflow,
	}
	if r.Len() != len(want) {
		t.Errorf("catalog size = %d, want %d", r.Len(), len(want))
	}
	for name, category := range want {
		meta, ok := r.Lookup(name)
		if !ok {
			t.Errorf("missing tool %s", name)
			continue
		}
		if meta.Category != category {
			t.Errorf("%s category = %s, want %s", name, meta.Category, category)
		}
		if meta.Schema.Name != name || meta.Schema.Description == "" {
			t.Errorf("%s has incomplete schema", name)
		}
	}
}

func TestQueryToolsPrefixArguments(t *testing.T) {
	t.Parallel()

	f := newFakeWorkers(t)
	f.respond("/rest/v1/rpc/search_entreprise_with_stats", `[]`)

	r := tool.NewRegistry(nil)
	RegisterAll(r, f.deps())

	if _, err := invoke(t, r, "search_entreprise_with_stats", tool.Params{
		"search_term": "ACME",
	}); err != nil {
		t.Fatalf("invoke: %v", err)
	}

	body := f.lastBody("/rest/v1/rpc/search_entreprise_with_stats")
	if body["p_search_term"] != "ACME" {
		t.Errorf("search term not prefixed: %v", body)
	}
	if body["p_limit"] != 10.0 {
		t.Errorf("default limit not applied: %v", body)
	}
}

func TestUpsertEntreprise(t *testing.T) {
	t.Parallel()

	f := newFakeWorkers(t)
	f.respond("/entreprise/upsert", `{"id":"e-1","nom":"ACME"}`)

	r := tool.NewRegistry(nil)
	RegisterAll(r, f.deps())

	out, err := invoke(t, r, "upsert_entreprise", tool.Params{
		"nom":   "ACME",
		"email": "contact@acme.fr",
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	body := f.lastBody("/entreprise/upsert")
	if body["nom"] != "ACME" || body["email"] != "contact@acme.fr" {
		t.Errorf("payload = %v", body)
	}

	data, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("result type %T", out)
	}
	if data["validated"] != true {
		t.Errorf("validated marker missing: %v", data)
	}
	if data["id"] != "e-1" {
		t.Errorf("id not carried: %v", data)
	}
}

func TestUpsertEntrepriseMissingID(t *testing.T) {
	t.Parallel()

	f := newFakeWorkers(t)
	f.respond("/entreprise/upsert", `{"nom":"ACME"}`)

	r := tool.NewRegistry(nil)
	RegisterAll(r, f.deps())

	_, err := invoke(t, r, "upsert_entreprise", tool.Params{"nom": "ACME"})

	var derr *tool.Error
	if !errors.As(err, &derr) {
		t.Fatalf("expected *tool.Error, got %v", err)
	}
	if derr.Code != tool.CodeBusinessValidation {
		t.Errorf("code = %s", derr.Code)
	}
	if derr.Message != "Validation failed: response missing 'id'" {
		t.Errorf("message = %q", derr.Message)
	}
}

func TestCreateFactureMapsAmountField(t *testing.T) {
	t.Parallel()

	f := newFakeWorkers(t)
	f.respond("/facture/create", `{"id":"f-1"}`)

	r := tool.NewRegistry(nil)
	RegisterAll(r, f.deps())

	out, err := invoke(t, r, "create_facture", tool.Params{
		"qualification_id": "q-1",
		"montant":          1250.50,
		"description":      "Encart 2027",
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	body := f.lastBody("/facture/create")
	if body["montant_ht"] != 1250.50 {
		t.Errorf("montant_ht = %v", body["montant_ht"])
	}
	if _, present := body["montant"]; present {
		t.Errorf("montant must not be sent as-is: %v", body)
	}
	if body["qualification_id"] != "q-1" {
		t.Errorf("qualification_id = %v", body["qualification_id"])
	}

	data := out.(map[string]any)
	if data["validated"] != true {
		t.Errorf("validated marker missing: %v", data)
	}
}

func TestUpdateFactureEchoMismatch(t *testing.T) {
	t.Parallel()

	f := newFakeWorkers(t)
	f.respond("/facture/f-1", `{"id":"f-2"}`)

	r := tool.NewRegistry(nil)
	RegisterAll(r, f.deps())

	_, err := invoke(t, r, "update_facture", tool.Params{
		"facture_id": "f-1",
		"montant":    900.0,
	})

	var derr *tool.Error
	if !errors.As(err, &derr) {
		t.Fatalf("expected *tool.Error, got %v", err)
	}
	if derr.Code != tool.CodeBusinessValidation {
		t.Errorf("code = %s", derr.Code)
	}
	if !strings.Contains(derr.Message, "'f-2' != 'f-1'") {
		t.Errorf("message = %q", derr.Message)
	}
}

func TestMarkFacturePaidValidationVerdict(t *testing.T) {
	t.Parallel()

	f := newFakeWorkers(t)
	f.respond("/facture/f-1", `{"id":"f-1","validated":false,"discrepancies":["payment_date in the future"]}`)

	r := tool.NewRegistry(nil)
	RegisterAll(r, f.deps())

	_, err := invoke(t, r, "mark_facture_paid", tool.Params{
		"facture_id":   "f-1",
		"payment_date": "2031-01-01",
	})

	var derr *tool.Error
	if !errors.As(err, &derr) {
		t.Fatalf("expected *tool.Error, got %v", err)
	}
	if derr.Code != tool.CodeBusinessValidation {
		t.Errorf("code = %s", derr.Code)
	}
	if len(derr.Details) != 1 || derr.Details[0] != "payment_date in the future" {
		t.Errorf("details = %v", derr.Details)
	}

	body := f.lastBody("/facture/f-1")
	if body["payment_status"] != "paid" {
		t.Errorf("payment_status = %v", body["payment_status"])
	}
}

func TestMarkFacturePaidSuccess(t *testing.T) {
	t.Parallel()

	f := newFakeWorkers(t)
	f.respond("/facture/f-1", `{"id":"f-1","validated":true,"payment_status":"paid"}`)

	r := tool.NewRegistry(nil)
	RegisterAll(r, f.deps())

	out, err := invoke(t, r, "mark_facture_paid", tool.Params{"facture_id": "f-1"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	data := out.(map[string]any)
	if data["payment_status"] != "paid" {
		t.Errorf("result = %v", data)
	}
}

func TestDiscrepancyList(t *testing.T) {
	t.Parallel()

	if got := discrepancyList(nil); got != nil {
		t.Errorf("nil = %v", got)
	}
	if got := discrepancyList("one"); len(got) != 1 || got[0] != "one" {
		t.Errorf("string = %v", got)
	}
	got := discrepancyList([]any{"a", 2.0})
	if len(got) != 2 || got[0] != "a" || got[1] != "2" {
		t.Errorf("slice = %v", got)
	}
}
