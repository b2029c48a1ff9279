package worker

import (
	"log/slog"
)

// Settings carries the externally configured identity of every worker.
type Settings struct {
	// Secret is sent as X-FlowChat-Worker-Auth to the mutation, document,
	// storage and email services.
	Secret string

	QueryURL string
	QueryKey string

	MutationURL string
	DocumentURL string
	StorageURL  string
	EmailURL    string
}

// Clients bundles one client per downstream service, all sharing a single
// pooled transport.
type Clients struct {
	Query    *QueryClient
	Mutation *Client
	Document *Client
	Storage  *Client
	Email    *Client
}

// NewClients builds the full client set from settings. Unset URLs produce
// clients whose calls fail fast with ConfigError.
func NewClients(s Settings, logger *slog.Logger) *Clients {
	httpc := NewHTTPClient()
	return &Clients{
		Query:    NewQueryClient(s.QueryURL, s.QueryKey, httpc, logger),
		Mutation: NewMutationClient(s.MutationURL, s.Secret, httpc, logger),
		Document: NewDocumentClient(s.DocumentURL, s.Secret, httpc, logger),
		Storage:  NewStorageClient(s.StorageURL, s.Secret, httpc, logger),
		Email:    NewEmailClient(s.EmailURL, s.Secret, httpc, logger),
	}
}

// Configured reports, per service, whether a base URL was provided.
// Used by the health endpoint.
func (c *Clients) Configured() map[Service]bool {
	return map[Service]bool{
		ServiceQuery:    c.Query.Configured(),
		ServiceMutation: c.Mutation.Configured(),
		ServiceDocument: c.Document.Configured(),
		ServiceStorage:  c.Storage.Configured(),
		ServiceEmail:    c.Email.Configured(),
	}
}
