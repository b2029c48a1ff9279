package worker

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
)

// QueryClient calls the read-side data service through its RPC surface.
// Unlike the other workers it authenticates with a bearer key.
type QueryClient struct {
	inner *Client
	key   string
}

// NewQueryClient builds the read-side client.
func NewQueryClient(baseURL, key string, httpc *http.Client, logger *slog.Logger) *QueryClient {
	return &QueryClient{
		inner: newClient(ServiceQuery, baseURL, "", defaultTimeout, httpc, logger),
		key:   key,
	}
}

// Configured reports whether a base URL was provided.
func (q *QueryClient) Configured() bool { return q.inner.Configured() }

// WithPolicy returns a copy using the given retry policy.
func (q *QueryClient) WithPolicy(p Policy) *QueryClient {
	return &QueryClient{inner: q.inner.WithPolicy(p), key: q.key}
}

// RPC invokes a named server-side function with the given arguments and
// returns the decoded JSON result, which may be an object, array or
// scalar depending on the function.
func (q *QueryClient) RPC(ctx context.Context, function string, args map[string]any) (any, error) {
	if args == nil {
		args = map[string]any{}
	}

	var out any
	path := "/rest/v1/rpc/" + url.PathEscape(function)
	err := q.inner.policy.Do(ctx, q.inner.logger, "query "+function, func(ctx context.Context) error {
		var err error
		out, err = q.inner.doRaw(ctx, http.MethodPost, path, args, func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+q.key)
			req.Header.Set("apikey", q.key)
		})
		return err
	})
	return out, err
}
