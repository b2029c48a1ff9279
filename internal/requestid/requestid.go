// Package requestid provides per-request correlation identifiers.
//
// A fresh identifier is attached to every inbound request by the gateway
// middleware, carried through the context, and forwarded to every worker
// call so logs can be correlated across services.
package requestid

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

// Header is the HTTP header used to carry the correlation identifier,
// both inbound (honored if present) and outbound.
const Header = "X-Request-ID"

// New returns a fresh correlation identifier.
func New() string {
	return uuid.NewString()
}

// WithContext returns a copy of ctx carrying the given identifier.
func WithContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the correlation identifier stored in ctx,
// or "" if none was set.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
