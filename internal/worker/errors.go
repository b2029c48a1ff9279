// Package worker implements the outbound call helpers for the downstream
// worker services: a read-side query service, a database mutation service,
// and the document, storage and email processing services.
//
// Failures are reported as typed error kinds so the retry policy and the
// dispatcher can pattern-match on them instead of string inspection.
package worker

import (
	"errors"
	"fmt"
)

// Service identifies a downstream worker.
type Service string

const (
	ServiceQuery    Service = "query"
	ServiceMutation Service = "mutation"
	ServiceDocument Service = "document"
	ServiceStorage  Service = "storage"
	ServiceEmail    Service = "email"
)

// ErrNotConfigured is wrapped by ConfigError. Absence of a base URL is a
// configuration state, deliberately distinct from a network failure.
var ErrNotConfigured = errors.New("worker: base URL not configured")

// ConfigError reports a call against a service whose base URL is unset.
type ConfigError struct {
	Service Service
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("worker %s: base URL not configured", e.Service)
}

func (e *ConfigError) Unwrap() error { return ErrNotConfigured }

// TransportError reports a connection-level failure: the service never
// produced an HTTP response. Timeout marks deadline expiry, which the
// dispatcher surfaces as a gateway timeout rather than unavailability.
type TransportError struct {
	Service Service
	Timeout bool
	Err     error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("worker %s: request timed out: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("worker %s: connection failed: %v", e.Service, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError reports a non-2xx HTTP response. The body is kept verbatim
// for diagnostic passthrough.
type StatusError struct {
	Service    Service
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("worker %s: unexpected status %d", e.Service, e.StatusCode)
}

// Transient reports whether the status is worth retrying (5xx).
func (e *StatusError) Transient() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsRetryable reports whether the retry policy should attempt the call
// again: transport-level failures (including timeouts, each attempt gets
// its own deadline) and 5xx responses. Configuration errors and 4xx
// responses fail fast.
func IsRetryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Transient()
	}
	return false
}
