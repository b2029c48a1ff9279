package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowchat/gateway/internal/requestid"
)

// AuthHeader carries the shared worker secret on every outbound call.
const AuthHeader = "X-FlowChat-Worker-Auth"

const (
	defaultTimeout  = 30 * time.Second
	documentTimeout = 60 * time.Second

	maxResponseBytes = 10 << 20
)

// NewHTTPClient returns the pooled HTTP client shared by all worker
// clients. Per-call deadlines come from contexts, not Client.Timeout.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     100,
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Client calls one downstream worker service. The zero base URL state is
// legal: every call then fails fast with a ConfigError.
type Client struct {
	service Service
	baseURL string
	secret  string
	timeout time.Duration
	httpc   *http.Client
	logger  *slog.Logger
	policy  Policy
	tracer  trace.Tracer
}

func newClient(service Service, baseURL, secret string, timeout time.Duration, httpc *http.Client, logger *slog.Logger) *Client {
	if httpc == nil {
		httpc = NewHTTPClient()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		service: service,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		secret:  secret,
		timeout: timeout,
		httpc:   httpc,
		logger:  logger.With("service", string(service)),
		policy:  DefaultPolicy(),
		tracer:  otel.Tracer("flowchat.gateway/worker"),
	}
}

// NewMutationClient builds the client for the database write service.
func NewMutationClient(baseURL, secret string, httpc *http.Client, logger *slog.Logger) *Client {
	return newClient(ServiceMutation, baseURL, secret, defaultTimeout, httpc, logger)
}

// NewDocumentClient builds the client for the PDF generation service.
// Document rendering is slow, so it gets a longer deadline.
func NewDocumentClient(baseURL, secret string, httpc *http.Client, logger *slog.Logger) *Client {
	return newClient(ServiceDocument, baseURL, secret, documentTimeout, httpc, logger)
}

// NewStorageClient builds the client for the file storage service.
func NewStorageClient(baseURL, secret string, httpc *http.Client, logger *slog.Logger) *Client {
	return newClient(ServiceStorage, baseURL, secret, defaultTimeout, httpc, logger)
}

// NewEmailClient builds the client for the email delivery service.
func NewEmailClient(baseURL, secret string, httpc *http.Client, logger *slog.Logger) *Client {
	return newClient(ServiceEmail, baseURL, secret, defaultTimeout, httpc, logger)
}

// Service returns the downstream identity of this client.
func (c *Client) Service() Service { return c.service }

// Configured reports whether a base URL was provided.
func (c *Client) Configured() bool { return c.baseURL != "" }

// WithPolicy returns a copy of the client using the given retry policy.
func (c *Client) WithPolicy(p Policy) *Client {
	cp := *c
	cp.policy = p
	return &cp
}

// Call sends payload as JSON to path and decodes the JSON response.
// Non-object responses are wrapped under a "result" key so callers always
// receive a map. Retries per the client's policy; the returned error is
// one of the typed kinds in errors.go.
func (c *Client) Call(ctx context.Context, method, path string, payload any) (map[string]any, error) {
	var out map[string]any
	err := c.policy.Do(ctx, c.logger, string(c.service)+" "+path, func(ctx context.Context) error {
		var err error
		out, err = c.do(ctx, method, path, payload)
		return err
	})
	return out, err
}

// Post is shorthand for Call with POST, the dominant worker verb.
func (c *Client) Post(ctx context.Context, path string, payload any) (map[string]any, error) {
	return c.Call(ctx, http.MethodPost, path, payload)
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (map[string]any, error) {
	raw, err := c.doRaw(ctx, method, path, payload, func(req *http.Request) {
		if c.secret != "" {
			req.Header.Set(AuthHeader, c.secret)
		}
	})
	if err != nil {
		return nil, err
	}
	if obj, ok := raw.(map[string]any); ok {
		return obj, nil
	}
	return map[string]any{"result": raw}, nil
}

// doRaw performs a single attempt: build the request, inject correlation
// and auth headers, apply the per-class deadline, classify the outcome.
func (c *Client) doRaw(ctx context.Context, method, path string, payload any, auth func(*http.Request)) (any, error) {
	if c.baseURL == "" {
		return nil, &ConfigError{Service: c.service}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("worker %s: encoding payload: %w", c.service, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	callCtx, span := c.tracer.Start(callCtx, string(c.service)+" call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("worker.service", string(c.service)),
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(callCtx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("worker %s: building request: %w", c.service, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.Header, id)
	}
	auth(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		err = c.classifyTransport(ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Service: c.service, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{Service: c.service, StatusCode: resp.StatusCode, Body: data}
		span.SetStatus(codes.Error, serr.Error())
		return nil, serr
	}

	if len(data) == 0 {
		return map[string]any{}, nil
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("worker %s: decoding response: %w", c.service, err)
	}
	return decoded, nil
}

// classifyTransport turns an http.Client error into a typed kind. A
// cancellation originating from the caller's context passes through
// unchanged so it is not mistaken for a downstream failure.
func (c *Client) classifyTransport(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Service: c.service, Timeout: true, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &TransportError{Service: c.service, Timeout: true, Err: err}
	}
	return &TransportError{Service: c.service, Err: err}
}
