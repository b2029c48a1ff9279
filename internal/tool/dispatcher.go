package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowchat/gateway/internal/worker"
)

// Metrics receives one observation per dispatch. Implemented by the
// gateway's prometheus collectors; nil disables recording.
type Metrics interface {
	RecordDispatch(tool string, category Category, outcome string, seconds float64)
}

// Result is the success envelope of a dispatch.
type Result struct {
	Success  bool   `json:"success"`
	ToolName string `json:"tool_name"`
	Result   any    `json:"result"`
}

// Dispatcher routes a tool invocation: registry lookup, parameter
// validation, handler execution, and classification of every failure
// into the shared error taxonomy. Handlers never invent their own error
// shapes; whatever they or their nested worker calls return is
// normalized here so all tools present identical failures.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
	metrics  Metrics
	tracer   trace.Tracer
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		logger:   logger,
		tracer:   otel.Tracer("flowchat.gateway/tool"),
	}
}

// SetMetrics attaches a metrics sink. Must be called before serving.
func (d *Dispatcher) SetMetrics(m Metrics) { d.metrics = m }

// Registry returns the underlying registry, for discovery endpoints.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Dispatch invokes the named tool with params. On failure the returned
// error is always a *Error carrying the tool name and category.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, params Params) (*Result, error) {
	start := time.Now()

	meta, ok := d.registry.Lookup(name)
	if !ok {
		derr := &Error{
			Code:    CodeToolNotFound,
			Message: fmt.Sprintf("Outil inconnu: %s", name),
			Tool:    name,
		}
		d.observe(name, "", derr, start)
		return nil, derr
	}

	if verrs := Validate(params, meta.Schema.InputSchema); len(verrs) > 0 {
		derr := &Error{
			Code:     CodeValidationFailed,
			Message:  fmt.Sprintf("Paramètres invalides pour l'outil '%s'", name),
			Tool:     name,
			Category: meta.Category,
			Details:  verrs,
		}
		d.observe(name, meta.Category, derr, start)
		return nil, derr
	}

	ctx, span := d.tracer.Start(ctx, "tool.dispatch",
		trace.WithAttributes(
			attribute.String("tool.name", name),
			attribute.String("tool.category", string(meta.Category)),
		),
	)
	defer span.End()

	out, err := meta.Handler(ctx, params)
	if err != nil {
		derr := d.classify(err, meta)
		span.RecordError(derr)
		span.SetStatus(codes.Error, string(derr.Code))
		d.observe(name, meta.Category, derr, start)
		return nil, derr
	}

	d.observe(name, meta.Category, nil, start)
	return &Result{Success: true, ToolName: name, Result: out}, nil
}

// classify maps a handler failure onto the taxonomy. The mapping is the
// dispatcher's main job: calling agents need "this capability is down
// but others work" vs "your input was wrong" vs "something broke" to be
// distinguishable regardless of which tool failed.
func (d *Dispatcher) classify(err error, meta Metadata) *Error {
	var derr *Error
	if errors.As(err, &derr) {
		if derr.Tool == "" {
			derr.Tool = meta.Name
		}
		if derr.Category == "" {
			derr.Category = meta.Category
		}
		return derr
	}

	var cerr *worker.ConfigError
	if errors.As(err, &cerr) {
		return &Error{
			Code:     CodeServiceUnavailable,
			Message:  unavailableMessage(cerr.Service),
			Tool:     meta.Name,
			Category: meta.Category,
		}
	}

	var terr *worker.TransportError
	if errors.As(err, &terr) {
		if terr.Timeout {
			return &Error{
				Code:     CodeGatewayTimeout,
				Message:  timeoutMessage,
				Tool:     meta.Name,
				Category: meta.Category,
			}
		}
		return &Error{
			Code:     CodeServiceUnavailable,
			Message:  unavailableMessage(terr.Service),
			Tool:     meta.Name,
			Category: meta.Category,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Code:     CodeGatewayTimeout,
			Message:  timeoutMessage,
			Tool:     meta.Name,
			Category: meta.Category,
		}
	}

	var serr *worker.StatusError
	if errors.As(err, &serr) {
		return &Error{
			Code:       CodeDownstreamError,
			Message:    fmt.Sprintf("Le service %s a répondu avec le statut %d", serr.Service, serr.StatusCode),
			Tool:       meta.Name,
			Category:   meta.Category,
			Downstream: rawBody(serr.Body),
			status:     serr.StatusCode,
		}
	}

	d.logger.Error("unclassified tool failure",
		"tool", meta.Name,
		"category", string(meta.Category),
		"error", err,
	)
	return &Error{
		Code:     CodeInternal,
		Message:  "Une erreur interne est survenue.",
		Tool:     meta.Name,
		Category: meta.Category,
	}
}

func (d *Dispatcher) observe(name string, category Category, derr *Error, start time.Time) {
	outcome := "success"
	if derr != nil {
		outcome = string(derr.Code)
	}
	if d.metrics != nil {
		d.metrics.RecordDispatch(name, category, outcome, time.Since(start).Seconds())
	}
	if derr != nil {
		d.logger.Warn("tool dispatch failed",
			"tool", name,
			"outcome", outcome,
			"message", derr.Message,
		)
	}
}

// rawBody embeds a downstream body into the envelope, quoting it as a
// JSON string when it is not already valid JSON.
func rawBody(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	quoted, err := json.Marshal(string(body))
	if err != nil {
		return nil
	}
	return json.RawMessage(quoted)
}
