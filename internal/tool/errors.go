package tool

import (
	"encoding/json"
	"net/http"

	"github.com/flowchat/gateway/internal/worker"
)

// Code is a caller-visible error class. Calling agents branch on these to
// decide which capabilities remain usable, so the set is part of the
// external contract.
type Code string

const (
	CodeToolNotFound       Code = "tool_not_found"
	CodeValidationFailed   Code = "validation_failed"
	CodeBusinessValidation Code = "business_validation_failed"
	CodeServiceUnavailable Code = "service_unavailable"
	CodeGatewayTimeout     Code = "gateway_timeout"
	CodeDownstreamError    Code = "downstream_error"
	CodeInternal           Code = "internal_error"
)

// Error is the normalized error envelope every failed dispatch produces.
type Error struct {
	Code     Code     `json:"error"`
	Message  string   `json:"message"`
	Tool     string   `json:"tool,omitempty"`
	Category Category `json:"category,omitempty"`

	// Details carries field-level validation errors or business
	// discrepancies.
	Details []string `json:"details,omitempty"`

	// Downstream embeds the raw downstream body on passthrough errors.
	Downstream json.RawMessage `json:"downstream,omitempty"`

	status int
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// HTTPStatus maps the error to its transport status. Downstream
// passthrough keeps the original status.
func (e *Error) HTTPStatus() int {
	if e.status != 0 {
		return e.status
	}
	switch e.Code {
	case CodeToolNotFound:
		return http.StatusNotFound
	case CodeValidationFailed, CodeBusinessValidation:
		return http.StatusUnprocessableEntity
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case CodeGatewayTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// NotFound builds the error a handler returns when an entity lookup
// comes back empty.
func NotFound(message string) *Error {
	return &Error{Code: CodeDownstreamError, Message: message, status: http.StatusNotFound}
}

// BusinessValidation builds the error a handler returns when a downstream
// accepted the call but the response fails a business-level success check
// (e.g. a write that does not echo the entity id).
func BusinessValidation(message string, details ...string) *Error {
	return &Error{Code: CodeBusinessValidation, Message: message, Details: details}
}

// Caller-facing unavailability messages. These tell the calling agent
// which capability classes still work while the named service is down.
var unavailableMessages = map[worker.Service]string{
	worker.ServiceQuery:    "Le service de lecture de données est temporairement indisponible. Réessayez dans quelques instants.",
	worker.ServiceMutation: "Le service d'écriture en base de données est temporairement indisponible. Seules les opérations de lecture sont disponibles.",
	worker.ServiceDocument: "Le service de génération de documents est temporairement indisponible. Les opérations de lecture et d'écriture en base restent disponibles.",
	worker.ServiceStorage:  "Le service de stockage de fichiers est temporairement indisponible. Les opérations de lecture et d'écriture en base restent disponibles.",
	worker.ServiceEmail:    "Le service d'envoi d'emails est temporairement indisponible. Les opérations de lecture et d'écriture en base restent disponibles.",
}

const timeoutMessage = "Le service n'a pas répondu dans le délai imparti. Réessayez dans quelques instants."

func unavailableMessage(svc worker.Service) string {
	if msg, ok := unavailableMessages[svc]; ok {
		return msg
	}
	return "Un service requis est temporairement indisponible."
}
