// Package domain provides the canonical error types and the JSON error
// envelope shared by the REST middleware layer.
package domain

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// FieldError describes a single field-level validation failure inside an
// error envelope. It is not itself an error.
type FieldError struct {
	// Field is the name of the offending field.
	Field string `json:"field"`

	// Message is the human-readable description of the failure.
	Message string `json:"message"`

	// Code is an optional machine-readable code for the failure.
	Code string `json:"code,omitempty"`
}

// Error is an HTTP failure rendered as the JSON error envelope
// {status, message, errors?, error_id?}. The HTTP status code of the
// response always mirrors Status.
type Error struct {
	// Status is the HTTP status code.
	Status int `json:"status"`

	// Message is the machine-readable failure message.
	Message string `json:"message"`

	// Errors carries optional field-level details.
	Errors []FieldError `json:"errors,omitempty"`

	// ErrorID correlates a 5xx response with server-side logs.
	ErrorID string `json:"error_id,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// WithErrors attaches field-level errors to the envelope.
func (e *Error) WithErrors(errs ...FieldError) *Error {
	e.Errors = append(e.Errors, errs...)
	return e
}

// Write renders the envelope to w with Content-Type: application/json.
// A 5xx envelope without an ErrorID gets one assigned before rendering.
func (e *Error) Write(w http.ResponseWriter) {
	if e.Status >= 500 && e.ErrorID == "" {
		e.ErrorID = uuid.New().String()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	json.NewEncoder(w).Encode(e)
}

// NewError creates an error envelope with the given status and message.
func NewError(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

// ErrCSRF creates the 400 envelope for a CSRF rejection. The message is the
// machine-readable rejection reason.
func ErrCSRF(reason string) *Error {
	return NewError(http.StatusBadRequest, reason)
}

// ErrValidation creates a 400 validation error envelope.
func ErrValidation(errs ...FieldError) *Error {
	return NewError(http.StatusBadRequest, "Validation error.").WithErrors(errs...)
}

// ErrNotAcceptable creates the 406 envelope returned when no serializer
// matches the request's Accept header.
func ErrNotAcceptable() *Error {
	return NewError(http.StatusNotAcceptable, "Not Acceptable.")
}

// ErrPreconditionFailed creates the 412 envelope for a failed If-Match or
// If-None-Match condition on a mutating request.
func ErrPreconditionFailed() *Error {
	return NewError(http.StatusPreconditionFailed, "Precondition failed.")
}

// ErrInvalidContentType creates the 415 envelope listing the accepted
// request content types.
func ErrInvalidContentType(allowed ...string) *Error {
	msg := "Invalid 'Content-Type' header."
	if len(allowed) > 0 {
		msg = fmt.Sprintf("Invalid 'Content-Type' header. Expected one of: %s", joinComma(allowed))
	}
	return NewError(http.StatusUnsupportedMediaType, msg)
}

// ErrNotFound creates a 404 envelope.
func ErrNotFound(message string) *Error {
	return NewError(http.StatusNotFound, message)
}

// ErrServer creates a 500 envelope.
func ErrServer(message string) *Error {
	return NewError(http.StatusInternalServerError, message)
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

// NotModified is the control-flow signal raised by the conditional-request
// helpers when a GET/HEAD resource is unchanged. The dispatcher converts it
// into a 304 response carrying the validators; it never renders through the
// error envelope.
type NotModified struct {
	// ETag is the unquoted validator of the unchanged representation.
	ETag string

	// Weak marks ETag as a weak validator.
	Weak bool

	// LastModified is the optional Last-Modified validator. Zero means unset.
	LastModified time.Time
}

// Error implements the error interface so the signal can travel an error
// return path.
func (n *NotModified) Error() string {
	return "not modified"
}

// ConfigurationError is a fatal startup error: missing secrets, ambiguous
// serializer tables. It aborts initialization and is never surfaced to a
// request.
type ConfigurationError struct {
	Reason string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// NewConfigurationError creates a fatal configuration error.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}
