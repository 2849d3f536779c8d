// Package restkit provides the public API for embedding the REST middleware
// layer: CSRF protection, content negotiation and conditional requests.
// This is the stable API for external consumers.
package restkit

import (
	"github.com/restkit/restkit/internal/csrf"
	"github.com/restkit/restkit/internal/domain"
	"github.com/restkit/restkit/internal/negotiation"
	"github.com/restkit/restkit/internal/token"
)

// Token signing
type (
	// Codec signs and verifies time-bounded CSRF tokens.
	Codec = token.Codec

	// Claims is the decoded content of a valid token.
	Claims = token.Claims
)

// NewCodec creates a token codec from the server secret and salt.
var NewCodec = token.New

// CSRF protection
type (
	// Protect is the CSRF protection middleware instance.
	Protect = csrf.Protect

	// CSRFOptions configures validation and cookie issuance.
	CSRFOptions = csrf.Options

	// Decision is the per-request validation result.
	Decision = csrf.Decision
)

var (
	// NewProtect creates a Protect middleware instance.
	NewProtect = csrf.New

	// Tag attaches a route identity for the exemption registry.
	Tag = csrf.Tag

	// SkipCheck and RotateToken are the in-request control points.
	SkipCheck   = csrf.SkipCheck
	RotateToken = csrf.RotateToken

	// SkipForBearerAuth is a ready-made pre-check hook.
	SkipForBearerAuth = csrf.SkipForBearerAuth
)

// Content negotiation
type (
	// Table maps media types to serializers for one resource.
	Table = negotiation.Table

	// Serializer renders one media type.
	Serializer = negotiation.Serializer

	// Dispatcher wraps handlers with serializer selection and
	// conditional-request evaluation.
	Dispatcher = negotiation.Dispatcher

	// Result is the tagged outcome of a handler invocation.
	Result = negotiation.Result

	// HandlerFunc is a negotiated handler.
	HandlerFunc = negotiation.HandlerFunc
)

var (
	NewTable             = negotiation.NewTable
	WithSerializer       = negotiation.WithSerializer
	WithMethodSerializer = negotiation.WithMethodSerializer
	WithDefaultMediaType = negotiation.WithDefaultMediaType
	WithMethodDefault    = negotiation.WithMethodDefault
	WithAlias            = negotiation.WithAlias
	NewDispatcher        = negotiation.NewDispatcher

	// Handler result constructors
	Body                     = negotiation.Body
	BodyWithStatus           = negotiation.BodyWithStatus
	BodyWithStatusAndHeaders = negotiation.BodyWithStatusAndHeaders
	Raw                      = negotiation.Raw

	// Conditional-request helpers
	CheckEtag            = negotiation.CheckEtag
	CheckIfModifiedSince = negotiation.CheckIfModifiedSince
)

// Error envelope
type (
	// Error renders the JSON error envelope {status, message, errors?, error_id?}.
	Error = domain.Error

	// FieldError is a field-level detail inside an envelope.
	FieldError = domain.FieldError

	// NotModified is the 304 control-flow signal.
	NotModified = domain.NotModified
)

var (
	NewError              = domain.NewError
	ErrNotAcceptable      = domain.ErrNotAcceptable
	ErrPreconditionFailed = domain.ErrPreconditionFailed
	ErrValidation         = domain.ErrValidation
)
