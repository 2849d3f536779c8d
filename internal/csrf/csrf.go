// Package csrf implements double-submit-cookie CSRF protection with signed,
// time-bounded tokens and grace-period rotation.
//
// A signed token travels in a cookie readable by same-origin script; unsafe
// requests must echo it back in a header. On secure transports the Referer
// host is additionally pinned to an allow-list. Expired cookie tokens inside
// the grace window are accepted once and transparently rotated on the
// response.
package csrf

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Reason is a machine-readable rejection reason. The closed set below is the
// full contract; a rejection surfaces as HTTP 400 with the reason as the
// envelope message.
type Reason string

const (
	ReasonNoReferer        Reason = "NO_REFERER"
	ReasonBadReferer       Reason = "BAD_REFERER"
	ReasonNoCSRFCookie     Reason = "NO_CSRF_COOKIE"
	ReasonBadToken         Reason = "BAD_TOKEN"
	ReasonMalformedReferer Reason = "MALFORMED_REFERER"
	ReasonInsecureReferer  Reason = "INSECURE_REFERER"
	ReasonTokenExpired     Reason = "TOKEN_EXPIRED"
)

// Outcome is the terminal state of validating one request.
type Outcome int

const (
	// Accepted allows the request through unchanged.
	Accepted Outcome = iota

	// AcceptedWithRotation allows the request through and schedules a fresh
	// token on the response.
	AcceptedWithRotation

	// Rejected aborts the request with HTTP 400.
	Rejected
)

// Decision is the per-request validation result. It is never persisted.
type Decision struct {
	Outcome Outcome

	// Reason is set only when Outcome is Rejected.
	Reason Reason
}

// Options configures validation and cookie issuance. Values are read at
// construction and treated as immutable afterwards.
type Options struct {
	// CookieName is the CSRF cookie name.
	CookieName string

	// Header is the request header that must echo the cookie token.
	Header string

	// Methods is the set of unsafe methods subject to validation.
	Methods []string

	// TokenLength and AllowedChars shape the random token payload.
	TokenLength  int
	AllowedChars string

	// ForceSecureReferer rejects insecure referers on secure requests.
	ForceSecureReferer bool

	// AllowedHosts is the referer host allow-list for secure requests.
	AllowedHosts []string

	// Cookie attributes. HttpOnly is always false: the double-submit scheme
	// requires same-origin script to read the cookie.
	CookieSameSite string
	CookieSecure   bool
	CookieMaxAge   time.Duration

	// TokenExpiresIn bounds token validity; GracePeriod admits an expired
	// cookie token once, triggering rotation.
	TokenExpiresIn time.Duration
	GracePeriod    time.Duration
}

func (o Options) isUnsafe(method string) bool {
	for _, m := range o.Methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

func (o Options) sameSite() http.SameSite {
	switch o.CookieSameSite {
	case "Strict":
		return http.SameSiteStrictMode
	case "None":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// requestState is the per-request mutable state shared between the protect
// middleware, pre-check hooks and handlers.
type requestState struct {
	skip   bool
	rotate bool
}

type stateKey struct{}

func withState(ctx context.Context) (context.Context, *requestState) {
	if st, ok := ctx.Value(stateKey{}).(*requestState); ok {
		return ctx, st
	}
	st := &requestState{}
	return context.WithValue(ctx, stateKey{}, st), st
}

// SkipCheck flags the request to bypass CSRF validation. Intended for
// pre-check hooks that recognize auth schemes immune to cookie-based CSRF
// (e.g. bearer tokens). No-op outside the protect middleware.
func SkipCheck(ctx context.Context) {
	if st, ok := ctx.Value(stateKey{}).(*requestState); ok {
		st.skip = true
	}
}

// RotateToken schedules a fresh CSRF cookie on the response, superseding the
// current token. Handlers call this on privilege changes such as login.
// No-op outside the protect middleware.
func RotateToken(ctx context.Context) {
	if st, ok := ctx.Value(stateKey{}).(*requestState); ok {
		st.rotate = true
	}
}

// identity is the route identity consulted by the exemption registry.
type identity struct {
	view  string
	group string
}

type identityKey struct{}

// Tag returns middleware that attaches a route identity to the request
// context. Mount it before the protect middleware; exemptions registered for
// the view or group are honored by identity, not by reflection.
func Tag(view, group string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), identityKey{}, identity{view: view, group: group})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func identityFrom(ctx context.Context) identity {
	id, _ := ctx.Value(identityKey{}).(identity)
	return id
}

// isSecure reports whether the request arrived over a secure transport,
// either directly or behind a TLS-terminating proxy.
func isSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
