package csrf

import (
	"log/slog"
	"net/http"

	"github.com/restkit/restkit/internal/domain"
	"github.com/restkit/restkit/internal/token"
)

// Protect is the CSRF protection middleware. Construct one instance at
// application assembly time and hand it to the router; there is no package
// global. The exemption registry and pre-check hooks are add-only and must
// be populated during setup, before traffic is served.
type Protect struct {
	codec     *token.Codec
	validator *Validator
	opts      Options
	logger    *slog.Logger

	exemptViews  map[string]struct{}
	exemptGroups map[string]struct{}
	beforeHooks  []func(*http.Request)
}

// New creates a Protect middleware instance.
func New(codec *token.Codec, opts Options, logger *slog.Logger) *Protect {
	return &Protect{
		codec:        codec,
		validator:    NewValidator(codec, opts),
		opts:         opts,
		logger:       logger,
		exemptViews:  make(map[string]struct{}),
		exemptGroups: make(map[string]struct{}),
	}
}

// Exempt excludes a view identity (see Tag) from CSRF validation.
func (p *Protect) Exempt(view string) {
	p.exemptViews[view] = struct{}{}
}

// ExemptGroup excludes a route-group identity (see Tag) from CSRF
// validation.
func (p *Protect) ExemptGroup(group string) {
	p.exemptGroups[group] = struct{}{}
}

// BeforeProtect registers a hook invoked before validation on every request.
// Hooks run in registration order and may call SkipCheck to bypass
// validation, e.g. when another auth mechanism makes the request immune.
func (p *Protect) BeforeProtect(fn func(*http.Request)) {
	p.beforeHooks = append(p.beforeHooks, fn)
}

// SkipForBearerAuth is a ready-made pre-check hook: requests authenticated
// with a bearer token do not rely on cookies and are immune to CSRF.
func SkipForBearerAuth(r *http.Request) {
	authz := r.Header.Get("Authorization")
	if len(authz) > 7 && authz[:7] == "Bearer " {
		SkipCheck(r.Context())
	}
}

// Middleware validates unsafe-method requests and provisions the CSRF cookie
// on response egress. A rejection aborts handling with a 400 JSON envelope
// whose message is the rejection reason; the cookie is still set on the
// rejected response so a legitimate client recovers with one retry.
func (p *Protect) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, st := withState(r.Context())
		r = r.WithContext(ctx)

		for _, fn := range p.beforeHooks {
			fn(r)
		}

		unsafeMethod := p.opts.isUnsafe(r.Method)
		_, cookieErr := r.Cookie(p.opts.CookieName)
		cookieMissing := cookieErr != nil

		// Cookie egress: unsafe request without a cookie yet, or rotation
		// pending. Safe methods never provision a cookie by themselves.
		cw := &cookieWriter{
			ResponseWriter: w,
			needsCookie: func() bool {
				return st.rotate || (unsafeMethod && cookieMissing)
			},
			issue:  p.newCookie,
			logger: p.logger,
		}

		if unsafeMethod && !p.isExempt(r) && !st.skip {
			decision := p.validator.Validate(r)
			switch decision.Outcome {
			case Rejected:
				p.logger.Warn("csrf validation rejected",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("reason", string(decision.Reason)),
				)
				// Every rejection carries a fresh token so a legitimate
				// client whose cookie went stale recovers with one retry.
				st.rotate = true
				domain.ErrCSRF(string(decision.Reason)).Write(cw)
				return
			case AcceptedWithRotation:
				st.rotate = true
			}
		}

		next.ServeHTTP(cw, r)

		// Handlers that never write still flush headers on return.
		cw.ensureCookie()
	})
}

// Seed provisions the CSRF cookie on any response whose request did not
// carry one, without enforcing validation. Use it on apps that only need
// token issuance (e.g. a read-mostly API fronting a separate SPA login).
func (p *Protect) Seed(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, st := withState(r.Context())
		r = r.WithContext(ctx)

		_, cookieErr := r.Cookie(p.opts.CookieName)
		cookieMissing := cookieErr != nil

		cw := &cookieWriter{
			ResponseWriter: w,
			needsCookie: func() bool {
				return st.rotate || cookieMissing
			},
			issue:  p.newCookie,
			logger: p.logger,
		}

		next.ServeHTTP(cw, r)
		cw.ensureCookie()
	})
}

func (p *Protect) isExempt(r *http.Request) bool {
	id := identityFrom(r.Context())
	if _, ok := p.exemptGroups[id.group]; ok && id.group != "" {
		return true
	}
	if _, ok := p.exemptViews[id.view]; ok && id.view != "" {
		return true
	}
	return false
}

func (p *Protect) newCookie() (*http.Cookie, error) {
	encoded, err := p.codec.Issue(p.opts.TokenLength, p.opts.AllowedChars, p.opts.TokenExpiresIn)
	if err != nil {
		return nil, err
	}
	return &http.Cookie{
		Name:     p.opts.CookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(p.opts.CookieMaxAge.Seconds()),
		Secure:   p.opts.CookieSecure,
		HttpOnly: false,
		SameSite: p.opts.sameSite(),
	}, nil
}

// cookieWriter wraps http.ResponseWriter to inject the Set-Cookie header
// before the first write, once the needsCookie condition is known.
type cookieWriter struct {
	http.ResponseWriter
	needsCookie func() bool
	issue       func() (*http.Cookie, error)
	logger      *slog.Logger
	done        bool
}

func (cw *cookieWriter) WriteHeader(code int) {
	cw.ensureCookie()
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *cookieWriter) Write(b []byte) (int, error) {
	cw.ensureCookie()
	return cw.ResponseWriter.Write(b)
}

func (cw *cookieWriter) ensureCookie() {
	if cw.done {
		return
	}
	cw.done = true
	if !cw.needsCookie() {
		return
	}
	cookie, err := cw.issue()
	if err != nil {
		// The response still goes out; the client retries for a cookie.
		cw.logger.Error("csrf cookie issuance failed",
			slog.String("error", err.Error()),
		)
		return
	}
	http.SetCookie(cw.ResponseWriter, cookie)
}

// Flush forwards Flush to the underlying ResponseWriter if it supports
// http.Flusher.
func (cw *cookieWriter) Flush() {
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
