package csrf

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/restkit/restkit/internal/token"
)

// Validator decides whether one request passes the double-submit-cookie
// check. It is a pure decision function over the request, the codec and the
// clock; it never mutates the request or the response.
type Validator struct {
	codec *token.Codec
	opts  Options

	// now is the clock; replaced in tests.
	now func() time.Time
}

// NewValidator creates a Validator.
func NewValidator(codec *token.Codec, opts Options) *Validator {
	return &Validator{codec: codec, opts: opts, now: time.Now}
}

// Validate runs the decision sequence. Checks short-circuit on the first
// applicable rejection; cheap cookie checks run before referer parsing and
// the second signature verification.
func (v *Validator) Validate(r *http.Request) Decision {
	// A client that never received a token cannot be attacked through
	// cookie-based auth, so a cookie-less request has nothing to validate.
	if len(r.Cookies()) == 0 {
		return Decision{Outcome: Accepted}
	}

	cookie, err := r.Cookie(v.opts.CookieName)
	if err != nil {
		return reject(ReasonNoCSRFCookie)
	}

	cookiePayload, rotate, d := v.decodeCookie(cookie.Value)
	if d.Outcome == Rejected {
		return d
	}

	submitted := r.Header.Get(v.opts.Header)
	if submitted == "" {
		return reject(ReasonBadToken)
	}

	// Referer pinning applies only to state-changing requests on secure
	// transports (the classic double-submit defense augmented with
	// same-origin referer checking).
	if isSecure(r) {
		if d := v.checkReferer(r); d.Outcome == Rejected {
			return d
		}
	}

	submittedPayload, d := v.decodeSubmitted(submitted)
	if d.Outcome == Rejected {
		return d
	}

	if subtle.ConstantTimeCompare([]byte(cookiePayload), []byte(submittedPayload)) != 1 {
		return reject(ReasonBadToken)
	}

	if rotate {
		return Decision{Outcome: AcceptedWithRotation}
	}
	return Decision{Outcome: Accepted}
}

// decodeCookie verifies the cookie-side token. An expired token inside the
// grace window stays usable for this request but schedules rotation.
func (v *Validator) decodeCookie(encoded string) (payload string, rotate bool, d Decision) {
	claims, err := v.codec.Verify(encoded)
	if err == nil {
		return claims.Payload, false, Decision{Outcome: Accepted}
	}

	var expired *token.ExpiredError
	if errors.As(err, &expired) {
		if v.now().UTC().Sub(expired.IssuedAt) <= v.opts.GracePeriod {
			return expired.Payload, true, Decision{Outcome: Accepted}
		}
		return "", false, reject(ReasonTokenExpired)
	}

	return "", false, reject(ReasonBadToken)
}

// decodeSubmitted verifies the header-side token. Expiry yields the payload
// for comparison but never extends the grace window: only the cookie side
// drives rotation.
func (v *Validator) decodeSubmitted(encoded string) (payload string, d Decision) {
	claims, err := v.codec.Verify(encoded)
	if err == nil {
		return claims.Payload, Decision{Outcome: Accepted}
	}

	var expired *token.ExpiredError
	if errors.As(err, &expired) {
		return expired.Payload, Decision{Outcome: Accepted}
	}

	return "", reject(ReasonBadToken)
}

func (v *Validator) checkReferer(r *http.Request) Decision {
	referer := r.Referer()
	if referer == "" {
		return reject(ReasonNoReferer)
	}

	u, err := url.Parse(referer)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return reject(ReasonMalformedReferer)
	}

	if u.Scheme != "https" && v.opts.ForceSecureReferer {
		return reject(ReasonInsecureReferer)
	}

	for _, host := range v.opts.AllowedHosts {
		if host == u.Hostname() {
			return Decision{Outcome: Accepted}
		}
	}
	return reject(ReasonBadReferer)
}

func reject(reason Reason) Decision {
	return Decision{Outcome: Rejected, Reason: reason}
}
