// Package token produces and verifies signed, time-bounded opaque tokens.
//
// A token carries a random payload, its issue time and its lifetime, covered
// by a keyed MAC derived from a server secret and a salt. Any mutation of the
// encoded form invalidates the signature. Expiry is not terminal by itself:
// Verify reports it separately so callers can apply a grace-period policy.
package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// ErrBadSignature indicates the token was tampered with or signed with a
// different secret/salt. Fatal for the token: the caller must reject it.
var ErrBadSignature = errors.New("token: bad signature")

// ExpiredError indicates a correctly signed token past its lifetime. The
// caller decides whether the grace period still admits it.
type ExpiredError struct {
	// Payload is the decoded random payload.
	Payload string

	// IssuedAt is when the token was issued (UTC).
	IssuedAt time.Time
}

// Error implements the error interface.
func (e *ExpiredError) Error() string {
	return fmt.Sprintf("token: expired (issued %s)", e.IssuedAt.Format(time.RFC3339))
}

// Claims is the decoded content of a valid token.
type Claims struct {
	// Payload is the random payload the token was issued with.
	Payload string

	// IssuedAt is when the token was issued (UTC).
	IssuedAt time.Time
}

// claims is the signed wire form.
type claims struct {
	Payload   string `json:"p"`
	IssuedAt  int64  `json:"iat"`
	ExpiresIn int64  `json:"exp"`
}

// Codec signs and verifies tokens with an HMAC-SHA256 keyed by a server
// secret and a salt. A Codec is immutable and safe for concurrent use.
type Codec struct {
	key []byte

	// now is the clock; replaced in tests.
	now func() time.Time
}

// New creates a Codec from the server secret and salt. The secret is
// mandatory; the salt namespaces signatures so tokens issued for different
// purposes do not verify across uses.
func New(secret, salt string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("token: secret must not be empty")
	}

	// Derive the MAC key from secret+salt so neither is used raw.
	kdf := hmac.New(sha256.New, []byte(secret))
	kdf.Write([]byte(salt))

	return &Codec{
		key: kdf.Sum(nil),
		now: time.Now,
	}, nil
}

// Issue draws length characters uniformly from alphabet using a CSPRNG and
// returns the encoded signed token.
func (c *Codec) Issue(length int, alphabet string, expiresIn time.Duration) (string, error) {
	if length <= 0 {
		return "", errors.New("token: length must be positive")
	}
	if alphabet == "" {
		return "", errors.New("token: alphabet must not be empty")
	}

	payload, err := randomString(length, alphabet)
	if err != nil {
		return "", fmt.Errorf("token: draw payload: %w", err)
	}

	body, err := json.Marshal(claims{
		Payload:   payload,
		IssuedAt:  c.now().UTC().Unix(),
		ExpiresIn: int64(expiresIn / time.Second),
	})
	if err != nil {
		return "", fmt.Errorf("token: encode claims: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(body)
	return encoded + "." + base64.RawURLEncoding.EncodeToString(c.sign(encoded)), nil
}

// Verify decodes an encoded token and checks its signature and lifetime.
// It returns ErrBadSignature on any tampering, an *ExpiredError when the
// signature is valid but the lifetime has elapsed, and the Claims otherwise.
// Expiry is computed in UTC.
func (c *Codec) Verify(encoded string) (Claims, error) {
	body, sig, ok := strings.Cut(encoded, ".")
	if !ok {
		return Claims{}, ErrBadSignature
	}

	// Strict decoding rejects non-zero trailing padding bits, so every
	// encoded signature has exactly one accepted spelling.
	gotSig, err := base64.RawURLEncoding.Strict().DecodeString(sig)
	if err != nil {
		return Claims{}, ErrBadSignature
	}
	if !hmac.Equal(gotSig, c.sign(body)) {
		return Claims{}, ErrBadSignature
	}

	raw, err := base64.RawURLEncoding.Strict().DecodeString(body)
	if err != nil {
		return Claims{}, ErrBadSignature
	}

	var cl claims
	if err := json.Unmarshal(raw, &cl); err != nil {
		return Claims{}, ErrBadSignature
	}

	issuedAt := time.Unix(cl.IssuedAt, 0).UTC()
	if c.now().UTC().After(issuedAt.Add(time.Duration(cl.ExpiresIn) * time.Second)) {
		return Claims{}, &ExpiredError{Payload: cl.Payload, IssuedAt: issuedAt}
	}

	return Claims{Payload: cl.Payload, IssuedAt: issuedAt}, nil
}

func (c *Codec) sign(body string) []byte {
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(body))
	return mac.Sum(nil)
}

// randomString draws length characters uniformly from alphabet.
func randomString(length int, alphabet string) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}
