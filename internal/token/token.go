// ABOUTME: Webhook token derivation and verification for callback authentication
// ABOUTME: Encodes the request ID with a shared secret, truncated to a fixed length

package token

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
)

// MaxLength is the fixed maximum token length. Derived tokens longer than
// this are truncated; shorter inputs yield shorter tokens (no padding).
const MaxLength = 32

// separator joins the request ID and secret before encoding.
const separator = ":"

// ErrNoSecret indicates a codec was asked to issue or verify a token
// without a configured secret. This is a deployment misconfiguration,
// not a request error.
var ErrNoSecret = errors.New("webhook secret is not configured")

// Codec issues and verifies webhook tokens derived from a shared secret.
// A disabled codec (no secret) skips verification entirely; callers must
// treat that mode as insecure and say so at startup.
type Codec struct {
	secret   string
	disabled bool
}

// New creates a Codec using the given shared secret.
func New(secret string) *Codec {
	return &Codec{secret: secret}
}

// Disabled creates a Codec that issues empty tokens and accepts any
// candidate. Used when the deployment runs without a webhook secret.
func Disabled() *Codec {
	return &Codec{disabled: true}
}

// Enabled reports whether this codec actually authenticates callbacks.
func (c *Codec) Enabled() bool {
	return !c.disabled
}

// Issue derives the token for a request ID. The derivation is a pure
// function of (requestID, secret): base64url of "id:secret", capped at
// MaxLength characters.
func (c *Codec) Issue(requestID string) (string, error) {
	if c.disabled {
		return "", nil
	}
	if c.secret == "" {
		return "", ErrNoSecret
	}

	encoded := base64.RawURLEncoding.EncodeToString([]byte(requestID + separator + c.secret))
	if len(encoded) > MaxLength {
		encoded = encoded[:MaxLength]
	}
	return encoded, nil
}

// Verify recomputes the expected token for requestID and compares it
// against candidate in constant time. A disabled codec accepts anything.
func (c *Codec) Verify(requestID, candidate string) (bool, error) {
	if c.disabled {
		return true, nil
	}

	expected, err := c.Issue(requestID)
	if err != nil {
		return false, err
	}

	return subtle.ConstantTimeCompare([]byte(expected), []byte(candidate)) == 1, nil
}
