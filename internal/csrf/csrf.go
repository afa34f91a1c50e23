// Package csrf implements the collaborator web surface's CSRF protection:
// a random per-session token stashed alongside the session and compared
// against the value submitted with every state-changing form post. This
// mirrors the source's session-stashed-token design (see web.py/csrf.py)
// rather than a double-submit cookie, since the token already travels
// inside the signed session value.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
)

// New mints a fresh, URL-safe token with at least 128 bits of entropy.
func New() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Valid reports whether submitted matches expected using a constant-time
// comparison, so a form post can't be used to time-probe the token.
func Valid(expected, submitted string) bool {
	if expected == "" || submitted == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(submitted)) == 1
}
