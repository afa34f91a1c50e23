// Package authn implements the Authenticator: it turns the Authorization
// header of an inbound HTTP request into the identity (uid) and optional
// producer-side pattern restriction carried by the API key presented, by
// looking the key up in the Key Store. It never accepts a key without
// looking it up - there is no local fallback cache of raw keys, since the
// Key Store only ever stores a key's hash.
package authn

import (
	"context"
	"net/http"
	"strings"

	"github.com/faat/cue/internal/cue"
	"github.com/faat/cue/internal/keystore"
	"github.com/faat/cue/internal/validate"
)

// Result is what a successful authentication establishes about the caller.
type Result struct {
	UID     string
	KeyID   string
	Pattern *string
}

// Authenticator validates bearer credentials against the Key Store.
type Authenticator struct {
	store *keystore.Store
}

// New creates an Authenticator backed by store.
func New(store *keystore.Store) *Authenticator {
	return &Authenticator{store: store}
}

// Authenticate extracts a credential from r's Authorization header and
// resolves it to a Result. It accepts both "Bearer <key>" and
// "ApiKey <key>" schemes, case-insensitively, since the two collaborator
// surfaces in the wild (CLI clients and early browser scripts) settled on
// different conventions.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (*Result, bool) {
	raw, ok := extractCredential(r)
	if !ok {
		return nil, false
	}
	return a.AuthenticateKey(ctx, raw)
}

// AuthenticateKey resolves a raw key string directly. Authenticate calls it
// once the credential is extracted from the header; it also serves callers
// that already have the credential in hand.
func (a *Authenticator) AuthenticateKey(ctx context.Context, raw string) (*Result, bool) {
	if ok, _ := validate.Key(raw); !ok {
		return nil, false
	}
	key, err := a.store.GetKey(ctx, raw)
	if err != nil {
		return nil, false
	}
	return &Result{UID: key.UID, KeyID: key.ID, Pattern: key.Pattern}, true
}

func extractCredential(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	scheme := strings.ToLower(parts[0])
	if scheme != "bearer" && scheme != "apikey" {
		return "", false
	}
	cred := strings.TrimSpace(parts[1])
	if cred == "" {
		return "", false
	}
	return cred, true
}

// MatchesOwnPattern reports whether a cue name is permitted under the
// producer key's own pattern restriction, if any. A key without a pattern
// restriction may publish any name.
func (res *Result) MatchesOwnPattern(name string, matcher func(name, pattern string) bool) bool {
	return cue.PatternAllows(res.Pattern, name, matcher)
}
