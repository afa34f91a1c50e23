// Package websession implements the signed-cookie session the
// collaborator web surface uses to remember a signed-in uid and its CSRF
// token between requests. No session-cookie library appears anywhere in
// the retrieved reference set, so the cookie value is a small
// HMAC-SHA256-signed blob built directly on crypto/hmac and net/http,
// following the same "sign, don't encrypt" trust model as the upstream
// session middleware it replaces.
package websession

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/faat/cue/internal/config"
	"github.com/faat/cue/internal/csrf"
)

const cookieName = "cue_session"

// Authenticator resolves the signed-in uid for an inbound web request. A
// real deployment backs this with OIDC (out of scope here per spec.md
// §1); DevUser is provided for local development and tests.
type Authenticator interface {
	Authenticate(r *http.Request) (uid string, ok bool)
}

// DevUser is a stub Authenticator: it treats every request as signed in,
// as the fixed uid unless the request supplies one via the dev_uid query
// parameter. It must never be wired in a production deployment.
type DevUser struct {
	DefaultUID string
}

// Authenticate always succeeds, per DevUser's contract.
func (d DevUser) Authenticate(r *http.Request) (string, bool) {
	if uid := r.URL.Query().Get("dev_uid"); uid != "" {
		return uid, true
	}
	if d.DefaultUID != "" {
		return d.DefaultUID, true
	}
	return "dev-user", true
}

// ErrNoSession is returned when a request carries no valid session cookie.
var ErrNoSession = errors.New("websession: no session")

// Session is the per-browser state the web surface keeps: the signed-in
// user and the CSRF token minted for their session.
type Session struct {
	UID   string `json:"uid"`
	CSRF  string `json:"csrf"`
	Flash string `json:"flash,omitempty"`
}

// TakeFlash returns and clears the pending flash message, if any - a
// one-time notice shown after the next redirect, mirroring the source's
// request.session["flash"] pattern.
func (s *Session) TakeFlash() string {
	f := s.Flash
	s.Flash = ""
	return f
}

// Manager issues and validates session cookies.
type Manager struct {
	secret []byte
	https  bool
}

// New creates a Manager from server configuration. In Debug mode an empty
// SessionSecret is tolerated by deriving a fixed development-only key, so
// local runs don't require a secret to be set; config.Validate already
// refuses to start outside Debug with no secret.
func New(cfg *config.Config) *Manager {
	secret := cfg.SessionSecret
	if secret == "" {
		secret = "cue-development-only-secret"
	}
	return &Manager{secret: []byte(secret), https: cfg.SessionHTTPS}
}

// Get reads and verifies the session cookie on r, minting a fresh CSRF
// token if none is present yet - mirroring the source's
// get-or-create-csrf-on-every-request behavior.
func (m *Manager) Get(r *http.Request) (*Session, error) {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return nil, ErrNoSession
	}
	sess, err := m.decode(c.Value)
	if err != nil {
		return nil, ErrNoSession
	}
	if sess.CSRF == "" {
		token, err := csrf.New()
		if err != nil {
			return nil, err
		}
		sess.CSRF = token
	}
	return sess, nil
}

// Start creates a brand new, signed-out session carrying only a fresh
// CSRF token, for a visitor with no existing cookie.
func (m *Manager) Start() (*Session, error) {
	token, err := csrf.New()
	if err != nil {
		return nil, err
	}
	return &Session{CSRF: token}, nil
}

// Save writes sess back to the client as a signed cookie.
func (m *Manager) Save(w http.ResponseWriter, sess *Session) error {
	value, err := m.encode(sess)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.https,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(30 * 24 * time.Hour),
	})
	return nil
}

// Clear signs the caller out by expiring the session cookie.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   m.https,
		MaxAge:   -1,
	})
}

func (m *Manager) encode(sess *Session) (string, error) {
	body, err := json.Marshal(sess)
	if err != nil {
		return "", err
	}
	encodedBody := base64.RawURLEncoding.EncodeToString(body)
	mac := m.sign(encodedBody)
	return encodedBody + "." + mac, nil
}

func (m *Manager) decode(value string) (*Session, error) {
	parts := strings.SplitN(value, ".", 2)
	if len(parts) != 2 {
		return nil, errors.New("websession: malformed cookie")
	}
	encodedBody, mac := parts[0], parts[1]
	if !hmac.Equal([]byte(mac), []byte(m.sign(encodedBody))) {
		return nil, errors.New("websession: invalid signature")
	}
	body, err := base64.RawURLEncoding.DecodeString(encodedBody)
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(body, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (m *Manager) sign(encodedBody string) string {
	h := hmac.New(sha256.New, m.secret)
	h.Write([]byte(encodedBody))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
