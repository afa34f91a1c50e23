// Package web implements the collaborator web UI that lets a signed-in
// user approve pending key requests and manage their own API keys. It is
// a thin layer over internal/api's Key Store operations: no business
// logic beyond CSRF checking and session bookkeeping lives here.
package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/faat/cue/internal/api"
	"github.com/faat/cue/internal/config"
	"github.com/faat/cue/internal/csrf"
	"github.com/faat/cue/internal/keystore"
	"github.com/faat/cue/internal/validate"
	"github.com/faat/cue/internal/websession"
)

// Server holds the dependencies the web handlers need.
type Server struct {
	cfg      *config.Config
	api      *api.Server
	sessions *websession.Manager
	authn    websession.Authenticator
}

// New creates a web Server. sessions issues and verifies the session
// cookie; visitors are signed in through websession.DevUser, and New takes
// no other websession.Authenticator, so no OIDC sign-in is wired here.
func New(cfg *config.Config, apiServer *api.Server, sessions *websession.Manager) *Server {
	return &Server{cfg: cfg, api: apiServer, sessions: sessions, authn: websession.DevUser{}}
}

// Routes registers every web handler on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /login", s.handleIndex)
	mux.HandleFunc("GET /home", s.requireAuth(s.handleHome))
	mux.HandleFunc("POST /home/cue", s.requireAuth(s.handlePostCue))
	mux.HandleFunc("GET /keyrequest/{key}", s.requireAuth(s.handleKeyRequest))
	mux.HandleFunc("POST /keyrequest/{key}/accept", s.requireAuth(s.handleKeyRequestAccept))
	mux.HandleFunc("GET /key-removal/{key}", s.requireAuth(s.handleKeyRemoval))
	mux.HandleFunc("POST /key-removal/{key}", s.requireAuth(s.handleKeyRemovalPost))
}

type sessionKey struct{}

func sessionFrom(ctx context.Context) *websession.Session {
	sess, _ := ctx.Value(sessionKey{}).(*websession.Session)
	return sess
}

// requireAuth resolves or creates the caller's session, authenticates
// them via s.authn if not already signed in, and stashes the session on
// the request context for the wrapped handler.
func (s *Server) requireAuth(next func(w http.ResponseWriter, r *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Get(r)
		if err != nil {
			sess, err = s.sessions.Start()
			if err != nil {
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
		}

		if sess.UID == "" {
			uid, ok := s.authn.Authenticate(r)
			if !ok {
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}
			sess.UID = uid
		}

		if err := s.sessions.Save(w, sess); err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey{}, sess)
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) checkCSRF(w http.ResponseWriter, r *http.Request, sess *websession.Session, redirectTo string) bool {
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, redirectTo, http.StatusSeeOther)
		return false
	}
	if !csrf.Valid(sess.CSRF, r.PostForm.Get("csrf")) {
		sess.Flash = "Failed. Please try again."
		_ = s.sessions.Save(w, sess)
		http.Redirect(w, r, redirectTo, http.StatusSeeOther)
		return false
	}
	return true
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if sess, err := s.sessions.Get(r); err == nil && sess.UID != "" {
		http.Redirect(w, r, "/home", http.StatusSeeOther)
		return
	}
	render(w, indexTemplate, struct{ Flash string }{})
}

type homeKeyView struct {
	ID      string
	Name    string
	Pattern *string
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	keys, err := s.api.UserAPIKeys(r, sess.UID)
	if err != nil {
		log.Error().Err(err).Msg("web: list api keys failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	views := make([]homeKeyView, 0, len(keys))
	for _, k := range keys {
		views = append(views, homeKeyView{ID: k.ID, Name: k.Name, Pattern: k.Pattern})
	}

	render(w, homeTemplate, struct {
		Flash string
		CSRF  string
		Keys  []homeKeyView
	}{Flash: sess.TakeFlash(), CSRF: sess.CSRF, Keys: views})
}

func (s *Server) handlePostCue(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	if !s.checkCSRF(w, r, sess, "/home") {
		return
	}
	name := r.PostForm.Get("name")
	if err := s.api.PublishAsUser(r, sess.UID, name); err != nil {
		sess.Flash = "Could not post cue: " + err.Error()
		_ = s.sessions.Save(w, sess)
	}
	http.Redirect(w, r, "/home", http.StatusSeeOther)
}

func (s *Server) handleKeyRequest(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("key")
	_, name, _, err := s.api.FindKeyRequest(r, requestID)
	if errors.Is(err, keystore.ErrNotFound) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("web: find key request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	sess := sessionFrom(r.Context())
	render(w, keyRequestTemplate, struct {
		RequestID string
		Name      string
		CSRF      string
	}{RequestID: requestID, Name: name, CSRF: sess.CSRF})
}

func (s *Server) handleKeyRequestAccept(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	if !s.checkCSRF(w, r, sess, "/login") {
		return
	}
	requestID := r.PathValue("key")
	name := r.PostForm.Get("name")

	if err := s.api.RedeemKeyRequest(r, requestID, sess.UID, name); err != nil {
		log.Info().Err(err).Str("request_id", requestID).Msg("web: redeem key request failed")
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) handleKeyRemoval(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	keyID := r.PathValue("key")

	keys, err := s.api.UserAPIKeys(r, sess.UID)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	var name string
	found := false
	for _, k := range keys {
		if k.ID == keyID {
			name = k.Name
			found = true
			break
		}
	}
	if !found {
		sess.Flash = "Key not found"
		_ = s.sessions.Save(w, sess)
		http.Redirect(w, r, "/home", http.StatusSeeOther)
		return
	}

	render(w, keyRemovalTemplate, struct {
		KeyID string
		Name  string
		CSRF  string
	}{KeyID: keyID, Name: name, CSRF: sess.CSRF})
}

func (s *Server) handleKeyRemovalPost(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	if !s.checkCSRF(w, r, sess, "/home") {
		return
	}
	keyID := r.PathValue("key")
	if ok, _ := validate.KeyID(keyID); !ok {
		http.Redirect(w, r, "/home", http.StatusSeeOther)
		return
	}
	if err := s.api.RemoveKey(r, keyID); err != nil {
		log.Error().Err(err).Msg("web: remove key failed")
	}
	http.Redirect(w, r, "/home", http.StatusSeeOther)
}
