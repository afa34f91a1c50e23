package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/faat/cue/internal/keystore"
	"github.com/faat/cue/internal/validate"
)

// KeyView is the web-surface view of an API key record: everything a
// collaborator UI needs to list and revoke keys, without exposing the hash.
type KeyView struct {
	ID        string
	Name      string
	Pattern   *string
	CreatedAt time.Time
}

type authRequest struct {
	Name    string  `json:"name"`
	Pattern *string `json:"pattern"`
}

type authResponse struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// handleIndex implements GET /: the unauthenticated core homepage. It
// exists purely as a liveness/identification probe for machine clients -
// the signed-in collaborator experience lives under internal/web.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: "cue"})
}

// handleAuth implements POST /auth: the first step of the key provisioning
// handshake. Unauthenticated - anyone may start a request, but the request
// is useless until a signed-in user redeems it.
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if ok, diag := validate.KeyName(req.Name); !ok {
		writeError(w, http.StatusBadRequest, diag)
		return
	}
	if req.Pattern != nil {
		if ok, diag := validate.CuePattern(*req.Pattern); !ok {
			writeError(w, http.StatusBadRequest, diag)
			return
		}
	}

	requestID, rawKey, err := s.store.StartKeyRequest(r.Context(), req.Name, req.Pattern)
	if err != nil {
		log.Error().Err(err).Msg("api: start key request failed")
		writeError(w, http.StatusInternalServerError, "store error")
		if s.met != nil {
			s.met.KeyStoreErrors.Inc()
		}
		return
	}

	writeJSON(w, http.StatusOK, authResponse{ID: requestID, Key: rawKey})
}

// handleHello implements GET /hello: the CLI polls this with its
// provisional key until a browser session redeems the matching request.
func (s *Server) handleHello(w http.ResponseWriter, r *http.Request) {
	res, ok := s.auth.Authenticate(r.Context(), r)
	if !ok {
		recordAuthFailure(s.met)
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "hello, " + res.UID})
}

// FindKeyRequest exposes the pending key-request lookup for the web
// collaborator surface's confirmation page.
func (s *Server) FindKeyRequest(r *http.Request, requestID string) (keyID, name string, pattern *string, err error) {
	kr, err := s.store.FindKeyRequest(r.Context(), requestID)
	if errors.Is(err, keystore.ErrNotFound) {
		return "", "", nil, err
	}
	if err != nil {
		return "", "", nil, err
	}
	return kr.KeyID, kr.Name, kr.Pattern, nil
}

// RedeemKeyRequest exposes the redeem operation for the web collaborator
// surface's accept handler.
func (s *Server) RedeemKeyRequest(r *http.Request, requestID, uid, name string) error {
	return s.store.RedeemKeyRequest(r.Context(), requestID, uid, name)
}

// UserAPIKeys exposes the key-listing operation for the web collaborator
// surface's home page.
func (s *Server) UserAPIKeys(r *http.Request, uid string) ([]*KeyView, error) {
	keys, err := s.store.FindUserAPIKeys(r.Context(), uid)
	if err != nil {
		return nil, err
	}
	out := make([]*KeyView, 0, len(keys))
	for _, k := range keys {
		out = append(out, &KeyView{ID: k.ID, Name: k.Name, Pattern: k.Pattern, CreatedAt: k.CreatedAt})
	}
	return out, nil
}

// RemoveKey exposes the revocation operation for the web collaborator
// surface.
func (s *Server) RemoveKey(r *http.Request, keyID string) error {
	return s.store.RemoveKey(r.Context(), keyID)
}
