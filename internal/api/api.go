// Package api wires the cue HTTP and websocket surface: the Publish
// Endpoint, the Listen Endpoint, and the Key Provisioning endpoints.
package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/faat/cue/internal/authn"
	"github.com/faat/cue/internal/config"
	"github.com/faat/cue/internal/eventbus"
	"github.com/faat/cue/internal/keystore"
	"github.com/faat/cue/internal/metrics"
	"github.com/faat/cue/internal/registry"
)

// Server holds every dependency an HTTP handler needs to serve the cue API.
type Server struct {
	cfg      *config.Config
	store    *keystore.Store
	auth     *authn.Authenticator
	bus      *eventbus.Bus
	reg      *registry.Registry
	met      *metrics.Metrics
	upgrader websocket.Upgrader
}

// New creates a Server.
func New(cfg *config.Config, store *keystore.Store, auth *authn.Authenticator, bus *eventbus.Bus, reg *registry.Registry, met *metrics.Metrics) *Server {
	return &Server{
		cfg:   cfg,
		store: store,
		auth:  auth,
		bus:   bus,
		reg:   reg,
		met:   met,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Routes registers every API handler on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /auth", s.handleAuth)
	mux.HandleFunc("GET /hello", s.handleHello)
	mux.HandleFunc("POST /cues", s.handlePublish)
	mux.HandleFunc("POST /cues/{id}", s.handlePublishByID)
	mux.HandleFunc("GET /listen", s.handleListen)
	if s.met != nil {
		mux.Handle("GET /metrics", metrics.Handler())
	}
}
