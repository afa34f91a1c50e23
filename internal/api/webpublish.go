package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/faat/cue/internal/cue"
	"github.com/faat/cue/internal/validate"
)

// PublishAsUser publishes a single cue on behalf of an already
// web-session-authenticated uid, bypassing API-key authentication
// entirely - this is the path the web collaborator surface's manual
// "post a cue" form uses, reusing the same Event Bus publish the
// Publish Endpoint uses rather than re-implementing it. Unlike the
// Publish Endpoint, there is no producer-key pattern to enforce: a
// signed-in user acting through the UI is trusted for their own uid.
func (s *Server) PublishAsUser(r *http.Request, uid, name string) error {
	if ok, diag := validate.CueName(name); !ok {
		return &validationError{diag: diag}
	}
	env := &cue.Envelope{
		ID:    uuid.NewString(),
		UID:   uid,
		Names: []string{name},
	}
	return s.bus.Publish(r.Context(), env)
}

type validationError struct{ diag string }

func (e *validationError) Error() string { return e.diag }
