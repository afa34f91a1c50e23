package api

import (
	"encoding/base64"
	"io"
	"net/http"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/faat/cue/internal/cue"
	"github.com/faat/cue/internal/glob"
	"github.com/faat/cue/internal/validate"
)

// maxCueBody is the default publish body cap; Server.cfg.MaxCueBodyBytes
// overrides it when set.
const maxCueBody = 512 * 1024

// handlePublish implements POST /cues?name=<n1>&name=<n2>...
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	names := r.URL.Query()["name"]
	s.publish(w, r, names)
}

// handlePublishByID implements POST /cues/{id}, a convenience
// path-parametrized publish equivalent to ?name={id}.
func (s *Server) handlePublishByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.publish(w, r, []string{id})
}

func (s *Server) publish(w http.ResponseWriter, r *http.Request, rawNames []string) {
	res, ok := s.auth.Authenticate(r.Context(), r)
	if !ok {
		recordAuthFailure(s.met)
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	names, err := dedupeAndValidate(rawNames)
	if err != "" {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(names) == 0 {
		writeError(w, http.StatusBadRequest, "at least one name is required")
		return
	}

	var denied []string
	for _, n := range names {
		if !res.MatchesOwnPattern(n, glob.Match) {
			denied = append(denied, n)
		}
	}
	if len(denied) > 0 {
		if s.met != nil {
			s.met.PublishDenied.WithLabelValues("pattern").Inc()
		}
		writeError(w, http.StatusUnauthorized, "key pattern forbids: "+joinNames(denied))
		return
	}

	limit := int64(maxCueBody)
	if s.cfg != nil && s.cfg.MaxCueBodyBytes > 0 {
		limit = s.cfg.MaxCueBodyBytes
	}
	body, err2 := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err2 != nil {
		writeError(w, http.StatusBadRequest, "could not read body")
		return
	}
	if int64(len(body)) > limit {
		writeError(w, http.StatusBadRequest, "body too large")
		return
	}

	var content *string
	if len(body) > 0 {
		enc := base64.StdEncoding.EncodeToString(body)
		content = &enc
	}

	env := &cue.Envelope{
		ID:      uuid.NewString(),
		UID:     res.UID,
		Names:   names,
		Content: content,
	}
	if err := s.bus.Publish(r.Context(), env); err != nil {
		log.Error().Err(err).Msg("api: publish to event bus failed")
		if s.met != nil {
			s.met.CuesPublished.WithLabelValues("error").Inc()
		}
		writeError(w, http.StatusInternalServerError, "publish failed")
		return
	}
	if s.met != nil {
		s.met.CuesPublished.WithLabelValues("accepted").Inc()
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Posted"})
}

// dedupeAndValidate validates each raw name as a cue name, deduplicates
// into a sorted set, and returns the first diagnostic encountered, if any.
func dedupeAndValidate(raw []string) ([]string, string) {
	seen := make(map[string]struct{}, len(raw))
	var names []string
	for _, n := range raw {
		if ok, diag := validate.CueName(n); !ok {
			return nil, diag
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		names = append(names, n)
	}
	sort.Strings(names)
	return names, ""
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}
