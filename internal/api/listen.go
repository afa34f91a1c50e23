package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/faat/cue/internal/registry"
	"github.com/faat/cue/internal/validate"
)

// policyViolationCloseCode is used to close a listen stream that failed
// authentication after the websocket handshake already completed.
const policyViolationCloseCode = websocket.ClosePolicyViolation

const maxListenPatterns = 128

// pongWait/pingPeriod provide the idle-keepalive the spec leaves to
// whichever transport is used; gorilla/websocket exposes ping/pong frames
// for exactly this purpose.
const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// wsWriter adapts one websocket connection to registry.Writer. Writes are
// serialized with a mutex since gorilla/websocket connections are not safe
// for concurrent writers, and the dispatcher may call Write concurrently
// with a ping tick from the read loop's keepalive goroutine.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

type wireDelivery struct {
	ID      string   `json:"id"`
	Names   []string `json:"names"`
	Content *string  `json:"content"`
}

func (w *wsWriter) Write(id string, names []string, content *string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(wireDelivery{ID: id, Names: names, Content: content})
}

func (w *wsWriter) writePing() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
}

// handleListen implements the Listen Endpoint: authenticate, validate the
// requested patterns, upgrade to a websocket stream, register in the
// Listener Registry, then block in a passive read loop until the peer
// disconnects or the server shuts down.
func (s *Server) handleListen(w http.ResponseWriter, r *http.Request) {
	rawPatterns := r.URL.Query()["name"]

	patterns, diag := dedupePatterns(rawPatterns)
	if diag != "" {
		writeError(w, http.StatusBadRequest, diag)
		return
	}
	if len(patterns) == 0 {
		writeError(w, http.StatusBadRequest, "at least one pattern is required")
		return
	}

	maxPatterns := maxListenPatterns
	if s.cfg != nil && s.cfg.MaxListenPatterns > 0 {
		maxPatterns = s.cfg.MaxListenPatterns
	}
	if len(patterns) > maxPatterns {
		writeError(w, http.StatusBadRequest, "too many patterns")
		return
	}

	// Authenticated after pattern validation but before upgrading: a
	// plain 400 is cheaper than a handshake for malformed requests, but
	// once the socket is live, an auth failure is reported as a
	// policy-violation close rather than an HTTP status, since no status
	// line can be sent once the connection has switched protocols.
	res, ok := s.auth.Authenticate(r.Context(), r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("api: websocket upgrade failed")
		return
	}
	defer conn.Close()

	if !ok {
		recordAuthFailure(s.met)
		closeMsg := websocket.FormatCloseMessage(policyViolationCloseCode, "unauthorized")
		_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(5*time.Second))
		return
	}

	writer := &wsWriter{conn: conn}
	sessionID := uuid.NewString()
	sess := &registry.Session{
		ID:         sessionID,
		UID:        res.UID,
		Patterns:   patterns,
		KeyPattern: res.Pattern,
		Writer:     writer,
	}
	s.reg.Add(sess)
	if s.met != nil {
		s.met.ListenersActive.Inc()
	}
	defer func() {
		s.reg.Remove(res.UID, sessionID)
		if s.met != nil {
			s.met.ListenersActive.Dec()
		}
	}()

	runKeepalive(conn, writer)
	readLoop(conn, res.UID, sessionID)
}

// readLoop consumes and discards inbound frames solely to detect
// disconnect; the Listen Endpoint never originates messages itself.
func readLoop(conn *websocket.Conn, uid, sessionID string) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.Debug().Err(err).Str("uid", uid).Str("session", sessionID).
				Msg("api: listen session disconnected")
			return
		}
	}
}

// runKeepalive starts a background ping ticker for the lifetime of the
// caller's enclosing readLoop; it stops itself once writes start failing,
// which happens once the connection is gone.
func runKeepalive(conn *websocket.Conn, writer *wsWriter) {
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for range ticker.C {
			if err := writer.writePing(); err != nil {
				return
			}
		}
	}()
}

func dedupePatterns(raw []string) ([]string, string) {
	seen := make(map[string]struct{}, len(raw))
	var patterns []string
	for _, p := range raw {
		if ok, diag := validate.CuePattern(p); !ok {
			return nil, diag
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		patterns = append(patterns, p)
	}
	return patterns, ""
}
