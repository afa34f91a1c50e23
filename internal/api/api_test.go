package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/faat/cue/internal/authn"
	"github.com/faat/cue/internal/config"
	"github.com/faat/cue/internal/eventbus"
	"github.com/faat/cue/internal/keystore"
	"github.com/faat/cue/internal/registry"
)

func newTestServer(t *testing.T) (*Server, *keystore.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store := keystore.New(rdb, 5*time.Minute)
	bus := eventbus.New(rdb)
	reg := registry.New()
	auth := authn.New(store)
	cfg := &config.Config{MaxCueBodyBytes: 512 * 1024, MaxListenPatterns: 128}

	return New(cfg, store, auth, bus, reg, nil), store
}

func provisionRawKey(t *testing.T, store *keystore.Store, uid, name string, pattern *string) string {
	t.Helper()
	reqID, rawKey, err := store.StartKeyRequest(context.Background(), name, pattern)
	require.NoError(t, err)
	require.NoError(t, store.RedeemKeyRequest(context.Background(), reqID, uid, name))
	return rawKey
}

func TestHandleIndex(t *testing.T) {
	s, _ := newTestServer(t)
	mux := http.NewServeMux()
	s.Routes(mux)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp messageResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "cue", resp.Message)
}

func TestKeyHandshake_AuthThenHello(t *testing.T) {
	s, store := newTestServer(t)
	mux := http.NewServeMux()
	s.Routes(mux)

	authBody, _ := json.Marshal(authRequest{Name: "laptop"})
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth", bytes.NewReader(authBody)))
	require.Equal(t, http.StatusOK, rr.Code)

	var auth authResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &auth))
	require.NotEmpty(t, auth.ID)
	require.NotEmpty(t, auth.Key)

	// Before redemption, /hello rejects the provisional key.
	helloReq := httptest.NewRequest(http.MethodGet, "/hello", nil)
	helloReq.Header.Set("Authorization", "Bearer "+auth.Key)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, helloReq)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	// Redeem, as the browser-authenticated accept handler would.
	require.NoError(t, store.RedeemKeyRequest(context.Background(), auth.ID, "user-1", "laptop"))

	// A second redemption must fail.
	require.ErrorIs(t, store.RedeemKeyRequest(context.Background(), auth.ID, "user-1", "laptop"), keystore.ErrNotFound)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, helloReq)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestHandlePublish_Unauthenticated(t *testing.T) {
	s, _ := newTestServer(t)
	mux := http.NewServeMux()
	s.Routes(mux)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/cues?name=deploy", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandlePublish_Success(t *testing.T) {
	s, store := newTestServer(t)
	mux := http.NewServeMux()
	s.Routes(mux)

	rawKey := provisionRawKey(t, store, "user-1", "laptop", nil)

	req := httptest.NewRequest(http.MethodPost, "/cues?name=deploy", strings.NewReader("hi"))
	req.Header.Set("Authorization", "Bearer "+rawKey)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp messageResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "Posted", resp.Message)
}

func TestHandlePublish_EmptyNamesRejected(t *testing.T) {
	s, store := newTestServer(t)
	mux := http.NewServeMux()
	s.Routes(mux)

	rawKey := provisionRawKey(t, store, "user-1", "laptop", nil)
	req := httptest.NewRequest(http.MethodPost, "/cues", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlePublish_ProducerPatternDenied(t *testing.T) {
	s, store := newTestServer(t)
	mux := http.NewServeMux()
	s.Routes(mux)

	pattern := "test.*"
	rawKey := provisionRawKey(t, store, "user-1", "ci-bot", &pattern)

	req := httptest.NewRequest(http.MethodPost, "/cues?name=prod.release", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), "prod.release")
}

func TestHandlePublish_BodyTooLarge(t *testing.T) {
	s, store := newTestServer(t)
	s.cfg.MaxCueBodyBytes = 4
	mux := http.NewServeMux()
	s.Routes(mux)

	rawKey := provisionRawKey(t, store, "user-1", "laptop", nil)
	req := httptest.NewRequest(http.MethodPost, "/cues?name=x", strings.NewReader("12345"))
	req.Header.Set("Authorization", "Bearer "+rawKey)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlePublishByID(t *testing.T) {
	s, store := newTestServer(t)
	mux := http.NewServeMux()
	s.Routes(mux)

	rawKey := provisionRawKey(t, store, "user-1", "laptop", nil)
	req := httptest.NewRequest(http.MethodPost, "/cues/deploy-done", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
}

func TestListenAndPublish_EndToEnd(t *testing.T) {
	s, store := newTestServer(t)
	mux := http.NewServeMux()
	s.Routes(mux)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	rawKey := provisionRawKey(t, store, "user-1", "laptop", nil)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/listen?name=deploy"
	header := http.Header{"Authorization": []string{"Bearer " + rawKey}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	// Give the listen handler a moment to register the session before publishing.
	time.Sleep(100 * time.Millisecond)

	pubReq, _ := http.NewRequest(http.MethodPost, srv.URL+"/cues?name=deploy", strings.NewReader("hi"))
	pubReq.Header.Set("Authorization", "Bearer "+rawKey)
	resp, err := http.DefaultClient.Do(pubReq)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// This test exercises publish acceptance and listen registration; the
	// cross-process fan-out itself (Dispatcher reading the bus and writing
	// to the session) is covered independently in internal/dispatcher,
	// since no Dispatcher runs inside this Server.
}

func TestHandleListen_UnauthenticatedClosesWithPolicyViolation(t *testing.T) {
	s, _ := newTestServer(t)
	mux := http.NewServeMux()
	s.Routes(mux)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/listen?name=deploy"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok)
	require.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}

func TestHandleListen_TooManyPatternsRejected(t *testing.T) {
	s, store := newTestServer(t)
	s.cfg.MaxListenPatterns = 1
	mux := http.NewServeMux()
	s.Routes(mux)

	rawKey := provisionRawKey(t, store, "user-1", "laptop", nil)
	req := httptest.NewRequest(http.MethodGet, "/listen?name=a&name=b", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

// TestHandleListen_DuplicatePatternsDedupeBeforeLimitCheck ensures the
// pattern-count limit is enforced against the deduplicated set, not the
// raw query values: three repeats of the same pattern must not be
// rejected by a limit of one.
func TestHandleListen_DuplicatePatternsDedupeBeforeLimitCheck(t *testing.T) {
	s, store := newTestServer(t)
	s.cfg.MaxListenPatterns = 1
	mux := http.NewServeMux()
	s.Routes(mux)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	rawKey := provisionRawKey(t, store, "user-1", "laptop", nil)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/listen?name=deploy&name=deploy&name=deploy"
	header := http.Header{"Authorization": []string{"Bearer " + rawKey}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()
}
