// Package cuectl implements the collaborator command-line client: the
// auth-then-poll handshake, the raw publish call, and the reconnecting
// listen stream, grounded on original_source's cueclient.py.
package cuectl

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/faat/cue/internal/cue"
)

// Config is the persisted client state: which server to talk to and the
// API key obtained during the auth handshake.
type Config struct {
	Server string `json:"server"`
	Token  string `json:"token"`
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "cue-cli.json"), nil
}

// LoadConfig reads the persisted client config, failing if auth has never
// been run.
func LoadConfig() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cuectl: not authenticated yet, run 'cuectl auth' first: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func saveConfig(cfg *Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	body, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, body, 0o600)
}

// Client is a handshake-authenticated connection to a cue server.
type Client struct {
	cfg  *Config
	http *http.Client
}

// New builds a Client from a persisted Config.
func New(cfg *Config) *Client {
	return &Client{cfg: cfg, http: &http.Client{Timeout: 15 * time.Second}}
}

type authResponse struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// Authenticate runs the three-step key provisioning handshake: it starts a
// key request, prints the authorization URL a browser-authenticated user
// must visit, and polls /hello every 10 seconds until the key is redeemed.
// It persists the resulting config only after the poll succeeds.
func Authenticate(server, name string, pattern *string, poll func(msg string)) (*Config, error) {
	base, err := url.Parse(server)
	if err != nil {
		return nil, err
	}

	reqBody, err := json.Marshal(struct {
		Name    string  `json:"name"`
		Pattern *string `json:"pattern,omitempty"`
	}{Name: name, Pattern: pattern})
	if err != nil {
		return nil, err
	}

	resp, err := http.Post(base.JoinPath("auth").String(), "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cuectl: auth failed: %s", resp.Status)
	}
	var auth authResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return nil, err
	}

	poll(fmt.Sprintf("Authorize the new key: %s", base.JoinPath("keyrequest", auth.ID)))
	poll("Waiting for authorization")

	helloURL := base.JoinPath("hello").String()
	for {
		req, err := http.NewRequest(http.MethodGet, helloURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+auth.Key)
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		time.Sleep(10 * time.Second)
	}

	poll("Yes! We're in.")

	cfg := &Config{Server: server, Token: auth.Key}
	if err := saveConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Post publishes body under names via POST /cues.
func (c *Client) Post(names []string, body []byte) error {
	base, err := url.Parse(c.cfg.Server)
	if err != nil {
		return err
	}
	u := base.JoinPath("cues")
	q := u.Query()
	for _, n := range names {
		q.Add("name", n)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequest(http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("cuectl: post failed: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}

// Listen dials /listen for the given patterns and sends every delivery to
// out until ctx-like cancellation via the stop channel. On any connection
// error it waits 3 seconds and reconnects, matching the source client's
// backoff.
func (c *Client) Listen(names []string, out chan<- *cue.Delivery, stop <-chan struct{}) error {
	base, err := url.Parse(c.cfg.Server)
	if err != nil {
		return err
	}
	scheme := "ws"
	if base.Scheme == "https" {
		scheme = "wss"
	}
	socketURL := *base
	socketURL.Scheme = scheme
	u := socketURL.JoinPath("listen")
	q := u.Query()
	for _, n := range names {
		q.Add("name", n)
	}
	u.RawQuery = q.Encode()

	header := http.Header{"Authorization": []string{"Bearer " + c.cfg.Token}}

	for {
		select {
		case <-stop:
			return nil
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(u.String(), header)
		if err != nil {
			if !sleepOrStop(3*time.Second, stop) {
				return nil
			}
			continue
		}

		readErr := readDeliveries(conn, out, stop)
		conn.Close()
		if errors.Is(readErr, errStopped) {
			return nil
		}
		if !sleepOrStop(3*time.Second, stop) {
			return nil
		}
	}
}

var errStopped = errors.New("cuectl: listen stopped")

func readDeliveries(conn *websocket.Conn, out chan<- *cue.Delivery, stop <-chan struct{}) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var d cue.Delivery
		if err := json.Unmarshal(raw, &d); err != nil {
			continue
		}
		select {
		case out <- &d:
		case <-stop:
			return errStopped
		}
	}
}

func sleepOrStop(d time.Duration, stop <-chan struct{}) bool {
	select {
	case <-time.After(d):
		return true
	case <-stop:
		return false
	}
}
