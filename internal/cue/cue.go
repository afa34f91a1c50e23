// Package cue defines the wire and storage types shared by the Key Store,
// Event Bus, Dispatcher, and HTTP surface: API keys, key requests, and the
// cue envelope itself.
package cue

import "time"

// Key is an API key record as persisted in the Key Store. Pattern is nil
// when the key is unrestricted.
type Key struct {
	ID        string    `json:"id"`
	UID       string    `json:"uid"`
	Name      string    `json:"name"`
	Pattern   *string   `json:"pattern"`
	CreatedAt time.Time `json:"created_at"`
	Hash      string    `json:"hash"`
}

// Matches reports whether name is permitted by k's pattern restriction. A
// nil Pattern means unrestricted.
func (k *Key) Matches(name string, matcher func(name, pattern string) bool) bool {
	return PatternAllows(k.Pattern, name, matcher)
}

// PatternAllows reports whether name is permitted under pattern, using
// matcher to test a match. A nil pattern permits every name. Shared by
// Key.Matches and by internal/authn's producer-pattern check, since both
// enforce the same nil-means-unrestricted rule against the same kind of
// pattern string.
func PatternAllows(pattern *string, name string, matcher func(name, pattern string) bool) bool {
	if pattern == nil {
		return true
	}
	return matcher(name, *pattern)
}

// KeyRequest is a pending, not-yet-redeemed key provisioning request.
type KeyRequest struct {
	KeyID   string  `json:"key_id"`
	Name    string  `json:"name"`
	Pattern *string `json:"pattern"`
	Hash    string  `json:"hash"`
}

// Envelope is the cue payload as it travels over the Event Bus: the
// producer's uid plus the full set of published names.
type Envelope struct {
	ID      string   `json:"id"`
	UID     string   `json:"uid"`
	Names   []string `json:"names"`
	Content *string  `json:"content"`
}

// Delivery is what a single listener session receives over the listen
// stream: the envelope narrowed to the subset of names that matched its
// subscription, with the producer's uid stripped.
type Delivery struct {
	ID      string   `json:"id"`
	Names   []string `json:"names"`
	Content *string  `json:"content"`
}
