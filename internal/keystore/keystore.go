// Package keystore persists API keys and pending key-provisioning requests
// in Redis.
//
// Key layout:
//
//	key-rq:{request_id}     -> JSON KeyRequest, TTL-bound, created by
//	                            StartKeyRequest, consumed by RedeemKeyRequest
//	keyhash:{h}              -> JSON Key record, looked up by GetKey
//	apikey:{key_id}          -> JSON Key record, looked up by RemoveKey
//	user:{uid}:apikeys       -> set of key_id, looked up by FindUserAPIKeys
package keystore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/faat/cue/internal/cue"
	"github.com/faat/cue/internal/validate"
)

// ErrNotFound is returned when a key request id is unknown or expired.
var ErrNotFound = errors.New("keystore: not found")

const requestIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Store wraps a Redis client with the Key Store operations from the spec.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// New creates a Store. ttl bounds how long an unredeemed key request lives.
func New(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

type keyRequestRecord struct {
	KeyID   string  `json:"key_id"`
	Name    string  `json:"name"`
	Pattern *string `json:"pattern"`
	Hash    string  `json:"hash"`
}

// StartKeyRequest mints a fresh API key, hashes it, and stores a pending
// request keyed by a random request id with the store's TTL. Returns the
// request id (safe to show in a URL) and the raw key (shown to the client
// exactly once).
func (s *Store) StartKeyRequest(ctx context.Context, name string, pattern *string) (requestID, rawKey string, err error) {
	rawKey = randomToken(32)
	h := hashKey(rawKey)
	keyID := uuid.NewString()

	rec := keyRequestRecord{KeyID: keyID, Name: name, Pattern: pattern, Hash: h}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", "", fmt.Errorf("keystore: marshal key request: %w", err)
	}

	for attempt := 0; attempt < 10; attempt++ {
		requestID, err = randomRequestID(20)
		if err != nil {
			return "", "", fmt.Errorf("keystore: generate request id: %w", err)
		}
		ok, err := s.rdb.SetNX(ctx, requestKey(requestID), data, s.ttl).Result()
		if err != nil {
			return "", "", fmt.Errorf("keystore: set key request: %w", err)
		}
		if ok {
			return requestID, rawKey, nil
		}
	}
	return "", "", fmt.Errorf("keystore: could not allocate a unique request id")
}

// FindKeyRequest validates the id shape before any lookup, then returns the
// pending request, or ErrNotFound if it is unknown/expired.
func (s *Store) FindKeyRequest(ctx context.Context, requestID string) (*cue.KeyRequest, error) {
	if !validate.RequestID(requestID) {
		return nil, ErrNotFound
	}
	data, err := s.rdb.Get(ctx, requestKey(requestID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("keystore: get key request: %w", err)
	}
	var rec keyRequestRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("keystore: corrupt key request: %w", err)
	}
	return &cue.KeyRequest{KeyID: rec.KeyID, Name: rec.Name, Pattern: rec.Pattern, Hash: rec.Hash}, nil
}

// RedeemKeyRequest consumes a pending request exactly once, writing the
// durable API Key record under both keyhash:{h} and apikey:{key_id}, and
// adding key_id to user:{uid}:apikeys. name overrides the name captured at
// request time; pattern is carried over unchanged. The request entry is
// read and deleted in one atomic GETDEL, so of any number of repeated or
// concurrent redemptions only one sees it; the others fail with
// ErrNotFound even before the TTL expires.
func (s *Store) RedeemKeyRequest(ctx context.Context, requestID, uid, name string) error {
	if !validate.RequestID(requestID) {
		return ErrNotFound
	}

	rqKey := requestKey(requestID)
	data, err := s.rdb.GetDel(ctx, rqKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("keystore: take key request: %w", err)
	}
	var rec keyRequestRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("keystore: corrupt key request: %w", err)
	}

	key := &cue.Key{
		ID:        rec.KeyID,
		UID:       uid,
		Name:      name,
		Pattern:   rec.Pattern,
		CreatedAt: time.Now().UTC(),
		Hash:      rec.Hash,
	}
	keyData, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("keystore: marshal key: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, keyHashKey(rec.Hash), keyData, 0)
		pipe.Set(ctx, apiKeyKey(rec.KeyID), keyData, 0)
		pipe.SAdd(ctx, userKeysKey(uid), rec.KeyID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("keystore: redeem transaction: %w", err)
	}
	return nil
}

// GetKey looks up an API key record by its raw credential.
func (s *Store) GetKey(ctx context.Context, rawKey string) (*cue.Key, error) {
	h := hashKey(rawKey)
	data, err := s.rdb.Get(ctx, keyHashKey(h)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("keystore: get key: %w", err)
	}
	var key cue.Key
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("keystore: corrupt key record: %w", err)
	}
	return &key, nil
}

// FindUserAPIKeys returns every key record belonging to uid. A key id in
// user:{uid}:apikeys whose apikey:{key_id} record is missing (revoked
// elsewhere, or never fully written) is silently skipped.
func (s *Store) FindUserAPIKeys(ctx context.Context, uid string) ([]*cue.Key, error) {
	ids, err := s.rdb.SMembers(ctx, userKeysKey(uid)).Result()
	if err != nil {
		return nil, fmt.Errorf("keystore: list user keys: %w", err)
	}
	keys := make([]*cue.Key, 0, len(ids))
	for _, id := range ids {
		data, err := s.rdb.Get(ctx, apiKeyKey(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("keystore: get key %s: %w", id, err)
		}
		var key cue.Key
		if err := json.Unmarshal(data, &key); err != nil {
			return nil, fmt.Errorf("keystore: corrupt key record %s: %w", id, err)
		}
		keys = append(keys, &key)
	}
	return keys, nil
}

// RemoveKey deletes an API key by id, removing both mirror records and its
// membership in the owning user's key set.
func (s *Store) RemoveKey(ctx context.Context, keyID string) error {
	data, err := s.rdb.Get(ctx, apiKeyKey(keyID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("keystore: get key %s: %w", keyID, err)
	}
	var key cue.Key
	if err := json.Unmarshal(data, &key); err != nil {
		return fmt.Errorf("keystore: corrupt key record %s: %w", keyID, err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keyHashKey(key.Hash))
		pipe.Del(ctx, apiKeyKey(keyID))
		pipe.SRem(ctx, userKeysKey(key.UID), keyID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("keystore: remove key transaction: %w", err)
	}
	return nil
}

func requestKey(requestID string) string { return "key-rq:" + requestID }
func keyHashKey(h string) string         { return "keyhash:" + h }
func apiKeyKey(keyID string) string      { return "apikey:" + keyID }
func userKeysKey(uid string) string      { return "user:" + uid + ":apikeys" }

func hashKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// randomRequestID draws a human-typeable, alphanumeric id from
// crypto/rand: short enough to read off a browser URL, long enough (20
// chars from a 62-symbol alphabet) to resist guessing.
func randomRequestID(size int) (string, error) {
	b := make([]byte, size)
	alphabetLen := big.NewInt(int64(len(requestIDAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		b[i] = requestIDAlphabet[n.Int64()]
	}
	return string(b), nil
}

// randomToken returns a URL-safe, high-entropy raw API key: n random
// bytes, hex-encoded (simpler to type, still >= 128 bits of entropy for
// n >= 16).
func randomToken(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("keystore: crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(buf)
}
