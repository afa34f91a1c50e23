package keystore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return New(rdb, 5*time.Minute), mr
}

func TestStartAndRedeemKeyRequest(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	requestID, rawKey, err := store.StartKeyRequest(ctx, "laptop", nil)
	require.NoError(t, err)
	require.Len(t, requestID, 20)
	require.NotEmpty(t, rawKey)

	// Before redemption, the key does not resolve.
	_, err = store.GetKey(ctx, rawKey)
	require.ErrorIs(t, err, ErrNotFound)

	err = store.RedeemKeyRequest(ctx, requestID, "user-1", "laptop")
	require.NoError(t, err)

	key, err := store.GetKey(ctx, rawKey)
	require.NoError(t, err)
	require.Equal(t, "user-1", key.UID)
	require.Equal(t, "laptop", key.Name)
	require.Nil(t, key.Pattern)
}

func TestRedeemKeyRequest_NotRedeemableTwice(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	requestID, _, err := store.StartKeyRequest(ctx, "laptop", nil)
	require.NoError(t, err)

	require.NoError(t, store.RedeemKeyRequest(ctx, requestID, "user-1", "laptop"))

	err = store.RedeemKeyRequest(ctx, requestID, "user-2", "stolen")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedeemKeyRequest_UnknownID(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	err := store.RedeemKeyRequest(ctx, "totallyUnknownRequestId", "user-1", "x")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFindKeyRequest_RejectsShortIDsCheaply(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, err := store.FindKeyRequest(ctx, "ab")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestKeyRequestExpires(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	requestID, _, err := store.StartKeyRequest(ctx, "laptop", nil)
	require.NoError(t, err)

	mr.FastForward(6 * time.Minute)

	err = store.RedeemKeyRequest(ctx, requestID, "user-1", "laptop")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPatternCarriedFromRequestToKey(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	pattern := "eu.*"
	requestID, rawKey, err := store.StartKeyRequest(ctx, "laptop", &pattern)
	require.NoError(t, err)
	require.NoError(t, store.RedeemKeyRequest(ctx, requestID, "user-1", "renamed"))

	key, err := store.GetKey(ctx, rawKey)
	require.NoError(t, err)
	require.Equal(t, "renamed", key.Name, "name is overridden by redeem call")
	require.NotNil(t, key.Pattern)
	require.Equal(t, pattern, *key.Pattern)
}

func TestFindUserAPIKeysAndRemoveKey(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	requestID, rawKey, err := store.StartKeyRequest(ctx, "laptop", nil)
	require.NoError(t, err)
	require.NoError(t, store.RedeemKeyRequest(ctx, requestID, "user-1", "laptop"))

	keys, err := store.FindUserAPIKeys(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Equal(t, "laptop", keys[0].Name)

	require.NoError(t, store.RemoveKey(ctx, keys[0].ID))

	_, err = store.GetKey(ctx, rawKey)
	require.ErrorIs(t, err, ErrNotFound)

	keys, err = store.FindUserAPIKeys(ctx, "user-1")
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestCredentialSecrecy(t *testing.T) {
	// The raw key must never appear in what's stored: only its hash does.
	ctx := context.Background()
	store, mr := newTestStore(t)

	requestID, rawKey, err := store.StartKeyRequest(ctx, "laptop", nil)
	require.NoError(t, err)
	require.NoError(t, store.RedeemKeyRequest(ctx, requestID, "user-1", "laptop"))

	for _, k := range mr.Keys() {
		if mr.Type(k) != "string" {
			continue
		}
		v, _ := mr.Get(k)
		require.NotContains(t, v, rawKey)
	}
}
