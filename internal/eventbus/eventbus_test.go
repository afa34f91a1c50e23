package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/faat/cue/internal/cue"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return New(rdb)
}

func TestPublishAndSubscribe(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	bus := newTestBus(t)
	sub := bus.Subscribe(ctx)
	defer sub.Close()

	// Give the subscription a moment to register with miniredis before publishing.
	time.Sleep(50 * time.Millisecond)

	content := "aGk="
	env := &cue.Envelope{ID: "evt-1", UID: "user-1", Names: []string{"deploy"}, Content: &content}
	require.NoError(t, bus.Publish(ctx, env))

	got, ok := sub.Next(ctx)
	require.True(t, ok)
	require.Equal(t, env.ID, got.ID)
	require.Equal(t, env.UID, got.UID)
	require.Equal(t, env.Names, got.Names)
	require.Equal(t, *env.Content, *got.Content)
}

func TestSubscribeCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := newTestBus(t)
	sub := bus.Subscribe(ctx)
	defer sub.Close()

	cancel()
	_, ok := sub.Next(ctx)
	require.False(t, ok)
}
