// Package eventbus implements the single cross-process cue channel: a
// Redis Pub/Sub topic carrying cue.Envelope payloads between server
// instances. Any broker with topic-publish plus one subscribable channel
// would do; Redis is used here because the Key Store already depends on
// it.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/faat/cue/internal/cue"
)

// Topic is the single channel every cue is published to.
const Topic = "cues"

// Bus wraps a Redis client for publish and subscribe.
type Bus struct {
	rdb *redis.Client
}

// New creates a Bus.
func New(rdb *redis.Client) *Bus {
	return &Bus{rdb: rdb}
}

// Publish hands env to every subscriber of Topic across the fleet. Returns
// once Redis has accepted the publish; it does not imply any listener
// received it.
func (b *Bus) Publish(ctx context.Context, env *cue.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("eventbus: marshal envelope: %w", err)
	}
	if err := b.rdb.Publish(ctx, Topic, data).Err(); err != nil {
		return fmt.Errorf("eventbus: publish: %w", err)
	}
	return nil
}

// Subscription is a live Pub/Sub subscription to Topic.
type Subscription struct {
	ps *redis.PubSub
	ch <-chan *redis.Message
}

// Subscribe opens a subscription to Topic. Callers must call Close when
// done.
func (b *Bus) Subscribe(ctx context.Context) *Subscription {
	ps := b.rdb.Subscribe(ctx, Topic)
	return &Subscription{ps: ps, ch: ps.Channel()}
}

// Next blocks until the next well-formed envelope arrives, ctx is
// cancelled, or the subscription's underlying connection fails. ok is
// false in the latter two cases. A malformed message on the wire is
// skipped rather than returned or treated as fatal.
func (s *Subscription) Next(ctx context.Context) (env *cue.Envelope, ok bool) {
	for {
		select {
		case <-ctx.Done():
			return nil, false
		case msg, open := <-s.ch:
			if !open {
				return nil, false
			}
			var e cue.Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				continue
			}
			return &e, true
		}
	}
}

// Close releases the subscription.
func (s *Subscription) Close() error {
	return s.ps.Close()
}
