// Package dispatcher implements the single long-running fan-out task per
// server process: it consumes the Event Bus, matches each delivered cue
// against the Listener Registry, and writes per-listener messages to each
// matching session.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/faat/cue/internal/cue"
	"github.com/faat/cue/internal/eventbus"
	"github.com/faat/cue/internal/glob"
	"github.com/faat/cue/internal/metrics"
	"github.com/faat/cue/internal/registry"
)

// resubscribeBackoff is the unconditional pause before re-subscribing
// after an Event Bus error, per the spec's Idle -> Subscribed state
// machine.
const resubscribeBackoff = 1 * time.Second

// Dispatcher is the singleton fan-out task. Create one per process with
// New, start it with Run, and cancel its context to stop it.
type Dispatcher struct {
	bus *eventbus.Bus
	reg *registry.Registry
	met *metrics.Metrics
}

// New creates a Dispatcher reading from bus and matching against reg.
func New(bus *eventbus.Bus, reg *registry.Registry, met *metrics.Metrics) *Dispatcher {
	return &Dispatcher{bus: bus, reg: reg, met: met}
}

// Run blocks, subscribing to the Event Bus and dispatching cues to
// matching listener sessions, until ctx is cancelled. Callers should run
// this in its own goroutine and await its return during shutdown so that
// in-flight sends can complete.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		d.receiveLoop(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Warn().Dur("backoff", resubscribeBackoff).Msg("dispatcher: resubscribing after error")
		if d.met != nil {
			d.met.DispatcherResubscribes.Inc()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeBackoff):
		}
	}
}

// receiveLoop subscribes once and dispatches cues until the subscription
// ends (ctx cancelled or the underlying connection failed).
func (d *Dispatcher) receiveLoop(ctx context.Context) {
	sub := d.bus.Subscribe(ctx)
	defer sub.Close()

	for {
		env, ok := sub.Next(ctx)
		if !ok {
			return
		}
		d.dispatch(env)
	}
}

// dispatch computes, for every session registered under env.UID, the
// subset of env.Names that session is entitled to receive, and writes to
// every matching session concurrently. One session's write failure never
// blocks or fails another's; a failed write is left for that session's own
// read loop to observe as a disconnect.
func (d *Dispatcher) dispatch(env *cue.Envelope) {
	sessions := d.reg.SessionsFor(env.UID)
	if len(sessions) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, sess := range sessions {
		matches := matchNames(env.Names, sess)
		if len(matches) == 0 {
			continue
		}
		wg.Add(1)
		go func(sess *registry.Session, matches []string) {
			defer wg.Done()
			if err := sess.Writer.Write(env.ID, matches, env.Content); err != nil {
				log.Debug().Err(err).Str("uid", env.UID).Str("session", sess.ID).
					Msg("dispatcher: write failed, leaving disconnect detection to the read loop")
				return
			}
			if d.met != nil {
				d.met.CuesDelivered.Inc()
			}
		}(sess, matches)
	}
	wg.Wait()
}

// matchNames computes the subset of names a session is entitled to
// receive: every name must match at least one of the session's
// subscription patterns, and, if the session's authenticating key was
// itself pattern-restricted, every name must also match that key pattern.
func matchNames(names []string, sess *registry.Session) []string {
	var matches []string
	for _, n := range names {
		if sess.KeyPattern != nil && !glob.Match(n, *sess.KeyPattern) {
			continue
		}
		if !glob.MatchAny(n, sess.Patterns) {
			continue
		}
		matches = append(matches, n)
	}
	return matches
}
