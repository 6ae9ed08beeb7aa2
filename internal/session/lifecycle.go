package session

// lifecycle.go is the consumer side of the signal bus: on any
// sign-out signal it drains the hold ledger once, releases every
// drained entry best-effort, and clears all in-memory selection
// state.  Draining before releasing is what makes a second concurrent
// signal a no-op.

import (
	"context"

	"go.uber.org/zap"

	"github.com/safirbus/holdcoord/internal/lockapi"
	"github.com/safirbus/holdcoord/internal/logger"
	"github.com/safirbus/holdcoord/internal/registry"
)

// SelectionClearer is the slice of the selection coordinator the
// lifecycle needs: wipe local state and collapse the expanded card.
type SelectionClearer interface {
	ClearAll()
}

// Broadcaster relays a locally-originated sign-out to peer processes
// sharing this session.  Satisfied by AMQPRelay.
type Broadcaster interface {
	Broadcast(ctx context.Context, reason Reason) error
}

// Lifecycle reacts to sign-out and teardown.
type Lifecycle struct {
	bus      *Bus
	registry *registry.Registry
	client   lockapi.Client
	beacon   *lockapi.Beacon
	guard    *HandoffGuard
	clearer  SelectionClearer
	relay    Broadcaster
	date     string
	clientID string
	log      *zap.Logger
}

// NewLifecycle wires the coordinator.  beacon, guard and clearer are
// optional; a nil clearer only drains the ledger.
func NewLifecycle(bus *Bus, reg *registry.Registry, client lockapi.Client, beacon *lockapi.Beacon,
	guard *HandoffGuard, clearer SelectionClearer, date, clientID string, log *zap.Logger) *Lifecycle {
	if log == nil {
		log = logger.Get()
	}
	return &Lifecycle{
		bus: bus, registry: reg, client: client, beacon: beacon,
		guard: guard, clearer: clearer, date: date, clientID: clientID, log: log,
	}
}

// SetBroadcaster installs the cross-process relay.  Optional; without
// one, peers rely on their own token watchers.
func (l *Lifecycle) SetBroadcaster(b Broadcaster) {
	l.relay = b
}

// Run consumes signals until ctx is cancelled.
func (l *Lifecycle) Run(ctx context.Context) {
	sub := l.bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sub:
			l.SignOut(ctx, sig.Reason)
		}
	}
}

// SignOut drains the ledger and releases every entry.  Failures are
// swallowed: the server-side hold TTL is the backstop, and a user
// signing out must never be blocked on a release call.
func (l *Lifecycle) SignOut(ctx context.Context, reason Reason) {
	// tell peer processes first so their releases overlap ours; a
	// relayed signal is never re-broadcast
	if l.relay != nil && reason != ReasonRemote {
		if err := l.relay.Broadcast(ctx, reason); err != nil {
			l.log.Warn("sign-out broadcast failed, peers fall back to token watch", zap.Error(err))
		}
	}
	entries := l.registry.DrainAll(ctx)
	if len(entries) > 0 {
		l.log.Info("releasing holds on sign-out",
			zap.String("reason", string(reason)), zap.Int("trips", len(entries)))
	}
	for _, e := range entries {
		if err := l.client.ReleaseLock(ctx, e.Key(), l.date, e.Seats, l.clientID); err != nil {
			l.log.Warn("sign-out release failed, hold will expire server-side",
				zap.String("trip", e.Key().String()), zap.Error(err))
		}
	}
	if l.clearer != nil {
		l.clearer.ClearAll()
	}
}

// Teardown is the page-hide path.  An intentional gateway handoff
// (marked through the guard) keeps the holds alive; otherwise every
// ledger entry is beaconed out without waiting for delivery.
func (l *Lifecycle) Teardown(ctx context.Context) {
	if l.guard != nil && l.guard.Consume(ctx) {
		l.log.Debug("teardown release skipped for gateway handoff")
		return
	}
	entries := l.registry.DrainAll(ctx)
	if len(entries) == 0 {
		return
	}
	if l.beacon != nil {
		l.beacon.Send(entries, l.date, l.clientID)
		return
	}
	for _, e := range entries {
		if err := l.client.ReleaseLock(ctx, e.Key(), l.date, e.Seats, l.clientID); err != nil {
			l.log.Warn("teardown release failed", zap.String("trip", e.Key().String()), zap.Error(err))
		}
	}
}
