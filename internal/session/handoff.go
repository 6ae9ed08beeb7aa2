package session

// handoff.go implements the skip-auto-release flag.  Page teardown
// normally beacons a release for every held seat, but an intentional
// handoff (the redirect to the payment gateway) must keep the holds
// alive so the seats survive the round trip.  The flag is transient:
// one Mark suppresses exactly one teardown.

import (
	"context"

	"github.com/safirbus/holdcoord/internal/store"
)

const handoffKey = "skip_auto_release"

// HandoffGuard marks and consumes the suppress-teardown-release flag.
type HandoffGuard struct {
	store store.Store
}

// NewHandoffGuard wraps a session store.
func NewHandoffGuard(s store.Store) *HandoffGuard {
	return &HandoffGuard{store: s}
}

// Mark suppresses the next teardown release.  Called immediately
// before navigating to the gateway.
func (g *HandoffGuard) Mark(ctx context.Context) {
	_ = g.store.Set(ctx, handoffKey, "1")
}

// Consume reports whether the flag was set and clears it either way.
func (g *HandoffGuard) Consume(ctx context.Context) bool {
	v, err := g.store.Get(ctx, handoffKey)
	_ = g.store.Delete(ctx, handoffKey)
	return err == nil && v == "1"
}
