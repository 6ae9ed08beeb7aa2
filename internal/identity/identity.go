// Package identity manages the per-session client id that attributes
// seat holds to this booking session.  The server uses it to tell
// "this client renewing its own hold" apart from "a different client
// contending for the seat", so the id must stay stable across every
// lock, release and relock call within one session and is never
// rotated mid-checkout.
package identity

import (
	"context"

	"github.com/google/uuid"

	"github.com/safirbus/holdcoord/internal/store"
)

const clientIDKey = "seat_lock_client_id"

// ClientID returns the session's client id, generating and persisting
// one on first call.  When the store cannot persist (quota, private
// session), a fresh id is returned instead of an error: losing
// self-recognition only costs an optimisation, the server's
// single-holder invariant does not depend on it.
func ClientID(ctx context.Context, s store.Store) string {
	if v, err := s.Get(ctx, clientIDKey); err == nil && v != "" {
		return v
	}
	id := uuid.NewString()
	_ = s.Set(ctx, clientIDKey, id)
	return id
}
