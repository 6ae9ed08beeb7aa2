package session

// token_watcher.go watches the shared auth token in the session store
// and publishes a sign-out signal when another actor clears it or
// when its exp claim passes.  The token is parsed without signature
// verification: this layer only needs the expiry, and it never trusts
// the token for authorisation.

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/safirbus/holdcoord/internal/logger"
	"github.com/safirbus/holdcoord/internal/store"
)

// TokenKey is the session store key the auth layer keeps the access
// token under.
const TokenKey = "auth_token"

// TokenWatcher polls the auth token key.  It only signals on a
// present-to-absent transition or on expiry, never on "was never
// logged in", so guest sessions stay quiet.
type TokenWatcher struct {
	store    store.Store
	bus      *Bus
	interval time.Duration
	now      func() time.Time
	log      *zap.Logger

	sawToken  bool
	lastToken string
	signaled  bool
}

// NewTokenWatcher builds a watcher.  interval defaults to 2 seconds.
func NewTokenWatcher(s store.Store, bus *Bus, interval time.Duration, log *zap.Logger) *TokenWatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if log == nil {
		log = logger.Get()
	}
	return &TokenWatcher{store: s, bus: bus, interval: interval, now: time.Now, log: log}
}

// Run polls until ctx is cancelled.
func (w *TokenWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

func (w *TokenWatcher) check(ctx context.Context) {
	raw, err := w.store.Get(ctx, TokenKey)
	if err != nil || raw == "" {
		if w.sawToken && !w.signaled {
			w.signaled = true
			w.log.Info("auth token cleared, signing out")
			w.bus.Publish(Signal{Reason: ReasonTokenCleared})
		}
		return
	}
	w.sawToken = true
	if raw != w.lastToken {
		// a refreshed token re-arms the watcher
		w.lastToken = raw
		w.signaled = false
	}
	if w.signaled {
		return
	}
	if exp, ok := tokenExpiry(raw); ok && !exp.After(w.now()) {
		w.signaled = true
		w.log.Info("auth token expired, signing out")
		w.bus.Publish(Signal{Reason: ReasonTokenExpired})
	}
}

// tokenExpiry extracts the exp claim from a JWT without verifying the
// signature.  A token this layer cannot parse yields no expiry, which
// means no expiry-driven sign-out.
func tokenExpiry(raw string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
