package session

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safirbus/holdcoord/internal/store"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	})
	raw, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

func drainReason(t *testing.T, ch <-chan Signal) Reason {
	t.Helper()
	select {
	case sig := <-ch:
		return sig.Reason
	case <-time.After(time.Second):
		t.Fatal("expected a sign-out signal")
		return ""
	}
}

func TestTokenClearedSignalsOnce(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	bus := NewBus()
	sub := bus.Subscribe()
	w := NewTokenWatcher(mem, bus, time.Minute, nil)

	require.NoError(t, mem.Set(ctx, TokenKey, signedToken(t, time.Now().Add(time.Hour))))
	w.check(ctx)
	select {
	case sig := <-sub:
		t.Fatalf("unexpected signal %q with token present", sig.Reason)
	default:
	}

	// another actor clears the shared token
	require.NoError(t, mem.Delete(ctx, TokenKey))
	w.check(ctx)
	assert.Equal(t, ReasonTokenCleared, drainReason(t, sub))

	// repeated checks while still absent stay quiet
	w.check(ctx)
	w.check(ctx)
	select {
	case sig := <-sub:
		t.Fatalf("duplicate signal %q", sig.Reason)
	default:
	}
}

func TestGuestSessionNeverSignals(t *testing.T) {
	ctx := context.Background()
	bus := NewBus()
	sub := bus.Subscribe()
	w := NewTokenWatcher(store.NewMemory(), bus, time.Minute, nil)

	// never logged in: an absent token is not a sign-out
	w.check(ctx)
	w.check(ctx)
	select {
	case sig := <-sub:
		t.Fatalf("unexpected signal %q for guest session", sig.Reason)
	default:
	}
}

func TestExpiredTokenSignals(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	bus := NewBus()
	sub := bus.Subscribe()
	w := NewTokenWatcher(mem, bus, time.Minute, nil)

	require.NoError(t, mem.Set(ctx, TokenKey, signedToken(t, time.Now().Add(-time.Minute))))
	w.check(ctx)
	assert.Equal(t, ReasonTokenExpired, drainReason(t, sub))

	// the same expired token does not re-signal every poll
	w.check(ctx)
	select {
	case sig := <-sub:
		t.Fatalf("duplicate signal %q", sig.Reason)
	default:
	}
}

func TestRefreshedTokenRearmsWatcher(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	bus := NewBus()
	sub := bus.Subscribe()
	w := NewTokenWatcher(mem, bus, time.Minute, nil)

	require.NoError(t, mem.Set(ctx, TokenKey, signedToken(t, time.Now().Add(-time.Minute))))
	w.check(ctx)
	require.Equal(t, ReasonTokenExpired, drainReason(t, sub))

	// the auth layer refreshes the token; expiry later signals again
	require.NoError(t, mem.Set(ctx, TokenKey, signedToken(t, time.Now().Add(-time.Second))))
	w.check(ctx)
	assert.Equal(t, ReasonTokenExpired, drainReason(t, sub))
}

func TestMalformedTokenYieldsNoExpirySignal(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	bus := NewBus()
	sub := bus.Subscribe()
	w := NewTokenWatcher(mem, bus, time.Minute, nil)

	require.NoError(t, mem.Set(ctx, TokenKey, "not-a-jwt"))
	w.check(ctx)
	select {
	case sig := <-sub:
		t.Fatalf("unexpected signal %q for unparseable token", sig.Reason)
	default:
	}

	// clearing it still counts as a sign-out
	require.NoError(t, mem.Delete(ctx, TokenKey))
	w.check(ctx)
	assert.Equal(t, ReasonTokenCleared, drainReason(t, sub))
}
