// Package expiry runs the per-checkout countdown toward hold expiry.
// The deadline comes from the lock service, corrected for client
// clock drift using the response's transport timestamp; the countdown
// itself ticks locally so the service is queried once per arming, not
// once per second.  The expiry callback fires exactly once per
// arming; re-acquiring seats re-arms the monitor with a fresh query
// instead of continuing a stale countdown.
package expiry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/safirbus/holdcoord/internal/lockapi"
	"github.com/safirbus/holdcoord/internal/logger"
	"github.com/safirbus/holdcoord/internal/trip"
)

// Config wires one monitor.  OnExpire must mark the checkout as
// hold-expired (blocking submission) and attempt a best-effort
// release of the stale holds.
type Config struct {
	Client   lockapi.Client
	Key      trip.Key
	Date     string
	ClientID string
	Fallback time.Duration       // countdown window when the query fails, default 10m
	Tick     time.Duration       // local tick, default 1s
	Visible  func() bool         // nil means always visible
	Now      func() time.Time    // nil means time.Now
	OnTick   func(time.Duration) // remaining time, once per tick
	OnExpire func()              // fired exactly once per arming
	Log      *zap.Logger
}

// Monitor is the countdown.  Start arms it; Start again (after a
// re-acquire) supersedes the previous arming, whose goroutine exits
// on its next version check.
type Monitor struct {
	cfg Config
	log *zap.Logger

	mu       sync.Mutex
	version  int
	deadline time.Time
	fired    bool
	cancel   context.CancelFunc
}

// New builds a monitor.  Nothing runs until Start.
func New(cfg Config) *Monitor {
	if cfg.Fallback <= 0 {
		cfg.Fallback = 10 * time.Minute
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Log == nil {
		cfg.Log = logger.Get()
	}
	return &Monitor{cfg: cfg, log: cfg.Log}
}

// Start arms (or re-arms) the countdown.  The remaining-time query
// runs in the background; ticks and the expiry callback follow.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	m.version++
	v := m.version
	m.fired = false
	if m.cancel != nil {
		m.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	go m.run(runCtx, v)
}

// Stop halts the countdown without firing.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.version++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.mu.Unlock()
}

// Remaining returns the time left on the current arming, zero when
// unarmed or expired.
func (m *Monitor) Remaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deadline.IsZero() {
		return 0
	}
	d := m.deadline.Sub(m.cfg.Now())
	if d < 0 {
		return 0
	}
	return d
}

func (m *Monitor) run(ctx context.Context, v int) {
	deadline := m.resolveDeadline(ctx)

	m.mu.Lock()
	if v != m.version {
		m.mu.Unlock()
		return
	}
	m.deadline = deadline
	m.mu.Unlock()

	// a server that reports zero remaining must expire now, not
	// after a full countdown
	if !deadline.After(m.cfg.Now()) {
		m.fire(v)
		return
	}

	ticker := time.NewTicker(m.cfg.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			stale := v != m.version
			deadline = m.deadline
			m.mu.Unlock()
			if stale {
				return
			}
			now := m.cfg.Now()
			if m.cfg.Visible != nil && !m.cfg.Visible() {
				// paused in the background; still fire if the
				// deadline slid past while hidden
				if now.Before(deadline) {
					continue
				}
			}
			remaining := deadline.Sub(now)
			if remaining < 0 {
				remaining = 0
			}
			if remaining == 0 {
				m.fire(v)
				return
			}
			if m.cfg.OnTick != nil {
				m.cfg.OnTick(remaining)
			}
		}
	}
}

// resolveDeadline queries the service and converts its answer into a
// local-clock deadline.  An absolute expiry is shifted by the skew
// between the local clock and the response's server timestamp; a
// relative remaining duration anchors at receipt time.  A failed
// query degrades to the conservative fallback window.
func (m *Monitor) resolveDeadline(ctx context.Context) time.Time {
	now := m.cfg.Now()
	ht, err := m.cfg.Client.QueryHoldTime(ctx, m.cfg.Key, m.cfg.Date, m.cfg.ClientID)
	if err != nil {
		m.log.Warn("hold time query failed, using fallback window",
			zap.String("trip", m.cfg.Key.String()),
			zap.Duration("fallback", m.cfg.Fallback), zap.Error(err))
		return now.Add(m.cfg.Fallback)
	}
	switch {
	case ht.ExpiresAt != nil:
		skew := time.Duration(0)
		if !ht.ServerTime.IsZero() {
			skew = now.Sub(ht.ServerTime)
		}
		return ht.ExpiresAt.Add(skew)
	case ht.RemainingMs != nil:
		return now.Add(time.Duration(*ht.RemainingMs) * time.Millisecond)
	default:
		return now.Add(m.cfg.Fallback)
	}
}

func (m *Monitor) fire(v int) {
	m.mu.Lock()
	if v != m.version || m.fired {
		m.mu.Unlock()
		return
	}
	m.fired = true
	m.mu.Unlock()
	if m.cfg.OnTick != nil {
		m.cfg.OnTick(0)
	}
	if m.cfg.OnExpire != nil {
		m.cfg.OnExpire()
	}
}
