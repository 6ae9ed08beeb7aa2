// Package availability keeps an approximate, UI-facing view of seat
// availability per trip fresh enough to grey out taken seats without
// hammering the lock service.  The reconciler owns all snapshots and
// enforces the fetch policy: per-trip TTL throttling, in-flight
// de-duplication, a single global backoff shared across trips, and
// bounded fan-out for initial population.  Snapshots are advisory
// only; the acquire call is the real arbiter of whether a seat can be
// taken.
package availability

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/safirbus/holdcoord/internal/lockapi"
	"github.com/safirbus/holdcoord/internal/logger"
	"github.com/safirbus/holdcoord/internal/trip"
)

// Config tunes the fetch policy.  Zero values fall back to the
// defaults below.
type Config struct {
	TTLNormal      time.Duration // min gap between unforced fetches of one trip
	TTLForce       time.Duration // min gap even for forced fetches
	DefaultBackoff time.Duration // backoff when a 429 carries no Retry-After
	BatchSize      int           // concurrent fetches during initial population
	PollInterval   time.Duration // background poll tick
	PollCap        int           // max trips refreshed per tick
	Visible        func() bool   // nil means always visible
	Now            func() time.Time
}

func (c Config) withDefaults() Config {
	if c.TTLNormal <= 0 {
		c.TTLNormal = 8 * time.Second
	}
	if c.TTLForce <= 0 {
		c.TTLForce = 2 * time.Second
	}
	if c.DefaultBackoff <= 0 {
		c.DefaultBackoff = 30 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 6
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 6 * time.Second
	}
	if c.PollCap <= 0 {
		c.PollCap = 10
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

type entry struct {
	snap      trip.AvailabilitySnapshot
	fetchedAt time.Time
	fetched   bool
}

type call struct {
	done chan struct{}
}

// Reconciler fetches and merges availability per trip.  Safe for
// concurrent use.
type Reconciler struct {
	client lockapi.Client
	date   string
	cfg    Config
	log    *zap.Logger

	mu           sync.Mutex
	snaps        map[trip.Key]*entry
	inflight     map[trip.Key]*call
	backoffUntil time.Time
	priority     *trip.Key
	gen          int
}

// New builds a reconciler for one travel date.
func New(client lockapi.Client, date string, cfg Config, log *zap.Logger) *Reconciler {
	if log == nil {
		log = logger.Get()
	}
	return &Reconciler{
		client:   client,
		date:     date,
		cfg:      cfg.withDefaults(),
		log:      log,
		snaps:    make(map[trip.Key]*entry),
		inflight: make(map[trip.Key]*call),
	}
}

// Track registers trips without fetching them, so their first
// snapshot reads as "checking" (Available nil) until Populate or the
// poller resolves it.
func (r *Reconciler) Track(keys ...trip.Key) {
	r.mu.Lock()
	for _, k := range keys {
		if _, ok := r.snaps[k]; !ok {
			r.snaps[k] = &entry{}
		}
	}
	r.mu.Unlock()
}

// Snapshot returns a copy of the current view for one trip.  ok is
// false when the trip was never tracked or fetched.
func (r *Reconciler) Snapshot(key trip.Key) (trip.AvailabilitySnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.snaps[key]
	if !ok {
		return trip.AvailabilitySnapshot{}, false
	}
	return e.snap.Clone(), true
}

// Refresh fetches availability for one trip, subject to the policy:
//
//   - skipped when the last successful fetch is younger than the TTL
//     (TTLForce for forced calls, TTLNormal otherwise),
//   - skipped for unforced calls while the global backoff is armed,
//   - joined onto an already outstanding fetch for the same trip
//     instead of issuing a duplicate request.
//
// On transient failure the previous snapshot is kept; only a trip
// that has never resolved reads as "checking".  A 429 arms the global
// backoff for every trip.
func (r *Reconciler) Refresh(ctx context.Context, key trip.Key, force bool) (trip.AvailabilitySnapshot, error) {
	now := r.cfg.Now()
	ttl := r.cfg.TTLNormal
	if force {
		ttl = r.cfg.TTLForce
	}

	r.mu.Lock()
	e, tracked := r.snaps[key]
	if tracked && e.fetched && now.Sub(e.fetchedAt) < ttl {
		snap := e.snap.Clone()
		r.mu.Unlock()
		return snap, nil
	}
	if !force && now.Before(r.backoffUntil) {
		var snap trip.AvailabilitySnapshot
		if tracked {
			snap = e.snap.Clone()
		}
		r.mu.Unlock()
		return snap, nil
	}
	if c, ok := r.inflight[key]; ok {
		done := c.done
		r.mu.Unlock()
		select {
		case <-ctx.Done():
			return trip.AvailabilitySnapshot{}, ctx.Err()
		case <-done:
		}
		snap, _ := r.Snapshot(key)
		return snap, nil
	}
	c := &call{done: make(chan struct{})}
	r.inflight[key] = c
	gen := r.gen
	r.mu.Unlock()

	avail, err := r.client.QueryAvailability(ctx, key, r.date)

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, key)
	close(c.done)
	if gen != r.gen {
		// the page this fetch belonged to was torn down
		return trip.AvailabilitySnapshot{}, err
	}
	if err != nil {
		if d, ok := lockapi.IsRateLimited(err); ok {
			if d <= 0 {
				d = r.cfg.DefaultBackoff
			}
			r.backoffUntil = r.cfg.Now().Add(d)
			r.log.Warn("availability rate limited", zap.Duration("backoff", d))
		} else {
			r.log.Warn("availability fetch failed",
				zap.String("trip", key.String()), zap.Error(err))
		}
		var snap trip.AvailabilitySnapshot
		if e, ok := r.snaps[key]; ok {
			snap = e.snap.Clone()
		}
		return snap, err
	}
	e, ok := r.snaps[key]
	if !ok {
		e = &entry{}
		r.snaps[key] = e
	}
	e.snap = toSnapshot(avail)
	e.fetchedAt = r.cfg.Now()
	e.fetched = true
	return e.snap.Clone(), nil
}

// Populate performs the initial fan-out for a results page, fetching
// the given trips in fixed-size concurrent batches rather than one
// request per trip simultaneously.
func (r *Reconciler) Populate(ctx context.Context, keys []trip.Key) {
	r.Track(keys...)
	for start := 0; start < len(keys); start += r.cfg.BatchSize {
		end := start + r.cfg.BatchSize
		if end > len(keys) {
			end = len(keys)
		}
		var wg sync.WaitGroup
		for _, k := range keys[start:end] {
			wg.Add(1)
			go func(k trip.Key) {
				defer wg.Done()
				_, _ = r.Refresh(ctx, k, false)
			}(k)
		}
		wg.Wait()
		if ctx.Err() != nil {
			return
		}
	}
}

// SetPriority marks the trip the background poller refreshes first,
// normally the expanded card.  Pass nil to clear.
func (r *Reconciler) SetPriority(key *trip.Key) {
	r.mu.Lock()
	if key == nil {
		r.priority = nil
	} else {
		k := *key
		r.priority = &k
	}
	r.mu.Unlock()
}

// Reset drops every snapshot and invalidates responses still in
// flight, for page teardown.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	r.snaps = make(map[trip.Key]*entry)
	r.priority = nil
	r.gen++
	r.mu.Unlock()
}

func toSnapshot(a lockapi.Availability) trip.AvailabilitySnapshot {
	snap := trip.AvailabilitySnapshot{
		Available:   a.AvailableSeats,
		Window:      a.AvailableWindowSeats,
		BookedSeats: make(map[trip.SeatLabel]bool, len(a.BookedSeats)),
		SeatGenders: make(map[trip.SeatLabel]trip.Gender, len(a.SeatGenderMap)),
	}
	for _, s := range a.BookedSeats {
		snap.BookedSeats[s] = true
	}
	for s, g := range a.SeatGenderMap {
		snap.SeatGenders[trip.SeatLabel(s)] = trip.Gender(g)
	}
	return snap
}
