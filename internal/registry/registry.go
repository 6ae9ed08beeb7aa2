// Package registry keeps the session-scoped ledger of seat holds this
// client believes it owns.  The ledger is the single shared mutable
// record across all trips; UI code never touches it directly, only
// the selection coordinator and the session lifecycle do, through
// Remember, Forget and DrainAll.  It is persisted to the session
// store on every mutation so that a full page navigation within the
// session can be reconciled against a still-valid server hold instead
// of silently losing track of it.
package registry

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/safirbus/holdcoord/internal/store"
	"github.com/safirbus/holdcoord/internal/trip"
)

const ledgerKey = "seat_lock_ledger"

// Entry is one trip's worth of held seats, as handed out by DrainAll
// and as serialized into the session store.
type Entry struct {
	TripID    string           `json:"trip_id"`
	Departure string           `json:"departure"`
	Seats     []trip.SeatLabel `json:"seats"`
}

// Key rebuilds the trip key for an entry.
func (e Entry) Key() trip.Key {
	return trip.Key{TripID: e.TripID, Departure: e.Departure}
}

// Registry is the hold ledger.  All methods are safe for concurrent
// use.  Persistence failures are ignored: the in-memory ledger stays
// correct for the current page, and the server-side TTL covers the
// navigation case the persisted copy exists for.
type Registry struct {
	mu    sync.Mutex
	holds map[trip.Key]map[trip.SeatLabel]bool
	store store.Store
}

// New returns a registry hydrated from the session store.  Corrupt or
// absent persisted state loads as an empty ledger, never an error.
func New(ctx context.Context, s store.Store) *Registry {
	r := &Registry{holds: make(map[trip.Key]map[trip.SeatLabel]bool), store: s}
	raw, err := s.Get(ctx, ledgerKey)
	if err != nil || raw == "" {
		return r
	}
	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return r
	}
	for _, e := range entries {
		set := make(map[trip.SeatLabel]bool, len(e.Seats))
		for _, seat := range e.Seats {
			set[seat] = true
		}
		if len(set) > 0 {
			r.holds[e.Key()] = set
		}
	}
	return r
}

// Remember unions seats into the entry for key, creating it if
// absent.  Pure local mutation, no failure mode.
func (r *Registry) Remember(ctx context.Context, key trip.Key, seats ...trip.SeatLabel) {
	if len(seats) == 0 {
		return
	}
	r.mu.Lock()
	set, ok := r.holds[key]
	if !ok {
		set = make(map[trip.SeatLabel]bool, len(seats))
		r.holds[key] = set
	}
	for _, seat := range seats {
		set[seat] = true
	}
	r.persistLocked(ctx)
	r.mu.Unlock()
}

// Forget removes seats from the entry for key and deletes the entry
// once its seat set is empty.
func (r *Registry) Forget(ctx context.Context, key trip.Key, seats ...trip.SeatLabel) {
	r.mu.Lock()
	if set, ok := r.holds[key]; ok {
		for _, seat := range seats {
			delete(set, seat)
		}
		if len(set) == 0 {
			delete(r.holds, key)
		}
	}
	r.persistLocked(ctx)
	r.mu.Unlock()
}

// ForgetTrip drops the whole entry for key, used when a successful
// booking handoff converts the hold into a booking the server now
// owns.
func (r *Registry) ForgetTrip(ctx context.Context, key trip.Key) {
	r.mu.Lock()
	delete(r.holds, key)
	r.persistLocked(ctx)
	r.mu.Unlock()
}

// DrainAll returns every entry and clears the registry in one step.
// Draining before issuing release calls is what makes a concurrent
// second logout signal find nothing left to release.
func (r *Registry) DrainAll(ctx context.Context) []Entry {
	r.mu.Lock()
	out := snapshotLocked(r.holds)
	r.holds = make(map[trip.Key]map[trip.SeatLabel]bool)
	r.persistLocked(ctx)
	r.mu.Unlock()
	return out
}

// Entries returns a copy of the current ledger without clearing it.
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return snapshotLocked(r.holds)
}

// Seats returns the held seats recorded for one trip.
func (r *Registry) Seats(key trip.Key) []trip.SeatLabel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedSeats(r.holds[key])
}

func (r *Registry) persistLocked(ctx context.Context) {
	if r.store == nil {
		return
	}
	raw, err := json.Marshal(snapshotLocked(r.holds))
	if err != nil {
		return
	}
	_ = r.store.Set(ctx, ledgerKey, string(raw))
}

func snapshotLocked(holds map[trip.Key]map[trip.SeatLabel]bool) []Entry {
	out := make([]Entry, 0, len(holds))
	for key, set := range holds {
		if len(set) == 0 {
			continue
		}
		out = append(out, Entry{TripID: key.TripID, Departure: key.Departure, Seats: sortedSeats(set)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TripID != out[j].TripID {
			return out[i].TripID < out[j].TripID
		}
		return out[i].Departure < out[j].Departure
	})
	return out
}

func sortedSeats(set map[trip.SeatLabel]bool) []trip.SeatLabel {
	seats := make([]trip.SeatLabel, 0, len(set))
	for seat := range set {
		seats = append(seats, seat)
	}
	sort.Slice(seats, func(i, j int) bool { return seats[i] < seats[j] })
	return seats
}
