// Package selection turns seat taps into optimistic local state plus
// a matched acquire or release call against the lock service.  Each
// seat moves through an explicit state machine so rollback is a named
// transition rather than a catch-block side effect:
//
//	Free -> Selecting -> Held -> Releasing -> Free
//
// with Blocked for seats the server reports as taken by someone else.
// Every optimistic mutation is provisional until the network call
// resolves, and every one has a defined rollback.  The lock registry
// is only ever touched through Remember/Forget, never directly.
package selection

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/safirbus/holdcoord/internal/availability"
	"github.com/safirbus/holdcoord/internal/lockapi"
	"github.com/safirbus/holdcoord/internal/logger"
	"github.com/safirbus/holdcoord/internal/registry"
	"github.com/safirbus/holdcoord/internal/trip"
)

// Selection failures surfaced to the caller.  These are user-input
// rejections, not network faults; network and contention outcomes are
// reported through the Notify callback and the returned wrapped
// error.
var (
	// ErrSeatBooked rejects a tap on a seat the current snapshot
	// marks as taken.  Fast-path guard only; a stale snapshot just
	// means the acquire call reports the conflict instead.
	ErrSeatBooked = errors.New("selection: seat already booked")
	// ErrSelectionFull rejects a tap past the per-trip seat cap.
	ErrSelectionFull = errors.New("selection: seat limit reached")
	// ErrSeatBusy rejects a tap while an acquire or release for the
	// same seat is still in flight, so rapid double taps cost one
	// network call.
	ErrSeatBusy = errors.New("selection: seat operation in flight")
)

type seatPhase int

const (
	phaseFree seatPhase = iota
	phaseSelecting
	phaseHeld
	phaseReleasing
	phaseBlocked
)

type tripState struct {
	phases map[trip.SeatLabel]seatPhase
	sel    trip.SelectionState
	fare   trip.Fare
	// gen invalidates in-flight acquires when the trip is cleared;
	// a late success then releases its lock instead of recording a
	// hold nothing will ever give back
	gen int
}

func newTripState() *tripState {
	return &tripState{
		phases: make(map[trip.SeatLabel]seatPhase),
		sel:    trip.SelectionState{SeatGenders: make(map[trip.SeatLabel]trip.Gender)},
	}
}

// Config wires the coordinator's collaborators.
type Config struct {
	Client   lockapi.Client
	Registry *registry.Registry
	Avail    *availability.Reconciler
	ClientID string
	Date     string
	MaxSeats int // 0 means the default cap of 4
	// Notify delivers user-facing messages ("seat just taken").
	// Optional.
	Notify func(key trip.Key, message string)
	Log    *zap.Logger
}

// Coordinator is the per-search-page selection state machine across
// all listed trips.  Safe for concurrent use; rapid taps from the UI
// arrive as concurrent calls.
type Coordinator struct {
	cfg Config
	log *zap.Logger

	mu       sync.Mutex
	trips    map[trip.Key]*tripState
	expanded *trip.Key
	gen      int
	wg       sync.WaitGroup
}

// New builds a coordinator.  Client and Registry are required.
func New(cfg Config) *Coordinator {
	if cfg.MaxSeats <= 0 {
		cfg.MaxSeats = 4
	}
	if cfg.Log == nil {
		cfg.Log = logger.Get()
	}
	return &Coordinator{cfg: cfg, log: cfg.Log, trips: make(map[trip.Key]*tripState)}
}

// SetFare installs the fare table for a trip, from the listing
// payload.  Prices of an existing selection are recomputed.
func (c *Coordinator) SetFare(key trip.Key, fare trip.Fare) {
	c.mu.Lock()
	st := c.tripLocked(key)
	st.fare = fare
	c.repriceLocked(st)
	c.mu.Unlock()
}

// SetPoints records the chosen boarding and dropping points and
// recomputes the derived prices, applying any point-pair fare
// override.
func (c *Coordinator) SetPoints(key trip.Key, boarding, dropping string) {
	c.mu.Lock()
	st := c.tripLocked(key)
	st.sel.BoardingPoint = boarding
	st.sel.DroppingPoint = dropping
	c.repriceLocked(st)
	c.mu.Unlock()
}

// Selection returns a copy of the trip's current selection state.
func (c *Coordinator) Selection(key trip.Key) trip.SelectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.trips[key]
	if !ok {
		return trip.SelectionState{}
	}
	return copySelection(st.sel)
}

// Select handles a tap on a free seat.  The seat is applied to the
// selection optimistically, then the acquire call decides: success
// records the hold in the registry, a conflict or network failure
// rolls the optimistic selection back and surfaces a message.  An
// acquire rejected purely for missing auth keeps the selection
// without a confirmed hold, preserving the guest browsing flow.
func (c *Coordinator) Select(ctx context.Context, key trip.Key, seat trip.SeatLabel, gender trip.Gender) error {
	c.mu.Lock()
	st := c.tripLocked(key)
	if c.cfg.Avail != nil {
		if snap, ok := c.cfg.Avail.Snapshot(key); ok && snap.Booked(seat) {
			st.phases[seat] = phaseBlocked
			c.mu.Unlock()
			return ErrSeatBooked
		}
	}
	switch st.phases[seat] {
	case phaseSelecting, phaseReleasing:
		c.mu.Unlock()
		return ErrSeatBusy
	case phaseHeld:
		c.mu.Unlock()
		return nil
	case phaseBlocked:
		c.mu.Unlock()
		return ErrSeatBooked
	}
	if len(st.sel.Seats) >= c.cfg.MaxSeats {
		c.mu.Unlock()
		return ErrSelectionFull
	}
	st.phases[seat] = phaseSelecting
	st.sel.Seats = append(st.sel.Seats, seat)
	st.sel.SeatGenders[seat] = gender
	c.repriceLocked(st)
	gen := c.gen
	tripGen := st.gen
	c.mu.Unlock()

	err := c.cfg.Client.AcquireLock(ctx, key, c.cfg.Date, []trip.SeatLabel{seat}, c.cfg.ClientID)

	c.mu.Lock()
	st = c.tripLocked(key)
	if gen != c.gen || tripGen != st.gen {
		// the page was torn down, the session signed out, or this
		// trip's card was collapsed while the acquire was in flight;
		// a lock won now would be orphaned
		c.mu.Unlock()
		if err == nil {
			c.releaseInBackground(key, seat)
		}
		return err
	}
	var message string
	switch {
	case err == nil:
		st.phases[seat] = phaseHeld
		c.cfg.Registry.Remember(ctx, key, seat)
	case errors.Is(err, lockapi.ErrUnauthenticated):
		// no confirmed hold, but do not block a guest selecting seats
		st.phases[seat] = phaseHeld
		c.log.Info("acquire unauthenticated, proceeding without lock",
			zap.String("trip", key.String()), zap.String("seat", string(seat)))
	case lockapi.IsConflict(err):
		c.rollbackLocked(st, seat)
		st.phases[seat] = phaseBlocked
		message = "Seat " + string(seat) + " was just taken. Please pick another seat."
	default:
		c.rollbackLocked(st, seat)
		st.phases[seat] = phaseFree
		message = "Could not reserve seat " + string(seat) + ". Please try again."
		c.log.Warn("acquire failed", zap.String("trip", key.String()),
			zap.String("seat", string(seat)), zap.Error(err))
	}
	c.mu.Unlock()

	if message != "" {
		c.notify(key, message)
	}
	c.forceRefresh(key)
	if err != nil && !errors.Is(err, lockapi.ErrUnauthenticated) {
		return err
	}
	return nil
}

// Deselect handles a tap on a selected seat.  The seat leaves the
// selection immediately; the release is issued in the background and
// its failure is only logged, since the server-side hold TTL reclaims
// lost releases.
func (c *Coordinator) Deselect(ctx context.Context, key trip.Key, seat trip.SeatLabel) error {
	c.mu.Lock()
	st := c.tripLocked(key)
	switch st.phases[seat] {
	case phaseSelecting, phaseReleasing:
		c.mu.Unlock()
		return ErrSeatBusy
	case phaseHeld:
	default:
		c.mu.Unlock()
		return nil
	}
	st.phases[seat] = phaseReleasing
	c.rollbackLocked(st, seat)
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := c.cfg.Client.ReleaseLock(ctx, key, c.cfg.Date, []trip.SeatLabel{seat}, c.cfg.ClientID)
		if err != nil {
			c.log.Warn("release failed, hold will expire server-side",
				zap.String("trip", key.String()), zap.String("seat", string(seat)), zap.Error(err))
		}
		c.cfg.Registry.Forget(ctx, key, seat)
		c.mu.Lock()
		if st, ok := c.trips[key]; ok {
			st.phases[seat] = phaseFree
		}
		c.mu.Unlock()
		c.forceRefresh(key)
	}()
	return nil
}

// ExpandTrip switches the expanded card.  Every selected seat on
// every other trip is released first, so holds never accumulate on
// trips the user merely glanced at.  Pass nil to collapse all cards.
func (c *Coordinator) ExpandTrip(ctx context.Context, key *trip.Key) {
	c.mu.Lock()
	released := make(map[trip.Key][]trip.SeatLabel)
	for k, st := range c.trips {
		if key != nil && k == *key {
			continue
		}
		if len(st.sel.Seats) == 0 {
			continue
		}
		// only settled holds are released here.  A seat whose acquire
		// is still in flight must never see a concurrent release; the
		// bumped trip generation makes its late success release itself
		// once the acquire resolves.
		var held []trip.SeatLabel
		for _, s := range st.sel.Seats {
			if st.phases[s] == phaseHeld {
				held = append(held, s)
			}
		}
		if len(held) > 0 {
			released[k] = held
		}
		c.clearTripLocked(st)
	}
	if key == nil {
		c.expanded = nil
	} else {
		k := *key
		c.expanded = &k
	}
	c.mu.Unlock()

	for k, seats := range released {
		if err := c.cfg.Client.ReleaseLock(ctx, k, c.cfg.Date, seats, c.cfg.ClientID); err != nil {
			c.log.Warn("release on trip switch failed",
				zap.String("trip", k.String()), zap.Error(err))
		}
		c.cfg.Registry.Forget(ctx, k, seats...)
		c.forceRefresh(k)
	}
	if c.cfg.Avail != nil {
		c.cfg.Avail.SetPriority(key)
	}
}

// Expanded returns the currently expanded trip, nil when all cards
// are collapsed.
func (c *Coordinator) Expanded() *trip.Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.expanded == nil {
		return nil
	}
	k := *c.expanded
	return &k
}

// CompleteHandoff forgets a trip's holds and selection without a
// release call, after a successful booking converted the holds into a
// reservation the server now owns.
func (c *Coordinator) CompleteHandoff(ctx context.Context, key trip.Key) {
	c.cfg.Registry.ForgetTrip(ctx, key)
	c.mu.Lock()
	if st, ok := c.trips[key]; ok {
		c.clearTripLocked(st)
	}
	c.mu.Unlock()
}

// ClearAll wipes every trip's local selection and collapses the
// expanded card.  No network calls are made; the session lifecycle
// releases drained registry entries itself.
func (c *Coordinator) ClearAll() {
	c.mu.Lock()
	for _, st := range c.trips {
		c.clearTripLocked(st)
	}
	c.expanded = nil
	c.gen++
	c.mu.Unlock()
	if c.cfg.Avail != nil {
		c.cfg.Avail.SetPriority(nil)
	}
}

// Wait blocks until background release calls have settled.  Called
// during page teardown.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) tripLocked(key trip.Key) *tripState {
	st, ok := c.trips[key]
	if !ok {
		st = newTripState()
		c.trips[key] = st
	}
	return st
}

// rollbackLocked removes one seat from the optimistic selection and
// reprices.  The caller sets the seat's resulting phase.
func (c *Coordinator) rollbackLocked(st *tripState, seat trip.SeatLabel) {
	out := st.sel.Seats[:0]
	for _, s := range st.sel.Seats {
		if s != seat {
			out = append(out, s)
		}
	}
	st.sel.Seats = out
	delete(st.sel.SeatGenders, seat)
	c.repriceLocked(st)
}

func (c *Coordinator) clearTripLocked(st *tripState) {
	st.gen++
	st.phases = make(map[trip.SeatLabel]seatPhase)
	st.sel.Seats = nil
	st.sel.SeatGenders = make(map[trip.SeatLabel]trip.Gender)
	c.repriceLocked(st)
}

func (c *Coordinator) repriceLocked(st *tripState) {
	st.sel.BasePrice, st.sel.ConvenienceFee, st.sel.TotalPrice =
		st.fare.Price(len(st.sel.Seats), st.sel.BoardingPoint, st.sel.DroppingPoint)
}

func (c *Coordinator) notify(key trip.Key, message string) {
	if c.cfg.Notify != nil {
		c.cfg.Notify(key, message)
	}
}

// releaseInBackground gives back a lock that resolved after its page
// state was already cleared.
func (c *Coordinator) releaseInBackground(key trip.Key, seat trip.SeatLabel) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.cfg.Client.ReleaseLock(ctx, key, c.cfg.Date, []trip.SeatLabel{seat}, c.cfg.ClientID); err != nil {
			c.log.Warn("late release failed", zap.String("trip", key.String()),
				zap.String("seat", string(seat)), zap.Error(err))
		}
	}()
}

// forceRefresh nudges the reconciler so other observers see this
// client's change promptly.  Runs in the background; the tightened
// force TTL absorbs bursts from rapid taps.
func (c *Coordinator) forceRefresh(key trip.Key) {
	if c.cfg.Avail == nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_, _ = c.cfg.Avail.Refresh(context.Background(), key, true)
	}()
}

func copySelection(s trip.SelectionState) trip.SelectionState {
	out := s
	out.Seats = append([]trip.SeatLabel(nil), s.Seats...)
	out.SeatGenders = make(map[trip.SeatLabel]trip.Gender, len(s.SeatGenders))
	for k, v := range s.SeatGenders {
		out.SeatGenders[k] = v
	}
	return out
}
