// Package trip defines the value types shared by the seat hold
// coordination layer: trip identity, seat labels, availability
// snapshots and per-trip selection state.  These types carry no
// behaviour beyond simple derivations; ownership rules are described
// on each type.
package trip

import "fmt"

// Key is the composite identity of a bookable trip instance.  A trip
// id alone is not unique within a results page because the same bus
// may run several departures; the departure time disambiguates.  The
// travel date scopes availability but is carried separately by the
// components that need it, since it is constant for a whole search.
//
// Key is comparable and is used directly as a map key.  Callers must
// build it from the server-reported values without normalising case
// or trimming, so that every registry entry, snapshot and lock call
// agrees on the same representation.
type Key struct {
	TripID    string // server identifier of the trip/bus service
	Departure string // departure time as reported by the server, e.g. "21:30"
}

// String renders the key for logs and persisted ledgers.
func (k Key) String() string {
	return fmt.Sprintf("%s@%s", k.TripID, k.Departure)
}

// SeatLabel identifies a seat on the bus layout, e.g. "12A".
type SeatLabel string

// Gender of a seat occupant, used to render gender-restricted
// adjacency rules on the seat map.  The coordination layer treats it
// as opaque beyond equality.
type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
	GenderNone   Gender = ""
)

// AvailabilitySnapshot is the reconciler's view of one trip's seat
// state.  It is owned by the availability reconciler; consumers get
// copies and must treat them as read-only and approximate.  A nil
// Available means the first fetch has not resolved yet ("checking").
// The snapshot is never the arbiter of whether an acquire will
// succeed; the acquire call is.
type AvailabilitySnapshot struct {
	Available   *int                 // total open seats, nil until first fetch resolves
	Window      *int                 // open window seats, nil when the server omits it
	BookedSeats map[SeatLabel]bool   // seats reported booked or held by others
	SeatGenders map[SeatLabel]Gender // occupant gender per booked seat
}

// Booked reports whether the snapshot marks the seat as taken.
func (s AvailabilitySnapshot) Booked(seat SeatLabel) bool {
	return s.BookedSeats[seat]
}

// Clone returns a deep copy so callers can hold a snapshot across
// later merges without racing the reconciler.
func (s AvailabilitySnapshot) Clone() AvailabilitySnapshot {
	out := AvailabilitySnapshot{Available: s.Available, Window: s.Window}
	if s.BookedSeats != nil {
		out.BookedSeats = make(map[SeatLabel]bool, len(s.BookedSeats))
		for k, v := range s.BookedSeats {
			out.BookedSeats[k] = v
		}
	}
	if s.SeatGenders != nil {
		out.SeatGenders = make(map[SeatLabel]Gender, len(s.SeatGenders))
		for k, v := range s.SeatGenders {
			out.SeatGenders[k] = v
		}
	}
	return out
}

// SelectionState is the per-trip view the UI renders: the ordered
// seat selection, chosen boarding/dropping points and derived
// pricing.  It is owned by the selection coordinator; all price
// fields are recomputed from the fare whenever seats or points
// change, never mutated independently.  Amounts are in cents.
type SelectionState struct {
	Seats          []SeatLabel          // selection in tap order
	SeatGenders    map[SeatLabel]Gender // gender chosen per selected seat
	BoardingPoint  string
	DroppingPoint  string
	BasePrice      int64
	ConvenienceFee int64
	TotalPrice     int64
}

// HasSeat reports whether the seat is currently part of the selection.
func (s SelectionState) HasSeat(seat SeatLabel) bool {
	for _, l := range s.Seats {
		if l == seat {
			return true
		}
	}
	return false
}
