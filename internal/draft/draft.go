// Package draft persists the in-progress checkout across navigations
// the page does not survive: the redirect to the payment gateway and
// back, a resume-booking link, an accidental reload.  The draft is a
// point-in-time serialization of the selection plus contact and
// passenger form data; each save stamps a fresh handoff token so a
// stale draft from an abandoned attempt is never silently reapplied
// over fresher in-memory state.
package draft

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/safirbus/holdcoord/internal/store"
	"github.com/safirbus/holdcoord/internal/trip"
)

const draftKey = "checkout_draft"

// Contact is the purchaser's contact form.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Passenger is one row of the passenger form.
type Passenger struct {
	Name   string         `json:"name"`
	Age    int            `json:"age"`
	Gender trip.Gender    `json:"gender"`
	Seat   trip.SeatLabel `json:"seat"`
}

// Draft is the full checkout context.  Prices are carried as saved,
// not recomputed on restore; the checkout page reprices from the fare
// once it has rebuilt its selection.
type Draft struct {
	TripID         string                          `json:"trip_id"`
	Departure      string                          `json:"departure"`
	Date           string                          `json:"date"`
	Seats          []trip.SeatLabel                `json:"seats"`
	SeatGenders    map[trip.SeatLabel]trip.Gender  `json:"seat_genders,omitempty"`
	BoardingPoint  string                          `json:"boarding_point"`
	DroppingPoint  string                          `json:"dropping_point"`
	BasePrice      int64                           `json:"base_price"`
	ConvenienceFee int64                           `json:"convenience_fee"`
	TotalPrice     int64                           `json:"total_price"`
	Contact        Contact                         `json:"contact"`
	Passengers     []Passenger                     `json:"passengers,omitempty"`
	HandoffToken   string                          `json:"handoff_token"`
	SavedAt        time.Time                       `json:"saved_at"`
}

// Key rebuilds the trip key the draft belongs to.
func (d *Draft) Key() trip.Key {
	return trip.Key{TripID: d.TripID, Departure: d.Departure}
}

// Store reads and writes the draft under a fixed session key.
type Store struct {
	store store.Store
}

// NewStore wraps a session store.
func NewStore(s store.Store) *Store {
	return &Store{store: s}
}

// Save serializes the draft, stamping a fresh handoff token and save
// time.  It returns the token so the caller can verify the handoff on
// return.  Called on form edits, immediately before an external
// redirect, and from the page-hide safety net.
func (s *Store) Save(ctx context.Context, d *Draft) (string, error) {
	d.HandoffToken = uuid.NewString()
	d.SavedAt = time.Now().UTC()
	raw, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	if err := s.store.Set(ctx, draftKey, string(raw)); err != nil {
		return "", err
	}
	return d.HandoffToken, nil
}

// Restore reads the saved draft.  Absent or corrupt data returns nil,
// never an error: a broken draft must not break the flow.
func (s *Store) Restore(ctx context.Context) *Draft {
	raw, err := s.store.Get(ctx, draftKey)
	if err != nil || raw == "" {
		return nil
	}
	var d Draft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil
	}
	return &d
}

// Clear removes the saved draft, after a completed booking.
func (s *Store) Clear(ctx context.Context) error {
	return s.store.Delete(ctx, draftKey)
}

// Merge fills only the missing pieces of base from the saved draft,
// for pages entered with partial context (a resume-booking link that
// carries trip and seats but no form data).  Fields base already has
// are never overwritten.  Returns base unchanged when nothing is
// saved.
func (s *Store) Merge(ctx context.Context, base *Draft) *Draft {
	saved := s.Restore(ctx)
	if saved == nil {
		return base
	}
	if base == nil {
		return saved
	}
	if base.TripID == "" {
		base.TripID = saved.TripID
		base.Departure = saved.Departure
		base.Date = saved.Date
	}
	if len(base.Seats) == 0 {
		base.Seats = saved.Seats
		base.SeatGenders = saved.SeatGenders
	}
	if base.BoardingPoint == "" {
		base.BoardingPoint = saved.BoardingPoint
	}
	if base.DroppingPoint == "" {
		base.DroppingPoint = saved.DroppingPoint
	}
	if base.TotalPrice == 0 {
		base.BasePrice = saved.BasePrice
		base.ConvenienceFee = saved.ConvenienceFee
		base.TotalPrice = saved.TotalPrice
	}
	if (base.Contact == Contact{}) {
		base.Contact = saved.Contact
	}
	if len(base.Passengers) == 0 {
		base.Passengers = saved.Passengers
	}
	return base
}

// GatewayReturned reports whether a return-from-gateway status means
// the payment did not complete, in which case restoring the draft is
// mandatory even though the page arrived via a fresh navigation.
func GatewayReturned(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", "success", "paid", "captured":
		return false
	}
	return true
}
