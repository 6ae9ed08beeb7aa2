// Package lockapi is the client side of the seat lock service
// contract.  The service itself is a black box; this layer depends
// only on four operations: acquire a lock on seats, release it, query
// availability, and query the remaining hold time.  The HTTP
// implementation lives in http.go; consumers depend on the Client
// interface so tests can substitute mocks.
package lockapi

import (
	"context"
	"time"

	"github.com/safirbus/holdcoord/internal/trip"
)

// Availability is the wire-level availability report for one trip.
// Pointer fields distinguish "server omitted it" from zero.
type Availability struct {
	AvailableSeats       *int              `json:"available_seats"`
	AvailableWindowSeats *int              `json:"available_window_seats"`
	BookedSeats          []trip.SeatLabel  `json:"booked_seats"`
	SeatGenderMap        map[string]string `json:"seat_gender_map"`
}

// HoldTime is the remaining-hold-time report.  Servers answer with
// either a relative remaining duration or an absolute expiry; both
// come with ServerTime taken from the transport so the caller can
// correct for client clock drift.
type HoldTime struct {
	RemainingMs *int64     `json:"remaining_ms"`
	ExpiresAt   *time.Time `json:"expires_at"`
	ServerTime  time.Time  `json:"-"`
}

// Client is the four-operation lock service contract.  Acquire and
// Release take the same trip key, seat list and client id so the
// server can attribute holds; Release is idempotent and releasing an
// already-free seat is not an error.
type Client interface {
	AcquireLock(ctx context.Context, key trip.Key, date string, seats []trip.SeatLabel, clientID string) error
	ReleaseLock(ctx context.Context, key trip.Key, date string, seats []trip.SeatLabel, clientID string) error
	QueryAvailability(ctx context.Context, key trip.Key, date string) (Availability, error)
	QueryHoldTime(ctx context.Context, key trip.Key, date string, clientID string) (HoldTime, error)
}
