package lockapi

// errors.go defines the error taxonomy callers branch on.  Sentinel
// values cover the cases with no payload; ConflictError and
// RateLimitError carry the extra detail the server reports.  Handlers
// of these errors decide policy: a conflict rolls back an optimistic
// selection, a 401 degrades to proceeding without a confirmed lock,
// a 429 arms the global fetch backoff.

import (
	"errors"
	"fmt"
	"time"

	"github.com/safirbus/holdcoord/internal/trip"
)

// ErrUnauthenticated is returned when the service rejects a call
// purely for missing or invalid auth, not contention.  Seat selection
// proceeds without a confirmed lock in that case.
var ErrUnauthenticated = errors.New("lockapi: unauthenticated")

// ConflictError reports that one or more requested seats are already
// held or booked by another client.  Unavailable lists the seats the
// server named, when it did.
type ConflictError struct {
	Unavailable []trip.SeatLabel
}

func (e *ConflictError) Error() string {
	if len(e.Unavailable) == 0 {
		return "lockapi: seat already taken"
	}
	return fmt.Sprintf("lockapi: seats unavailable: %v", e.Unavailable)
}

// IsConflict reports whether err is a seat contention failure.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// RateLimitError reports a 429 from the service.  RetryAfter is the
// server-suggested pause, zero when the header was absent.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("lockapi: rate limited, retry after %s", e.RetryAfter)
}

// IsRateLimited reports whether err is a rate-limit rejection and, if
// so, returns the suggested pause.
func IsRateLimited(err error) (time.Duration, bool) {
	var re *RateLimitError
	if errors.As(err, &re) {
		return re.RetryAfter, true
	}
	return 0, false
}
