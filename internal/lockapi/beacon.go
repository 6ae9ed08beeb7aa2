package lockapi

// beacon.go is the last-resort release path used during page
// teardown.  A normal awaited request can be aborted when the page
// unloads, so the beacon fires the release and deliberately does not
// wait for, report, or retry the outcome.  The server-side hold TTL
// is the correctness backstop when delivery fails.

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/safirbus/holdcoord/internal/logger"
	"github.com/safirbus/holdcoord/internal/registry"
)

// Beacon dispatches best-effort releases.  It has a documented
// no-delivery-guarantee contract: Send returns immediately and any
// failure is only logged at debug level.
type Beacon struct {
	client  Client
	timeout time.Duration
	log     *zap.Logger
}

// NewBeacon wraps a client.  timeout bounds each background release;
// zero defaults to 3 seconds.
func NewBeacon(client Client, timeout time.Duration, log *zap.Logger) *Beacon {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if log == nil {
		log = logger.Get()
	}
	return &Beacon{client: client, timeout: timeout, log: log}
}

// Send fires one release per entry in the background and returns
// without waiting.  The caller must already have drained the entries
// from the registry; Send never reads shared state.
func (b *Beacon) Send(entries []registry.Entry, date, clientID string) {
	for _, e := range entries {
		e := e
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
			defer cancel()
			if err := b.client.ReleaseLock(ctx, e.Key(), date, e.Seats, clientID); err != nil {
				b.log.Debug("beacon release failed",
					zap.String("trip", e.Key().String()),
					zap.Error(err))
			}
		}()
	}
}
