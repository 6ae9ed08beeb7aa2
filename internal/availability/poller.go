package availability

// poller.go runs the background refresh loop for a results page.
// Each tick refreshes at most PollCap trips, the priority trip first
// and then the stalest, and skips entirely while the page is hidden.

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/safirbus/holdcoord/internal/trip"
)

// Run polls tracked trips until ctx is cancelled.  It is intended to
// be started once per results page, after Populate.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.cfg.Visible != nil && !r.cfg.Visible() {
				continue
			}
			r.tick(ctx)
		}
	}
}

func (r *Reconciler) tick(ctx context.Context) {
	keys := r.pollOrder()
	if len(keys) > r.cfg.PollCap {
		keys = keys[:r.cfg.PollCap]
	}
	var wg sync.WaitGroup
	for _, k := range keys {
		wg.Add(1)
		go func(k trip.Key) {
			defer wg.Done()
			_, _ = r.Refresh(ctx, k, false)
		}(k)
	}
	wg.Wait()
}

// pollOrder returns tracked trips with the priority trip first and
// the rest ordered stalest-first, so a tight cap still converges.
func (r *Reconciler) pollOrder() []trip.Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	type aged struct {
		key trip.Key
		at  time.Time
	}
	rest := make([]aged, 0, len(r.snaps))
	out := make([]trip.Key, 0, len(r.snaps))
	for k, e := range r.snaps {
		if r.priority != nil && k == *r.priority {
			out = append(out, k)
			continue
		}
		rest = append(rest, aged{key: k, at: e.fetchedAt})
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].at.Before(rest[j].at) })
	for _, a := range rest {
		out = append(out, a.key)
	}
	return out
}
