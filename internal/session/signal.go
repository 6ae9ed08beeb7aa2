// Package session handles sign-out and teardown for the coordination
// layer.  Sign-out can arrive from several directions: the user logs
// out in this page, another tab or process clears the shared auth
// token, or the page itself is being unloaded.  Detection is
// decoupled from reaction through a small signal bus with multiple
// producers (local logout, token watcher, AMQP relay) and one
// consumer, the lifecycle coordinator, which drains the hold ledger
// and releases everything.
package session

import "sync"

// Reason classifies what produced a sign-out signal.
type Reason string

const (
	ReasonLogout       Reason = "logout"        // explicit in-page logout
	ReasonTokenCleared Reason = "token_cleared" // shared auth token removed elsewhere
	ReasonTokenExpired Reason = "token_expired" // shared auth token past its exp claim
	ReasonRemote       Reason = "remote"        // sign-out relayed from another process
)

// Signal is one sign-out event.
type Signal struct {
	Reason Reason
}

// Bus is an in-process pub/sub for sign-out signals.  Publish never
// blocks; a subscriber that has fallen behind drops the duplicate
// signal, which is harmless because draining is idempotent.
type Bus struct {
	mu   sync.Mutex
	subs []chan Signal
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a channel that receives future signals.
func (b *Bus) Subscribe() <-chan Signal {
	ch := make(chan Signal, 4)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers a signal to every subscriber without blocking.
func (b *Bus) Publish(sig Signal) {
	b.mu.Lock()
	subs := append([]chan Signal(nil), b.subs...)
	b.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- sig:
		default:
		}
	}
}
