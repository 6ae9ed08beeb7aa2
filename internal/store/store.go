// Package store provides the session-scoped key/value store the
// coordination layer keeps its ledgers in: client identity, the lock
// registry and checkout drafts.  The store is injected rather than
// accessed as an ambient global so tests can substitute the in-memory
// implementation, and so deployments can pick where "the session"
// actually lives (process memory for a kiosk, Redis for a BFF).
package store

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Get when no value exists for the key.
// Callers generally treat it the same as corrupt data: absent.
var ErrNotFound = errors.New("store: key not found")

// Store is a flat string key/value store scoped to one interactive
// booking session.  Values survive page navigations within the
// session but not a session restart.  Implementations must be safe
// for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Clear removes every key in the session.  Used at session end.
	Clear(ctx context.Context) error
}

// Memory is the in-process Store used by tests and single-process
// deployments.  A failing mode can be simulated by setting FailWrites,
// which makes Set return an error; components are expected to degrade
// rather than crash when the store misbehaves (private browsing,
// quota exhaustion).
type Memory struct {
	mu         sync.RWMutex
	data       map[string]string
	FailWrites bool
}

// NewMemory returns an empty in-memory session store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(ctx context.Context, key, value string) error {
	if m.FailWrites {
		return errors.New("store: writes disabled")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]string)
	return nil
}
