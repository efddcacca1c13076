package core

// inflight.go tracks remote calls that have been issued but not answered.
//
// Nothing is limited: mutations on the same session run concurrently and the
// last response to arrive wins. The tracker only lets a UI show that a session
// is saving and lets the server wait for outstanding calls on shutdown.

import (
	"context"
	"sync"
	"time"
)

// InFlight counts outstanding remote calls per session.
type InFlight struct {
	mu        sync.RWMutex
	total     int
	bySession map[string]int
}

// NewInFlight creates an empty tracker.
func NewInFlight() *InFlight {
	return &InFlight{bySession: make(map[string]int)}
}

// Begin records a call for sessionID. The returned func must be called exactly
// once when the call completes (use defer).
func (f *InFlight) Begin(sessionID string) (done func()) {
	f.mu.Lock()
	f.total++
	f.bySession[sessionID]++
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.total--
			if f.bySession[sessionID]--; f.bySession[sessionID] <= 0 {
				delete(f.bySession, sessionID)
			}
			f.mu.Unlock()
		})
	}
}

// ActiveCount returns the number of outstanding calls.
func (f *InFlight) ActiveCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.total
}

// ActiveFor returns the number of outstanding calls for one session.
func (f *InFlight) ActiveFor(sessionID string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bySession[sessionID]
}

// WaitForDrain blocks until no calls are outstanding or ctx is done.
// Used for graceful shutdown.
func (f *InFlight) WaitForDrain(ctx context.Context) error {
	if f.ActiveCount() == 0 {
		return nil
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if f.ActiveCount() == 0 {
				return nil
			}
		}
	}
}

// InFlightStatus is a snapshot of outstanding calls.
type InFlightStatus struct {
	Active    int            `json:"active"`
	BySession map[string]int `json:"bySession"`
}

// Status returns the current state for monitoring.
func (f *InFlight) Status() InFlightStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()

	by := make(map[string]int, len(f.bySession))
	for id, n := range f.bySession {
		by[id] = n
	}
	return InFlightStatus{Active: f.total, BySession: by}
}
