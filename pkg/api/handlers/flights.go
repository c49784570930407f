package handlers

import (
	"context"
	"sync"
)

// flightTable tracks the in-flight streaming response per thread. A thread
// admits at most one active stream; the stored cancel lets stop_response
// abort it.
type flightTable struct {
	mu sync.Mutex
	m  map[string]context.CancelFunc
}

// begin registers a flight for the thread. It returns false when the
// thread already has one.
func (t *flightTable) begin(threadID string, cancel context.CancelFunc) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.m == nil {
		t.m = make(map[string]context.CancelFunc)
	}
	if _, busy := t.m[threadID]; busy {
		return false
	}
	t.m[threadID] = cancel
	return true
}

// end clears the thread's flight.
func (t *flightTable) end(threadID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, threadID)
}

// cancel aborts the thread's flight if one is active.
func (t *flightTable) cancel(threadID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	cancelFn, ok := t.m[threadID]
	if ok {
		cancelFn()
	}
	return ok
}
