// Package priormap holds the in-memory mapping from path to prior hash that
// the Coordinator populates from the output log, and that every Walker
// consults to decide whether a discovered path is worth hashing again.
//
// A single mutex guards both the map contents and the condition variable
// Walkers block on: Resolve's check-then-wait and Insert/SetDone's
// mutate-then-broadcast must serialize against each other under the same
// lock, or a broadcast landing in the gap between a Walker's check and its
// Wait call is lost — sync.Cond only guarantees no lost wakeup when the
// waiter is registered (inside Wait, still holding the lock) before the
// broadcaster can proceed past its own Lock call.
package priormap

import "sync"

// Map is the shared PriorHashMap.
type Map struct {
	mu   sync.Mutex
	cond *sync.Cond
	data map[string]uint64
	done bool
}

// New creates an empty, not-yet-done PriorHashMap.
func New() *Map {
	m := &Map{data: make(map[string]uint64)}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Lookup reports the prior hash for path, if any.
func (m *Map) Lookup(path string) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.data[path]
	return h, ok
}

// Insert records path's prior hash and wakes every blocked Resolve call.
func (m *Map) Insert(path string, hash uint64) {
	m.mu.Lock()
	m.data[path] = hash
	m.mu.Unlock()
	m.cond.Broadcast()
}

// Range calls f for every (path, hash) pair currently recorded. f must not
// call back into Insert or SetDone.
func (m *Map) Range(f func(path string, hash uint64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for path, hash := range m.data {
		f(path, hash)
	}
}

// Done reports whether the prior-load task has finished (successfully or
// not): once true, any path not already present is known absent for good.
func (m *Map) Done() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

// SetDone marks the prior-load complete and wakes every blocked Resolve
// call one last time, per spec: a Walker waiting on a path that will never
// arrive must still be released.
func (m *Map) SetDone() {
	m.mu.Lock()
	m.done = true
	m.mu.Unlock()
	m.cond.Broadcast()
}

// Resolve blocks until path is either known or the prior load has
// finished, whichever comes first, then reports whether the path is still
// worth hashing: false if it is present in the map (its hash is not
// consulted), true if the prior load finished without ever
// recording it. The check and the wait happen atomically under the same
// lock Insert and SetDone take to broadcast, so no notification can land
// in the gap between them.
func (m *Map) Resolve(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		if _, known := m.data[path]; known {
			return false
		}
		if m.done {
			return true
		}
		m.cond.Wait()
	}
}
