// Package fdsem provides a counting semaphore bounding the number of files
// concurrently open for hashing. It is backed by a buffered channel of
// tokens: waiters block receiving a token, and each release sends one token,
// which wakes at most one blocked receiver, so release under contention
// never causes a thundering herd.
package fdsem

// Semaphore bounds concurrent access to a fixed number of permits.
type Semaphore struct {
	tokens chan struct{}
}

// New creates a semaphore initialised with max permits available.
func New(max int) *Semaphore {
	s := &Semaphore{tokens: make(chan struct{}, max)}
	for i := 0; i < max; i++ {
		s.tokens <- struct{}{}
	}
	return s
}

// Acquire blocks until a permit is available, then takes it.
func (s *Semaphore) Acquire() {
	<-s.tokens
}

// TryAcquire takes a permit without blocking. It reports whether it
// succeeded.
func (s *Semaphore) TryAcquire() bool {
	select {
	case <-s.tokens:
		return true
	default:
		return false
	}
}

// Release returns a permit, waking at most one waiter.
func (s *Semaphore) Release() {
	s.tokens <- struct{}{}
}

// Count returns the number of permits currently available. It is a
// snapshot only, used by the HashPool controller to gauge headroom, not for
// correctness.
func (s *Semaphore) Count() int {
	return len(s.tokens)
}

// Token is a scoped permit that releases exactly once.
type Token struct {
	sem *Semaphore
}

// Access blocks until a permit is available and returns a Token that must
// be released (typically via defer Token.Release()).
func (s *Semaphore) Access() *Token {
	s.Acquire()
	return &Token{sem: s}
}

// TryAccess attempts to acquire a Token without blocking.
func (s *Semaphore) TryAccess() (*Token, bool) {
	if s.TryAcquire() {
		return &Token{sem: s}, true
	}
	return nil, false
}

// Release returns the token's permit. Safe to call at most once.
func (t *Token) Release() {
	t.sem.Release()
}
